package cmdgate

import (
	"context"
	"sort"
	"sync"
)

type trackerKey struct{}

type trackedOption struct {
	name     string
	consumed bool
}

type optionTracker struct {
	mu      sync.Mutex
	options map[any]*trackedOption
}

func trackerFrom(ctx context.Context) *optionTracker {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(trackerKey{}).(*optionTracker)
	return t
}

// TrackOptions returns a context that records which transport options get read.
func TrackOptions(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if trackerFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, trackerKey{}, &optionTracker{options: make(map[any]*trackedOption)})
}

// WithTrackedValue stores val under key and registers it under the option name.
func WithTrackedValue(ctx context.Context, key, val any, name string) context.Context {
	ctx = TrackOptions(ctx)
	t := trackerFrom(ctx)
	t.mu.Lock()
	t.options[key] = &trackedOption{name: name}
	t.mu.Unlock()
	return context.WithValue(ctx, key, val)
}

// GetTrackedValue returns the value stored under key and marks the option consumed.
func GetTrackedValue(ctx context.Context, key any) any {
	if ctx == nil {
		return nil
	}
	if t := trackerFrom(ctx); t != nil {
		t.mu.Lock()
		if o, ok := t.options[key]; ok {
			o.consumed = true
		}
		t.mu.Unlock()
	}
	return ctx.Value(key)
}

// WarnUnconsumed logs every tracked option that no transport has read.
func WarnUnconsumed(ctx context.Context, logger Logger) {
	if logger == nil {
		return
	}
	t := trackerFrom(ctx)
	if t == nil {
		return
	}

	t.mu.Lock()
	var names []string
	for _, o := range t.options {
		if !o.consumed {
			names = append(names, o.name)
		}
	}
	t.mu.Unlock()

	sort.Strings(names)
	for _, n := range names {
		logger.Logf("cmdgate: option %s was set but not used by this transport", n)
	}
}
