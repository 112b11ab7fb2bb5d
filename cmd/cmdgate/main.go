package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/qvcloud/cmdgate"
	"github.com/qvcloud/cmdgate/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:          "cmdgate",
		Short:        "Publish commands to registered broker connections",
		Version:      fmt.Sprintf("%s (commit: %s)", version, gitCommit),
		SilenceUsage: true,
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cmdgate.yaml", "Path to the connections file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	newLogger := func() zerolog.Logger {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		return zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	}

	var (
		identifier string
		testMode   bool
		headers    []string
		payload    string
		timeout    time.Duration
		dryRun     bool
	)

	dispatchCmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Dispatch one command",
		Long: `Dispatch publishes a single command on the connection registered under
--identifier. The payload is taken from --payload or read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dryRun {
				cfg = cfg.DryRun()
			}

			hdrs, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			body := []byte(payload)
			if payload == "" {
				body, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
			}

			reg, err := cfg.Build(cmdgate.WithRegistryLogger(cmdgate.NewZerologLogger(log)))
			if err != nil {
				return err
			}
			defer func() {
				if err := reg.Close(); err != nil {
					log.Warn().Err(err).Msg("closing connections")
				}
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			command := cmdgate.NewJSONCommand(body, testMode)
			start := time.Now()
			if err := reg.Dispatch(ctx, command, identifier, hdrs); err != nil {
				log.Error().Err(err).
					Str("identifier", identifier).
					Str("outcome", cmdgate.Outcome(err)).
					Msg("dispatch failed")
				return err
			}
			log.Info().
				Str("identifier", cmdgate.ResolveIdentifier(command, identifier)).
				Dur("took", time.Since(start)).
				Msg("dispatched")

			if dryRun {
				printPublications(cmd.OutOrStdout(), reg)
			}
			return nil
		},
	}
	dispatchCmd.Flags().StringVarP(&identifier, "identifier", "i", "", "Connection identifier")
	dispatchCmd.Flags().BoolVar(&testMode, "test", false, "Dispatch in test mode (routes to test_<identifier>)")
	dispatchCmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Header as key=value, repeatable")
	dispatchCmd.Flags().StringVarP(&payload, "payload", "p", "", "Command payload, read from stdin when empty")
	dispatchCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Dispatch timeout")
	dispatchCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use in-memory connections and print what would be published")
	_ = dispatchCmd.MarkFlagRequired("identifier")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			printConnections(cmd.OutOrStdout(), cfg)
			return nil
		},
	}

	rootCmd.AddCommand(dispatchCmd, listCmd)
	return rootCmd
}

func parseHeaders(kvs []string) (cmdgate.Headers, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	h := make(cmdgate.Headers, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header %q, expected key=value", kv)
		}
		h[k] = v
	}
	return h, nil
}

func printConnections(w io.Writer, cfg *config.Config) {
	conns := append([]config.ConnectionConfig(nil), cfg.Connections...)
	sort.Slice(conns, func(i, j int) bool { return conns[i].Identifier < conns[j].Identifier })

	fmt.Fprintf(w, "%-24s %-10s %-11s %-20s %s\n", "IDENTIFIER", "TRANSPORT", "MODE", "EXCHANGE", "QUEUE")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, c := range conns {
		mode, _ := cmdgate.ParseMode(c.Mode)
		fmt.Fprintf(w, "%-24s %-10s %-11s %-20s %s\n", c.Identifier, c.Transport, mode, c.Exchange, c.Queue)
	}
}

func printPublications(w io.Writer, reg *cmdgate.Registry) {
	for _, id := range reg.Identifiers() {
		conn, _, _ := reg.Lookup(id)
		noop, ok := conn.(*cmdgate.NoopConnection)
		if !ok {
			continue
		}
		for _, p := range noop.Published() {
			fmt.Fprintf(w, "identifier: %s\nexchange:   %s\nqueue:      %s\nmessage-id: %s\n",
				id, p.Exchange, p.Queue, p.Message.ID)
			keys := make([]string, 0, len(p.Message.Headers))
			for k := range p.Message.Headers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			headers := p.Message.Headers.StringMap()
			for _, k := range keys {
				fmt.Fprintf(w, "header:     %s=%s\n", k, headers[k])
			}
			fmt.Fprintf(w, "body:       %s\n", p.Message.Body)
		}
	}
}
