package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/opd-ai/trx"
	"github.com/opd-ai/trx/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK       = 0
	exitSetup    = 1
	exitPipeline = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// exitError carries the process exit code for a failed run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func newRootCommand(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trx",
		Short: "Send and receive audio streams over RTP",
		Long: `trx captures audio, encodes it and fans it out to every configured
RTP session, while one pipeline per session plays out the received stream.

Sessions come from either the single connection flags (-h, -p, -s, -S) or an
extended list given with -x as SSRC@RXPORT#ADDR:PORT entries.`,
		Example: `  trx -h 192.168.1.20 -p 1350 -s 1350
  trx -x 1001@5000#10.0.0.2:6000,1002@5002#10.0.0.3:6001 -e opus`,
		Args:          cobra.NoArgs,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromFlags(cmd.Flags())
			if err != nil {
				return &exitError{code: exitSetup, err: err}
			}
			return serve(cmd.Context(), cfg, stdout, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().SortFlags = false
	cmd.Flags().AddFlagSet(config.NewFlagSet("trx"))
	return cmd
}

// run executes one trx process until ctx is cancelled and returns its exit
// code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(stderr, "trx: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "Use --help for usage information.\n")
	return exitSetup
}

// serve owns the process resources around one engine run.
func serve(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	logCloser, err := config.ConfigureLogger(logrus.StandardLogger(), cfg, stderr)
	if err != nil {
		return &exitError{code: exitSetup, err: err}
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	if cfg.PIDFile != "" {
		if err := writePIDFile(cfg.PIDFile); err != nil {
			return &exitError{code: exitSetup, err: err}
		}
		defer os.Remove(cfg.PIDFile)
	}

	trigger := make(chan struct{}, 1)
	stopTriggers := notifyStats(trigger)
	defer stopTriggers()

	engine, err := trx.NewEngine(cfg, trx.Options{
		StatsOut:     stdout,
		StatsTrigger: trigger,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "serve",
			"error":    err.Error(),
		}).Error("Setup failed")
		return &exitError{code: exitSetup, err: err}
	}

	runErr := engine.Run(ctx)
	if err := engine.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "serve",
			"error":    err.Error(),
		}).Warn("Teardown incomplete")
	}

	if runErr != nil {
		return &exitError{code: exitPipeline, err: runErr}
	}
	logrus.WithFields(logrus.Fields{
		"function": "serve",
	}).Info("Stopped")
	return nil
}

// writePIDFile records the process ID for service managers. The process is
// not forked; run trx under a supervisor to detach it.
func writePIDFile(path string) error {
	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(pid), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}
