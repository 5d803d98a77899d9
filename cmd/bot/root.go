package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pricebot/internal/app"
	logx "pricebot/pkg/logx"
	"pricebot/pkg/systemd"
)

type rootFlags struct {
	config string
	dotenv []string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	runCmd := newRunCmd(f)
	root := &cobra.Command{
		Use:           "pricebot",
		Short:         "Watch product prices and report changes to Telegram",
		Version:       fmt.Sprintf("%s %s/%s", app.Version, runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		// Without a subcommand the bot runs.
		RunE: runCmd.RunE,
	}
	root.PersistentFlags().StringVarP(&f.config, "config", "c", "./config.json", "path to config file (json, yaml or toml)")
	root.PersistentFlags().StringSliceVar(&f.dotenv, "env-file", []string{".env"}, "dotenv files loaded before the config")

	root.AddCommand(runCmd, newServicesCmd(f))
	return root
}

func newRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot and its workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
}

func run(parent context.Context, f *rootFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	a, err := app.New(f.config, app.WithDotEnv(f.dotenv...))
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	sd := systemd.New(logx.NewConsole("INFO").With(logx.String("comp", "systemd")))
	sd.Ready()
	go sd.RunWatchdog(ctx)

	reason := app.StopAppStop
	select {
	case sig := <-sigCh:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	case <-parent.Done():
	}

	sd.Stopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	stopErr := a.Stop(stopCtx, reason)
	return errors.Join(a.Err(), stopErr)
}
