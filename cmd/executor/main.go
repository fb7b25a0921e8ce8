package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hanfei1991/dfnode/executor"
	"github.com/hanfei1991/dfnode/pkg/logutil"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dataflow-executor",
		Short: "Run a dataflow executor node",
		// the executor config owns the flags so that they can be merged
		// with the config file
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args)
		},
	}
}

func run(ctx context.Context, args []string) error {
	cfg := executor.NewConfig()
	if err := cfg.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		fmt.Fprintf(os.Stderr, "parse config failed: %v\n", err)
		return err
	}
	if err := logutil.InitLogger(&cfg.Config); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return err
	}
	log.L().Info("executor config", zap.Stringer("config", cfg))

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := executor.NewServer(cfg).Run(ctx); err != nil {
		log.L().Error("executor exited with error", zap.Error(err))
		return err
	}
	log.L().Info("executor exited")
	return nil
}
