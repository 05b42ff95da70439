package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/whiterails/internal/app"
	"github.com/MrSnakeDoc/whiterails/internal/config"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
	"github.com/MrSnakeDoc/whiterails/internal/version"
)

func executeCLI(args []string) error {
	rootCmd := newRootCommand(os.Stdout, os.Stderr)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "whiterails",
		Short:         "rule-based automation daemon",
		Long:          "whiterails watches a directory of service definitions and runs their actions when conditions hold.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.AddCommand(
		newRunCommand(),
		newValidateCommand(),
		newEvalCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the daemon (default)",
		Long:  "Start the daemon. Configuration is read from WR_* environment variables.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

func runDaemon(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Load()
	if !logger.ValidLevel(cfg.LogLevel) {
		return fmt.Errorf("invalid WR_LOG_LEVEL %q", cfg.LogLevel)
	}
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = loggerClient.Sync() }()

	a, err := app.New(ctx, cfg, loggerClient)
	if err != nil {
		loggerClient.Error("startup failed", logger.Error(err))
		return err
	}
	return a.Run(ctx)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
