package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/QTest-hq/pytestify/internal/config"
)

var version = "dev"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		verbose bool
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "pytestify",
		Short: "pytestify - convert unittest suites to pytest",
		Long: `pytestify rewrites unittest.TestCase based test modules into plain
pytest style: bare asserts, fixtures, pytest marks and parametrized tests.
Formatting and comments are preserved wherever code is not rewritten.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(verbose, logFile)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output, including declined rewrites")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotated file")

	cmd.AddCommand(convertCmd())
	cmd.AddCommand(checkCmd())
	cmd.AddCommand(diffCmd())
	cmd.AddCommand(fallbackCmd())
	cmd.AddCommand(parseCmd())
	cmd.AddCommand(initCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(verifyCmd())

	return cmd
}

func setupLogging(verbose bool, logFile string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if logFile != "" {
		logWriter := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		console := zerolog.ConsoleWriter{Out: os.Stderr}
		log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, logWriter)).With().Timestamp().Logger()
	}
	return nil
}
