// cmd/krakenctl/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/config"
	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/logging"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	development bool
	serial      string

	// Set by PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "krakenctl",
	Short: "Control an NZXT Kraken Z liquid cooler",
	Long: `krakenctl drives a Kraken Z-series cooler over USB: pump and fan speeds,
temperature-driven cooling profiles, and images, animations or a live gauge
on the 320x320 LCD.

Settings come from a YAML file (--config, default in the user config dir);
flags on each command override it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := config.Validate(c); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
		config.Normalize(c)
		cfg = c

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, development || cfg.Log.Development)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&development, "dev", false, "human-readable console logs")
	pf.StringVar(&serial, "serial", "", "select a cooler by USB serial number")

	rootCmd.AddCommand(
		// status
		statusCmd, monitorCmd, infoCmd, listCmd, checkBulkCmd,
		// speed
		setPumpCmd, setFanCmd, profileCmd, coolingDaemonCmd,
		// lcd
		setBrightnessCmd, setOrientationCmd, setLCDModeCmd, lcdProfileCmd,
		uploadImageCmd, listBucketsCmd, deleteBucketsCmd, lcdStatsCmd, lcdMonitorCmd,
		// unified
		startCmd,
		// diagnostics
		debugCmd, debugLCDCmd, discoverPresetsCmd, sensorsCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
	for _, h := range hints(err) {
		fmt.Fprintln(os.Stderr, "  "+h)
	}
	stop()
	os.Exit(exitCode(err))
}

// exitCode is 1 for everything except a missing or inaccessible device.
func exitCode(err error) int {
	switch {
	case errors.Is(err, fault.ErrDeviceNotFound):
		return 2
	case errors.Is(err, fault.ErrAccessDenied):
		return 3
	default:
		return 1
	}
}

func hints(err error) []string {
	switch {
	case errors.Is(err, fault.ErrDeviceNotFound):
		return []string{"is the cooler connected? `krakenctl list` shows what is attached"}
	case errors.Is(err, fault.ErrAccessDenied):
		return []string{
			"another program (NZXT CAM, liquidctl) may hold the device",
			"on Linux, a udev rule granting access to 1e71:3008 may be missing",
		}
	default:
		return nil
	}
}
