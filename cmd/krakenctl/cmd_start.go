// cmd/krakenctl/cmd_start.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/cooling"
	"github.com/tamzrod/krakenctl/internal/lcd"
	"github.com/tamzrod/krakenctl/internal/logging"
	"github.com/tamzrod/krakenctl/internal/scheduler"
)

// runLogger stamps a run_id on the root logger for long-running commands.
func runLogger() *zap.Logger {
	log, id := logging.WithRun(logger)
	log.Debug("run started", zap.String("command", "krakenctl"), zap.String("run_id", id))
	return log
}

var startSettings coolingSettings

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run cooling control and the LCD together until interrupted",
	Long: `Runs every configured task against one cooler:

  cooling   profile-driven pump and fan duties (always)
  display   gauge, image or GIF per display.mode (unless "none")
  hostinfo  pushes the CPU temperature for the firmware screens (display.host_info)
  export    Modbus status block (export.endpoint)

All USB traffic is serialized; an upload is never interleaved with speed commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c := startSettings.effective()
		log := runLogger()

		s, err := openCooler(ctx, log, true)
		if err != nil {
			return err
		}
		defer s.Close()

		if b := cfg.Display.Brightness; b != nil {
			if err := s.cooler.SetLCD(ctx, uint8(*b), uint8(cfg.Display.Quarters())); err != nil {
				log.Warn("lcd config failed", zap.Error(err))
			}
		}

		ex, closeExport, err := exporter(log, 3*c.interval)
		if err != nil {
			return err
		}
		defer closeExport()

		// one poll per sensor per half tick, shared by every task
		shared := telemetrySource(s, c.interval/2)
		sched := scheduler.New(log.Named("scheduler"))

		// ---- cooling ----
		var onTick func(cooling.Result)
		if ex != nil {
			onTick = ex.Cooling
		}
		loop, err := c.loop(s, shared, onTick)
		if err != nil {
			return err
		}
		sched.Add("cooling", scheduler.CoolingTask(loop))

		// ---- display ----
		src, err := displaySource(shared)
		if err != nil {
			return err
		}
		if src != nil {
			mode, err := lcd.ParseMode(cfg.Display.Animation)
			if err != nil {
				return err
			}
			p, err := presenter(s, mode, ex)
			if err != nil {
				return err
			}
			if err := p.Prepare(ctx, cfg.Display.ClearOnStart); err != nil {
				return err
			}
			sched.Add("display", scheduler.DisplayTask(p, src, 0, log.Named("display")))
		}

		// ---- host info ----
		if cfg.Display.HostInfo {
			sched.Add("hostinfo", scheduler.HostInfoTask(s.cooler, shared, c.interval, log.Named("hostinfo")))
		}

		// ---- export ----
		addExport(sched, ex)

		log.Info("krakenctl started",
			zap.String("profile", c.profile),
			zap.String("source", c.source),
			zap.Duration("interval", c.interval),
			zap.String("display", cfg.Display.Mode),
			zap.Int("tasks", sched.Len()),
		)
		fmt.Printf("running %d tasks (Ctrl+C to stop)\n", sched.Len())
		return sched.Run(ctx)
	},
}

func init() {
	coolingFlags(startCmd, &startSettings)
}
