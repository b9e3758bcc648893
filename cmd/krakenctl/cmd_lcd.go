// cmd/krakenctl/cmd_lcd.go
package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/bucket"
	"github.com/tamzrod/krakenctl/internal/export"
	"github.com/tamzrod/krakenctl/internal/frame"
	"github.com/tamzrod/krakenctl/internal/kraken"
	"github.com/tamzrod/krakenctl/internal/lcd"
	"github.com/tamzrod/krakenctl/internal/scheduler"
	"github.com/tamzrod/krakenctl/internal/telemetry"
)

// ------------------------------------------------------------
// LCD settings
// ------------------------------------------------------------

var setBrightnessCmd = &cobra.Command{
	Use:   "set-brightness <0-100>",
	Short: "Set LCD brightness, keeping the orientation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := parseDuty(args[0])
		if err != nil {
			return fmt.Errorf("brightness: %w", err)
		}
		return withCooler(cmd.Context(), func(s *session) error {
			if err := s.cooler.SetBrightness(cmd.Context(), uint8(b)); err != nil {
				return err
			}
			done("brightness set to %d%%", b)
			return nil
		})
	},
}

var setOrientationCmd = &cobra.Command{
	Use:   "set-orientation <0-3|degrees>",
	Short: "Rotate the LCD (0-3 quarter turns, or 0/90/180/270)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := parseOrientation(args[0])
		if err != nil {
			return err
		}
		return withCooler(cmd.Context(), func(s *session) error {
			if err := s.cooler.SetOrientation(cmd.Context(), q); err != nil {
				return err
			}
			done("orientation set to %d°", int(q)*90)
			return nil
		})
	},
}

func parseOrientation(arg string) (uint8, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(arg, "°"))
	switch {
	case err != nil:
		return 0, fmt.Errorf("orientation %q: %w", arg, err)
	case n >= 0 && n <= 3:
		return uint8(n), nil
	case n == 90 || n == 180 || n == 270:
		return uint8(n / 90), nil
	default:
		return 0, fmt.Errorf("orientation %q must be 0-3 or 0/90/180/270", arg)
	}
}

var setLCDModeCmd = &cobra.Command{
	Use:   "set-lcd-mode <mode> [index]",
	Short: "Switch the LCD content (0 blank, 1 cpu, 2 liquid, 3 gpu, 4 bucket)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("mode %q: %w", args[0], err)
		}
		var index uint64
		if len(args) == 2 {
			if index, err = strconv.ParseUint(args[1], 10, 8); err != nil {
				return fmt.Errorf("index %q: %w", args[1], err)
			}
		}
		return withCooler(cmd.Context(), func(s *session) error {
			if err := s.cooler.SetVisualMode(cmd.Context(), uint8(mode), uint8(index)); err != nil {
				return err
			}
			done("lcd mode %d index %d", mode, index)
			return nil
		})
	},
}

var lcdProfileCmd = &cobra.Command{
	Use:   "lcd-profile <name>",
	Short: "Apply an LCD preset: " + strings.Join(kraken.LCDProfileNames(), ", "),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := kraken.LookupLCDProfile(args[0])
		if err != nil {
			return err
		}
		return withCooler(cmd.Context(), func(s *session) error {
			if err := s.cooler.ApplyLCDProfile(cmd.Context(), p); err != nil {
				return err
			}
			done("lcd profile %s applied", p.Name)
			return nil
		})
	},
}

// withCooler opens without the init sequence, which LCD commands do not need.
func withCooler(ctx context.Context, fn func(s *session) error) error {
	s, err := openCooler(ctx, logger, false)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// ------------------------------------------------------------
// Buckets
// ------------------------------------------------------------

var listBucketsCmd = &cobra.Command{
	Use:   "list-buckets",
	Short: "Show which LCD memory buckets hold assets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCooler(cmd.Context(), func(s *session) error {
			a, err := s.allocator(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(renderBuckets(a.Snapshot()))
			return nil
		})
	},
}

var deleteBucketsCmd = &cobra.Command{
	Use:   "delete-buckets [index...]",
	Short: "Delete LCD memory buckets (all when no index is given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withCooler(ctx, func(s *session) error {
			a, err := s.allocator(ctx)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				if err := a.ClearAll(ctx); err != nil {
					return err
				}
				done("all buckets deleted")
				return nil
			}
			for _, arg := range args {
				i, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("bucket %q: %w", arg, err)
				}
				if err := a.Delete(ctx, i); err != nil {
					return err
				}
				done("bucket %d deleted", i)
			}
			return nil
		})
	},
}

// ------------------------------------------------------------
// Uploads
// ------------------------------------------------------------

var (
	uploadFit       string
	uploadAnimation string
	uploadRepeat    int
	uploadClear     bool
)

var uploadImageCmd = &cobra.Command{
	Use:   "upload-image <path>",
	Short: "Show an image or GIF on the LCD",
	Long: `Decodes a PNG, JPEG, BMP, WebP or GIF file, fits it to 320x320 and shows it.

GIFs are uploaded as one device-looped asset by default (--animation device).
With --animation host, frames are uploaded one by one and paced by the host
until --repeat passes are done or the command is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		opts, err := frameOptions()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("fit") {
			if opts.Fit, err = frame.ParseFit(uploadFit); err != nil {
				return err
			}
		}
		mode, err := lcd.ParseMode(uploadAnimation)
		if err != nil {
			return err
		}

		var src frame.Source
		if strings.EqualFold(filepath.Ext(path), ".gif") {
			src, err = frame.LoadAnimated(path, opts, uploadRepeat)
		} else {
			src, err = frame.LoadStatic(path, opts)
		}
		if err != nil {
			return err
		}

		return withCooler(ctx, func(s *session) error {
			p, err := presenter(s, mode, nil)
			if err != nil {
				return err
			}
			if err := p.Prepare(ctx, uploadClear); err != nil {
				return err
			}
			if err := p.Play(ctx, src); err != nil {
				return err
			}
			done("%s shown in bucket %d", filepath.Base(path), p.Shown())
			return nil
		})
	},
}

// presenter wires an allocator and the cooler display into an lcd.Presenter.
// The caller loads the bucket mirror with Prepare.
func presenter(s *session, mode lcd.Mode, ex *export.Exporter) (*lcd.Presenter, error) {
	a, err := bucket.New(s.dev, s.log.Named("bucket"))
	if err != nil {
		return nil, err
	}
	pc := lcd.Config{Mode: mode}
	if ex != nil {
		pc.OnShow = ex.Shown
		pc.OnFail = ex.Failed
	}
	return lcd.New(pc, a, s.cooler, s.log.Named("lcd"))
}

var statsSource string

var lcdStatsCmd = &cobra.Command{
	Use:   "lcd-stats",
	Short: "Render the temperature gauge once and show it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withCooler(ctx, func(s *session) error {
			tag, err := telemetry.ParseTag(statsSource)
			if err != nil {
				return err
			}
			g, err := frame.NewGauge(cfg.Display.Gauge.Style(), cfg.Display.Quarters())
			if err != nil {
				return err
			}
			sample, err := telemetrySource(s, time.Second).Read(ctx, tag)
			if err != nil {
				return err
			}

			p, err := presenter(s, lcd.HostPlayback, nil)
			if err != nil {
				return err
			}
			if err := p.Prepare(ctx, false); err != nil {
				return err
			}
			r := g.Render(sample.Celsius, tag.String())
			if err := p.Show(ctx, frame.NewStatic(r.Image(), frame.Options{})); err != nil {
				return err
			}
			done("%s %.1f °C shown in bucket %d", tag, sample.Celsius, p.Shown())
			return nil
		})
	},
}

// ------------------------------------------------------------
// Live gauge
// ------------------------------------------------------------

var (
	lcdMonitorInterval time.Duration
	lcdMonitorSource   string
)

var lcdMonitorCmd = &cobra.Command{
	Use:   "lcd-monitor",
	Short: "Keep a live temperature gauge on the LCD until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := runLogger()

		interval := lcdMonitorInterval
		if interval <= 0 {
			interval = cfg.Display.Interval()
		}
		source := lcdMonitorSource
		if source == "" {
			source = cfg.Display.Source
		}

		s, err := openCooler(ctx, log, true)
		if err != nil {
			return err
		}
		defer s.Close()

		ex, closeExport, err := exporter(log, 0)
		if err != nil {
			return err
		}
		defer closeExport()

		shared := telemetrySource(s, interval/2)
		tag, err := telemetry.ParseTag(source)
		if err != nil {
			return err
		}
		g, err := frame.NewGauge(cfg.Display.Gauge.Style(), cfg.Display.Quarters())
		if err != nil {
			return err
		}

		p, err := presenter(s, lcd.HostPlayback, ex)
		if err != nil {
			return err
		}
		if err := p.Prepare(ctx, cfg.Display.ClearOnStart); err != nil {
			return err
		}

		sched := scheduler.New(log.Named("scheduler"))
		sched.Add("display", scheduler.DisplayTask(p, frame.NewGaugeStream(g, shared, tag, interval), 0, log.Named("display")))
		addExport(sched, ex)

		log.Info("lcd monitor started", zap.Stringer("source", tag), zap.Duration("interval", interval))
		return sched.Run(ctx)
	},
}

func init() {
	uf := uploadImageCmd.Flags()
	uf.StringVar(&uploadFit, "fit", "stretch", "resize policy: stretch or letterbox")
	uf.StringVar(&uploadAnimation, "animation", "device", "gif playback: device or host")
	uf.IntVar(&uploadRepeat, "repeat", 1, "host playback passes (0 loops until interrupted)")
	uf.BoolVar(&uploadClear, "clear", false, "delete every bucket before uploading")

	lcdStatsCmd.Flags().StringVarP(&statsSource, "source", "s", "liquid", "temperature source: liquid or cpu")

	mf := lcdMonitorCmd.Flags()
	mf.DurationVarP(&lcdMonitorInterval, "interval", "i", 0, "refresh interval (default from config)")
	mf.StringVarP(&lcdMonitorSource, "source", "s", "", "temperature source: liquid or cpu (default from config)")
}
