// cmd/krakenctl/cmd_speed.go
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tamzrod/krakenctl/internal/cooling"
	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/scheduler"
)

func setSpeedCmd(ch protocol.Channel) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("set-%s <duty>", ch),
		Short: fmt.Sprintf("Set a fixed %s duty (%d-100%%)", ch, ch.MinDuty()),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			duty, err := parseDuty(args[0])
			if err != nil {
				return err
			}
			if err := ch.Validate(uint8(duty)); err != nil {
				return err
			}

			s, err := openCooler(cmd.Context(), logger, true)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.cooler.SetFixedSpeed(cmd.Context(), ch, duty); err != nil {
				return err
			}
			done("%s duty set to %d%%", ch, duty)
			return nil
		},
	}
}

var (
	setPumpCmd = setSpeedCmd(protocol.ChannelPump)
	setFanCmd  = setSpeedCmd(protocol.ChannelFan)
)

var profileChannel string

var profileCmd = &cobra.Command{
	Use:   "profile <name>",
	Short: "Store a speed curve in the cooler",
	Long: `Uploads a 40-point speed curve indexed by liquid temperature. The cooler
then follows it without the host.

Names: silent, performance, fixed:N, a profile from the config file, or with
--channel a single curve (pump-silent, pump-performance, ...).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profileFor(args[0], profileChannel)
		if err != nil {
			return err
		}

		s, err := openCooler(cmd.Context(), logger, true)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := p.Upload(cmd.Context(), s.cooler); err != nil {
			return err
		}
		done("profile %s stored (%s)", p.Name, profileChannel)
		return nil
	},
}

// profileFor narrows a profile to one channel. Single-channel names resolve
// through the curve table.
func profileFor(name, channel string) (cooling.Profile, error) {
	channel = strings.ToLower(channel)
	if channel == "both" {
		return cfg.ResolveProfile(name)
	}

	ch, err := protocol.ParseChannel(channel)
	if err != nil {
		return cooling.Profile{}, err
	}

	p, perr := cfg.ResolveProfile(name)
	var curve cooling.Curve
	switch {
	case perr == nil && ch == protocol.ChannelPump:
		curve = p.Pump
	case perr == nil:
		curve = p.Fan
	default:
		if curve, err = cooling.LookupCurve(name); err != nil {
			return cooling.Profile{}, perr
		}
	}
	if curve == nil {
		return cooling.Profile{}, fmt.Errorf("profile %q has no %s curve", name, ch)
	}

	out := cooling.Profile{Name: name}
	if ch == protocol.ChannelPump {
		out.Pump = curve
	} else {
		out.Fan = curve
	}
	return out, nil
}

// coolingFlags registers the shared --profile/--source/--interval flags.
func coolingFlags(cmd *cobra.Command, c *coolingSettings) {
	f := cmd.Flags()
	f.StringVarP(&c.profile, "profile", "p", "", "cooling profile (default from config)")
	f.StringVarP(&c.source, "source", "s", "", "temperature source: liquid or cpu (default from config)")
	f.DurationVarP(&c.interval, "interval", "n", 0, "control interval (default from config)")
}

// effective applies config defaults under the flags.
func (c coolingSettings) effective() coolingSettings {
	if c.profile == "" {
		c.profile = cfg.Cooling.Profile
	}
	if c.source == "" {
		c.source = cfg.Cooling.Source
	}
	if c.interval <= 0 {
		c.interval = cfg.Cooling.Interval()
	}
	return c
}

var daemonSettings coolingSettings

var coolingDaemonCmd = &cobra.Command{
	Use:   "cooling-daemon",
	Short: "Drive pump and fan from a temperature source until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c := daemonSettings.effective()
		log := runLogger()

		s, err := openCooler(ctx, log, true)
		if err != nil {
			return err
		}
		defer s.Close()

		ex, closeExport, err := exporter(log, 3*c.interval)
		if err != nil {
			return err
		}
		defer closeExport()

		var onTick func(cooling.Result)
		if ex != nil {
			onTick = ex.Cooling
		}

		loop, err := c.loop(s, telemetrySource(s, c.interval/2), onTick)
		if err != nil {
			return err
		}

		sched := scheduler.New(log.Named("scheduler"))
		sched.Add("cooling", scheduler.CoolingTask(loop))
		addExport(sched, ex)

		fmt.Printf("cooling with profile %s from %s every %s (Ctrl+C to stop)\n", c.profile, c.source, c.interval.Round(time.Millisecond))
		return sched.Run(ctx)
	},
}

func init() {
	profileCmd.Flags().StringVar(&profileChannel, "channel", "both", "channel: fan, pump or both")
	coolingFlags(coolingDaemonCmd, &daemonSettings)
}
