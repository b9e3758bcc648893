// cmd/krakenctl/cmd_debug.go
package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/telemetry"
)

var debugCount int

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dump raw HID reports after a status request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCooler(cmd.Context(), func(s *session) error {
			reports, err := s.cooler.RawReads(cmd.Context(), debugCount, 500*time.Millisecond)
			if err != nil {
				return err
			}
			for i, r := range reports {
				fmt.Printf("#%d %s\n%s", i, titleStyle.Render(fmt.Sprintf("% x", r[:2])), hex.Dump(r))
				if protocol.IsStatus(r) {
					if st, err := protocol.ParseStatus(r); err == nil {
						fmt.Println(renderStatus(st))
					}
				}
			}
			fmt.Printf("%d report(s)\n", len(reports))
			return nil
		})
	},
}

var debugLCDCmd = &cobra.Command{
	Use:   "debug-lcd",
	Short: "Dump the raw LCD info reply",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCooler(cmd.Context(), func(s *session) error {
			raw, err := s.cooler.LCDInfoRaw(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Print(hex.Dump(raw))
			if st, err := protocol.ParseLCDInfo(raw); err == nil {
				fmt.Println(kv("",
					[2]string{"Brightness", fmt.Sprintf("%d%%", st.Brightness)},
					[2]string{"Orientation", fmt.Sprintf("%d", st.Orientation)},
				))
			}
			return nil
		})
	},
}

var (
	discoverMax   uint8
	discoverDwell time.Duration
)

var discoverPresetsCmd = &cobra.Command{
	Use:   "discover-presets [mode]",
	Short: "Step a visual mode through its indices to find firmware presets",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := protocol.ModeBucket
		if len(args) == 1 {
			var n int
			if _, err := fmt.Sscan(args[0], &n); err != nil || n < 0 || n > 255 {
				return fmt.Errorf("mode %q must be 0-255", args[0])
			}
			mode = byte(n)
		}

		ctx := cmd.Context()
		return withCooler(ctx, func(s *session) error {
			for i := 0; i <= int(discoverMax); i++ {
				if err := s.cooler.SetVisualMode(ctx, mode, uint8(i)); err != nil {
					fmt.Printf("mode %d index %2d: %s\n", mode, i, warnStyle.Render(err.Error()))
				} else {
					fmt.Printf("mode %d index %2d: %s\n", mode, i, okStyle.Render("ok"))
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(discoverDwell):
				}
			}
			return nil
		})
	},
}

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "List host temperature sensors and the one used as CPU source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := telemetry.NewHost(nil)
		readings, err := host.List(cmd.Context())
		if len(readings) == 0 && err != nil {
			return err
		}

		rows := make([][]string, 0, len(readings))
		for _, r := range readings {
			rows = append(rows, []string{r.Key, fmt.Sprintf("%.1f", r.Celsius), limit(r.High), limit(r.Critical)})
		}
		fmt.Println(grid([]string{"Sensor", "°C", "High", "Critical"}, rows))

		if cpu, err := host.Read(cmd.Context(), telemetry.HostCPU); err == nil {
			fmt.Println(okStyle.Render(fmt.Sprintf("cpu source: %.1f °C", cpu.Celsius)))
		} else {
			fmt.Println(warnStyle.Render("no cpu sensor matched: " + strings.Join(telemetry.DefaultCPUSensors, ", ")))
		}
		return nil
	},
}

func limit(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f", v)
}

func init() {
	debugCmd.Flags().IntVarP(&debugCount, "count", "n", 5, "number of reports to read")
	discoverPresetsCmd.Flags().Uint8VarP(&discoverMax, "max", "m", 20, "highest index to try")
	discoverPresetsCmd.Flags().DurationVar(&discoverDwell, "dwell", 2*time.Second, "time each index stays on screen")
}
