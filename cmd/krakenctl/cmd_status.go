// cmd/krakenctl/cmd_status.go
package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/protocol"
	"github.com/tamzrod/krakenctl/internal/transport"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show liquid temperature, pump and fan speeds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openCooler(cmd.Context(), logger, true)
		if err != nil {
			return err
		}
		defer s.Close()

		st, err := s.cooler.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(renderStatus(st))
		return nil
	},
}

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print the cooler status periodically until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openCooler(ctx, logger, true)
		if err != nil {
			return err
		}
		defer s.Close()

		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()

		for {
			st, err := s.cooler.Status(ctx)
			switch {
			case ctx.Err() != nil:
				return nil
			case err != nil && !fault.Recoverable(err):
				return err
			case err != nil:
				logger.Warn("status read failed", zap.Error(err))
			default:
				fmt.Printf("%s  liquid %5.1f °C  pump %4d rpm %3d%%  fan %4d rpm %3d%%\n",
					time.Now().Format(time.TimeOnly), st.LiquidC, st.PumpRPM, st.PumpDuty, st.FanRPM, st.FanDuty)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show firmware version and LCD settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openCooler(cmd.Context(), logger, true)
		if err != nil {
			return err
		}
		defer s.Close()

		rows := [][2]string{
			{"Device", fmt.Sprintf("%04x:%04x", protocol.VendorID, protocol.ProductID)},
			{"Firmware", s.cooler.Firmware().String()},
		}
		if lcd, err := s.cooler.LCDInfo(cmd.Context()); err == nil {
			rows = append(rows,
				[2]string{"Brightness", fmt.Sprintf("%d%%", lcd.Brightness)},
				[2]string{"Orientation", fmt.Sprintf("%d°", int(lcd.Orientation)*90)},
			)
		} else {
			logger.Warn("lcd info unavailable", zap.Error(err))
		}
		fmt.Println(kv("Kraken", rows...))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List attached coolers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devs, err := transport.Enumerate(protocol.VendorID, protocol.ProductID)
		if err != nil {
			return err
		}
		if len(devs) == 0 {
			return fmt.Errorf("no Kraken found: %w", fault.ErrDeviceNotFound)
		}

		rows := make([][]string, 0, len(devs))
		for _, d := range devs {
			rows = append(rows, []string{strconv.Itoa(d.Bus), strconv.Itoa(d.Address), d.Product, d.Serial})
		}
		fmt.Println(grid([]string{"Bus", "Addr", "Product", "Serial"}, rows))
		return nil
	},
}

var checkBulkCmd = &cobra.Command{
	Use:   "check-bulk",
	Short: "Check that the bulk interface used for LCD uploads can be claimed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openCooler(cmd.Context(), logger, false)
		if err != nil {
			return err
		}
		defer s.Close()

		uc := cfg.Device.USB()
		done("bulk interface %d endpoint 0x%02x claimed", uc.BulkInterface, uc.BulkEndpoint)
		return nil
	},
}

func init() {
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", time.Second, "update interval")
}
