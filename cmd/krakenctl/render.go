// cmd/krakenctl/render.go
package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tamzrod/krakenctl/internal/bucket"
	"github.com/tamzrod/krakenctl/internal/protocol"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	valueStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// kv renders aligned label/value lines.
func kv(title string, rows ...[2]string) string {
	lines := make([]string, 0, len(rows)+1)
	if title != "" {
		lines = append(lines, titleStyle.Render(title))
	}
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r[0]), valueStyle.Render(r[1])))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// grid renders a bordered table.
func grid(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func renderStatus(st protocol.Status) string {
	return kv("Kraken status",
		[2]string{"Liquid", fmt.Sprintf("%.1f °C", st.LiquidC)},
		[2]string{"Pump", fmt.Sprintf("%d rpm  %d%%", st.PumpRPM, st.PumpDuty)},
		[2]string{"Fan", fmt.Sprintf("%d rpm  %d%%", st.FanRPM, st.FanDuty)},
	)
}

func renderBuckets(states [bucket.Count]bucket.State) string {
	rows := make([][]string, 0, bucket.Count)
	used := 0
	for _, s := range states {
		state := okStyle.Render("free")
		start, size := "-", "-"
		if s.Occupied {
			used++
			state = warnStyle.Render("used")
			start = strconv.Itoa(int(s.StartPage))
			size = strconv.Itoa(int(s.SizePages))
		}
		rows = append(rows, []string{strconv.Itoa(s.Index), state, start, size})
	}
	return grid([]string{"Bucket", "State", "Start page", "Pages"}, rows) +
		fmt.Sprintf("\n%d of %d buckets in use", used, bucket.Count)
}

func done(format string, args ...any) {
	fmt.Println(okStyle.Render("✓ ") + fmt.Sprintf(format, args...))
}
