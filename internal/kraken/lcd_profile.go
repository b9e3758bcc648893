// internal/kraken/lcd_profile.go
package kraken

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tamzrod/krakenctl/internal/protocol"
)

// LCDProfile is a named brightness + visual mode preset.
type LCDProfile struct {
	Name       string
	Brightness uint8
	Mode       uint8
	Bucket     uint8
}

var lcdProfiles = map[string]LCDProfile{
	"off":   {Name: "off", Brightness: 0, Mode: protocol.ModeBlank},
	"night": {Name: "night", Brightness: 10, Mode: protocol.ModeLiquid},
	"day":   {Name: "day", Brightness: 75, Mode: protocol.ModeBucket},
	"max":   {Name: "max", Brightness: 100, Mode: protocol.ModeLiquid},
}

// LookupLCDProfile resolves a preset name (case-insensitive).
func LookupLCDProfile(name string) (LCDProfile, error) {
	p, ok := lcdProfiles[strings.ToLower(name)]
	if !ok {
		return LCDProfile{}, fmt.Errorf("kraken: unknown lcd profile %q (have %s)", name, strings.Join(LCDProfileNames(), ", "))
	}
	return p, nil
}

// LCDProfileNames lists presets in stable order.
func LCDProfileNames() []string {
	names := make([]string, 0, len(lcdProfiles))
	for n := range lcdProfiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ApplyLCDProfile sets brightness (keeping orientation) then the visual mode.
func (c *Cooler) ApplyLCDProfile(ctx context.Context, p LCDProfile) error {
	if err := c.SetBrightness(ctx, p.Brightness); err != nil {
		return fmt.Errorf("kraken: lcd profile %s brightness: %w", p.Name, err)
	}
	if err := c.SetVisualMode(ctx, p.Mode, p.Bucket); err != nil {
		return fmt.Errorf("kraken: lcd profile %s mode: %w", p.Name, err)
	}
	return nil
}
