// internal/cooling/curve.go
package cooling

import (
	"errors"
	"fmt"
	"math"

	"github.com/tamzrod/krakenctl/internal/protocol"
)

// Point is one (temperature, duty) control point.
type Point struct {
	Temp int `yaml:"temp"`
	Duty int `yaml:"duty"`
}

// Curve is a temperature-to-duty mapping, strictly increasing in temperature.
type Curve []Point

// Validate checks ordering and duty range. It does not modify the curve.
func (c Curve) Validate() error {
	if len(c) == 0 {
		return errors.New("cooling: curve has no points")
	}
	for i, p := range c {
		if p.Duty < 0 || p.Duty > 100 {
			return fmt.Errorf("cooling: point %d duty %d outside 0-100", i, p.Duty)
		}
		if i > 0 && p.Temp <= c[i-1].Temp {
			return fmt.Errorf("cooling: point %d temp %d not above %d", i, p.Temp, c[i-1].Temp)
		}
	}
	return nil
}

// Duty interpolates linearly between neighbouring points and rounds.
// Below the first point the first duty applies, above the last the last.
func (c Curve) Duty(temp float64) int {
	if len(c) == 0 {
		return 100
	}

	first, last := c[0], c[len(c)-1]
	if temp <= float64(first.Temp) {
		return clampDuty(first.Duty)
	}
	if temp >= float64(last.Temp) {
		return clampDuty(last.Duty)
	}

	for i := 1; i < len(c); i++ {
		lo, hi := c[i-1], c[i]
		if temp > float64(hi.Temp) {
			continue
		}
		ratio := (temp - float64(lo.Temp)) / float64(hi.Temp-lo.Temp)
		d := float64(lo.Duty) + ratio*float64(hi.Duty-lo.Duty)
		return clampDuty(int(math.Round(d)))
	}
	return clampDuty(last.Duty)
}

// Table samples the curve at every device curve temperature (20-59 C),
// clamped to the channel limits.
func (c Curve) Table(ch protocol.Channel) []uint8 {
	out := make([]uint8, protocol.CurvePoints)
	for i := range out {
		out[i] = ch.Clamp(c.Duty(float64(protocol.CurveMinTemp + i)))
	}
	return out
}

// Flat is a curve with one duty everywhere.
func Flat(duty int) Curve {
	return Curve{{Temp: protocol.CurveMinTemp, Duty: duty}}
}

func clampDuty(d int) int {
	if d < 0 {
		return 0
	}
	if d > 100 {
		return 100
	}
	return d
}
