// internal/protocol/channel.go
package protocol

import "fmt"

// Channel is a speed-controlled output.
type Channel uint8

const (
	ChannelPump Channel = 0x01
	ChannelFan  Channel = 0x02
)

// ID is the wire identifier.
func (c Channel) ID() byte { return byte(c) }

// MinDuty is the lowest duty the device accepts for the channel.
func (c Channel) MinDuty() uint8 {
	if c == ChannelPump {
		return 20
	}
	return 0
}

// MaxDuty is always 100.
func (c Channel) MaxDuty() uint8 { return 100 }

// Validate rejects duties outside the channel limits.
func (c Channel) Validate(duty uint8) error {
	if duty < c.MinDuty() || duty > c.MaxDuty() {
		return fmt.Errorf("%s duty %d outside %d-%d", c, duty, c.MinDuty(), c.MaxDuty())
	}
	return nil
}

// Clamp forces a duty into [0,100] and then into the channel limits.
func (c Channel) Clamp(duty int) uint8 {
	if duty < 0 {
		duty = 0
	}
	if duty > 100 {
		duty = 100
	}
	if uint8(duty) < c.MinDuty() {
		return c.MinDuty()
	}
	return uint8(duty)
}

func (c Channel) String() string {
	switch c {
	case ChannelPump:
		return "pump"
	case ChannelFan:
		return "fan"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// ParseChannel accepts "pump" or "fan".
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "pump":
		return ChannelPump, nil
	case "fan":
		return ChannelFan, nil
	default:
		return 0, fmt.Errorf("protocol: unknown channel %q", s)
	}
}
