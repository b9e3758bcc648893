// internal/status/snapshot.go
package status

import "math"

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
	LiquidTenths   uint16
	PumpDuty       uint16
	FanDuty        uint16
	Bucket         uint16
}

// Boot is the snapshot published before the first observation.
func Boot() Snapshot {
	return Snapshot{Health: HealthUnknown, Bucket: NoBucket}
}

// ---- transitions ----
// Each returns true when the snapshot changed.

// Recover marks the device healthy and clears the error fields.
func (s *Snapshot) Recover() bool {
	changed := s.Health != HealthOK || s.LastErrorCode != 0 || s.SecondsInError != 0
	s.Health = HealthOK
	s.LastErrorCode = 0
	s.SecondsInError = 0
	return changed
}

// Fail records an error code. seconds_in_error is left to Tick.
func (s *Snapshot) Fail(code uint16, health uint16) bool {
	changed := s.Health != health || s.LastErrorCode != code
	s.Health = health
	s.LastErrorCode = code
	return changed
}

// Tick advances seconds_in_error while not OK. It saturates, never wraps.
func (s *Snapshot) Tick() bool {
	if s.Health == HealthOK || s.SecondsInError >= MaxSecondsInError {
		return false
	}
	s.SecondsInError++
	return true
}

// SetLiquid stores a temperature in tenths of a degree, clamped to the register range.
func (s *Snapshot) SetLiquid(celsius float64) bool {
	t := math.Round(celsius * 10)
	switch {
	case t < 0:
		t = 0
	case t > math.MaxUint16-1:
		t = math.MaxUint16 - 1
	}
	v := uint16(t)
	changed := s.LiquidTenths != v
	s.LiquidTenths = v
	return changed
}

// SetDuties stores the applied pump and fan duties.
func (s *Snapshot) SetDuties(pump, fan uint8) bool {
	changed := s.PumpDuty != uint16(pump) || s.FanDuty != uint16(fan)
	s.PumpDuty, s.FanDuty = uint16(pump), uint16(fan)
	return changed
}

// SetBucket stores the bucket on screen; negative means unknown.
func (s *Snapshot) SetBucket(b int) bool {
	v := NoBucket
	if b >= 0 {
		v = uint16(b)
	}
	changed := s.Bucket != v
	s.Bucket = v
	return changed
}

// Stale marks a healthy device whose data stopped arriving.
func (s *Snapshot) Stale() bool {
	if s.Health != HealthOK {
		return false
	}
	s.Health = HealthStale
	return true
}
