package node

import (
	"meshlink/internal/config"
	"meshlink/internal/identity"
)

// Sensor samples the machine state a Sender reports.
type Sensor interface {
	Read() (ramp, motion uint16)
}

// StaticSensor always reports the same values.
type StaticSensor struct {
	Ramp, Motion uint16
}

func (s StaticSensor) Read() (uint16, uint16) { return s.Ramp, s.Motion }

// SensorFunc adapts a function to Sensor.
type SensorFunc func() (ramp, motion uint16)

func (f SensorFunc) Read() (uint16, uint16) { return f() }

// Ramp values reported by PinSensor.
const (
	RampUnknown uint16 = 0
	RampUp      uint16 = 1
	RampDown    uint16 = 2
)

// PinSensor derives ramp and motion from three pulled-down input pins.
// Unreadable pins read low.
type PinSensor struct {
	Pins     identity.PinReader
	RampUp   int
	RampDown int
	SimHome  int
	Mapping  config.MotionMapping
}

func (s PinSensor) Read() (uint16, uint16) {
	up, down := s.level(s.RampUp), s.level(s.RampDown)
	var ramp uint16
	switch {
	case up && down:
		ramp = RampUnknown
	case !up:
		ramp = RampUp
	default:
		ramp = RampDown
	}

	motion := s.Mapping.Operating
	if !s.level(s.SimHome) {
		motion = s.Mapping.Standby
	}
	return ramp, motion
}

func (s PinSensor) level(gpio int) bool {
	high, err := s.Pins.Pin(gpio)
	return err == nil && high
}

// SensorFromConfig builds the configured sensor.
func SensorFromConfig(c config.SensorConfig) Sensor {
	if c.Source == "pins" {
		return PinSensor{
			Pins:     identity.StaticPins(c.PinLevels),
			RampUp:   c.Pins.RampUp,
			RampDown: c.Pins.RampDown,
			SimHome:  c.Pins.SimHome,
			Mapping:  c.Mapping,
		}
	}
	return StaticSensor{Ramp: c.Ramp, Motion: c.StaticMotion()}
}
