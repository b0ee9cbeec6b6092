package hal

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

var ErrNotImplemented = errors.New("not implemented")

// Time provides the base tick stream that drives the kernel clock.
//
// The tick period is fixed when the HAL is created.
type Time interface {
	Ticks() <-chan uint64
}

// Tone drives a piezo buzzer with a square wave.
type Tone interface {
	Start(freqHz uint32) error
	Stop() error
}

// SPIConfig selects the bus clock and mode for the next transfers.
type SPIConfig struct {
	Frequency uint32
	Mode      uint8
}

// SPIBus is an SPI master with its chip select line.
//
// Transfers go through the embedded drivers.SPI; Configure must be called
// before the first transfer.
type SPIBus interface {
	drivers.SPI
	Configure(cfg SPIConfig) error
	Select()
	Unselect()
}

// HAL provides the only contact point between the kernel and the outside world.
type HAL interface {
	Logger() Logger
	LED() LED
	GPIO() GPIO
	Time() Time
	Tone() Tone
	SPI() SPIBus
	CAN() CAN
}
