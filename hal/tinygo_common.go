//go:build tinygo && baremetal

package hal

import (
	"machine"
	"time"
)

type tinyGoTime struct {
	ch  chan uint64
	seq uint64
}

func newTinyGoTime(period time.Duration) *tinyGoTime {
	t := &tinyGoTime{ch: make(chan uint64, 16)}
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for range ticker.C {
			t.seq++
			select {
			case t.ch <- t.seq:
			default:
			}
		}
	}()
	return t
}

func (t *tinyGoTime) Ticks() <-chan uint64 { return t.ch }

type uartLogger struct {
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		l.uart.WriteByte(s[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	for i := 0; i < len(b); i++ {
		l.uart.WriteByte(b[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

type pinLED struct {
	pin machine.Pin
}

func (l *pinLED) High() { l.pin.High() }
func (l *pinLED) Low()  { l.pin.Low() }

// boardPin is a GPIOPin on a machine pin.
type boardPin struct {
	name string
	pin  machine.Pin
	mode GPIOMode
}

func (p *boardPin) Name() string { return p.name }

func (p *boardPin) Configure(mode GPIOMode) error {
	switch mode {
	case GPIOModeInput:
		p.pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	case GPIOModeOutput:
		p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	default:
		return ErrNotImplemented
	}
	p.mode = mode
	return nil
}

func (p *boardPin) Read() (bool, error) { return p.pin.Get(), nil }

func (p *boardPin) Write(level bool) error {
	if p.mode != GPIOModeOutput {
		return ErrNotImplemented
	}
	p.pin.Set(level)
	return nil
}

// machineSPI is SPI0 with a GPIO chip select.
type machineSPI struct {
	*machine.SPI
	pinCS
}

func newMachineSPI(bus *machine.SPI, cs GPIOPin) *machineSPI {
	_ = cs.Configure(GPIOModeOutput)
	_ = cs.Write(true)
	return &machineSPI{SPI: bus, pinCS: pinCS{pin: cs}}
}

func (s *machineSPI) Configure(cfg SPIConfig) error {
	return s.SPI.Configure(machine.SPIConfig{
		Frequency: cfg.Frequency,
		SCK:       machine.GP18,
		SDO:       machine.GP19,
		SDI:       machine.GP16,
		Mode:      cfg.Mode,
	})
}
