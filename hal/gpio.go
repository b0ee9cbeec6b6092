package hal

import (
	"fmt"
	"sync"
)

// GPIOMode selects whether a pin is an input or output.
type GPIOMode uint8

const (
	GPIOModeUnset GPIOMode = iota
	GPIOModeInput
	GPIOModeOutput
)

// GPIO provides access to general-purpose IO pins by name.
type GPIO interface {
	PinCount() int
	Pin(id int) GPIOPin
	Lookup(name string) GPIOPin
}

// GPIOPin is a single digital IO pin.
type GPIOPin interface {
	Name() string
	Configure(mode GPIOMode) error
	Read() (level bool, err error)
	Write(level bool) error
}

type pinSet struct {
	pins []GPIOPin
}

func newPinSet(pins ...GPIOPin) *pinSet {
	return &pinSet{pins: pins}
}

func (g *pinSet) PinCount() int { return len(g.pins) }

func (g *pinSet) Pin(id int) GPIOPin {
	if id < 0 || id >= len(g.pins) {
		return nil
	}
	return g.pins[id]
}

func (g *pinSet) Lookup(name string) GPIOPin {
	for _, p := range g.pins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// memPin is a pin backed by memory. Writes are reported to watch, if set,
// with the new level.
type memPin struct {
	mu    sync.Mutex
	name  string
	mode  GPIOMode
	level bool
	watch func(name string, level bool)
}

func newMemPin(name string, level bool, watch func(string, bool)) *memPin {
	return &memPin{name: name, level: level, watch: watch}
}

func (p *memPin) Name() string { return p.name }

func (p *memPin) Configure(mode GPIOMode) error {
	if mode != GPIOModeInput && mode != GPIOModeOutput {
		return fmt.Errorf("gpio: pin %s: invalid mode", p.name)
	}
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	return nil
}

func (p *memPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == GPIOModeUnset {
		return false, fmt.Errorf("gpio: pin %s: not configured", p.name)
	}
	return p.level, nil
}

func (p *memPin) Write(level bool) error {
	p.mu.Lock()
	if p.mode != GPIOModeOutput {
		p.mu.Unlock()
		return fmt.Errorf("gpio: pin %s: not in output mode", p.name)
	}
	changed := p.level != level
	p.level = level
	watch := p.watch
	p.mu.Unlock()
	if changed && watch != nil {
		watch(p.name, level)
	}
	return nil
}

// ledPin exposes an LED as an output-only pin.
type ledPin struct {
	mu    sync.Mutex
	led   LED
	name  string
	level bool
}

func newLEDPin(name string, led LED) *ledPin {
	return &ledPin{led: led, name: name}
}

func (p *ledPin) Name() string { return p.name }

func (p *ledPin) Configure(mode GPIOMode) error {
	if mode != GPIOModeOutput {
		return fmt.Errorf("gpio: pin %s: only output supported", p.name)
	}
	return nil
}

func (p *ledPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, nil
}

func (p *ledPin) Write(level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	if level {
		p.led.High()
	} else {
		p.led.Low()
	}
	return nil
}

// pinCS drives an active-low chip select through a GPIO pin.
type pinCS struct {
	pin GPIOPin
}

func (c pinCS) Select() {
	if c.pin != nil {
		_ = c.pin.Write(false)
	}
}

func (c pinCS) Unselect() {
	if c.pin != nil {
		_ = c.pin.Write(true)
	}
}
