//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	gpio   GPIO
	t      *hostTime
	tone   Tone
	spi    *LoopbackSPI
	can    *LoopbackCAN
}

// New returns a host HAL implementation whose tick stream runs at hz.
//
// Logs go to stdout. SPI and CAN are loopback devices; the SPI chip select
// is the GPIO pin "CS0".
func New(hz int) HAL {
	return newHost(os.Stdout, hz)
}

func newHost(w io.Writer, hz int) *hostHAL {
	if hz <= 0 {
		hz = 1000
	}
	logger := &hostLogger{w: w}
	led := &hostLED{logger: logger}
	trace := func(name string, level bool) {
		logger.WriteLineString(fmt.Sprintf("gpio: %s=%t", name, level))
	}
	cs := newMemPin("CS0", true, trace)
	gpio := newPinSet(newLEDPin("LED", led), cs, newMemPin("GPIO1", false, trace))
	return &hostHAL{
		logger: logger,
		led:    led,
		gpio:   gpio,
		t:      newHostTime(time.Second / time.Duration(hz)),
		tone:   newHostTone(),
		spi:    NewLoopbackSPI(cs),
		can:    NewLoopbackCAN(3, 3),
	}
}

func (h *hostHAL) Logger() Logger { return h.logger }
func (h *hostHAL) LED() LED       { return h.led }
func (h *hostHAL) GPIO() GPIO     { return h.gpio }
func (h *hostHAL) Time() Time     { return h.t }
func (h *hostHAL) Tone() Tone     { return h.tone }
func (h *hostHAL) SPI() SPIBus    { return h.spi }
func (h *hostHAL) CAN() CAN       { return h.can }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
	l.logger.WriteLineString("led: HIGH")
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
	l.logger.WriteLineString("led: LOW")
}
