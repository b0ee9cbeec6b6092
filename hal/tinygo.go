//go:build tinygo && baremetal

package hal

import (
	"machine"
	"time"
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	gpio   GPIO
	t      *tinyGoTime
	tone   Tone
	spi    *machineSPI
	can    *LoopbackCAN
}

// New returns a Pico 2 (RP2350) HAL implementation whose tick stream runs
// at hz.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
// SPI:  SPI0 on GP18 (SCK) / GP19 (SDO) / GP16 (SDI), chip select GP17.
// Tone: PWM on GP2.
// The RP2350 has no CAN controller; CAN is a loopback device.
func New(hz int) HAL {
	if hz <= 0 {
		hz = 1000
	}
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led := &pinLED{pin: ledPin}

	cs := &boardPin{name: "CS0", pin: machine.GP17}
	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		led:    led,
		gpio:   newPinSet(newLEDPin("LED", led), cs),
		t:      newTinyGoTime(time.Second / time.Duration(hz)),
		tone:   newPWMTone(machine.GP2),
		spi:    newMachineSPI(machine.SPI0, cs),
		can:    NewLoopbackCAN(3, 3),
	}
}

func (h *tinyGoHAL) Logger() Logger { return h.logger }
func (h *tinyGoHAL) LED() LED       { return h.led }
func (h *tinyGoHAL) GPIO() GPIO     { return h.gpio }
func (h *tinyGoHAL) Time() Time     { return h.t }
func (h *tinyGoHAL) Tone() Tone     { return h.tone }
func (h *tinyGoHAL) SPI() SPIBus    { return h.spi }
func (h *tinyGoHAL) CAN() CAN       { return h.can }
