//go:build tinygo && baremetal

package hal

import (
	"machine"
)

type pwmDevice interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	SetPeriod(period uint64) error
	Top() uint32
	Set(channel uint8, value uint32)
	Enable(enable bool)
}

// pwmTone drives a buzzer pin with a 50% duty PWM at the tone frequency.
type pwmTone struct {
	pin machine.Pin
	pwm pwmDevice
	ch  uint8

	configured bool
}

func newPWMTone(pin machine.Pin) *pwmTone {
	return &pwmTone{pin: pin, pwm: pwmForPin(pin)}
}

var pwmSlices = [...]pwmDevice{
	machine.PWM0, machine.PWM1, machine.PWM2, machine.PWM3,
	machine.PWM4, machine.PWM5, machine.PWM6, machine.PWM7,
}

// pwmForPin returns the PWM slice driving pin, or nil.
func pwmForPin(pin machine.Pin) pwmDevice {
	slice, err := machine.PWMPeripheral(pin)
	if err != nil || int(slice) >= len(pwmSlices) {
		return nil
	}
	return pwmSlices[slice]
}

func (t *pwmTone) Start(freqHz uint32) error {
	if t.pwm == nil || freqHz == 0 {
		return ErrNotImplemented
	}
	period := uint64(1e9) / uint64(freqHz)
	if !t.configured {
		if err := t.pwm.Configure(machine.PWMConfig{Period: period}); err != nil {
			return err
		}
		ch, err := t.pwm.Channel(t.pin)
		if err != nil {
			return err
		}
		t.ch = ch
		t.configured = true
	} else if err := t.pwm.SetPeriod(period); err != nil {
		return err
	}
	t.pwm.Set(t.ch, t.pwm.Top()/2)
	t.pwm.Enable(true)
	return nil
}

func (t *pwmTone) Stop() error {
	if t.pwm == nil || !t.configured {
		return nil
	}
	t.pwm.Set(t.ch, 0)
	t.pwm.Enable(false)
	return nil
}
