// Package buzzer plays timed tones on a piezo buzzer.
//
// A tone started with PlaySound is stopped by a virtual timer, so the caller
// does not block; the Silent event source is broadcast when the tone ends.
package buzzer

import (
	"fmt"

	"github.com/joeycumines/logiface"

	"tickos/hal"
	"tickos/kernel"
)

// Driver owns the tone generator and the timer that ends each sound.
type Driver struct {
	k     *kernel.Kernel
	tone  hal.Tone
	timer kernel.TimerID
	log   *logiface.Logger[logiface.Event]

	// Silent is broadcast from the timer when a PlaySound tone ends.
	Silent kernel.EventSource
}

// New stops the tone generator and claims a virtual timer from k.
func New(k *kernel.Kernel, tone hal.Tone, log *logiface.Logger[logiface.Event]) (*Driver, error) {
	id, err := k.NewTimer()
	if err != nil {
		return nil, fmt.Errorf("buzzer: %w", err)
	}
	if err := tone.Stop(); err != nil {
		return nil, fmt.Errorf("buzzer: stop tone: %w", err)
	}
	return &Driver{k: k, tone: tone, timer: id, log: log}, nil
}

// PlaySound starts a tone of freq Hz lasting duration ticks and returns at
// once. A sound already playing is cut short without a Silent broadcast.
func (d *Driver) PlaySound(freq uint32, duration kernel.Tick) error {
	s := d.k.Lock()
	defer s.Unlock()
	if s.TimerArmed(d.timer) {
		s.CancelTimer(d.timer)
		d.stopTone()
	}
	if err := d.tone.Start(freq); err != nil {
		return fmt.Errorf("buzzer: start tone: %w", err)
	}
	s.ArmTimer(d.timer, duration, silence, d)
	return nil
}

// silence runs from the timer when a PlaySound tone expires.
func silence(l kernel.Locked, arg any) {
	d := arg.(*Driver)
	d.stopTone()
	l.Broadcast(&d.Silent)
}

// PlaySoundWait plays a tone of freq Hz for duration ticks, sleeping the
// calling thread until it ends.
func (d *Driver) PlaySoundWait(freq uint32, duration kernel.Tick) error {
	s := d.k.Lock()
	defer s.Unlock()
	if s.TimerArmed(d.timer) {
		s.CancelTimer(d.timer)
	}
	d.stopTone()
	if err := d.tone.Start(freq); err != nil {
		return fmt.Errorf("buzzer: start tone: %w", err)
	}
	s.Sleep(duration)
	d.stopTone()
	return nil
}

// Playing reports whether a PlaySound tone is still running.
func (d *Driver) Playing() bool {
	s := d.k.Lock()
	defer s.Unlock()
	return s.TimerArmed(d.timer)
}

func (d *Driver) stopTone() {
	if err := d.tone.Stop(); err != nil {
		d.log.Warning().Err(err).Log("buzzer: stop tone")
	}
}
