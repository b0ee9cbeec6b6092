//go:build !tinygo && cgo

package hal

import (
	"errors"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// Ebiten allows a single audio context per process.
var (
	toneCtxOnce sync.Once
	toneCtx     *audio.Context
)

func sharedAudioContext() *audio.Context {
	toneCtxOnce.Do(func() {
		toneCtx = audio.NewContext(toneSampleRate)
	})
	return toneCtx
}

// hostTone plays the buzzer through the desktop audio device.
type hostTone struct {
	mu     sync.Mutex
	player *audio.Player
	vol    float64
}

func newHostTone() Tone {
	return &hostTone{vol: 0.25}
}

func (t *hostTone) Start(freqHz uint32) error {
	if freqHz == 0 || freqHz >= toneSampleRate/2 {
		return errors.New("host tone: frequency out of range")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.player != nil {
		_ = t.player.Close()
		t.player = nil
	}
	p, err := sharedAudioContext().NewPlayer(newSquareWave(freqHz, 0x3000))
	if err != nil {
		return err
	}
	p.SetBufferSize(50 * time.Millisecond)
	p.SetVolume(t.vol)
	p.Play()
	t.player = p
	return nil
}

func (t *hostTone) Stop() error {
	t.mu.Lock()
	p := t.player
	t.player = nil
	t.mu.Unlock()

	if p != nil {
		return p.Close()
	}
	return nil
}
