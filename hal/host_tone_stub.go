//go:build !tinygo && !cgo

package hal

// hostTone is silent when the audio backend is unavailable; it only checks
// the requested frequency.
type hostTone struct{}

func newHostTone() Tone { return hostTone{} }

func (hostTone) Start(freqHz uint32) error {
	if freqHz == 0 || freqHz >= toneSampleRate/2 {
		return ErrNotImplemented
	}
	return nil
}

func (hostTone) Stop() error { return nil }
