//go:build !tinygo

package hal

// toneSampleRate is the host audio output rate.
const toneSampleRate = 44100

// squareWave is an endless 16-bit stereo little-endian square wave.
type squareWave struct {
	half int
	pos  int
	amp  int16
}

func newSquareWave(freqHz uint32, amp int16) *squareWave {
	half := int(toneSampleRate / (2 * freqHz))
	if half < 1 {
		half = 1
	}
	return &squareWave{half: half, amp: amp}
}

func (w *squareWave) Read(p []byte) (int, error) {
	n := len(p) &^ 3
	for i := 0; i < n; i += 4 {
		s := w.amp
		if w.pos >= w.half {
			s = -s
		}
		w.pos++
		if w.pos == 2*w.half {
			w.pos = 0
		}
		p[i+0] = byte(s)
		p[i+1] = byte(s >> 8)
		p[i+2] = byte(s)
		p[i+3] = byte(s >> 8)
	}
	return n, nil
}
