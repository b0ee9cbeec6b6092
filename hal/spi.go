package hal

import (
	"errors"
	"sync"
)

var ErrSPINotConfigured = errors.New("spi: bus not configured")

// LoopbackSPI is an SPI master with MISO wired to MOSI: every byte shifted
// out is shifted back in.
type LoopbackSPI struct {
	pinCS

	mu    sync.Mutex
	cfg   SPIConfig
	ready bool
	bytes uint64
}

// NewLoopbackSPI returns a bus whose chip select drives cs. A nil cs leaves
// chip select unconnected.
func NewLoopbackSPI(cs GPIOPin) *LoopbackSPI {
	if cs != nil {
		_ = cs.Configure(GPIOModeOutput)
		_ = cs.Write(true)
	}
	return &LoopbackSPI{pinCS: pinCS{pin: cs}}
}

func (s *LoopbackSPI) Configure(cfg SPIConfig) error {
	if cfg.Frequency == 0 || cfg.Mode > 3 {
		return errors.New("spi: bad config")
	}
	s.mu.Lock()
	s.cfg = cfg
	s.ready = true
	s.mu.Unlock()
	return nil
}

// Config returns the active configuration.
func (s *LoopbackSPI) Config() SPIConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Bytes returns the number of bytes shifted since creation.
func (s *LoopbackSPI) Bytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

func (s *LoopbackSPI) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrSPINotConfigured
	}
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		var b byte
		if i < len(w) {
			b = w[i]
		}
		if i < len(r) {
			r[i] = b
		}
	}
	s.bytes += uint64(n)
	return nil
}

func (s *LoopbackSPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.Tx([]byte{b}, r[:])
	return r[0], err
}
