package app

import (
	"time"

	"tickos/hal"
	"tickos/kernel"
)

const (
	demoStack      = 512
	demoPriority   = kernel.NormalPriority
	workerPriority = kernel.NormalPriority + 1
)

func (s *System) spawn(prio kernel.Priority, name string, fn func()) error {
	wa := kernel.NewWorkingArea(make([]byte, demoStack))
	_, err := s.k.CreateThread(wa, prio, name, func(any) kernel.Msg {
		fn()
		return kernel.MsgOK
	}, nil)
	return err
}

// loop runs body Rounds times, or forever when Rounds is zero.
func (s *System) loop(body func(i int)) {
	for i := 0; s.cfg.Rounds == 0 || i < s.cfg.Rounds; i++ {
		body(i)
	}
}

func (s *System) spawnDemos() error {
	if err := s.spawn(demoPriority, "main", s.heartbeat); err != nil {
		return err
	}
	if s.spi != nil {
		if err := s.spawn(workerPriority, "spi1", func() { s.spiContender(1, spiHighSpeed, true) }); err != nil {
			return err
		}
		if err := s.spawn(workerPriority, "spi2", func() { s.spiContender(2, spiLowSpeed, false) }); err != nil {
			return err
		}
	}
	if s.buzzer != nil {
		if err := s.spawn(demoPriority, "buzzer", s.buzzerDemo); err != nil {
			return err
		}
	}
	if s.can != nil {
		if err := s.spawn(workerPriority, "can-rx", s.canReceiver); err != nil {
			return err
		}
		if err := s.spawn(demoPriority, "can-tx", s.canSender); err != nil {
			return err
		}
	}
	return nil
}

// heartbeat blinks the LED when it is free, and logs the thread table.
func (s *System) heartbeat() {
	led := s.h.LED()
	var infos []kernel.ThreadInfo
	s.loop(func(i int) {
		if s.spi == nil {
			if i%2 == 0 {
				led.High()
			} else {
				led.Low()
			}
		}
		infos = s.k.Threads(infos[:0])
		for _, t := range infos {
			s.log.Debug().
				Str("thread", t.Name).
				Int("prio", int(t.Priority)).
				Str("state", t.State.String()).
				Log("heartbeat")
		}
		s.k.Sleep(s.ticks(500 * time.Millisecond))
	})
}

var (
	spiHighSpeed = hal.SPIConfig{Frequency: 18_000_000, Mode: 0}
	spiLowSpeed  = hal.SPIConfig{Frequency: 281_250, Mode: 0}
)

// spiContender shares the SPI bus with the other contender. The LED shows
// which of the two owns the bus.
func (s *System) spiContender(id int, cfg hal.SPIConfig, ledOn bool) {
	txbuf := make([]byte, 512)
	rxbuf := make([]byte, 512)
	for i := range txbuf {
		txbuf[i] = byte(i)
	}
	led := s.h.LED()
	s.loop(func(int) {
		s.spi.AcquireBus()
		if ledOn {
			led.High()
		} else {
			led.Low()
		}
		if err := s.spi.Start(cfg); err != nil {
			s.log.Err().Err(err).Int("contender", id).Log("spi start")
		} else {
			s.spi.Select()
			if err := s.spi.Exchange(txbuf, rxbuf); err != nil {
				s.log.Err().Err(err).Int("contender", id).Log("spi exchange")
			}
			s.spi.Unselect()
		}
		s.spi.ReleaseBus()
		s.k.Sleep(s.ticks(50 * time.Millisecond))
	})
}

// buzzerDemo plays a two-note pattern, waiting for each tone to end.
func (s *System) buzzerDemo() {
	const silent = 0
	if _, err := s.k.RegisterID(&s.buzzer.Silent, silent); err != nil {
		s.log.Err().Err(err).Log("buzzer register")
		return
	}
	notes := []uint32{880, 660}
	s.loop(func(i int) {
		freq := notes[i%len(notes)]
		if err := s.buzzer.PlaySound(freq, s.ticks(100*time.Millisecond)); err != nil {
			s.log.Warning().Err(err).Log("buzzer")
			s.k.Sleep(s.ticks(500 * time.Millisecond))
			return
		}
		s.k.WaitOne(kernel.EventBit(silent))
		s.log.Info().Uint64("freq", uint64(freq)).Log("buzzer: silent")
		s.k.Sleep(s.ticks(400 * time.Millisecond))
	})
}

func (s *System) canSender() {
	s.loop(func(i int) {
		f := hal.CANFrame{ID: 0x100 + uint32(i%16), DLC: 2}
		f.Data[0], f.Data[1] = byte(i>>8), byte(i)
		if err := s.can.Transmit(f, s.ticks(100*time.Millisecond)); err != nil {
			s.log.Warning().Err(err).Log("can transmit")
		}
		s.k.Sleep(s.ticks(100 * time.Millisecond))
	})
}

// canReceiver drains the receive FIFO and reports controller errors.
func (s *System) canReceiver() {
	const (
		evRx = iota
		evError
	)
	if _, err := s.k.RegisterID(&s.can.RxFullEvent, evRx); err != nil {
		s.log.Err().Err(err).Log("can register")
		return
	}
	errL, err := s.k.RegisterID(&s.can.ErrorEvent, evError)
	if err != nil {
		s.log.Err().Err(err).Log("can register")
		return
	}
	handlers := []func(int){
		evRx: func(int) {
			for {
				f, err := s.can.Receive(kernel.TimeImmediate)
				if err != nil {
					return
				}
				s.log.Info().
					Uint64("id", uint64(f.ID)).
					Int("dlc", int(f.DLC)).
					Log("can: frame")
			}
		},
		evError: func(int) {
			s.log.Warning().
				Uint64("flags", uint64(s.k.GetAndClearFlags(errL))).
				Uint64("status", uint64(s.can.Status())).
				Log("can: error")
		},
	}
	// draining until the FIFO is empty re-arms the receive interrupt
	handlers[evRx](evRx)
	s.loop(func(int) {
		got, msg := s.k.WaitAnyTimeout(kernel.EventBit(evRx)|kernel.EventBit(evError), s.ticks(time.Second))
		if msg == kernel.MsgTimeout {
			s.log.Warning().Log("can: no traffic")
			return
		}
		kernel.Dispatch(handlers, got)
	})
}
