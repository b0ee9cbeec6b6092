//go:build tinygo && bootdebug

package app

import (
	"machine"
	"sync"
	"time"

	"tickos/hal"
)

var (
	bootDiagMu    sync.Mutex
	bootDiagStep  string
	bootDiagStart sync.Once
)

// bootStep records the current boot step. The first call starts a
// goroutine that repeats the latest step on the UART and on USB CDC, so a
// board that hangs during boot still says where.
func bootStep(h hal.HAL, msg string) {
	bootDiagMu.Lock()
	bootDiagStep = msg
	bootDiagMu.Unlock()

	bootDiagStart.Do(func() {
		l := h.Logger()
		go func() {
			for {
				bootDiagMu.Lock()
				line := "bootdiag: " + bootDiagStep
				bootDiagMu.Unlock()

				l.WriteLineString(line)
				if usb := machine.USBCDC; usb != nil {
					_, _ = usb.Write([]byte(line + "\r\n"))
				}
				time.Sleep(250 * time.Millisecond)
			}
		}()
	})
}
