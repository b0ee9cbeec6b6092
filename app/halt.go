package app

import (
	"fmt"
	"strings"

	"tickos/hal"
	"tickos/kernel"
)

// haltHandler reports a kernel halt on the HAL logger and latches the LED on.
func haltHandler(h hal.HAL) func(kernel.HaltInfo) {
	return func(info kernel.HaltInfo) {
		if l := h.Logger(); l != nil {
			for _, line := range haltReport(info) {
				l.WriteLineString(line)
			}
		}
		if led := h.LED(); led != nil {
			led.High()
		}
	}
}

func haltReport(info kernel.HaltInfo) []string {
	thread := info.Thread
	if thread == "" {
		thread = "<none>"
	}
	lines := []string{
		"tickos halt:",
		fmt.Sprintf("thread: %s", thread),
		fmt.Sprintf("reason: %s", info.Reason),
	}
	if info.Value != nil {
		lines = append(lines, fmt.Sprintf("panic: %v", info.Value))
	}
	if len(info.Stack) > 0 {
		lines = append(lines, "stack:")
		for _, line := range strings.Split(string(info.Stack), "\n") {
			if line == "" {
				continue
			}
			lines = append(lines, line)
		}
	} else {
		lines = append(lines, "stack: unavailable")
	}
	return lines
}
