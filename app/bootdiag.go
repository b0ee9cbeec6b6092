//go:build !(tinygo && bootdebug)

package app

import "tickos/hal"

func bootStep(hal.HAL, string) {}
