//go:build tinygo && baremetal

package main

import (
	"context"

	"github.com/joeycumines/logiface"

	"tickos/app"
	"tickos/hal"
	"tickos/internal/logging"
)

const tickHz = 1000

func main() {
	h := hal.New(tickHz)
	sys, err := app.New(h, app.Config{
		SPI:    true,
		Buzzer: true,
		CAN:    true,
		TickHz: tickHz,
		Log:    logging.New(h.Logger(), logging.Options{Level: logiface.LevelInformational}),
	})
	if err != nil {
		h.Logger().WriteLineString("boot: " + err.Error())
		select {}
	}
	_ = sys.Run(context.Background())
	select {}
}
