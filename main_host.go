//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"tickos/app"
	"tickos/hal"
	"tickos/internal/logging"
)

func main() {
	var cfg hal.HeadlessConfig
	var demos, level string
	var appCfg app.Config
	flag.StringVar(&demos, "demo", "all", "Comma-separated demos to run: spi, buzzer, can, all or none.")
	flag.IntVar(&cfg.Hz, "hz", 1000, "Kernel tick rate.")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N ticks (0 = run forever).")
	flag.BoolVar(&appCfg.Virtual, "virtual", false, "Run on the virtual clock, as fast as possible.")
	flag.IntVar(&appCfg.Rounds, "rounds", 0, "Stop each demo after N rounds (0 = run forever).")
	flag.BoolVar(&appCfg.Checks, "checks", true, "Enable kernel contract checks.")
	flag.StringVar(&level, "log-level", "info", "Log level: debug, info, warning, err, ...")
	flag.Parse()

	if err := selectDemos(&appCfg, demos); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	appCfg.TickHz = uint32(cfg.Hz)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err = hal.RunHeadless(ctx, cfg, func(ctx context.Context, h hal.HAL) error {
		appCfg.Log = logging.New(h.Logger(), logging.Options{Level: lvl, Timestamps: true})
		sys, err := app.New(h, appCfg)
		if err != nil {
			return err
		}
		return sys.Run(ctx)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func selectDemos(cfg *app.Config, list string) error {
	for _, name := range strings.Split(list, ",") {
		switch strings.TrimSpace(name) {
		case "all":
			cfg.SPI, cfg.Buzzer, cfg.CAN = true, true, true
		case "none", "":
		case "spi":
			cfg.SPI = true
		case "buzzer":
			cfg.Buzzer = true
		case "can":
			cfg.CAN = true
		default:
			return fmt.Errorf("unknown demo %q", name)
		}
	}
	return nil
}
