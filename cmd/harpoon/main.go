package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/harpoon-proxy/harpoon"
	"github.com/rs/zerolog"
)

func main() {
	var (
		sessionDir = flag.String("s", ".", "session directory")
		port       = flag.Int("p", 8080, "listen port")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.TraceLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := harpoon.New(*sessionDir, log).Port(*port)
	if err := app.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("proxy exited")
	}
}
