package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/feed"
)

// wdfeed replays a host archive into a running weatherwd instance, for
// seeding a fresh supplementary archive from an existing station record.
func main() {
	archivePath := flag.String("archive", "", "path to the host archive database")
	url := flag.String("url", "ws://localhost:8220/ws", "bridge websocket URL")
	token := flag.String("token", "", "bridge auth token (or WEATHERWD_AUTH_TOKEN)")
	station := flag.String("station", "wdfeed", "station name announced to the bridge")
	resumeAfter := flag.Int64("resume-after", 0, "skip rows at or before this unix timestamp")
	bufferSize := flag.Int("buffer", 256, "in-flight record buffer size")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *archivePath == "" {
		log.Fatal("missing -archive")
	}
	if *token == "" {
		*token = os.Getenv("WEATHERWD_AUTH_TOKEN")
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	conn := feed.NewConnection(feed.ConnectionConfig{
		URL:       *url,
		AuthToken: *token,
		Station:   *station,
	}, logger)
	defer conn.Close()

	replayer, err := feed.NewReplayer(*archivePath, conn, *bufferSize, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open archive")
	}
	defer replayer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("Interrupted, stopping replay")
		cancel()
	}()

	started := time.Now()
	stats, err := replayer.Run(ctx, time.Unix(*resumeAfter, 0))
	if err != nil {
		logger.Fatal().Err(err).
			Int64("sent", stats.Sent).
			Msg("Replay aborted, rerun with -resume-after to continue")
	}

	logger.Info().
		Int64("read", stats.Read).
		Int64("sent", stats.Sent).
		Dur("elapsed", time.Since(started)).
		Msg("Done")
}
