// cmd/server/main.go
package main

import (
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/sketchdash/sketchdash/internal/auth"
	"github.com/sketchdash/sketchdash/internal/config"
	"github.com/sketchdash/sketchdash/internal/game"
	"github.com/sketchdash/sketchdash/internal/handlers"
	"github.com/sketchdash/sketchdash/internal/history"
	"github.com/sketchdash/sketchdash/internal/predict"
)

func main() {
	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	auth.Init()
	cfg := config.LoadServer()

	words := game.NewWordBank()
	if cfg.WordsFile != "" {
		loaded, err := game.LoadWordBank(cfg.WordsFile)
		if err != nil {
			logger.WithError(err).Fatalf("failed to load word bank from %s", cfg.WordsFile)
		}
		words = loaded
	}

	gateway := predict.NewGateway(predict.Config{
		BaseURL:        cfg.OracleURL,
		AttemptTimeout: cfg.OracleTimeout,
		MaxAttempts:    cfg.OracleMaxAttempts,
	}, words.Words(), logger)

	// Result publishing is best-effort; a missing Redis only costs history.
	var recorder game.Recorder
	if publisher, err := history.NewPublisher(cfg.RedisAddr, cfg.RedisDB, cfg.QueueName, logger); err != nil {
		logger.WithError(err).Warn("redis unavailable, game results will not be recorded")
	} else {
		recorder = publisher
		defer publisher.Close()
	}

	rs := handlers.NewRoomServer(cfg, gateway, recorder, words, logger)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handlers.NewRouter(logger, rs),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket writes manage their own deadlines.
	}

	logger.Infof("listening on %s", cfg.ListenAddr)

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}
}
