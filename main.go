package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sectiondesk/internal/api"
	"sectiondesk/internal/config"
	"sectiondesk/internal/processor"
	"sectiondesk/internal/store"
	"sectiondesk/internal/worker"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfgPath := os.Getenv("SECTIONDESK_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	basic := cfg.BasicConfig

	uploadDir := basic.UploadDir
	if uploadDir == "" {
		uploadDir = "./data/uploads"
	}
	uploadTTL := time.Duration(basic.UploadTTL) * time.Minute
	records := store.NewRecordStore()
	uploads := store.NewUploadStore(uploadDir, uploadTTL)

	cleanCtx, cleanCancel := context.WithCancel(context.Background())
	defer cleanCancel()
	cleanInterval := time.Duration(basic.CleanInterval) * time.Minute
	uploads.StartCleaner(cleanCtx, cleanInterval)

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:        basic.MinWorkers,
		MaxWorkers:        basic.MaxWorkers,
		QueueSize:         basic.QueueSize,
		WorkerIdleTimeout: time.Duration(basic.WorkerIdleTimeout) * time.Minute,
	})
	client := processor.NewClient(basic.ProcessorURL)
	service := processor.NewService(records, uploads, client, dispatcher)

	handler := api.NewHandler(records, uploads, service, basic.MaxUploadMB<<20)

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger())
	handler.RegisterRoutes(router)

	addr := basic.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	log.Info().Str("addr", addr).Str("processor", basic.ProcessorURL).Msg("starting server")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
