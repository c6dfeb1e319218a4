package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/batch"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/convert"
	ocrevents "github.com/ocrflow/ocrflow-backend/internal/ocr/events"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/extract"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/gpu"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/handler"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/health"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/pipeline"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/queue"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/repository"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/service"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/source"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/storage"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/thumbnail"
	"github.com/ocrflow/ocrflow-backend/pkg/config"
	"github.com/ocrflow/ocrflow-backend/pkg/database"
	"github.com/ocrflow/ocrflow-backend/pkg/httputil"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
	"github.com/ocrflow/ocrflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("ocr-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("ocr-service", cfg.Server.Environment)
	log.Info().Msg("starting OCR Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ. The service degrades to no event emission when
	// the broker is unreachable; OCR itself does not depend on it.
	var publisher *messaging.Publisher
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Warn().Err(err).Msg("RabbitMQ unavailable, lifecycle events disabled")
	} else {
		defer rmq.Close()
		publisher, err = messaging.NewPublisher(rmq, messaging.ExchangeOCREvents, "ocr-service", log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to create event publisher, lifecycle events disabled")
			publisher = nil
		}
	}
	var eventPublisher *ocrevents.BatchEventPublisher
	if publisher != nil {
		eventPublisher = ocrevents.NewBatchEventPublisher(publisher, log)
	} else {
		eventPublisher = ocrevents.NewBatchEventPublisher(nil, log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// GPU arbitration
	governor := gpu.New(gpu.StaticProbe{Count: cfg.OCR.GPUDevices}, log)

	// OCR engines: Vision is optional (needs cloud credentials), tesseract
	// is the local fallback
	var engines []extract.Engine
	if visionEngine, err := extract.NewVisionEngine(ctx); err != nil {
		log.Warn().Err(err).Msg("Vision engine unavailable")
	} else {
		defer visionEngine.Close()
		engines = append(engines, visionEngine)
	}
	engines = append(engines, extract.NewTesseractEngine(cfg.OCR.TesseractBinary))

	engineRegistry := extract.NewRegistry(engines...)
	if engineRegistry.Has(cfg.OCR.Engine) {
		engineRegistry.SetDefault(cfg.OCR.Engine)
	}
	engineRegistry.SetFallback(cfg.OCR.FallbackEngine)

	ocrCache := extract.NewCache(cfg.OCR.CacheSize, cfg.OCR.CacheTTL)
	extractor := extract.NewExtractor(engineRegistry, governor, ocrCache, log)

	// Document conversion
	converter := convert.NewConverter(
		convert.NewPDFCPUProber(),
		convert.NewPopplerRenderer(""),
		convert.NewPopplerTextExtractor(""),
		log,
	)

	// Document pipeline
	docRepo := repository.NewDocumentRepository(db)
	fetcher := source.NewMultiFetcher(source.NewDriveClient(cfg.Source, log))
	pageStore := storage.NewPageStore(cfg.Storage, log)
	thumbnailer := thumbnail.New(cfg.Thumbnail, log)
	docPipeline := pipeline.New(fetcher, converter, extractor, docRepo, pageStore, thumbnailer, log)

	// Batch orchestration
	batchRegistry := batch.NewRegistry(log)
	taskQueue := queue.New(cfg.Queue.TaskBuffer, log)

	watchdog, err := queue.NewWatchdog(cfg.Watchdog, log)
	if err != nil {
		log.Warn().Err(err).Msg("memory watchdog unavailable")
	} else {
		watchdog.Start(ctx)
		defer watchdog.Stop()
	}

	checker := health.NewChecker(batchRegistry, cfg.Health, log)
	checker.Start(ctx)
	defer checker.Stop()

	batchService := service.NewBatchService(batchRegistry, taskQueue, docPipeline, eventPublisher, governor, cfg.OCR, log)
	ocrHandler := handler.NewHandler(batchService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":   "healthy",
			"service":  "ocr-service",
			"database": db.Health(r.Context()),
			"gpu":      governor.Available(),
			"pending":  taskQueue.Pending(),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, status)
	})

	// API routes
	r.Route("/api/v1/ocr", ocrHandler.Routes)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop background workers, then let the in-flight batch wind down
	cancel()
	taskQueue.Stop()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
