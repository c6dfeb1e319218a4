package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/batch"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/events"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/gpu"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/queue"
	"github.com/ocrflow/ocrflow-backend/pkg/config"
	"github.com/ocrflow/ocrflow-backend/pkg/errors"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// defaultCleanupAge is how long a finished batch stays queryable
const defaultCleanupAge = time.Hour

// StartBatchRequest is the payload for starting a new batch
type StartBatchRequest struct {
	BatchID  string                  `json:"batch_id"`
	Files    []domain.FileDescriptor `json:"files" validate:"required,min=1,dive"`
	Settings domain.Settings         `json:"settings"`
}

// BatchService coordinates batch lifecycle: creation, queueing, control,
// status reads, and cleanup.
type BatchService struct {
	registry *batch.Registry
	queue    *queue.TaskQueue
	pipeline batch.FileProcessor
	events   *events.BatchEventPublisher
	governor *gpu.Governor
	defaults config.OCRConfig
	log      *logger.Logger
}

// NewBatchService creates a batch service
func NewBatchService(
	registry *batch.Registry,
	taskQueue *queue.TaskQueue,
	pipeline batch.FileProcessor,
	eventPublisher *events.BatchEventPublisher,
	governor *gpu.Governor,
	defaults config.OCRConfig,
	log *logger.Logger,
) *BatchService {
	return &BatchService{
		registry: registry,
		queue:    taskQueue,
		pipeline: pipeline,
		events:   eventPublisher,
		governor: governor,
		defaults: defaults,
		log:      log.WithComponent("batch-service"),
	}
}

// StartBatch validates and registers a new batch and hands it to the worker
// queue. The returned snapshot shows the batch in its queued state.
func (s *BatchService) StartBatch(ctx context.Context, req StartBatchRequest) (*domain.StatusSnapshot, error) {
	if len(req.Files) == 0 {
		return nil, errors.BadRequest("batch needs at least one file")
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}

	settings := s.applyDefaults(req.Settings)

	proc := batch.NewProcessor(batchID, req.Files, settings, s.pipeline, s.events, s.log)
	if err := s.registry.Put(proc); err != nil {
		return nil, err
	}

	if err := s.queue.Submit(queue.Task{ID: batchID, Run: proc.Run}); err != nil {
		s.registry.Delete(batchID)
		return nil, err
	}

	if s.events != nil {
		s.events.BatchQueued(batchID, len(req.Files), settings)
	}

	s.log.Info().
		Str("batch_id", batchID).
		Int("total_files", len(req.Files)).
		Str("engine", settings.Engine).
		Msg("batch accepted")

	snap := proc.Snapshot()
	return &snap, nil
}

// applyDefaults fills unset batch settings from service configuration
func (s *BatchService) applyDefaults(settings domain.Settings) domain.Settings {
	if settings.Engine == "" {
		settings.Engine = s.defaults.Engine
	}
	if settings.Language == "" {
		settings.Language = s.defaults.Language
	}
	if settings.DPI == 0 {
		settings.DPI = s.defaults.DPI
	}
	if settings.ColorMode == "" {
		settings.ColorMode = s.defaults.ColorMode
	}
	if settings.ConfidenceThreshold == 0 {
		settings.ConfidenceThreshold = s.defaults.ConfidenceThreshold
	}
	return settings
}

// GetStatus returns the current snapshot of a batch
func (s *BatchService) GetStatus(batchID string) (*domain.StatusSnapshot, error) {
	proc, err := s.registry.Get(batchID)
	if err != nil {
		return nil, err
	}
	snap := proc.Snapshot()
	return &snap, nil
}

// ListBatches returns snapshots of every known batch
func (s *BatchService) ListBatches() []domain.StatusSnapshot {
	procs := s.registry.List()
	out := make([]domain.StatusSnapshot, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Snapshot())
	}
	return out
}

// PauseBatch holds a running batch at the next file boundary. Pausing a
// batch that is not processing is a no-op, not an error; the returned
// snapshot shows the actual state.
func (s *BatchService) PauseBatch(batchID string) (*domain.StatusSnapshot, error) {
	proc, err := s.registry.Get(batchID)
	if err != nil {
		return nil, err
	}
	proc.Pause()
	snap := proc.Snapshot()
	return &snap, nil
}

// ResumeBatch clears a pause. Resuming an unpaused batch is a no-op.
func (s *BatchService) ResumeBatch(batchID string) (*domain.StatusSnapshot, error) {
	proc, err := s.registry.Get(batchID)
	if err != nil {
		return nil, err
	}
	proc.Resume()
	snap := proc.Snapshot()
	return &snap, nil
}

// StopBatch cancels a batch. The in-flight document finishes; remaining
// files are abandoned.
func (s *BatchService) StopBatch(batchID string) (*domain.StatusSnapshot, error) {
	proc, err := s.registry.Get(batchID)
	if err != nil {
		return nil, err
	}
	if !proc.Stop() {
		return nil, errors.Conflict("batch already finished")
	}
	s.queue.Cancel(batchID)
	snap := proc.Snapshot()
	return &snap, nil
}

// Cleanup evicts finished batches that have been inactive for over an hour
func (s *BatchService) Cleanup() int {
	return s.registry.Cleanup(defaultCleanupAge)
}

// GPUStats reports per-device utilization
func (s *BatchService) GPUStats() []gpu.DeviceStats {
	if s.governor == nil {
		return nil
	}
	return s.governor.Stats()
}
