package events

import (
	"context"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
	"github.com/ocrflow/ocrflow-backend/pkg/messaging"
)

// Publisher is the subset of the messaging publisher used here
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// BatchEventPublisher emits batch and document lifecycle events. Publishing
// is best-effort: a broker outage is logged and processing continues.
type BatchEventPublisher struct {
	publisher Publisher
	log       *logger.Logger
}

// NewBatchEventPublisher creates a lifecycle event publisher.
// A nil publisher disables event emission entirely.
func NewBatchEventPublisher(publisher Publisher, log *logger.Logger) *BatchEventPublisher {
	return &BatchEventPublisher{
		publisher: publisher,
		log:       log.WithComponent("events"),
	}
}

// BatchQueued announces a newly accepted batch
func (p *BatchEventPublisher) BatchQueued(batchID string, totalFiles int, settings domain.Settings) {
	p.publish(messaging.EventBatchQueued, messaging.BatchQueuedEvent{
		BatchID:    batchID,
		TotalFiles: totalFiles,
		Engine:     settings.Engine,
		Language:   settings.Language,
	})
}

// BatchStarted implements batch.Notifier
func (p *BatchEventPublisher) BatchStarted(batchID string, totalFiles int) {
	p.publish(messaging.EventBatchStarted, messaging.BatchStartedEvent{
		BatchID:    batchID,
		TotalFiles: totalFiles,
	})
}

// BatchFinished implements batch.Notifier
func (p *BatchEventPublisher) BatchFinished(batchID string, status domain.BatchStatus, processed, failed, skipped int) {
	switch status {
	case domain.BatchCancelled:
		p.publish(messaging.EventBatchCancelled, messaging.BatchCancelledEvent{
			BatchID:        batchID,
			ProcessedCount: processed,
		})
	case domain.BatchError:
		p.publish(messaging.EventBatchFailed, messaging.BatchFailedEvent{
			BatchID: batchID,
			Error:   "batch processing aborted",
		})
	default:
		p.publish(messaging.EventBatchCompleted, messaging.BatchCompletedEvent{
			BatchID:        batchID,
			ProcessedCount: processed,
			FailedCount:    failed,
			SkippedCount:   skipped,
		})
	}
}

// DocumentProcessed implements batch.Notifier
func (p *BatchEventPublisher) DocumentProcessed(batchID string, result domain.DocumentResult) {
	p.publish(messaging.EventDocumentProcessed, messaging.DocumentProcessedEvent{
		BatchID:          batchID,
		FileID:           result.FileID,
		FileName:         result.FileName,
		Status:           string(result.Status),
		PageCount:        result.PageCount,
		TotalWords:       result.TotalWords,
		ProcessingTimeMs: result.ProcessingTimeMs,
	})
}

// DocumentSkipped implements batch.Notifier
func (p *BatchEventPublisher) DocumentSkipped(batchID, fileID string) {
	p.publish(messaging.EventDocumentSkipped, messaging.DocumentSkippedEvent{
		BatchID: batchID,
		FileID:  fileID,
	})
}

// DocumentFailed implements batch.Notifier
func (p *BatchEventPublisher) DocumentFailed(batchID string, fileErr domain.FileError) {
	p.publish(messaging.EventDocumentFailed, messaging.DocumentFailedEvent{
		BatchID:  batchID,
		FileID:   fileErr.FileID,
		FileName: fileErr.FileName,
		Error:    fileErr.Error,
	})
}

func (p *BatchEventPublisher) publish(eventType string, data interface{}) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(context.Background(), eventType, data); err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("event publish failed")
	}
}
