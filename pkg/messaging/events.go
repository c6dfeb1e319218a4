package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Batch lifecycle events
	EventBatchQueued    = "ocr.batch.queued"
	EventBatchStarted   = "ocr.batch.started"
	EventBatchCompleted = "ocr.batch.completed"
	EventBatchCancelled = "ocr.batch.cancelled"
	EventBatchFailed    = "ocr.batch.failed"

	// Document events
	EventDocumentProcessed = "ocr.document.processed"
	EventDocumentSkipped   = "ocr.document.skipped"
	EventDocumentFailed    = "ocr.document.failed"
)

// Exchange names
const (
	ExchangeOCREvents = "ocr.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Batch Events

// BatchQueuedEvent is published when a batch is accepted and queued
type BatchQueuedEvent struct {
	BatchID    string `json:"batch_id"`
	TotalFiles int    `json:"total_files"`
	Engine     string `json:"engine"`
	Language   string `json:"language"`
}

// BatchStartedEvent is published when the worker picks up a batch
type BatchStartedEvent struct {
	BatchID    string    `json:"batch_id"`
	TotalFiles int       `json:"total_files"`
	StartedAt  time.Time `json:"started_at"`
}

// BatchCompletedEvent is published when a batch finishes its file list
type BatchCompletedEvent struct {
	BatchID        string  `json:"batch_id"`
	ProcessedCount int     `json:"processed_count"`
	FailedCount    int     `json:"failed_count"`
	SkippedCount   int     `json:"skipped_count"`
	TotalSeconds   float64 `json:"total_seconds"`
}

// BatchCancelledEvent is published when a batch is stopped by a caller
type BatchCancelledEvent struct {
	BatchID        string `json:"batch_id"`
	ProcessedCount int    `json:"processed_count"`
	RemainingFiles int    `json:"remaining_files"`
}

// BatchFailedEvent is published when the batch loop itself fails
type BatchFailedEvent struct {
	BatchID string `json:"batch_id"`
	Error   string `json:"error"`
}

// Document Events

// DocumentProcessedEvent is published per successfully processed document
type DocumentProcessedEvent struct {
	BatchID          string `json:"batch_id"`
	FileID           string `json:"file_id"`
	FileName         string `json:"file_name"`
	Status           string `json:"status"`
	PageCount        int    `json:"page_count"`
	TotalWords       int    `json:"total_words"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// DocumentSkippedEvent is published when a document is skipped as already processed
type DocumentSkippedEvent struct {
	BatchID  string `json:"batch_id"`
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
}

// DocumentFailedEvent is published per failed document
type DocumentFailedEvent struct {
	BatchID  string `json:"batch_id"`
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
