package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/events"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
	"github.com/ocrflow/ocrflow-backend/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	eventType string
	data      interface{}
}

type fakePublisher struct {
	events []recordedEvent
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	f.events = append(f.events, recordedEvent{eventType, data})
	return f.err
}

func TestBatchEventPublisher_Lifecycle(t *testing.T) {
	fake := &fakePublisher{}
	p := events.NewBatchEventPublisher(fake, logger.Nop())

	p.BatchQueued("b-1", 3, domain.Settings{Engine: "vision", Language: "deu"})
	p.BatchStarted("b-1", 3)
	p.DocumentProcessed("b-1", domain.DocumentResult{FileID: "f-1", Status: domain.DocOCRProcessed})
	p.DocumentSkipped("b-1", "f-2")
	p.DocumentFailed("b-1", domain.FileError{FileID: "f-3", Error: "fetch failed"})
	p.BatchFinished("b-1", domain.BatchCompleted, 1, 1, 1)

	require.Len(t, fake.events, 6)
	assert.Equal(t, messaging.EventBatchQueued, fake.events[0].eventType)
	assert.Equal(t, messaging.EventBatchStarted, fake.events[1].eventType)
	assert.Equal(t, messaging.EventDocumentProcessed, fake.events[2].eventType)
	assert.Equal(t, messaging.EventDocumentSkipped, fake.events[3].eventType)
	assert.Equal(t, messaging.EventDocumentFailed, fake.events[4].eventType)
	assert.Equal(t, messaging.EventBatchCompleted, fake.events[5].eventType)

	queued, ok := fake.events[0].data.(messaging.BatchQueuedEvent)
	require.True(t, ok)
	assert.Equal(t, "vision", queued.Engine)
}

func TestBatchEventPublisher_TerminalStatusRouting(t *testing.T) {
	tests := []struct {
		status domain.BatchStatus
		want   string
	}{
		{domain.BatchCompleted, messaging.EventBatchCompleted},
		{domain.BatchCancelled, messaging.EventBatchCancelled},
		{domain.BatchError, messaging.EventBatchFailed},
	}

	for _, tt := range tests {
		fake := &fakePublisher{}
		p := events.NewBatchEventPublisher(fake, logger.Nop())
		p.BatchFinished("b-1", tt.status, 0, 0, 0)
		require.Len(t, fake.events, 1)
		assert.Equal(t, tt.want, fake.events[0].eventType)
	}
}

func TestBatchEventPublisher_PublishFailureIsSwallowed(t *testing.T) {
	fake := &fakePublisher{err: errors.New("broker down")}
	p := events.NewBatchEventPublisher(fake, logger.Nop())

	assert.NotPanics(t, func() {
		p.BatchStarted("b-1", 1)
	})
}

func TestBatchEventPublisher_NilPublisherIsNoop(t *testing.T) {
	p := events.NewBatchEventPublisher(nil, logger.Nop())
	assert.NotPanics(t, func() {
		p.BatchStarted("b-1", 1)
		p.BatchFinished("b-1", domain.BatchCompleted, 1, 0, 0)
	})
}
