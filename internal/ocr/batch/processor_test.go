package batch_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/batch"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	mu       sync.Mutex
	calls    []string
	failIDs  map[string]bool
	skipIDs  map[string]bool
	started  chan string
	release  chan struct{}
	blocking bool
}

func (f *fakePipeline) ProcessFile(ctx context.Context, file domain.FileDescriptor, settings domain.Settings) (domain.DocumentResult, *domain.FileError) {
	f.mu.Lock()
	f.calls = append(f.calls, file.ID)
	f.mu.Unlock()

	if f.blocking {
		f.started <- file.ID
		<-f.release
	}

	result := domain.DocumentResult{FileID: file.ID, FileName: file.Name, ProcessingTimeMs: 10}
	if f.skipIDs[file.ID] {
		result.Skipped = true
		result.Status = domain.DocSkipped
		return result, nil
	}
	if f.failIDs[file.ID] {
		result.Status = domain.DocError
		return result, &domain.FileError{FileID: file.ID, FileName: file.Name, Error: "fetch failed", At: time.Now()}
	}
	result.Status = domain.DocOCRProcessed
	result.Pages = []domain.PageResult{{PageNumber: 1, WordCount: 10}}
	result.TotalWords = 10
	return result, nil
}

func (f *fakePipeline) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingNotifier struct {
	mu        sync.Mutex
	started   int
	finished  []domain.BatchStatus
	processed []string
	skipped   []string
	failed    []string
}

func (n *recordingNotifier) BatchStarted(batchID string, totalFiles int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started++
}

func (n *recordingNotifier) BatchFinished(batchID string, status domain.BatchStatus, processed, failed, skipped int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, status)
}

func (n *recordingNotifier) DocumentProcessed(batchID string, result domain.DocumentResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.processed = append(n.processed, result.FileID)
}

func (n *recordingNotifier) DocumentSkipped(batchID, fileID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.skipped = append(n.skipped, fileID)
}

func (n *recordingNotifier) DocumentFailed(batchID string, fileErr domain.FileError) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, fileErr.FileID)
}

func testFiles(n int) []domain.FileDescriptor {
	files := make([]domain.FileDescriptor, n)
	for i := range files {
		files[i] = domain.FileDescriptor{ID: fmt.Sprintf("f-%d", i+1), Name: fmt.Sprintf("doc-%d.pdf", i+1)}
	}
	return files
}

func TestProcessor_MixedOutcomes(t *testing.T) {
	pipe := &fakePipeline{failIDs: map[string]bool{"f-2": true}}
	notifier := &recordingNotifier{}
	p := batch.NewProcessor("b-1", testFiles(3), domain.Settings{}, pipe, notifier, logger.Nop())

	p.Run(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, domain.BatchCompleted, snap.Status)
	assert.Equal(t, 2, snap.ProcessedCount)
	assert.Equal(t, 1, snap.FailedCount)
	assert.Equal(t, 0, snap.SkippedCount)
	assert.Equal(t, 0, snap.RemainingFiles)
	assert.InDelta(t, 100.0, snap.ProgressPercentage, 1e-9)
	assert.Zero(t, snap.EstimatedTimeRemaining)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "f-2", snap.Errors[0].FileID)
	// Failed files are captured in errors only, never in results
	require.Len(t, snap.Results, 2)
	assert.Equal(t, "f-1", snap.Results[0].FileID)
	assert.Equal(t, "f-3", snap.Results[1].FileID)

	assert.Equal(t, 1, notifier.started)
	assert.Equal(t, []domain.BatchStatus{domain.BatchCompleted}, notifier.finished)
	assert.Equal(t, []string{"f-1", "f-3"}, notifier.processed)
	assert.Equal(t, []string{"f-2"}, notifier.failed)
}

func TestProcessor_SkippedFilesCountSeparately(t *testing.T) {
	pipe := &fakePipeline{skipIDs: map[string]bool{"f-1": true, "f-3": true}}
	p := batch.NewProcessor("b-skip", testFiles(3), domain.Settings{}, pipe, nil, logger.Nop())

	p.Run(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, domain.BatchCompleted, snap.Status)
	assert.Equal(t, 1, snap.ProcessedCount)
	assert.Equal(t, 2, snap.SkippedCount)
	assert.InDelta(t, 100.0, snap.ProgressPercentage, 1e-9)
}

func TestProcessor_AllFailedStillCompletes(t *testing.T) {
	pipe := &fakePipeline{failIDs: map[string]bool{"f-1": true, "f-2": true}}
	p := batch.NewProcessor("b-allfail", testFiles(2), domain.Settings{}, pipe, nil, logger.Nop())

	p.Run(context.Background())

	// Exhausting the file list without a stop completes the batch even when
	// every file failed; the failures live in the errors list
	snap := p.Snapshot()
	assert.Equal(t, domain.BatchCompleted, snap.Status)
	assert.Equal(t, 0, snap.ProcessedCount)
	assert.Equal(t, 2, snap.FailedCount)
	assert.Len(t, snap.Errors, 2)
	assert.Empty(t, snap.Results)
}

func TestProcessor_CancelledContextCancelsBatch(t *testing.T) {
	pipe := &fakePipeline{}
	notifier := &recordingNotifier{}
	p := batch.NewProcessor("b-ctx", testFiles(3), domain.Settings{}, pipe, notifier, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	snap := p.Snapshot()
	assert.Equal(t, domain.BatchCancelled, snap.Status)
	assert.Equal(t, 0, snap.ProcessedCount+snap.FailedCount+snap.SkippedCount)
	assert.Equal(t, 0, pipe.callCount())
	assert.Equal(t, []domain.BatchStatus{domain.BatchCancelled}, notifier.finished)
}

type panickingPipeline struct{}

func (panickingPipeline) ProcessFile(ctx context.Context, file domain.FileDescriptor, settings domain.Settings) (domain.DocumentResult, *domain.FileError) {
	panic("nil map write in bookkeeping")
}

func TestProcessor_LoopPanicIsBatchError(t *testing.T) {
	notifier := &recordingNotifier{}
	p := batch.NewProcessor("b-panic", testFiles(2), domain.Settings{}, panickingPipeline{}, notifier, logger.Nop())

	p.Run(context.Background())

	assert.Equal(t, domain.BatchError, p.Status())
	assert.Equal(t, []domain.BatchStatus{domain.BatchError}, notifier.finished)
}

func TestProcessor_SequentialOrder(t *testing.T) {
	pipe := &fakePipeline{}
	p := batch.NewProcessor("b-seq", testFiles(6), domain.Settings{}, pipe, nil, logger.Nop())

	p.Run(context.Background())

	assert.Equal(t, []string{"f-1", "f-2", "f-3", "f-4", "f-5", "f-6"}, pipe.calls)
}

func TestProcessor_InitialETAUsesSeedAverage(t *testing.T) {
	p := batch.NewProcessor("b-eta", testFiles(4), domain.Settings{}, &fakePipeline{}, nil, logger.Nop())

	snap := p.Snapshot()
	assert.Equal(t, domain.BatchQueued, snap.Status)
	assert.InDelta(t, 180.0, snap.EstimatedTimeRemaining, 1e-9)
}

func TestProcessor_PauseAndResume(t *testing.T) {
	pipe := &fakePipeline{blocking: true, started: make(chan string), release: make(chan struct{})}
	p := batch.NewProcessor("b-pause", testFiles(2), domain.Settings{}, pipe, nil, logger.Nop())

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	<-pipe.started
	require.True(t, p.Pause())
	assert.Equal(t, domain.BatchPaused, p.Status())
	assert.True(t, p.Snapshot().IsPaused)

	// Finish the in-flight file; the pause holds at the boundary before f-2
	pipe.release <- struct{}{}
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, pipe.callCount(), "paused batch must not start the next file")

	require.True(t, p.Resume())

	select {
	case <-pipe.started:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not resume")
	}
	pipe.release <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish after resume")
	}
	assert.Equal(t, domain.BatchCompleted, p.Status())
}

func TestProcessor_StopCancelsImmediately(t *testing.T) {
	pipe := &fakePipeline{blocking: true, started: make(chan string), release: make(chan struct{})}
	p := batch.NewProcessor("b-stop", testFiles(3), domain.Settings{}, pipe, nil, logger.Nop())

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	<-pipe.started
	require.True(t, p.Stop())
	// Status flips without waiting for the in-flight file
	assert.Equal(t, domain.BatchCancelled, p.Status())

	pipe.release <- struct{}{}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not stop")
	}

	assert.Equal(t, 1, pipe.callCount(), "no further files after stop")
	assert.Equal(t, domain.BatchCancelled, p.Status())

	// A terminal batch rejects further control
	assert.False(t, p.Stop())
	assert.False(t, p.Pause())
}

func TestProcessor_SnapshotLogsBounded(t *testing.T) {
	pipe := &fakePipeline{}
	p := batch.NewProcessor("b-logs", testFiles(60), domain.Settings{}, pipe, nil, logger.Nop())

	p.Run(context.Background())

	snap := p.Snapshot()
	assert.Len(t, snap.Logs, 50)
	assert.Contains(t, snap.Logs[len(snap.Logs)-1].Message, "batch finished")
}

func TestProcessor_StatsAccumulate(t *testing.T) {
	pipe := &fakePipeline{}
	p := batch.NewProcessor("b-stats", testFiles(3), domain.Settings{}, pipe, nil, logger.Nop())

	p.Run(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, 3, snap.ProcessingStats.TotalPages)
	assert.Equal(t, 30, snap.ProcessingStats.TotalWords)
	assert.Greater(t, snap.ProcessingStats.AverageProcessingTime, 0.0)
}
