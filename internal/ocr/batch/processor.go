package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

const (
	// seedAvgSeconds is the assumed per-file duration before any file finishes
	seedAvgSeconds = 45.0

	// snapshotLogLimit bounds the log view returned to clients. The full
	// history stays in memory until the batch is cleaned up.
	snapshotLogLimit = 50

	pausePollInterval = 500 * time.Millisecond
	fileYield         = 10 * time.Millisecond
	longYield         = 100 * time.Millisecond
	longYieldEvery    = 5
)

// FileProcessor runs the document pipeline for a single file
type FileProcessor interface {
	ProcessFile(ctx context.Context, file domain.FileDescriptor, settings domain.Settings) (domain.DocumentResult, *domain.FileError)
}

// Notifier receives batch lifecycle callbacks. All methods are best-effort;
// implementations must not block the processing loop.
type Notifier interface {
	BatchStarted(batchID string, totalFiles int)
	BatchFinished(batchID string, status domain.BatchStatus, processed, failed, skipped int)
	DocumentProcessed(batchID string, result domain.DocumentResult)
	DocumentSkipped(batchID, fileID string)
	DocumentFailed(batchID string, fileErr domain.FileError)
}

// Processor owns the state of one batch and processes its files strictly
// sequentially. All mutable state is guarded by mu; Run holds the lock only
// for state updates, never across a file.
type Processor struct {
	mu sync.Mutex

	batchID  string
	files    []domain.FileDescriptor
	settings domain.Settings

	status       domain.BatchStatus
	paused       bool
	stopped      bool
	processed    int
	failed       int
	skipped      int
	currentIndex int
	startTime    *time.Time
	lastActivity time.Time
	stats        domain.ProcessingStats
	results      []domain.DocumentResult
	errors       []domain.FileError
	logs         []domain.LogEntry
	stuck        bool

	pipeline FileProcessor
	notifier Notifier
	log      *logger.Logger
}

// NewProcessor creates a batch processor in the queued state
func NewProcessor(batchID string, files []domain.FileDescriptor, settings domain.Settings, pipeline FileProcessor, notifier Notifier, log *logger.Logger) *Processor {
	p := &Processor{
		batchID:      batchID,
		files:        files,
		settings:     settings,
		status:       domain.BatchQueued,
		pipeline:     pipeline,
		notifier:     notifier,
		lastActivity: time.Now(),
		log:          log.WithComponent("batch").WithBatchID(batchID),
	}
	p.appendLog(fmt.Sprintf("batch queued with %d files", len(files)))
	return p
}

// BatchID returns the batch identifier
func (p *Processor) BatchID() string { return p.batchID }

// Run processes all files in order. It returns when the batch reaches a
// terminal status. Pause and stop requests take effect at file boundaries.
func (p *Processor) Run(ctx context.Context) {
	p.mu.Lock()
	if p.status != domain.BatchQueued {
		p.mu.Unlock()
		return
	}
	now := time.Now()
	p.status = domain.BatchProcessing
	p.startTime = &now
	p.lastActivity = now
	p.mu.Unlock()

	p.appendLog("batch processing started")
	p.log.Info().Int("total_files", len(p.files)).Msg("batch started")
	if p.notifier != nil {
		p.notifier.BatchStarted(p.batchID, len(p.files))
	}

	defer func() {
		if r := recover(); r != nil {
			p.abort(fmt.Sprintf("%v", r))
		}
	}()

	for i, file := range p.files {
		if !p.waitIfPaused(ctx) {
			p.finish()
			return
		}

		p.mu.Lock()
		p.currentIndex = i
		p.mu.Unlock()

		result, fileErr := p.pipeline.ProcessFile(ctx, file, p.settings)
		p.record(file, result, fileErr)

		// Yield between files so status reads and control requests are
		// never starved by a tight loop over small documents
		if (i+1)%longYieldEvery == 0 {
			time.Sleep(longYield)
		} else {
			time.Sleep(fileYield)
		}
	}

	p.finish()
}

// waitIfPaused blocks while the batch is paused, polling for resume or stop.
// It returns false when processing must not continue.
func (p *Processor) waitIfPaused(ctx context.Context) bool {
	for {
		p.mu.Lock()
		stopped := p.stopped
		paused := p.paused
		p.mu.Unlock()

		if stopped {
			return false
		}
		if ctx.Err() != nil {
			p.cancelOnContext()
			return false
		}
		if !paused {
			return true
		}

		select {
		case <-ctx.Done():
			p.cancelOnContext()
			return false
		case <-time.After(pausePollInterval):
		}
	}
}

// cancelOnContext marks the batch cancelled when its task context is cut
// (queue shutdown, process exit). The loop exits at the next file boundary,
// the same way an explicit stop does.
func (p *Processor) cancelOnContext() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.paused = false
	p.status = domain.BatchCancelled
	p.lastActivity = time.Now()
	p.logs = append(p.logs, domain.LogEntry{Timestamp: time.Now(), Message: "task context cancelled, batch cancelled"})
}

// record folds one file outcome into the batch state. Failed files go only
// to the errors list; results holds successful outcomes, skips included.
func (p *Processor) record(file domain.FileDescriptor, result domain.DocumentResult, fileErr *domain.FileError) {
	p.mu.Lock()

	p.lastActivity = time.Now()

	switch {
	case fileErr != nil:
		p.failed++
		p.errors = append(p.errors, *fileErr)
	case result.Skipped:
		p.skipped++
		p.results = append(p.results, result)
	default:
		p.processed++
		p.results = append(p.results, result)
	}

	if !result.Skipped {
		p.stats.TotalPages += len(result.Pages)
		p.stats.TotalWords += result.TotalWords
		p.stats.TotalCharacters += result.TotalCharacters
		p.stats.TotalProcessingTime += float64(result.ProcessingTimeMs) / 1000.0
		if done := p.processed + p.failed; done > 0 {
			p.stats.AverageProcessingTime = p.stats.TotalProcessingTime / float64(done)
		}
	}
	p.mu.Unlock()

	switch {
	case fileErr != nil:
		p.appendLog(fmt.Sprintf("file %s failed: %s", file.Name, fileErr.Error))
		if p.notifier != nil {
			p.notifier.DocumentFailed(p.batchID, *fileErr)
		}
	case result.Skipped:
		p.appendLog(fmt.Sprintf("file %s skipped (already processed)", file.Name))
		if p.notifier != nil {
			p.notifier.DocumentSkipped(p.batchID, file.ID)
		}
	default:
		p.appendLog(fmt.Sprintf("file %s processed (%s)", file.Name, result.Status))
		if p.notifier != nil {
			p.notifier.DocumentProcessed(p.batchID, result)
		}
	}
}

// finish moves the batch to its terminal status. Per-file failures never
// make the batch itself fail; they live in the errors list.
func (p *Processor) finish() {
	p.mu.Lock()
	if p.stopped {
		p.status = domain.BatchCancelled
	} else {
		p.status = domain.BatchCompleted
	}
	status := p.status
	processed, failed, skipped := p.processed, p.failed, p.skipped
	p.lastActivity = time.Now()
	p.mu.Unlock()

	p.appendLog(fmt.Sprintf("batch finished with status %s (%d processed, %d failed, %d skipped)",
		status, processed, failed, skipped))
	p.log.Info().
		Str("status", string(status)).
		Int("processed", processed).
		Int("failed", failed).
		Int("skipped", skipped).
		Msg("batch finished")

	if p.notifier != nil {
		p.notifier.BatchFinished(p.batchID, status, processed, failed, skipped)
	}
}

// abort handles a panic escaping the processing loop. This is a programming
// defect, not a data problem, and is the only path to the error status.
func (p *Processor) abort(reason string) {
	p.mu.Lock()
	p.status = domain.BatchError
	processed, failed, skipped := p.processed, p.failed, p.skipped
	p.lastActivity = time.Now()
	p.mu.Unlock()

	p.appendLog(fmt.Sprintf("batch aborted: %s", reason))
	p.log.Error().Str("reason", reason).Msg("batch aborted")

	if p.notifier != nil {
		p.notifier.BatchFinished(p.batchID, domain.BatchError, processed, failed, skipped)
	}
}

// Pause requests the batch to hold at the next file boundary
func (p *Processor) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Terminal() || p.paused {
		return false
	}
	p.paused = true
	p.logs = append(p.logs, domain.LogEntry{Timestamp: time.Now(), Message: "pause requested"})
	return true
}

// Resume clears a pause
func (p *Processor) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return false
	}
	p.paused = false
	p.logs = append(p.logs, domain.LogEntry{Timestamp: time.Now(), Message: "resumed"})
	return true
}

// Stop cancels the batch. The status flips to cancelled immediately; the
// processing loop observes the flag at the next file boundary.
func (p *Processor) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Terminal() {
		return false
	}
	p.stopped = true
	p.paused = false
	p.status = domain.BatchCancelled
	p.lastActivity = time.Now()
	p.logs = append(p.logs, domain.LogEntry{Timestamp: time.Now(), Message: "stop requested, batch cancelled"})
	return true
}

// MarkStuck flags the batch as making no progress. Advisory only.
func (p *Processor) MarkStuck(stuck bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stuck = stuck
}

// LastActivity returns the time of the last state change
func (p *Processor) LastActivity() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActivity
}

// Status returns the current batch status, accounting for the pause flag
func (p *Processor) Status() domain.BatchStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Processor) statusLocked() domain.BatchStatus {
	if p.paused && !p.status.Terminal() {
		return domain.BatchPaused
	}
	return p.status
}

// Snapshot returns a consistent read-only view of the batch
func (p *Processor) Snapshot() domain.StatusSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := len(p.files)
	done := p.processed + p.failed + p.skipped

	snap := domain.StatusSnapshot{
		BatchID:          p.batchID,
		Status:           p.statusLocked(),
		IsPaused:         p.paused,
		TotalFiles:       total,
		ProcessedCount:   p.processed,
		FailedCount:      p.failed,
		SkippedCount:     p.skipped,
		RemainingFiles:   total - done,
		CurrentFileIndex: p.currentIndex,
		StartTime:        p.startTime,
		ProcessingStats:  p.stats,
		Stuck:            p.stuck,
	}

	if p.status == domain.BatchProcessing && p.currentIndex < total {
		f := p.files[p.currentIndex]
		snap.CurrentFile = &f
	}
	if total > 0 {
		snap.ProgressPercentage = float64(done) / float64(total) * 100.0
	}
	snap.EstimatedTimeRemaining = p.etaLocked(done, total-done)

	snap.Results = append([]domain.DocumentResult(nil), p.results...)
	snap.Errors = append([]domain.FileError(nil), p.errors...)

	logs := p.logs
	if len(logs) > snapshotLogLimit {
		logs = logs[len(logs)-snapshotLogLimit:]
	}
	snap.Logs = append([]domain.LogEntry(nil), logs...)

	return snap
}

// etaLocked estimates remaining seconds. Before the first file finishes the
// estimate is seeded with an assumed per-file duration; a long-running first
// file extends the estimate by the already elapsed time.
func (p *Processor) etaLocked(done, remaining int) float64 {
	if p.status.Terminal() || remaining <= 0 {
		return 0
	}

	avg := p.stats.AverageProcessingTime
	if avg <= 0 {
		avg = seedAvgSeconds
	}

	var elapsed float64
	if p.startTime != nil {
		elapsed = time.Since(*p.startTime).Seconds()
	}

	if done == 0 {
		if elapsed > 60 {
			return elapsed + avg*float64(remaining-1)
		}
		return avg * float64(remaining)
	}
	return elapsed / float64(done) * float64(remaining)
}

// appendLog records a timestamped batch event
func (p *Processor) appendLog(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, domain.LogEntry{Timestamp: time.Now(), Message: message})
}
