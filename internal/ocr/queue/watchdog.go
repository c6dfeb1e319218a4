package queue

import (
	"context"
	"os"
	"runtime/debug"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ocrflow/ocrflow-backend/pkg/config"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// Watchdog samples the process resident set size and nudges the runtime to
// return memory when it grows past the configured threshold. It is advisory:
// it never kills tasks, it only logs and hints the collector.
type Watchdog struct {
	interval  time.Duration
	threshold uint64
	proc      *process.Process
	log       *logger.Logger
	stop      chan struct{}
	done      chan struct{}
}

// NewWatchdog creates a memory watchdog from configuration.
// MemoryThreshold is in MB; zero disables the GC hint but sampling still logs.
func NewWatchdog(cfg config.WatchdogConfig, log *logger.Logger) (*Watchdog, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Watchdog{
		interval:  interval,
		threshold: uint64(cfg.MemoryThreshold) * 1024 * 1024,
		proc:      proc,
		log:       log.WithComponent("watchdog"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start begins sampling until Stop is called or the context ends
func (w *Watchdog) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.sample()
			}
		}
	}()
}

// Stop halts sampling
func (w *Watchdog) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Watchdog) sample() {
	info, err := w.proc.MemoryInfo()
	if err != nil {
		w.log.Warn().Err(err).Msg("memory sample failed")
		return
	}

	rssMB := info.RSS / 1024 / 1024
	w.log.Debug().Uint64("rss_mb", rssMB).Msg("memory sample")

	if w.threshold > 0 && info.RSS > w.threshold {
		w.log.Warn().
			Uint64("rss_mb", rssMB).
			Uint64("threshold_mb", w.threshold/1024/1024).
			Msg("memory above threshold, hinting GC")
		debug.FreeOSMemory()
	}
}
