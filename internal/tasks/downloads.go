package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/cvsync/internal/formatter"
	"github.com/desertthunder/cvsync/internal/shared"
)

// Download defaults.
const (
	DefaultWorkers    = 3
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// CancelledReason is the error text of a task stopped by cancellation.
const CancelledReason = "cancelled"

// DownloadTask is one admitted file waiting to be transferred.
type DownloadTask struct {
	ItemID           string
	URL              string
	Destination      string
	Filename         string
	SizeBytes        int64
	CourseID         string
	CourseName       string
	RemoteModifiedAt time.Time
	IsUpdate         bool
}

// DownloadResult is the terminal state of a [DownloadTask].
type DownloadResult struct {
	Task      DownloadTask
	Success   bool
	Error     string
	Attempts  int
	Cancelled bool
	Bytes     int64
}

// DownloadOptions configures a [DownloadManager]. Zero values take the defaults.
type DownloadOptions struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// DownloadOptionsFromConfig reads the download section of the configuration.
func DownloadOptionsFromConfig(cfg shared.DownloadConfig) DownloadOptions {
	return DownloadOptions{
		Workers:    cfg.ConcurrentDownloads,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
	}
}

// DownloadManager runs download tasks on a bounded pool with retries and exponential backoff.
type DownloadManager struct {
	transfer Transferrer
	fs       afero.Fs
	clock    clockwork.Clock
	logger   *log.Logger
	progress chan<- ProgressUpdate

	workers    int
	maxRetries int
	baseDelay  time.Duration
}

// NewDownloadManager creates a [DownloadManager] writing through fsys.
func NewDownloadManager(t Transferrer, fsys afero.Fs, opts DownloadOptions) *DownloadManager {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	return &DownloadManager{
		transfer:   t,
		fs:         fsys,
		clock:      clockwork.NewRealClock(),
		logger:     shared.NewLogger(nil),
		workers:    opts.Workers,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.RetryDelay,
	}
}

// WithClock replaces the clock used for backoff waits.
func (m *DownloadManager) WithClock(c clockwork.Clock) *DownloadManager {
	m.clock = c
	return m
}

// WithLogger replaces the logger.
func (m *DownloadManager) WithLogger(l *log.Logger) *DownloadManager {
	m.logger = l
	return m
}

// WithProgress sets the channel that receives one update per finished task.
func (m *DownloadManager) WithProgress(ch chan<- ProgressUpdate) *DownloadManager {
	m.progress = ch
	return m
}

// Backoff returns the wait before retry number attempt+1: base * 2^(attempt-1).
func (m *DownloadManager) Backoff(attempt int) time.Duration {
	return m.baseDelay * time.Duration(1<<(attempt-1))
}

// Run executes tasks and blocks until every task has finished.
//
// Results come back in completion order, split into successes and failures. A cancelled context turns every
// unfinished task into a failure with [CancelledReason].
func (m *DownloadManager) Run(ctx context.Context, tasks []DownloadTask) (successes, failures []DownloadResult) {
	if len(tasks) == 0 {
		return nil, nil
	}

	m.logger.Info("starting downloads", "files", len(tasks), "workers", m.workers)
	sendProgress(m.progress, downloadStartUpdate(len(tasks)))

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	g.SetLimit(m.workers)

	for _, task := range tasks {
		g.Go(func() error {
			res := m.download(ctx, task)

			mu.Lock()
			if res.Success {
				successes = append(successes, res)
			} else {
				failures = append(failures, res)
			}
			done++
			step := done
			mu.Unlock()

			m.logResult(res)
			sendProgress(m.progress, downloadDoneUpdate(step, len(tasks), res))
			return nil
		})
	}
	g.Wait()

	m.logger.Info("downloads complete", "successful", len(successes), "failed", len(failures))
	return successes, failures
}

func (m *DownloadManager) download(ctx context.Context, task DownloadTask) DownloadResult {
	res := DownloadResult{Task: task}

	var lastErr error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return cancelled(res)
		}
		res.Attempts = attempt

		n, err := m.attempt(ctx, task)
		if err == nil {
			res.Success = true
			res.Bytes = n
			return res
		}
		if errors.Is(err, shared.ErrCancelled) || ctx.Err() != nil {
			return cancelled(res)
		}

		lastErr = err
		m.logger.Warn("download attempt failed", "file", task.Filename, "id", task.ItemID, "attempt", attempt, "error", err)

		if attempt < m.maxRetries {
			select {
			case <-m.clock.After(m.Backoff(attempt)):
			case <-ctx.Done():
				return cancelled(res)
			}
		}
	}

	res.Error = fmt.Sprintf("Failed after %d attempts: %s", m.maxRetries, lastErr)
	return res
}

func (m *DownloadManager) attempt(ctx context.Context, task DownloadTask) (int64, error) {
	if err := m.fs.MkdirAll(filepath.Dir(task.Destination), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	return m.transfer.Transfer(ctx, task.URL, task.Destination)
}

func (m *DownloadManager) logResult(res DownloadResult) {
	size := formatter.FormatSize(res.Task.SizeBytes)
	switch {
	case res.Success:
		m.logger.Info("downloaded", "file", res.Task.Filename, "size", size)
	case res.Cancelled:
		m.logger.Warn("download cancelled", "file", res.Task.Filename, "size", size)
	default:
		m.logger.Error("download failed", "file", res.Task.Filename, "size", size, "error", res.Error)
	}
}

func cancelled(res DownloadResult) DownloadResult {
	res.Success = false
	res.Cancelled = true
	res.Error = CancelledReason
	return res
}
