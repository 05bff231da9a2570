// Package audit writes the persistent-terminals audit trail.
//
// Events are queued and written by a single goroutine, so lines keep the
// order in which they were recorded and a slow disk never blocks the
// reconciler. Write failures are reported to the zap logger at debug level
// and go nowhere else.
package audit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/g960059/persterm/internal/model"
	"github.com/g960059/persterm/internal/security"
)

const defaultQueueSize = 256

type Options struct {
	// Workspace is the active workspace root. Empty disables auditing.
	Workspace string
	// Enabled is consulted on every event. Nil means always enabled.
	Enabled   func() bool
	Sinks     []Sink
	QueueSize int
	Logger    *zap.Logger
}

type Logger struct {
	workspace string
	enabled   func() bool
	sinks     []Sink
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan model.AuditEvent
	done   chan struct{}

	dropped atomic.Int64
	written atomic.Int64
}

func New(opts Options) *Logger {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Logger{
		workspace: opts.Workspace,
		enabled:   opts.Enabled,
		sinks:     opts.Sinks,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		queue:     make(chan model.AuditEvent, size),
		done:      make(chan struct{}),
	}
	go l.drain()
	return l
}

// Append records a free-form message.
func (l *Logger) Append(ts time.Time, message string) {
	l.Record(model.AuditEvent{At: ts, Kind: model.AuditLifecycle, Message: message})
}

// Record queues ev. It never blocks; when the queue is full the event is
// dropped.
func (l *Logger) Record(ev model.AuditEvent) {
	if !l.active() {
		return
	}
	if ev.At.IsZero() {
		ev.At = l.now()
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	ev.Workspace = l.workspace
	ev.Message = security.RedactCommand(ev.Message)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.dropped.Add(1)
		l.logger.Debug("audit queue full, event dropped",
			zap.String("kind", string(ev.Kind)),
			zap.String("terminal", ev.Terminal))
	}
}

// Dropped is the number of events lost to a full queue.
func (l *Logger) Dropped() int64 { return l.dropped.Load() }

// Written is the number of events delivered to every sink.
func (l *Logger) Written() int64 { return l.written.Load() }

// Close stops accepting events, drains the queue and closes the sinks.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	for _, s := range l.sinks {
		if err := s.Close(); err != nil {
			l.logger.Debug("close audit sink failed", zap.Error(err))
		}
	}
	return nil
}

func (l *Logger) active() bool {
	if l.workspace == "" || len(l.sinks) == 0 {
		return false
	}
	return l.enabled == nil || l.enabled()
}

func (l *Logger) drain() {
	defer close(l.done)
	for ev := range l.queue {
		ok := true
		for _, s := range l.sinks {
			if err := s.Write(ev); err != nil {
				ok = false
				l.logger.Debug("audit write failed", zap.String("event_id", ev.EventID), zap.Error(err))
			}
		}
		if ok {
			l.written.Add(1)
		}
	}
}
