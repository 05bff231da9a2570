// Package app wires settings, the safety gate, the reconciler and the audit
// trail into the three lifecycle operations: Activate, CreateTerminals and
// Deactivate.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/g960059/persterm/internal/audit"
	"github.com/g960059/persterm/internal/config"
	"github.com/g960059/persterm/internal/db"
	"github.com/g960059/persterm/internal/metrics"
	"github.com/g960059/persterm/internal/model"
	"github.com/g960059/persterm/internal/notify"
	"github.com/g960059/persterm/internal/reconcile"
	"github.com/g960059/persterm/internal/security"
	"github.com/g960059/persterm/internal/terminal"
)

var (
	ErrInvalidConfiguration = reconcile.ErrInvalidConfiguration
	ErrNoWorkspace          = errors.New("no workspace folder")
)

const noWorkspaceMessage = "Persistent Terminals requires an open workspace folder"

type Deps struct {
	Config   config.Config
	Settings config.SettingsProvider
	Host     terminal.Host
	Notifier notify.Notifier
	Logger   *zap.Logger
	// Journal and Metrics are optional.
	Journal *db.Store
	Metrics *metrics.Metrics
}

type App struct {
	cfg      config.Config
	settings config.SettingsProvider
	host     terminal.Host
	notifier notify.Notifier
	logger   *zap.Logger
	journal  *db.Store
	metrics  *metrics.Metrics

	gate       *security.Gate
	audit      *audit.Logger
	reconciler *reconcile.Reconciler

	mu   sync.Mutex
	last model.ReconcileResult
}

func New(deps Deps) *App {
	a := &App{
		cfg:      deps.Config,
		settings: deps.Settings,
		host:     deps.Host,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		journal:  deps.Journal,
		metrics:  deps.Metrics,
	}
	if a.settings == nil {
		a.settings = config.StaticSettings{}
	}
	if a.notifier == nil {
		a.notifier = notify.Nop{}
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	var sinks []audit.Sink
	if path := a.cfg.LogPath(); path != "" {
		sinks = append(sinks, audit.NewFileSink(path))
	}
	if a.journal != nil {
		sinks = append(sinks, audit.NewJournalSink(a.journal, a.cfg.CommandTimeout))
	}
	a.audit = audit.New(audit.Options{
		Workspace: a.cfg.WorkspaceRoot,
		Enabled:   a.loggingEnabled,
		Sinks:     sinks,
		QueueSize: a.cfg.AuditQueueSize,
		Logger:    a.logger.Named("audit"),
	})
	a.gate = security.NewGate(a.userRestrictedCommands)
	a.reconciler = reconcile.NewReconciler(a.host, a.gate, a.audit, a.notifier, a.logger.Named("reconcile"))
	return a
}

// Activate records activation and runs a first pass when a workspace is open.
func (a *App) Activate(ctx context.Context) error {
	a.audit.Append(time.Now().UTC(), "Extension activated")
	a.logger.Info("persterm activated", zap.String("workspace", a.cfg.WorkspaceRoot))
	if a.cfg.WorkspaceRoot == "" {
		return nil
	}
	_, err := a.CreateTerminals(ctx)
	return err
}

// CreateTerminals loads settings and runs one reconciliation pass. Passes
// are serialised. Invalid configuration is reported as one error
// notification and returns an error wrapping ErrInvalidConfiguration.
func (a *App) CreateTerminals(ctx context.Context) (model.ReconcileResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.WorkspaceRoot == "" {
		a.notifier.Warn(noWorkspaceMessage)
		return model.ReconcileResult{}, ErrNoWorkspace
	}

	s, err := a.settings.Settings()
	if err != nil {
		a.logger.Error("load settings failed", zap.Error(err))
		a.notifier.Error(fmt.Sprintf("Failed to read terminal settings: %v", err))
		return model.ReconcileResult{}, fmt.Errorf("load settings: %w", err)
	}
	if len(s.Terminals) == 0 {
		a.logger.Debug("no terminals configured")
		return model.ReconcileResult{}, nil
	}

	started := time.Now().UTC()
	result, err := a.reconciler.Apply(ctx, s.Terminals)
	if err != nil {
		var cfgErr *reconcile.ConfigError
		if errors.As(err, &cfgErr) {
			a.notifier.Error("Invalid terminal configuration:\n" + strings.Join(cfgErr.Problems, "\n"))
			a.audit.Record(model.AuditEvent{
				Kind:    model.AuditConfigError,
				Message: "Configuration errors: " + strings.Join(cfgErr.Problems, ", "),
			})
			a.logger.Warn("invalid terminal configuration", zap.Strings("problems", cfgErr.Problems))
			if a.metrics != nil {
				a.metrics.ObserveConfigError()
			}
			a.writeMetrics()
		}
		return result, err
	}
	finished := time.Now().UTC()

	if a.metrics != nil {
		a.metrics.ObservePass(result, finished.Sub(started), finished)
		a.metrics.SetAuditDropped(a.audit.Dropped())
	}
	a.writeMetrics()
	a.recordPass(ctx, result, started, finished)
	a.last = result
	return result, nil
}

// Deactivate records the final audit line and flushes the audit sinks.
// Sessions on a tmux server outlive the process; PTY sessions do not.
func (a *App) Deactivate(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.audit.Append(time.Now().UTC(), "Extension deactivated")
	if err := a.audit.Close(); err != nil {
		a.logger.Debug("close audit log failed", zap.Error(err))
	}
	if a.metrics != nil {
		a.metrics.SetAuditDropped(a.audit.Dropped())
	}
	a.writeMetrics()
	if closer, ok := a.host.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close terminal host: %w", err)
		}
	}
	a.logger.Info("persterm deactivated")
	return nil
}

// Sessions lists the sessions currently on the host.
func (a *App) Sessions(ctx context.Context) ([]model.Session, error) {
	return a.host.ListSessions(ctx)
}

// Check validates the current settings without touching any session.
func (a *App) Check() ([]string, error) {
	s, err := a.settings.Settings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return reconcile.Validate(s.Terminals, a.gate), nil
}

// Explain reports the rule that restricts command, if any.
func (a *App) Explain(command string) (security.Rule, bool) {
	return a.gate.Explain(command)
}

// LastResult is the result of the most recent successful pass.
func (a *App) LastResult() model.ReconcileResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Executed reports whether a terminal's commands already ran in this process.
func (a *App) Executed(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reconciler.Executed(name)
}

func (a *App) loggingEnabled() bool {
	s, err := a.settings.Settings()
	if err != nil {
		return false
	}
	return s.EnableLogging
}

func (a *App) userRestrictedCommands() []string {
	s, err := a.settings.Settings()
	if err != nil {
		a.logger.Debug("read user restricted commands failed", zap.Error(err))
		return nil
	}
	return s.UserRestrictedCommands
}

func (a *App) recordPass(ctx context.Context, result model.ReconcileResult, started, finished time.Time) {
	if a.journal == nil || !a.loggingEnabled() {
		return
	}
	summary := result.Summarize(uuid.NewString(), a.cfg.WorkspaceRoot, started, finished)
	if err := a.journal.InsertPass(ctx, summary); err != nil {
		a.logger.Debug("record pass failed", zap.Error(err))
	}
}

func (a *App) writeMetrics() {
	if a.metrics == nil {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.logger.Debug("write metrics failed", zap.Error(err))
	}
}
