package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/g960059/persterm/internal/model"
	"github.com/g960059/persterm/internal/notify"
	"github.com/g960059/persterm/internal/security"
	"github.com/g960059/persterm/internal/terminal"
)

// AuditLog receives one event per decision the reconciler makes.
type AuditLog interface {
	Record(ev model.AuditEvent)
}

// Reconciler brings the host's sessions in line with a list of specs.
//
// It owns the set of terminal names whose commands have already been
// processed. The set only grows and lives as long as the Reconciler. Passes
// must not overlap; callers serialise them.
type Reconciler struct {
	host     terminal.Host
	gate     Gate
	audit    AuditLog
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time

	executed map[string]struct{}
}

func NewReconciler(host terminal.Host, gate Gate, audit AuditLog, notifier notify.Notifier, logger *zap.Logger) *Reconciler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		host:     host,
		gate:     gate,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		executed: make(map[string]struct{}),
	}
}

// Executed reports whether name's commands were processed by an earlier pass.
func (r *Reconciler) Executed(name string) bool {
	_, ok := r.executed[name]
	return ok
}

// Apply validates specs and reconciles them only when validation passes.
// On failure it returns a *ConfigError and touches no session.
func (r *Reconciler) Apply(ctx context.Context, specs []model.TerminalSpec) (model.ReconcileResult, error) {
	if problems := Validate(specs, r.gate); len(problems) > 0 {
		return model.ReconcileResult{}, &ConfigError{Problems: problems}
	}
	return r.Reconcile(ctx, specs), nil
}

// Reconcile processes specs in order. Host failures are logged and audited
// and never stop the batch. specs must already have passed Validate.
func (r *Reconciler) Reconcile(ctx context.Context, specs []model.TerminalSpec) model.ReconcileResult {
	var result model.ReconcileResult
	if len(specs) == 0 {
		r.record(model.AuditSummary, "", "Terminals created: 0, skipped: 0")
		return result
	}

	live := r.liveSessions(ctx)
	for _, spec := range specs {
		r.reconcileOne(ctx, spec, live, &result)
	}

	if result.Created > 0 {
		r.notifier.Info(fmt.Sprintf("Created %d terminal(s) successfully!", result.Created))
	}
	r.record(model.AuditSummary, "", fmt.Sprintf("Terminals created: %d, skipped: %d", result.Created, result.Reused))
	r.logger.Info("reconcile pass finished",
		zap.Int("created", result.Created),
		zap.Int("reused", result.Reused),
		zap.Int("failed", result.Failed),
		zap.Int("sent", result.Count(model.CommandSent)),
		zap.Int("restricted", result.Count(model.CommandSkippedRestricted)),
		zap.Int("execution_skipped", result.SkippedExecutions()))
	return result
}

// liveSessions lists the host once. A listing failure is treated as an
// empty host; creating an existing session then fails on its own.
func (r *Reconciler) liveSessions(ctx context.Context) map[string]terminal.Handle {
	live := make(map[string]terminal.Handle)
	sessions, err := r.host.ListSessions(ctx)
	if err != nil {
		r.logger.Warn("list sessions failed", zap.Error(err))
		r.record(model.AuditSessionFailed, "", fmt.Sprintf("Failed to list terminals: %v", err))
		return live
	}
	for _, s := range sessions {
		live[s.Name] = terminal.HandleFor(s)
	}
	return live
}

func (r *Reconciler) reconcileOne(ctx context.Context, spec model.TerminalSpec, live map[string]terminal.Handle, result *model.ReconcileResult) {
	alreadyExecuted := r.Executed(spec.Name)
	outcome := model.TerminalOutcome{Name: spec.Name}

	handle, found := live[spec.Name]
	switch {
	case found:
		outcome.Action = model.SessionReused
		result.Reused++
		r.record(model.AuditSessionReused, spec.Name, fmt.Sprintf("Found existing terminal: %s, skipping creation", spec.Name))
	default:
		h, err := r.host.CreateSession(ctx, spec.Name, spec.Color)
		if err != nil {
			outcome.Action = model.SessionCreateFailed
			outcome.Err = err
			result.Failed++
			r.logger.Error("create session failed", zap.String("terminal", spec.Name), zap.Error(err))
			r.record(model.AuditSessionFailed, spec.Name, fmt.Sprintf("Failed to create terminal: %s: %v", spec.Name, err))
			break
		}
		handle = h
		live[spec.Name] = h
		outcome.Action = model.SessionCreated
		result.Created++
		r.record(model.AuditSessionCreated, spec.Name, "Created terminal: "+spec.Name)
	}

	if alreadyExecuted {
		outcome.ExecutionSkipped = true
		result.Terminals = append(result.Terminals, outcome)
		r.record(model.AuditExecutionSkipped, spec.Name, fmt.Sprintf("Skipping command execution for %s (already executed)", spec.Name))
		return
	}
	result.Terminals = append(result.Terminals, outcome)

	for i, command := range spec.Commands {
		co := model.CommandOutcome{Terminal: spec.Name, Index: i, Command: command}
		switch {
		case r.gate.IsRestricted(command):
			co.Status = model.CommandSkippedRestricted
			r.notifier.Warn(fmt.Sprintf("Skipping restricted command in %s: %s", spec.Name, command))
			r.record(model.AuditCommandSkipped, spec.Name, "Skipped restricted command: "+command)
		case outcome.Action == model.SessionCreateFailed:
			co.Status = model.CommandSendFailed
			co.Err = outcome.Err
		default:
			if err := r.host.Send(ctx, handle, command); err != nil {
				co.Status = model.CommandSendFailed
				co.Err = err
				r.logger.Warn("send command failed",
					zap.String("terminal", spec.Name),
					zap.String("command", security.RedactCommand(command)),
					zap.Error(err))
				r.record(model.AuditCommandFailed, spec.Name, fmt.Sprintf("Failed to execute command in %s: %s: %v", spec.Name, command, err))
				break
			}
			co.Status = model.CommandSent
			r.record(model.AuditCommandSent, spec.Name, fmt.Sprintf("Executed command in %s: %s", spec.Name, command))
		}
		result.Outcomes = append(result.Outcomes, co)
	}
	r.executed[spec.Name] = struct{}{}
}

func (r *Reconciler) record(kind model.AuditKind, terminalName, message string) {
	if r.audit == nil {
		return
	}
	r.audit.Record(model.AuditEvent{
		At:       r.now(),
		Kind:     kind,
		Terminal: terminalName,
		Message:  message,
	})
}
