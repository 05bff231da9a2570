package terminal

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/g960059/persterm/internal/model"
	"github.com/g960059/persterm/internal/observer"
	"github.com/g960059/persterm/internal/target"
	"github.com/g960059/persterm/internal/tmuxfmt"
)

// TmuxHost maps sessions onto tmux sessions of one server.
type TmuxHost struct {
	executor *target.Executor
	target   model.Target
	observer *observer.TmuxObserver
	workDir  string
	logger   *zap.Logger
}

// NewTmuxHost creates a host; workDir is the start directory for new
// sessions and may be empty.
func NewTmuxHost(executor *target.Executor, tg model.Target, workDir string, logger *zap.Logger) *TmuxHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TmuxHost{
		executor: executor,
		target:   tg,
		observer: observer.NewTmuxObserver(executor, tg),
		workDir:  workDir,
		logger:   logger,
	}
}

func (h *TmuxHost) ListSessions(ctx context.Context) ([]model.Session, error) {
	return h.observer.Sessions(ctx)
}

// CreateSession starts a detached session and colours its status line.
// A failure to apply the colour is logged and does not fail creation.
func (h *TmuxHost) CreateSession(ctx context.Context, name, color string) (Handle, error) {
	args := []string{"new-session", "-d", "-s", name, "-P", "-F", tmuxfmt.Field("session_id")}
	if h.workDir != "" {
		args = append(args, "-c", h.workDir)
	}
	res, err := h.executor.Tmux(ctx, h.target, args...)
	if err != nil {
		return Handle{}, fmt.Errorf("create tmux session %q: %w", name, err)
	}
	handle := Handle{Name: name, ID: strings.TrimSpace(res.Output)}
	if !strings.HasPrefix(handle.ID, "$") {
		handle.ID = ""
	}

	if style := ThemeColor(color); style != "default" {
		if _, err := h.executor.Tmux(ctx, h.target, "set-option", "-t", sessionTarget(handle), "status-style", "bg="+style); err != nil {
			h.logger.Debug("apply session colour failed",
				zap.String("session", name),
				zap.String("color", color),
				zap.Error(err))
		}
	}
	return handle, nil
}

// Send types text literally into the session's active pane and presses Enter.
func (h *TmuxHost) Send(ctx context.Context, handle Handle, text string) error {
	pane := paneTarget(handle)
	if _, err := h.executor.Tmux(ctx, h.target, "send-keys", "-t", pane, "-l", text); err != nil {
		return fmt.Errorf("send keys to %q: %w", handle.Name, err)
	}
	if _, err := h.executor.Tmux(ctx, h.target, "send-keys", "-t", pane, "Enter"); err != nil {
		return fmt.Errorf("send enter to %q: %w", handle.Name, err)
	}
	return nil
}

// sessionTarget prefers the session id; "=name" forces an exact name match
// instead of tmux's default prefix matching.
func sessionTarget(h Handle) string {
	if h.ID != "" {
		return h.ID
	}
	return "=" + h.Name
}

func paneTarget(h Handle) string {
	return sessionTarget(h) + ":"
}
