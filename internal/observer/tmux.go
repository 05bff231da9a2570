package observer

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/g960059/persterm/internal/model"
	"github.com/g960059/persterm/internal/target"
	"github.com/g960059/persterm/internal/tmuxfmt"
)

var listSessionsFormat = tmuxfmt.Join(
	tmuxfmt.Field("session_name"),
	tmuxfmt.Field("session_id"),
	tmuxfmt.Field("session_created"),
	tmuxfmt.Field("session_attached"),
)

// TmuxObserver lists the live sessions of one tmux server.
type TmuxObserver struct {
	executor *target.Executor
	target   model.Target
}

func NewTmuxObserver(executor *target.Executor, tg model.Target) *TmuxObserver {
	return &TmuxObserver{executor: executor, target: tg}
}

// Sessions returns every session on the server. A server that is not
// running has no sessions.
func (o *TmuxObserver) Sessions(ctx context.Context) ([]model.Session, error) {
	res, err := o.executor.Tmux(ctx, o.target, "list-sessions", "-F", listSessionsFormat)
	if err != nil {
		if noServer(res.Output) {
			return []model.Session{}, nil
		}
		return nil, fmt.Errorf("list tmux sessions: %w", err)
	}
	return parseListSessionsOutput(res.Output)
}

func noServer(output string) bool {
	out := strings.ToLower(output)
	return strings.Contains(out, "no server running") ||
		strings.Contains(out, "error connecting to") ||
		strings.Contains(out, "no sessions")
}

func parseListSessionsOutput(output string) ([]model.Session, error) {
	s := bufio.NewScanner(strings.NewReader(output))
	sessions := make([]model.Session, 0)
	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := tmuxfmt.SplitLine(line, 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid tmux list-sessions line: %q", line)
		}
		if !strings.HasPrefix(strings.TrimSpace(parts[1]), "$") {
			return nil, fmt.Errorf("invalid tmux list-sessions line: %q", line)
		}
		session := model.Session{
			Name: parts[0],
			ID:   strings.TrimSpace(parts[1]),
		}
		if raw := strings.TrimSpace(parts[2]); raw != "" {
			if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
				created := time.Unix(secs, 0).UTC()
				session.CreatedAt = &created
			}
		}
		if n, err := strconv.Atoi(strings.TrimSpace(parts[3])); err == nil && n > 0 {
			session.Attached = true
		}
		sessions = append(sessions, session)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan tmux output: %w", err)
	}
	return sessions, nil
}
