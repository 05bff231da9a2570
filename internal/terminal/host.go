// Package terminal provides the session hosts persterm drives: tmux servers,
// in-process PTY shells and an in-memory fake.
package terminal

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/g960059/persterm/internal/model"
)

// ErrSessionNotFound is returned by Send for a handle the host does not know.
var ErrSessionNotFound = errors.New(model.ErrSessionNotFound)

// Host is the capability the reconciler needs from a terminal backend.
type Host interface {
	ListSessions(ctx context.Context) ([]model.Session, error)
	CreateSession(ctx context.Context, name, color string) (Handle, error)
	Send(ctx context.Context, h Handle, text string) error
}

// Handle identifies a live session. ID is host specific and may be empty.
type Handle struct {
	Name string
	ID   string
}

// HandleFor builds a handle for an observed session.
func HandleFor(s model.Session) Handle {
	return Handle{Name: s.Name, ID: s.ID}
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var ansiColors = map[string]string{
	"black":   "black",
	"red":     "red",
	"green":   "green",
	"yellow":  "yellow",
	"blue":    "blue",
	"magenta": "magenta",
	"cyan":    "cyan",
	"white":   "white",
}

// ThemeColor maps an editor theme color id (terminal.ansiGreen,
// terminal.ansiBrightRed) or a #rrggbb value to a tmux colour.
func ThemeColor(color string) string {
	c := strings.TrimSpace(color)
	if hexColor.MatchString(c) {
		return strings.ToLower(c)
	}
	name, ok := strings.CutPrefix(c, "terminal.ansi")
	if !ok {
		return "default"
	}
	name = strings.ToLower(name)
	if base, bright := strings.CutPrefix(name, "bright"); bright {
		if mapped, ok := ansiColors[base]; ok {
			return "bright" + mapped
		}
		return "default"
	}
	if mapped, ok := ansiColors[name]; ok {
		return mapped
	}
	return "default"
}
