// Package notify surfaces user-facing messages: skipped-command warnings,
// configuration errors and creation summaries.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warning"
	LevelError Level = "error"
)

type Notifier interface {
	Info(message string)
	Warn(message string)
	Error(message string)
}

// Console prints notifications as "<level>: message". Info goes to out,
// warnings and errors to errOut. Continuation lines are indented.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

func NewConsole(out, errOut io.Writer) *Console {
	return &Console{out: out, errOut: errOut}
}

func (c *Console) Info(message string)  { c.write(c.out, LevelInfo, message) }
func (c *Console) Warn(message string)  { c.write(c.errOut, LevelWarn, message) }
func (c *Console) Error(message string) { c.write(c.errOut, LevelError, message) }

func (c *Console) write(w io.Writer, level Level, message string) {
	if w == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	message = strings.ReplaceAll(message, "\n", "\n  ")
	_, _ = fmt.Fprintf(w, "%s: %s\n", level, message)
}

// Notification is one message captured by Recorder.
type Notification struct {
	Level   Level
	Message string
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Info(message string)  { r.add(LevelInfo, message) }
func (r *Recorder) Warn(message string)  { r.add(LevelWarn, message) }
func (r *Recorder) Error(message string) { r.add(LevelError, message) }

func (r *Recorder) add(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Level: level, Message: message})
}

// All returns every notification in order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Messages returns the messages recorded at level.
func (r *Recorder) Messages(level Level) []string {
	var out []string
	for _, n := range r.All() {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

// Nop discards everything.
type Nop struct{}

func (Nop) Info(string)  {}
func (Nop) Warn(string)  {}
func (Nop) Error(string) {}
