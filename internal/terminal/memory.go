package terminal

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/g960059/persterm/internal/model"
)

// Op names a call recorded by MemoryHost.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpSend   Op = "send"
)

// Call is one recorded host invocation.
type Call struct {
	Op    Op
	Name  string
	Color string
	Text  string
}

// MemoryHost keeps sessions in memory and records every call. It backs
// --dry-run and the reconciler tests.
type MemoryHost struct {
	mu       sync.Mutex
	sessions []model.Session
	colors   map[string]string
	sent     map[string][]string
	calls    []Call
	nextID   int

	// ListErr, CreateErr and SendErr inject failures. The maps are keyed by
	// session name.
	ListErr   error
	CreateErr map[string]error
	SendErr   map[string]error
}

// NewMemoryHost seeds the host with sessions that already exist.
func NewMemoryHost(existing ...string) *MemoryHost {
	h := &MemoryHost{
		colors:    make(map[string]string),
		sent:      make(map[string][]string),
		CreateErr: make(map[string]error),
		SendErr:   make(map[string]error),
	}
	for _, name := range existing {
		h.add(name)
	}
	return h
}

func (h *MemoryHost) ListSessions(context.Context) ([]model.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Op: OpList})
	if h.ListErr != nil {
		return nil, h.ListErr
	}
	return append([]model.Session(nil), h.sessions...), nil
}

func (h *MemoryHost) CreateSession(_ context.Context, name, color string) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Op: OpCreate, Name: name, Color: color})
	if err := h.CreateErr[name]; err != nil {
		return Handle{}, err
	}
	for _, s := range h.sessions {
		if s.Name == name {
			return Handle{}, fmt.Errorf("duplicate session: %s", name)
		}
	}
	s := h.add(name)
	h.colors[name] = color
	return HandleFor(s), nil
}

func (h *MemoryHost) Send(_ context.Context, handle Handle, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Op: OpSend, Name: handle.Name, Text: text})
	if err := h.SendErr[handle.Name]; err != nil {
		return err
	}
	if !h.has(handle.Name) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, handle.Name)
	}
	h.sent[handle.Name] = append(h.sent[handle.Name], text)
	return nil
}

// Calls returns every recorded invocation in order.
func (h *MemoryHost) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// CallsOf filters Calls by op.
func (h *MemoryHost) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range h.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Sent returns the text sent to a session, in order.
func (h *MemoryHost) Sent(name string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sent[name]...)
}

// Color returns the colour a session was created with.
func (h *MemoryHost) Color(name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.colors[name]
}

func (h *MemoryHost) add(name string) model.Session {
	h.nextID++
	s := model.Session{Name: name, ID: "$" + strconv.Itoa(h.nextID)}
	h.sessions = append(h.sessions, s)
	return s
}

func (h *MemoryHost) has(name string) bool {
	for _, s := range h.sessions {
		if s.Name == name {
			return true
		}
	}
	return false
}
