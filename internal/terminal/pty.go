package terminal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/g960059/persterm/internal/model"
)

const ptyOutputBufferSize = 256 * 1024

type ptySession struct {
	name      string
	color     string
	id        string
	startedAt time.Time

	cmd  *exec.Cmd
	ptmx *os.File
	out  *Buffer

	mu     sync.RWMutex
	closed bool
}

// PTYHost runs each session as a shell on its own pseudo terminal owned by
// this process. Sessions end when the process exits or Close is called.
type PTYHost struct {
	shell   string
	workDir string
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*ptySession
	nextID   int
}

// NewPTYHost starts sessions with shell, falling back to $SHELL and then
// /bin/sh.
func NewPTYHost(shell, workDir string, logger *zap.Logger) *PTYHost {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PTYHost{
		shell:    shell,
		workDir:  workDir,
		logger:   logger,
		sessions: make(map[string]*ptySession),
	}
}

func (h *PTYHost) ListSessions(context.Context) ([]model.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]model.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if closed {
			continue
		}
		started := s.startedAt
		out = append(out, model.Session{Name: s.name, ID: s.id, CreatedAt: &started})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (h *PTYHost) CreateSession(_ context.Context, name, color string) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[name]; ok {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if !closed {
			return Handle{}, fmt.Errorf("duplicate session: %s", name)
		}
	}

	cmd := exec.Command(h.shell)
	cmd.Dir = h.workDir
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"PERSTERM_TERMINAL="+name,
		"PERSTERM_COLOR="+color,
	)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return Handle{}, fmt.Errorf("start pty for %q: %w", name, err)
	}

	h.nextID++
	s := &ptySession{
		name:      name,
		color:     color,
		id:        "pty-" + strconv.Itoa(h.nextID),
		startedAt: time.Now().UTC(),
		cmd:       cmd,
		ptmx:      ptmx,
		out:       NewBuffer(ptyOutputBufferSize),
	}
	h.sessions[name] = s

	go h.readOutput(s)
	go h.monitorProcess(s)

	return Handle{Name: name, ID: s.id}, nil
}

func (h *PTYHost) Send(_ context.Context, handle Handle, text string) error {
	s, err := h.lookup(handle)
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("session is closed: %s", handle.Name)
	}
	if _, err := s.ptmx.Write([]byte(text + "\n")); err != nil {
		return fmt.Errorf("write to %q: %w", handle.Name, err)
	}
	return nil
}

// Output returns the recent output of a session.
func (h *PTYHost) Output(name string) ([]byte, error) {
	s, err := h.lookup(Handle{Name: name})
	if err != nil {
		return nil, err
	}
	return s.out.Bytes(), nil
}

// Close kills every session.
func (h *PTYHost) Close() error {
	h.mu.Lock()
	sessions := make([]*ptySession, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[string]*ptySession)
	h.mu.Unlock()

	for _, s := range sessions {
		s.kill()
	}
	return nil
}

func (h *PTYHost) lookup(handle Handle) (*ptySession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[handle.Name]
	if !ok || (handle.ID != "" && s.id != handle.ID) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, handle.Name)
	}
	return s, nil
}

func (h *PTYHost) readOutput(s *ptySession) {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			_, _ = s.out.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (h *PTYHost) monitorProcess(s *ptySession) {
	err := s.cmd.Wait()
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if !already {
		h.logger.Debug("pty session exited", zap.String("session", s.name), zap.Error(err))
	}
	_ = s.ptmx.Close()
}

func (s *ptySession) kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.ptmx.Close()
}
