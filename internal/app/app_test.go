package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g960059/persterm/internal/config"
	"github.com/g960059/persterm/internal/db"
	"github.com/g960059/persterm/internal/metrics"
	"github.com/g960059/persterm/internal/model"
	"github.com/g960059/persterm/internal/notify"
	"github.com/g960059/persterm/internal/terminal"
	dbtest "github.com/g960059/persterm/internal/testutil"
)

type mutableSettings struct {
	mu sync.Mutex
	s  config.Settings
	// err is returned by every call while set.
	err error
}

func (m *mutableSettings) Settings() (config.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, m.err
}

func (m *mutableSettings) set(s config.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
}

type harness struct {
	app      *App
	host     *terminal.MemoryHost
	notes    *notify.Recorder
	settings *mutableSettings
	metrics  *metrics.Metrics
	cfg      config.Config
}

func newHarness(t *testing.T, s config.Settings, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.WorkspaceRoot = t.TempDir()
	cfg.Host = config.HostMemory
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		host:     terminal.NewMemoryHost(),
		notes:    &notify.Recorder{},
		settings: &mutableSettings{s: s},
		metrics:  metrics.New(),
		cfg:      cfg,
	}
	h.app = New(Deps{
		Config:   cfg,
		Settings: h.settings,
		Host:     h.host,
		Notifier: h.notes,
		Metrics:  h.metrics,
	})
	return h
}

func (h *harness) logLines(t *testing.T) []string {
	t.Helper()
	raw, err := os.ReadFile(h.cfg.LogPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var out []string
	for _, line := range strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n") {
		if i := strings.Index(line, "] "); i >= 0 {
			line = line[i+2:]
		}
		out = append(out, line)
	}
	return out
}

func terminals(specs ...model.TerminalSpec) config.Settings {
	return config.Settings{Terminals: specs, EnableLogging: true}
}

func TestActivateCreatesTerminalsAndLogs(t *testing.T) {
	h := newHarness(t, terminals(
		model.TerminalSpec{Name: "server", Color: "terminal.ansiGreen", Commands: []string{"npm install", "npm run dev"}},
	), nil)
	ctx := context.Background()

	require.NoError(t, h.app.Activate(ctx))
	require.NoError(t, h.app.Deactivate(ctx))

	assert.Equal(t, []string{"npm install", "npm run dev"}, h.host.Sent("server"))
	assert.Equal(t, []string{"Created 1 terminal(s) successfully!"}, h.notes.Messages(notify.LevelInfo))
	assert.Equal(t, []string{
		"Extension activated",
		"Created terminal: server",
		"Executed command in server: npm install",
		"Executed command in server: npm run dev",
		"Terminals created: 1, skipped: 0",
		"Extension deactivated",
	}, h.logLines(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PassesTotal))
}

func TestActivateWithoutWorkspaceDoesNothing(t *testing.T) {
	h := newHarness(t, terminals(model.TerminalSpec{Name: "a", Color: "red", Commands: []string{"ls"}}),
		func(c *config.Config) { c.WorkspaceRoot = "" })

	require.NoError(t, h.app.Activate(context.Background()))
	assert.Empty(t, h.host.Calls())
	assert.Empty(t, h.notes.All())
}

func TestCreateTerminalsWithoutWorkspaceWarns(t *testing.T) {
	h := newHarness(t, config.Settings{}, func(c *config.Config) { c.WorkspaceRoot = "" })

	_, err := h.app.CreateTerminals(context.Background())
	assert.ErrorIs(t, err, ErrNoWorkspace)
	assert.Equal(t, []string{"Persistent Terminals requires an open workspace folder"}, h.notes.Messages(notify.LevelWarn))
}

func TestCreateTerminalsWithNoTerminalsReturnsEarly(t *testing.T) {
	h := newHarness(t, config.Settings{EnableLogging: true}, nil)

	res, err := h.app.CreateTerminals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ReconcileResult{}, res)
	assert.Empty(t, h.host.Calls())
	require.NoError(t, h.app.Deactivate(context.Background()))
	assert.Equal(t, []string{"Extension deactivated"}, h.logLines(t))
}

func TestInvalidConfigurationBlocksWholePass(t *testing.T) {
	h := newHarness(t, terminals(
		model.TerminalSpec{Name: "ok", Color: "red", Commands: []string{"ls"}},
		model.TerminalSpec{Name: "", Color: "red", Commands: []string{"ls"}},
		model.TerminalSpec{Name: "ops", Color: "red", Commands: []string{"sudo reboot"}},
	), nil)
	ctx := context.Background()

	_, err := h.app.CreateTerminals(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Empty(t, h.host.Calls(), "no session is touched")
	assert.False(t, h.app.Executed("ok"))

	assert.Equal(t, []string{
		"Invalid terminal configuration:\nTerminal 2: Name is required\nTerminal 3, Command 1: \"sudo reboot\" is restricted",
	}, h.notes.Messages(notify.LevelError))

	require.NoError(t, h.app.Deactivate(ctx))
	assert.Equal(t, []string{
		`Configuration errors: Terminal 2: Name is required, Terminal 3, Command 1: "sudo reboot" is restricted`,
		"Extension deactivated",
	}, h.logLines(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ConfigErrors))
}

func TestRepeatedPassesDoNotResendCommands(t *testing.T) {
	h := newHarness(t, terminals(
		model.TerminalSpec{Name: "a", Color: "red", Commands: []string{"echo a"}},
	), nil)
	ctx := context.Background()

	first, err := h.app.CreateTerminals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := h.app.CreateTerminals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Reused)
	assert.Equal(t, 0, second.Count(model.CommandSent))
	assert.Equal(t, []string{"echo a"}, h.host.Sent("a"))
}

func TestUserRestrictedCommandsAreReadEachPass(t *testing.T) {
	h := newHarness(t, terminals(
		model.TerminalSpec{Name: "a", Color: "red", Commands: []string{"terraform plan"}},
	), nil)
	ctx := context.Background()

	_, err := h.app.CreateTerminals(ctx)
	require.NoError(t, err)

	s := terminals(model.TerminalSpec{Name: "b", Color: "red", Commands: []string{"terraform plan"}})
	s.UserRestrictedCommands = []string{"terraform"}
	h.settings.set(s)

	_, err = h.app.CreateTerminals(ctx)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Empty(t, h.host.Sent("b"))

	rule, ok := h.app.Explain("  terraform destroy")
	require.True(t, ok)
	assert.Equal(t, "terraform", rule.String())
}

func TestLoggingDisabledWritesNoFile(t *testing.T) {
	s := terminals(model.TerminalSpec{Name: "a", Color: "red", Commands: []string{"ls"}})
	s.EnableLogging = false
	h := newHarness(t, s, nil)
	ctx := context.Background()

	require.NoError(t, h.app.Activate(ctx))
	require.NoError(t, h.app.Deactivate(ctx))

	_, err := os.Stat(h.cfg.LogPath())
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, []string{"ls"}, h.host.Sent("a"))
}

func TestSettingsFailureIsReported(t *testing.T) {
	h := newHarness(t, config.Settings{}, nil)
	h.settings.err = errors.New("yaml: line 3: did not find expected key")

	_, err := h.app.CreateTerminals(context.Background())
	require.Error(t, err)
	require.Len(t, h.notes.Messages(notify.LevelError), 1)
	assert.Contains(t, h.notes.Messages(notify.LevelError)[0], "did not find expected key")

	_, err = h.app.Check()
	assert.Error(t, err)
}

func TestCheckReportsProblems(t *testing.T) {
	h := newHarness(t, terminals(model.TerminalSpec{Name: "a", Color: "", Commands: []string{"ls"}}), nil)

	problems, err := h.app.Check()
	require.NoError(t, err)
	assert.Equal(t, []string{"Terminal 1: Color is required"}, problems)
	assert.Empty(t, h.host.Calls())
}

func TestJournalRecordsEventsAndPasses(t *testing.T) {
	store, ctx := dbtest.NewStore(t)
	cfg := config.DefaultConfig()
	cfg.WorkspaceRoot = t.TempDir()
	host := terminal.NewMemoryHost("db")
	a := New(Deps{
		Config: cfg,
		Settings: config.StaticSettings(terminals(
			model.TerminalSpec{Name: "db", Color: "red", Commands: []string{"psql"}},
			model.TerminalSpec{Name: "api", Color: "red", Commands: []string{"make run"}},
		)),
		Host:    host,
		Journal: store,
	})

	require.NoError(t, a.Activate(ctx))
	require.NoError(t, a.Deactivate(ctx))

	events, err := store.ListAuditEvents(ctx, db.AuditFilter{Limit: 100})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "Extension activated", events[0].Message)
	assert.Equal(t, "Extension deactivated", events[len(events)-1].Message)

	pass, err := store.LatestPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pass.Created)
	assert.Equal(t, 1, pass.Reused)
	assert.Equal(t, 2, pass.Sent)
	assert.Equal(t, cfg.WorkspaceRoot, pass.Workspace)
}

func TestMetricsTextfileWritten(t *testing.T) {
	h := newHarness(t, terminals(model.TerminalSpec{Name: "a", Color: "red", Commands: []string{"ls"}}),
		func(c *config.Config) { c.MetricsFile = filepath.Join(c.WorkspaceRoot, "persterm.prom") })

	_, err := h.app.CreateTerminals(context.Background())
	require.NoError(t, err)

	raw, err := os.ReadFile(h.cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `persterm_sessions_total{action="created"} 1`)
}

func TestLastResultTracksActivatePass(t *testing.T) {
	h := newHarness(t, terminals(model.TerminalSpec{Name: "a", Color: "red", Commands: []string{"ls"}}), nil)

	assert.Equal(t, 0, h.app.LastResult().Created)
	require.NoError(t, h.app.Activate(context.Background()))
	last := h.app.LastResult()
	assert.Equal(t, 1, last.Created)
	require.Len(t, last.Terminals, 1)
	assert.Equal(t, model.SessionCreated, last.Terminals[0].Action)
}
