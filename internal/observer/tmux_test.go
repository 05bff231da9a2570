package observer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g960059/persterm/internal/config"
	"github.com/g960059/persterm/internal/model"
	"github.com/g960059/persterm/internal/target"
)

type sequenceRunner struct {
	outputs []string
	err     error
	args    [][]string
}

func (r *sequenceRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	r.args = append(r.args, args)
	if len(r.outputs) == 0 {
		return []byte{}, r.err
	}
	out := r.outputs[0]
	if len(r.outputs) > 1 {
		r.outputs = r.outputs[1:]
	}
	return []byte(out), r.err
}

func TestSessionsParsesListSessions(t *testing.T) {
	runner := &sequenceRunner{outputs: []string{
		"dev server\x1f$1\x1f1700000000\x1f1\nDB\x1f$2\x1f1700000100\x1f0\n",
	}}
	obs := NewTmuxObserver(target.NewExecutorWithRunner(config.DefaultConfig(), runner), model.Target{Kind: model.TargetKindLocal})

	sessions, err := obs.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "dev server", sessions[0].Name)
	assert.Equal(t, "$1", sessions[0].ID)
	assert.True(t, sessions[0].Attached)
	require.NotNil(t, sessions[0].CreatedAt)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *sessions[0].CreatedAt)

	assert.Equal(t, "DB", sessions[1].Name)
	assert.False(t, sessions[1].Attached)

	require.Len(t, runner.args, 1)
	assert.Equal(t, []string{"list-sessions", "-F", listSessionsFormat}, runner.args[0])
}

func TestSessionsWithoutServerIsEmpty(t *testing.T) {
	runner := &sequenceRunner{
		outputs: []string{"no server running on /tmp/tmux-1000/default\n"},
		err:     errors.New("exit status 1"),
	}
	obs := NewTmuxObserver(target.NewExecutorWithRunner(config.DefaultConfig(), runner), model.Target{})

	sessions, err := obs.Sessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionsPropagatesOtherFailures(t *testing.T) {
	runner := &sequenceRunner{
		outputs: []string{"tmux: command not found\n"},
		err:     errors.New("exit status 127"),
	}
	obs := NewTmuxObserver(target.NewExecutorWithRunner(config.DefaultConfig(), runner), model.Target{})

	_, err := obs.Sessions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list tmux sessions")
}

func TestParseListSessionsOutput(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    []string
		wantErr bool
	}{
		{"empty", "", []string{}, false},
		{"blank lines", "\n\n", []string{}, false},
		{"tab fallback", "api\t$4\t1700000000\t0\n", []string{"api"}, false},
		{"name with underscore", "my_shell\x1f$5\x1f0\x1f0\n", []string{"my_shell"}, false},
		{"too few fields", "api\x1f$4\n", nil, true},
		{"bad session id", "api\x1f%4\x1f0\x1f0\n", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, err := parseListSessionsOutput(tt.output)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			names := make([]string, 0, len(sessions))
			for _, s := range sessions {
				names = append(names, s.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestParseListSessionsZeroCreatedIsNil(t *testing.T) {
	sessions, err := parseListSessionsOutput("x\x1f$1\x1f0\x1f0\n")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Nil(t, sessions[0].CreatedAt)
}
