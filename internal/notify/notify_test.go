package notify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleRoutesByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewConsole(&out, &errOut)

	c.Info("Created 2 terminal(s) successfully!")
	c.Warn("Skipping restricted command in api: sudo ls")
	c.Error("Invalid terminal configuration:\nTerminal 1: Name is required\nTerminal 2: Color is required")

	assert.Equal(t, "info: Created 2 terminal(s) successfully!\n", out.String())
	assert.Equal(t,
		"warning: Skipping restricted command in api: sudo ls\n"+
			"error: Invalid terminal configuration:\n  Terminal 1: Name is required\n  Terminal 2: Color is required\n",
		errOut.String())
}

func TestConsoleNilWriter(t *testing.T) {
	c := NewConsole(nil, nil)
	assert.NotPanics(t, func() { c.Info("x") })
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Warn("a")
	r.Info("b")
	r.Warn("c")

	assert.Equal(t, []string{"a", "c"}, r.Messages(LevelWarn))
	assert.Equal(t, []Notification{
		{Level: LevelWarn, Message: "a"},
		{Level: LevelInfo, Message: "b"},
		{Level: LevelWarn, Message: "c"},
	}, r.All())
	assert.Empty(t, r.Messages(LevelError))
}
