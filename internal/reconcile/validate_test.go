package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/g960059/persterm/internal/model"
	"github.com/g960059/persterm/internal/security"
)

func TestValidate(t *testing.T) {
	gate := security.NewGate(func() []string { return []string{"make deploy"} })

	tests := []struct {
		name  string
		specs []model.TerminalSpec
		want  []string
	}{
		{
			name:  "valid",
			specs: []model.TerminalSpec{{Name: "api", Color: "terminal.ansiRed", Commands: []string{"go run ./cmd/api"}}},
			want:  nil,
		},
		{
			name:  "empty list",
			specs: nil,
			want:  nil,
		},
		{
			name: "one error per spec is not short-circuited",
			specs: []model.TerminalSpec{
				{Name: "", Color: "red", Commands: []string{"ls"}},
				{Name: "b", Color: "", Commands: []string{"ls"}},
			},
			want: []string{
				"Terminal 1: Name is required",
				"Terminal 2: Color is required",
			},
		},
		{
			name: "all problems of one spec",
			specs: []model.TerminalSpec{
				{Name: "  ", Color: "", Commands: nil},
			},
			want: []string{
				"Terminal 1: Name is required",
				"Terminal 1: Color is required",
				"Terminal 1: Commands must be a non-empty array",
			},
		},
		{
			name: "restricted commands with positions",
			specs: []model.TerminalSpec{
				{Name: "a", Color: "red", Commands: []string{"ls"}},
				{Name: "b", Color: "red", Commands: []string{"echo ok", "sudo apt install x", "git push --force"}},
			},
			want: []string{
				`Terminal 2, Command 2: "sudo apt install x" is restricted`,
				`Terminal 2, Command 3: "git push --force" is restricted`,
			},
		},
		{
			name: "user prefix",
			specs: []model.TerminalSpec{
				{Name: "a", Color: "red", Commands: []string{"  make deploy prod"}},
			},
			want: []string{`Terminal 1, Command 1: "  make deploy prod" is restricted`},
		},
		{
			name: "empty commands skip restriction checks",
			specs: []model.TerminalSpec{
				{Name: "a", Color: "red", Commands: []string{}},
				{Name: "b", Color: "red", Commands: []string{"eval (x)"}},
			},
			want: []string{
				"Terminal 1: Commands must be a non-empty array",
				`Terminal 2, Command 1: "eval (x)" is restricted`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.specs, gate))
		})
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	specs := []model.TerminalSpec{{Name: "a", Color: "", Commands: []string{" sudo ls "}}}
	before := []model.TerminalSpec{{Name: "a", Color: "", Commands: []string{" sudo ls "}}}

	_ = Validate(specs, security.NewGate(nil))
	assert.Equal(t, before, specs)
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Problems: []string{"Terminal 1: Name is required", "Terminal 2: Color is required"}}
	assert.Equal(t, "invalid terminal configuration:\nTerminal 1: Name is required\nTerminal 2: Color is required", err.Error())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
