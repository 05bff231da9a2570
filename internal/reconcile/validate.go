package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/g960059/persterm/internal/model"
)

// ErrInvalidConfiguration is wrapped by every *ConfigError.
var ErrInvalidConfiguration = errors.New("invalid terminal configuration")

// Gate decides whether a command may reach a session.
type Gate interface {
	IsRestricted(command string) bool
}

// ConfigError carries every validation problem found in one pass.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return ErrInvalidConfiguration.Error() + ":\n" + strings.Join(e.Problems, "\n")
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// Validate checks every spec and every command and returns all problems in
// input order. Positions in messages are 1-based. A blank name or colour
// counts as missing.
func Validate(specs []model.TerminalSpec, gate Gate) []string {
	var problems []string
	for i, spec := range specs {
		n := i + 1
		if strings.TrimSpace(spec.Name) == "" {
			problems = append(problems, fmt.Sprintf("Terminal %d: Name is required", n))
		}
		if strings.TrimSpace(spec.Color) == "" {
			problems = append(problems, fmt.Sprintf("Terminal %d: Color is required", n))
		}
		if len(spec.Commands) == 0 {
			problems = append(problems, fmt.Sprintf("Terminal %d: Commands must be a non-empty array", n))
			continue
		}
		for j, command := range spec.Commands {
			if gate.IsRestricted(command) {
				problems = append(problems, fmt.Sprintf("Terminal %d, Command %d: \"%s\" is restricted", n, j+1, command))
			}
		}
	}
	return problems
}
