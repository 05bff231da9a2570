package target

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/g960059/persterm/internal/config"
	"github.com/g960059/persterm/internal/model"
)

type RunResult struct {
	Output   string
	Duration time.Duration
}

type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Executor runs tmux commands on the local machine or over ssh. Every
// invocation is attempted exactly once.
type Executor struct {
	cfg    config.Config
	runner Runner
}

func NewExecutor(cfg config.Config) *Executor {
	return &Executor{
		cfg:    cfg,
		runner: OSRunner{},
	}
}

func NewExecutorWithRunner(cfg config.Config, runner Runner) *Executor {
	e := NewExecutor(cfg)
	e.runner = runner
	return e
}

// FromConfig picks an ssh target when PERSTERM_SSH_TARGET is set.
func FromConfig(cfg config.Config) model.Target {
	if ref := strings.TrimSpace(cfg.SSHTarget); ref != "" {
		return model.Target{Kind: model.TargetKindSSH, ConnectionRef: ref}
	}
	return model.Target{Kind: model.TargetKindLocal}
}

// Run executes command once. On failure the combined output is still
// returned so callers can inspect tmux's stderr.
func (e *Executor) Run(ctx context.Context, target model.Target, command []string) (RunResult, error) {
	if len(command) == 0 {
		return RunResult{}, fmt.Errorf("empty command")
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
	defer cancel()

	var (
		out []byte
		err error
	)
	switch target.Kind {
	case model.TargetKindLocal, "":
		out, err = e.runner.Run(runCtx, command[0], command[1:]...)
	case model.TargetKindSSH:
		args, argErr := e.buildSSHArgs(target.ConnectionRef, command)
		if argErr != nil {
			return RunResult{}, argErr
		}
		out, err = e.runner.Run(runCtx, "ssh", args...)
	default:
		return RunResult{}, fmt.Errorf("unsupported target kind: %s", target.Kind)
	}

	res := RunResult{Output: string(out), Duration: time.Since(start)}
	if err == nil {
		return res, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%s: %s timed out after %s: %w", model.ErrTargetUnreachable, command[0], e.cfg.CommandTimeout, err)
	}
	if detail := strings.TrimSpace(res.Output); detail != "" {
		return res, fmt.Errorf("%s: %w", detail, err)
	}
	return res, err
}

// Tmux runs the configured tmux binary with args against target.
func (e *Executor) Tmux(ctx context.Context, target model.Target, args ...string) (RunResult, error) {
	return e.Run(ctx, target, BuildTmuxCommand(e.cfg.TmuxBinary, args...))
}

func (e *Executor) buildSSHArgs(connectionRef string, command []string) ([]string, error) {
	if strings.TrimSpace(connectionRef) == "" {
		return nil, fmt.Errorf("ssh target connection_ref is required")
	}
	if strings.HasPrefix(strings.TrimSpace(connectionRef), "-") {
		return nil, fmt.Errorf("invalid ssh target connection_ref")
	}
	args := []string{
		"-o", "BatchMode=yes",
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(e.cfg.ConnectTimeout.Seconds())),
		"-o", "ControlMaster=auto",
		"-o", "ControlPersist=60",
		connectionRef,
	}
	// ssh joins remote argv with spaces, so each word is quoted for the
	// remote shell.
	for _, arg := range command {
		args = append(args, shellQuote(arg))
	}
	return args, nil
}

func BuildTmuxCommand(binary string, args ...string) []string {
	if binary == "" {
		binary = "tmux"
	}
	cmd := make([]string, 0, len(args)+1)
	cmd = append(cmd, binary)
	cmd = append(cmd, args...)
	return cmd
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@%+,", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
