package model

import "time"

// TerminalSpec is one desired terminal session as declared in settings.
type TerminalSpec struct {
	Name     string   `json:"name" yaml:"name" toml:"name"`
	Color    string   `json:"color" yaml:"color" toml:"color"`
	Commands []string `json:"commands" yaml:"commands" toml:"commands"`
}

// Session is a live terminal session as observed on the host.
type Session struct {
	Name      string
	ID        string
	CreatedAt *time.Time
	Attached  bool
}

type TargetKind string

const (
	TargetKindLocal TargetKind = "local"
	TargetKindSSH   TargetKind = "ssh"
)

// Target is where tmux commands are executed.
type Target struct {
	Kind          TargetKind
	ConnectionRef string
}

type SessionAction string

const (
	SessionCreated      SessionAction = "created"
	SessionReused       SessionAction = "reused"
	SessionCreateFailed SessionAction = "create_failed"
)

type CommandStatus string

const (
	CommandSent              CommandStatus = "sent"
	CommandSkippedRestricted CommandStatus = "skipped_restricted"
	CommandSendFailed        CommandStatus = "send_failed"
)

// CommandOutcome records what happened to a single configured command.
type CommandOutcome struct {
	Terminal string
	Index    int
	Command  string
	Status   CommandStatus
	Err      error
}

// TerminalOutcome records the create/reuse decision for one spec.
type TerminalOutcome struct {
	Name             string
	Action           SessionAction
	ExecutionSkipped bool
	Err              error
}

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Created   int
	Reused    int
	Failed    int
	Terminals []TerminalOutcome
	Outcomes  []CommandOutcome
}

func (r ReconcileResult) Count(status CommandStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// SkippedExecutions counts terminals whose command batch was not processed
// because it had already run in this process.
func (r ReconcileResult) SkippedExecutions() int {
	n := 0
	for _, t := range r.Terminals {
		if t.ExecutionSkipped {
			n++
		}
	}
	return n
}

// PassSummary is the journal record of one reconciliation pass.
type PassSummary struct {
	PassID           string
	Workspace        string
	StartedAt        time.Time
	FinishedAt       time.Time
	Created          int
	Reused           int
	Failed           int
	Sent             int
	Restricted       int
	ExecutionSkipped int
}

// Summarize condenses a result into a journal record.
func (r ReconcileResult) Summarize(passID, workspace string, startedAt, finishedAt time.Time) PassSummary {
	return PassSummary{
		PassID:           passID,
		Workspace:        workspace,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
		Created:          r.Created,
		Reused:           r.Reused,
		Failed:           r.Failed,
		Sent:             r.Count(CommandSent),
		Restricted:       r.Count(CommandSkippedRestricted),
		ExecutionSkipped: r.SkippedExecutions(),
	}
}

// AuditEvent is a single audit log line.
type AuditEvent struct {
	EventID   string
	At        time.Time
	Message   string
	Terminal  string
	Kind      AuditKind
	Workspace string
}

type AuditKind string

const (
	AuditLifecycle        AuditKind = "lifecycle"
	AuditConfigError      AuditKind = "config_error"
	AuditSessionCreated   AuditKind = "session_created"
	AuditSessionReused    AuditKind = "session_reused"
	AuditSessionFailed    AuditKind = "session_failed"
	AuditCommandSent      AuditKind = "command_sent"
	AuditCommandSkipped   AuditKind = "command_skipped"
	AuditCommandFailed    AuditKind = "command_failed"
	AuditExecutionSkipped AuditKind = "execution_skipped"
	AuditSummary          AuditKind = "summary"
)

// Error codes surfaced by the terminal host.
const (
	ErrTargetUnreachable = "E_TARGET_UNREACHABLE"
	ErrSessionNotFound   = "E_SESSION_NOT_FOUND"
)
