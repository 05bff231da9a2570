package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/g960059/persterm/internal/app"
	"github.com/g960059/persterm/internal/db"
	"github.com/g960059/persterm/internal/model"
)

func (r *Runner) upCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "up",
		Aliases: []string{"create"},
		Short:   "Create missing terminals and run their commands",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := r.newEnv(ctx, flags, true)
			if err != nil {
				return err
			}
			defer e.close()

			err = e.app.Activate(ctx)
			if err == nil && e.cfg.WorkspaceRoot == "" {
				_, err = e.app.CreateTerminals(ctx)
			}
			if err == nil {
				r.printResult(e.app.LastResult())
			}
			if derr := e.app.Deactivate(ctx); derr != nil && err == nil {
				err = derr
			}
			return reported(err)
		},
	}
}

func (r *Runner) watchCmd(flags *globalFlags) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Create terminals, then reconcile again whenever the settings file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := r.newEnv(ctx, flags, true)
			if err != nil {
				return err
			}
			defer e.close()

			path := e.cfg.ResolvedSettingsPath()
			if path == "" {
				return usageError{errors.New("watch requires a workspace or --settings")}
			}
			w, err := newSettingsWatcher(path, debounce, e.logger)
			if err != nil {
				return err
			}
			defer w.Close()

			if err := e.app.Activate(ctx); err == nil {
				r.printResult(e.app.LastResult())
			}
			w.Run(ctx, func() {
				if res, err := e.app.CreateTerminals(ctx); err == nil {
					r.printResult(res)
				}
			})
			return e.app.Deactivate(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "quiet period before a change is applied")
	return cmd
}

func (r *Runner) checkCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [command...]",
		Short: "Validate the settings, or test commands against the denylist",
		Long: `Without arguments check validates the settings file and lists every problem.
With arguments each one is tested against the denylist and the matching rule is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := r.newEnv(cmd.Context(), flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			if len(args) > 0 {
				restricted := false
				for _, command := range args {
					rule, ok := e.app.Explain(command)
					if !ok {
						_, _ = fmt.Fprintf(r.out, "allowed\t%s\n", command)
						continue
					}
					restricted = true
					_, _ = fmt.Fprintf(r.out, "restricted\t%s\t%s %s\n", command, rule.Kind(), rule)
				}
				if restricted {
					return exitError{code: exitFailure}
				}
				return nil
			}

			problems, err := e.app.Check()
			if err != nil {
				return err
			}
			if len(problems) == 0 {
				_, _ = fmt.Fprintf(r.out, "configuration ok: %s\n", displayPath(e.cfg.ResolvedSettingsPath()))
				return nil
			}
			for _, p := range problems {
				_, _ = fmt.Fprintln(r.out, p)
			}
			return exitError{code: exitFailure}
		},
	}
}

func (r *Runner) sessionsCmd(flags *globalFlags) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions on the terminal host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := r.newEnv(cmd.Context(), flags, false)
			if err != nil {
				return err
			}
			defer e.close()

			sessions, err := e.app.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return r.writeJSON(sessions)
			}
			for _, s := range sessions {
				created := "-"
				if s.CreatedAt != nil {
					created = s.CreatedAt.UTC().Format(time.RFC3339)
				}
				_, _ = fmt.Fprintf(r.out, "%s\t%s\t%s\t%s\n", s.Name, s.ID, created, strconv.FormatBool(s.Attached))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func (r *Runner) historyCmd(flags *globalFlags) *cobra.Command {
	var (
		limit     int
		terminal  string
		kind      string
		passes    bool
		jsonOut   bool
		olderThan time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the audit journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := r.newEnv(ctx, flags, true)
			if err != nil {
				return err
			}
			defer e.close()
			if e.journal == nil {
				return errors.New("audit journal unavailable")
			}

			if olderThan > 0 {
				n, err := e.journal.PurgeBefore(ctx, time.Now().UTC().Add(-olderThan))
				if err != nil {
					return err
				}
				eventRows, err := e.journal.CountRows(ctx, "audit_events")
				if err != nil {
					return err
				}
				passRows, err := e.journal.CountRows(ctx, "passes")
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(r.out, "purged %d rows (%d events, %d passes remain)\n", n, eventRows, passRows)
				return nil
			}

			if passes {
				list, err := e.journal.ListPasses(ctx, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return r.writeJSON(list)
				}
				for _, p := range list {
					_, _ = fmt.Fprintf(r.out, "%s\t%s\tcreated=%d reused=%d failed=%d sent=%d restricted=%d skipped=%d\n",
						p.FinishedAt.Format(time.RFC3339), p.Workspace,
						p.Created, p.Reused, p.Failed, p.Sent, p.Restricted, p.ExecutionSkipped)
				}
				return nil
			}

			events, err := e.journal.ListAuditEvents(ctx, db.AuditFilter{
				Terminal: terminal,
				Kind:     model.AuditKind(kind),
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return r.writeJSON(events)
			}
			for _, ev := range events {
				name := ev.Terminal
				if name == "" {
					name = "-"
				}
				_, _ = fmt.Fprintf(r.out, "%s\t%s\t%s\t%s\n", ev.At.Format(time.RFC3339), ev.Kind, name, ev.Message)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&limit, "limit", 50, "maximum number of rows")
	f.StringVar(&terminal, "terminal", "", "only events for this terminal")
	f.StringVar(&kind, "kind", "", "only events of this kind")
	f.BoolVar(&passes, "passes", false, "list reconciliation passes instead of events")
	f.BoolVar(&jsonOut, "json", false, "output JSON")
	f.DurationVar(&olderThan, "purge-older-than", 0, "delete journal rows older than this and exit")
	return cmd
}

func (r *Runner) printResult(res model.ReconcileResult) {
	for _, t := range res.Terminals {
		var sent, restricted, failed int
		for _, o := range res.Outcomes {
			if o.Terminal != t.Name {
				continue
			}
			switch o.Status {
			case model.CommandSent:
				sent++
			case model.CommandSkippedRestricted:
				restricted++
			case model.CommandSendFailed:
				failed++
			}
		}
		line := fmt.Sprintf("%s\t%s", t.Name, t.Action)
		if t.ExecutionSkipped {
			line += "\tcommands already executed"
		} else {
			line += fmt.Sprintf("\tsent=%d restricted=%d failed=%d", sent, restricted, failed)
		}
		if t.Err != nil {
			line += "\t" + t.Err.Error()
		}
		_, _ = fmt.Fprintln(r.out, line)
	}
}

func (r *Runner) writeJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reported maps errors that were already shown as notifications to a bare
// exit status.
func reported(err error) error {
	if errors.Is(err, app.ErrInvalidConfiguration) || errors.Is(err, app.ErrNoWorkspace) {
		return exitError{code: exitFailure}
	}
	return err
}

func displayPath(p string) string {
	if p == "" {
		return "(none)"
	}
	return p
}
