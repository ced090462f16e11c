package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/hotdash/opsgate/pkg/approval"
	"github.com/hotdash/opsgate/pkg/archive"
	"github.com/hotdash/opsgate/pkg/config"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/executor"
	"github.com/hotdash/opsgate/pkg/store"
)

// runApprovalsCmd implements `opsgate approvals <sub>` against the
// configured store.
func runApprovalsCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: opsgate approvals <list|show|approve|reject|apply|metrics> [flags]")
		return 2
	}
	sub, rest := args[0], args[1:]

	cmd := flag.NewFlagSet("approvals "+sub, flag.ContinueOnError)
	cmd.SetOutput(stderr)
	state := cmd.String("state", "", "Filter by state (list)")
	kind := cmd.String("kind", "", "Filter by kind (list)")
	actor := cmd.String("actor", "", "Who is acting (approve, reject, apply)")
	reason := cmd.String("reason", "", "Rejection reason (reject)")
	dryRun := cmd.Bool("dry-run", false, "Record what would run without calling the executor (apply)")
	jsonOut := cmd.Bool("json", false, "Output as JSON")

	var id string
	if sub != "list" && sub != "metrics" {
		if len(rest) == 0 || rest[0] == "" || rest[0][0] == '-' {
			_, _ = fmt.Fprintf(stderr, "Usage: opsgate approvals %s <id> [flags]\n", sub)
			return 2
		}
		id, rest = rest[0], rest[1:]
	}
	if err := cmd.Parse(rest); err != nil {
		return 2
	}

	a, err := newApp(stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close()
	ctx := context.Background()
	if err := a.open(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	m := a.machine

	var req *contracts.ApprovalRequest
	switch sub {
	case "list":
		f := store.Filter{State: contracts.ApprovalState(*state), Kind: *kind}
		if f.State != "" && !f.State.Valid() {
			_, _ = fmt.Fprintf(stderr, "Error: unknown state %q\n", *state)
			return 2
		}
		reqs, err := m.List(ctx, f)
		if err != nil {
			return fail(stderr, err)
		}
		if *jsonOut {
			_ = writeJSON(stdout, reqs)
			return 0
		}
		printApprovals(stdout, reqs)
		return 0
	case "metrics":
		met, err := m.Metrics(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		if *jsonOut {
			_ = writeJSON(stdout, met)
			return 0
		}
		c := met.Counts
		t := newTable(stdout, "DRAFT", "PENDING", "APPROVED", "REJECTED", "APPLIED", "APPROVAL RATE", "EDIT RATE")
		t.AppendRow([]any{c.Draft, c.Pending, c.Approved, c.Rejected, c.Applied,
			fmt.Sprintf("%.1f%%", c.ApprovalRate*100), fmt.Sprintf("%.1f%%", met.Quality.EditRate)})
		t.Render()
		return 0
	case "show":
		req, err = m.Get(ctx, id)
	case "approve":
		req, err = m.Approve(ctx, id, *actor, nil)
	case "reject":
		req, err = m.Reject(ctx, id, *actor, *reason)
	case "apply":
		exec := a.executor()
		if *dryRun {
			exec = executor.NewDryRun()
		}
		req, err = m.Apply(ctx, id, *actor, exec)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown approvals subcommand: %s\n", sub)
		return 2
	}
	if err != nil {
		var verr *approval.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				_, _ = fmt.Fprintf(stderr, "  - %s\n", f)
			}
		}
		return fail(stderr, err)
	}
	if *jsonOut {
		_ = writeJSON(stdout, req)
		return 0
	}
	printApproval(stdout, req)
	return 0
}

func fail(stderr io.Writer, err error) int {
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func printApprovals(w io.Writer, reqs []*contracts.ApprovalRequest) {
	t := newTable(w, "ID", "KIND", "STATE", "SUMMARY", "UPDATED")
	for _, r := range reqs {
		t.AppendRow([]any{r.ID, r.Kind, r.State, truncate(r.Summary, 50), r.UpdatedAt.Format(time.RFC3339)})
	}
	t.AppendFooter([]any{"", "", "", fmt.Sprintf("%d requests", len(reqs)), ""})
	t.Render()
}

func printApproval(w io.Writer, r *contracts.ApprovalRequest) {
	_, _ = fmt.Fprintf(w, "%s  %s  [%s]\n%s\n", r.ID, r.Kind, r.State, r.Summary)
	if r.Evidence != nil {
		_, _ = fmt.Fprintf(w, "evidence: %s\n", r.Evidence.Summary)
	}
	if r.Rollback != nil {
		_, _ = fmt.Fprintf(w, "rollback: %s (%d steps)\n", r.Rollback.Description, len(r.Rollback.Steps))
	}
	for _, v := range r.ValidationErrors {
		_, _ = fmt.Fprintf(w, "blocked: %s\n", v)
	}
	t := newTable(w, "AT", "ACTION", "ACTOR", "NOTE")
	for _, h := range r.History {
		t.AppendRow([]any{h.At.Format(time.RFC3339), h.Action, h.Actor, truncate(h.Note, 50)})
	}
	t.Render()
}

// runExportCmd implements `opsgate export`.
func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	jsonOut := cmd.Bool("json", false, "Output the manifest as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	a, err := newApp(stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close()
	ctx := context.Background()
	if err := a.open(ctx); err != nil {
		return fail(stderr, err)
	}
	dst, err := a.archiveStore(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	manifest, err := archive.NewExporter(dst).ExportApplied(ctx, a.store)
	if err != nil {
		return fail(stderr, err)
	}
	if *jsonOut {
		_ = writeJSON(stdout, map[string]any{"manifest": manifest.Hash, "entries": manifest.Entries})
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "archived %d applied requests to %s\nmanifest %s\n",
		len(manifest.Entries), a.cfg.ArchiveBackend, manifest.Hash)
	return 0
}

// runRulesCmd implements `opsgate rules`. It validates a rule pack and
// prints what it configures.
func runRulesCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("rules", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	file := cmd.String("file", "", "Rule pack to validate (default RULES_FILE)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	path := *file
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		path = cfg.RulesFile
	}
	rules, err := config.LoadRules(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "rule pack %s OK\n", rules.Version)
	t := newTable(stdout, "PRIORITY", "RESPONSE", "RESOLUTION")
	t.SetColumnConfigs(rightAlign(2, 3))
	for _, p := range contracts.Priorities {
		if tg, ok := rules.Targets.For(p); ok {
			t.AppendRow([]any{p, fmt.Sprintf("%dm", tg.ResponseMinutes), fmt.Sprintf("%dm", tg.ResolutionMinutes)})
		}
	}
	t.Render()
	mode := "appended to defaults"
	if rules.ReplaceEscalation {
		mode = "replacing defaults"
	}
	_, _ = fmt.Fprintf(stdout, "%d escalation rules %s\n", len(rules.Escalation), mode)
	return 0
}
