package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/hotdash/opsgate/pkg/automation"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/pipeline"
	"github.com/hotdash/opsgate/pkg/sources"
	"github.com/hotdash/opsgate/pkg/triage"
)

// runTriageCmd implements `opsgate triage`.
func runTriageCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("triage", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	file := cmd.String("file", "", "Work items file, YAML or JSON (default WORKITEMS_FILE)")
	jsonOut := cmd.Bool("json", false, "Output results as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	a, err := newApp(stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	path := orDefault(*file, a.cfg.WorkItemsFile)
	if path == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file or WORKITEMS_FILE is required")
		return 2
	}

	items, err := sources.FileConversations{Path: path}.Conversations(context.Background())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	c := a.classifier()
	results := make([]contracts.TriageResult, len(items))
	for i, item := range items {
		results[i] = c.Classify(item)
	}
	stats := triage.Summarize(results)

	if *jsonOut {
		type row struct {
			ItemID string `json:"item_id"`
			contracts.TriageResult
		}
		rows := make([]row, len(items))
		for i := range items {
			rows[i] = row{ItemID: items[i].ID, TriageResult: results[i]}
		}
		_ = writeJSON(stdout, map[string]any{"results": rows, "stats": stats})
		return 0
	}

	t := newTable(stdout, "ITEM", "PRIORITY", "HUMAN", "CONFIDENCE", "REASONS")
	t.SetColumnConfigs(rightAlign(4))
	for i, r := range results {
		t.AppendRow([]any{items[i].ID, r.Priority, yesNo(r.EscalateToHuman), fmt.Sprintf("%.2f", r.Confidence), truncate(joinOrDash(r.Reasons), 60)})
	}
	t.AppendFooter([]any{"TOTAL", stats.Total, stats.Escalated, fmt.Sprintf("%.2f", stats.AvgConfidence), fmt.Sprintf("%.1f%% escalated", stats.EscalationRate)})
	t.Render()
	return 0
}

// runSLACmd implements `opsgate sla`. It runs one SLA pass without sending
// notifications.
func runSLACmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sla", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	file := cmd.String("file", "", "Work items file, YAML or JSON (default WORKITEMS_FILE)")
	at := cmd.String("now", "", "Evaluate at this RFC 3339 time instead of the current time")
	jsonOut := cmd.Bool("json", false, "Output results as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	a, err := newApp(stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	path := orDefault(*file, a.cfg.WorkItemsFile)
	if path == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file or WORKITEMS_FILE is required")
		return 2
	}
	now := time.Now()
	if *at != "" {
		if now, err = time.Parse(time.RFC3339, *at); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: --now: %v\n", err)
			return 2
		}
	}

	job := pipeline.NewSLAJob(sources.FileConversations{Path: path},
		pipeline.WithClassifier(a.classifier()),
		pipeline.WithMonitor(a.monitor()),
		pipeline.WithEscalation(a.escalation()),
	).WithClock(func() time.Time { return now })
	res, err := job.Run(context.Background())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *jsonOut {
		_ = writeJSON(stdout, res)
		return exitForBreaches(res.Report.Summary.Breached)
	}

	t := newTable(stdout, "ITEM", "PRIORITY", "STATE", "RESPONSE", "LEFT", "RESOLUTION", "LEFT")
	t.SetColumnConfigs(rightAlign(4, 5, 6, 7))
	for _, st := range res.Report.Statuses {
		t.AppendRow([]any{
			st.ItemID, st.Priority, st.State,
			optMinutes(st.ResponseMinutes), fmt.Sprintf("%dm", st.ResponseRemaining),
			optMinutes(st.ResolutionMinutes), fmt.Sprintf("%dm", st.ResolutionRemaining),
		})
	}
	s := res.Report.Summary
	t.AppendFooter([]any{"TOTAL", s.Total, fmt.Sprintf("%d breached, %d at risk", s.Breached, s.AtRisk), "", "", "", ""})
	t.Render()

	for _, e := range res.Report.Skipped {
		_, _ = fmt.Fprintf(stderr, "skipped %s: %s\n", e.ItemID, e.Error)
	}
	if len(res.Escalations) > 0 {
		_, _ = fmt.Fprintln(stdout)
		et := newTable(stdout, "ITEM", "TARGET", "URGENCY", "CHANNELS", "RULES")
		for _, d := range res.Escalations {
			chans := make([]string, len(d.Channels))
			for i, c := range d.Channels {
				chans[i] = string(c)
			}
			et.AppendRow([]any{d.ItemID, d.Target, d.Urgency, joinOrDash(chans), joinOrDash(d.TriggeredRules)})
		}
		et.Render()
	}
	return exitForBreaches(s.Breached)
}

func exitForBreaches(n int) int {
	if n > 0 {
		return 1
	}
	return 0
}

// runScanCmd implements `opsgate scan`. Without --submit it only prints the
// proposed actions.
func runScanCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("scan", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	file := cmd.String("file", "", "Performance metrics file, YAML or JSON (default METRICS_FILE)")
	submit := cmd.Bool("submit", false, "Create and submit approval requests for the proposals")
	jsonOut := cmd.Bool("json", false, "Output results as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	a, err := newApp(stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	path := orDefault(*file, a.cfg.MetricsFile)
	if path == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file or METRICS_FILE is required")
		return 2
	}
	engine, err := a.automation()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	ctx := context.Background()
	src := sources.FileMetrics{Path: path}

	var scan automation.ScanResult
	var submitted *pipeline.ScanResult
	if *submit {
		defer a.Close()
		if err := a.open(ctx); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		res, err := pipeline.NewScanJob(src, engine, a.machine).Run(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		scan, submitted = res.Scan, &res
	} else {
		metrics, err := src.Metrics(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if scan, err = engine.Scan(ctx, metrics); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	if *jsonOut {
		if submitted != nil {
			_ = writeJSON(stdout, submitted)
		} else {
			_ = writeJSON(stdout, scan)
		}
		return 0
	}

	t := newTable(stdout, "ACTION", "TARGET", "SEVERITY", "REASON")
	for _, act := range scan.Actions {
		t.AppendRow([]any{act.Type, truncate(act.TargetName, 30), act.Severity, truncate(act.Reason, 70)})
	}
	t.Render()
	for _, g := range scan.Gaps {
		_, _ = fmt.Fprintf(stdout, "gap %s (%s): %s\n", g.EntityID, g.Rule, g.Reason)
	}
	for _, f := range scan.Failures {
		_, _ = fmt.Fprintf(stderr, "failed %s: %s\n", f.EntityID, f.Error)
	}
	if submitted != nil {
		_, _ = fmt.Fprintf(stdout, "submitted %d, already open %d\n", len(submitted.Created), len(submitted.Duplicates))
		for _, e := range submitted.Errors {
			_, _ = fmt.Fprintf(stderr, "submit failed: %s\n", e)
		}
		if len(submitted.Errors) > 0 {
			return 1
		}
	}
	return 0
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
