package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdash/opsgate/pkg/contracts"
)

const workItems = `
work_items:
  - id: late
    channel: email
    status: open
    priority: P0
    content: "Still no refund. I will contact my lawyer."
    created_at: 2026-03-02T09:00:00Z
  - id: fresh
    channel: chat
    status: open
    priority: P3
    content: "What are your opening hours?"
    created_at: 2026-03-02T11:59:00Z
`

const metrics = `
metrics:
  - entity_id: c1
    name: Spring Sale
    kind: campaign
    impressions: 2000
    clicks: 12
    spend: 6000
    revenue: 12000
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// isolate points every setting at temp locations.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	for k, v := range map[string]string{
		"DATABASE_URL":    "",
		"REDIS_ADDR":      "",
		"KAFKA_BROKERS":   "",
		"OTEL_ENDPOINT":   "",
		"RULES_FILE":      "",
		"EXECUTOR_URL":    "",
		"LOG_LEVEL":       "ERROR",
		"SQLITE_PATH":     filepath.Join(dir, "opsgate.db"),
		"ARCHIVE_BACKEND": "local",
		"ARCHIVE_DIR":     filepath.Join(dir, "archive"),
		"WORKITEMS_FILE":  writeFile(t, "items.yaml", workItems),
		"METRICS_FILE":    writeFile(t, "metrics.yaml", metrics),
	} {
		t.Setenv(k, v)
	}
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"opsgate"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Dispatch(t *testing.T) {
	code, out, _ := run("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "approvals")

	code, _, errOut := run("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: frobnicate")

	code, _, _ = run()
	assert.Equal(t, 2, code)

	code, out, _ = run("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "opsgate dev")
}

func TestRun_ServeIsMockable(t *testing.T) {
	prev := startServer
	t.Cleanup(func() { startServer = prev })
	var got []string
	startServer = func(args []string, _, _ io.Writer) int {
		got = args
		return 0
	}
	code, _, _ := run("serve", "-port", "9090")
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"-port", "9090"}, got)
}

func TestTriageCmd(t *testing.T) {
	isolate(t)
	code, out, errOut := run("triage", "-json")
	require.Equal(t, 0, code, errOut)

	var res struct {
		Results []struct {
			ItemID          string             `json:"item_id"`
			Priority        contracts.Priority `json:"priority"`
			EscalateToHuman bool               `json:"escalate_to_human"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Results, 2)
	assert.Equal(t, "late", res.Results[0].ItemID)
	assert.True(t, res.Results[0].EscalateToHuman)

	code, out, _ = run("triage")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "TOTAL")
}

func TestSLACmd(t *testing.T) {
	isolate(t)
	code, out, errOut := run("sla", "-now", "2026-03-02T12:00:00Z", "-json")
	assert.Equal(t, 1, code, errOut)

	var res struct {
		Report struct {
			Summary struct {
				Total    int `json:"total"`
				Breached int `json:"breached"`
			} `json:"summary"`
		} `json:"report"`
		Escalations []contracts.EscalationDecision `json:"escalations"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Report.Summary.Total)
	assert.Equal(t, 1, res.Report.Summary.Breached)
	require.Len(t, res.Escalations, 1)
	assert.Contains(t, res.Escalations[0].TriggeredRules, "legal_threat")

	code, _, _ = run("sla", "-now", "yesterday")
	assert.Equal(t, 2, code)
}

func TestScanSubmitApproveFlow(t *testing.T) {
	isolate(t)

	code, out, errOut := run("scan")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Spring Sale")

	code, out, errOut = run("scan", "-submit", "-json")
	require.Equal(t, 0, code, errOut)
	var sub struct {
		Created []string `json:"created"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sub))
	require.Len(t, sub.Created, 1)
	id := sub.Created[0]

	code, out, _ = run("scan", "-submit")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "submitted 0, already open 1")

	code, out, errOut = run("approvals", "list", "-state", "pending_review", "-json")
	require.Equal(t, 0, code, errOut)
	var reqs []contracts.ApprovalRequest
	require.NoError(t, json.Unmarshal([]byte(out), &reqs))
	require.Len(t, reqs, 1)
	assert.Equal(t, id, reqs[0].ID)

	code, _, errOut = run("approvals", "approve", id, "-actor", "justin")
	require.Equal(t, 0, code, errOut)

	code, out, errOut = run("approvals", "apply", id, "-actor", "justin", "-json")
	require.Equal(t, 0, code, errOut)
	var applied contracts.ApprovalRequest
	require.NoError(t, json.Unmarshal([]byte(out), &applied))
	assert.Equal(t, contracts.ApprovalApproved, applied.State, "no EXECUTOR_URL means a dry run")

	code, _, errOut = run("approvals", "reject", id, "-actor", "justin")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error:")

	code, out, _ = run("approvals", "metrics")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "APPROVAL RATE")

	code, out, errOut = run("export")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "archived 0 applied requests")

	code, _, _ = run("approvals", "show")
	assert.Equal(t, 2, code)
	code, _, _ = run("approvals", "show", "missing")
	assert.Equal(t, 1, code)
}

func TestRulesCmd(t *testing.T) {
	isolate(t)
	path := writeFile(t, "rules.yaml", `
version: "1.1.0"
sla_targets:
  P0:
    response_minutes: 10
    resolution_minutes: 60
`)
	code, out, errOut := run("rules", "-file", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "rule pack 1.1.0 OK")
	assert.Contains(t, out, "10m")

	bad := writeFile(t, "bad.yaml", "version: \"9.0.0\"\n")
	code, _, errOut = run("rules", "-file", bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "configuration error")
}

func TestConfigurationErrorExitsTwo(t *testing.T) {
	isolate(t)
	t.Setenv("LOG_FORMAT", "xml")
	code, _, errOut := run("triage")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "LOG_FORMAT")
}
