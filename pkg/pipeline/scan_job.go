package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hotdash/opsgate/pkg/approval"
	"github.com/hotdash/opsgate/pkg/automation"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/notify"
	"github.com/hotdash/opsgate/pkg/sources"
	"github.com/hotdash/opsgate/pkg/store"
)

// DefaultActor is recorded as the creator of drafted requests.
const DefaultActor = "automation"

// ScanResult is the outcome of one scan run.
type ScanResult struct {
	Scan       automation.ScanResult `json:"scan"`
	Created    []string              `json:"created"`
	Duplicates []string              `json:"duplicates"`
	Errors     []string              `json:"errors,omitempty"`
}

// ScanJob scans performance metrics and submits every proposed action for
// review. An action whose fingerprint already has an open request (draft,
// pending_review or approved) is not submitted again, except that a draft this
// job created and failed to submit is submitted on the next run.
type ScanJob struct {
	source   sources.MetricSource
	engine   *automation.Engine
	machine  *approval.Machine
	notifier Notifier
	actor    string
	logger   *slog.Logger
}

// ScanOption configures a ScanJob.
type ScanOption func(*ScanJob)

// WithScanNotifier sets where proposal events go.
func WithScanNotifier(n Notifier) ScanOption {
	return func(j *ScanJob) { j.notifier = n }
}

// WithActor overrides the creator recorded on drafted requests.
func WithActor(actor string) ScanOption {
	return func(j *ScanJob) { j.actor = actor }
}

// NewScanJob returns a scan job.
func NewScanJob(src sources.MetricSource, engine *automation.Engine, machine *approval.Machine, opts ...ScanOption) *ScanJob {
	j := &ScanJob{
		source:   src,
		engine:   engine,
		machine:  machine,
		notifier: discard{},
		actor:    DefaultActor,
		logger:   slog.Default().With("component", "pipeline", "job", "scan"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run performs one scan. Actions are submitted riskiest first. A failure to
// submit one action is recorded and the rest are still submitted.
func (j *ScanJob) Run(ctx context.Context) (ScanResult, error) {
	metrics, err := j.source.Metrics(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("load metrics: %w", err)
	}
	scan, err := j.engine.Scan(ctx, metrics)
	res := ScanResult{Scan: scan, Created: []string{}, Duplicates: []string{}}
	if err != nil {
		return res, err
	}

	for _, a := range scan.Actions {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		fp := a.Fingerprint()
		open, err := j.openRequest(ctx, fp)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", fp, err))
			continue
		}
		var req *contracts.ApprovalRequest
		switch {
		case open == nil:
			req, err = j.submit(ctx, a)
		case open.State == contracts.ApprovalDraft && open.CreatedBy == j.actor:
			// An earlier run drafted this action but failed to submit it.
			req, err = j.machine.Submit(ctx, open.ID, j.actor)
		default:
			res.Duplicates = append(res.Duplicates, fp)
			continue
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", fp, err))
			j.logger.WarnContext(ctx, "failed to submit proposal", "fingerprint", fp, "error", err)
			continue
		}
		res.Created = append(res.Created, req.ID)
		j.notifier.Notify(notify.Event{Type: notify.TypeProposal, Key: req.ID, At: req.UpdatedAt, Payload: a})
	}

	j.logger.InfoContext(ctx, "scan finished",
		"metrics", len(metrics),
		"actions", len(scan.Actions),
		"gaps", len(scan.Gaps),
		"failures", len(scan.Failures),
		"created", len(res.Created),
		"duplicates", len(res.Duplicates),
	)
	return res, nil
}

// openRequest returns the non-terminal request for fingerprint, if any.
func (j *ScanJob) openRequest(ctx context.Context, fingerprint string) (*contracts.ApprovalRequest, error) {
	existing, err := j.machine.List(ctx, store.Filter{Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if !r.State.Terminal() {
			return r, nil
		}
	}
	return nil, nil
}

func (j *ScanJob) submit(ctx context.Context, a contracts.ProposedAction) (*contracts.ApprovalRequest, error) {
	req, err := j.machine.Create(ctx, automation.ToApprovalDraft(a, j.actor), j.actor)
	if err != nil {
		return nil, err
	}
	return j.machine.Submit(ctx, req.ID, j.actor)
}
