package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hotdash/opsgate/pkg/approval"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/escalation"
	"github.com/hotdash/opsgate/pkg/executor"
	"github.com/hotdash/opsgate/pkg/store"
	"github.com/hotdash/opsgate/pkg/triage"
)

// actorHeader names the caller when the body does not.
const actorHeader = "X-Actor"

func actorOf(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get(actorHeader)
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	f := store.Filter{
		State:       contracts.ApprovalState(q.Get("state")),
		Kind:        q.Get("kind"),
		Fingerprint: q.Get("fingerprint"),
	}
	if f.State != "" && !f.State.Valid() {
		return &badRequest{msg: "unknown state " + strconv.Quote(string(f.State))}
	}
	var err error
	if f.Limit, err = queryInt(q.Get("limit")); err != nil {
		return err
	}
	if f.Offset, err = queryInt(q.Get("offset")); err != nil {
		return err
	}
	reqs, err := s.machine.List(r.Context(), f)
	if err != nil {
		return err
	}
	if reqs == nil {
		reqs = []*contracts.ApprovalRequest{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{"approvals": reqs})
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &badRequest{msg: "limit and offset must be non-negative integers"}
	}
	return n, nil
}

type createBody struct {
	Actor   string                    `json:"actor"`
	Request contracts.ApprovalRequest `json:"request"`
	Submit  bool                      `json:"submit"`
}

func (s *Server) handleCreateApproval(w http.ResponseWriter, r *http.Request) error {
	var body createBody
	if err := decode(r, &body); err != nil {
		return err
	}
	actor := actorOf(r, body.Actor)
	req, err := s.machine.Create(r.Context(), body.Request, actor)
	if err != nil {
		return err
	}
	if body.Submit {
		if req, err = s.machine.Submit(r.Context(), req.ID, actor); err != nil {
			return err
		}
	}
	w.Header().Set("Location", "/v1/approvals/"+req.ID)
	return writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) error {
	req, err := s.machine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleApprovalMetrics(w http.ResponseWriter, r *http.Request) error {
	m, err := s.machine.Metrics(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, m)
}

type actorBody struct {
	Actor string `json:"actor"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) error {
	var body actorBody
	if r.ContentLength != 0 {
		if err := decode(r, &body); err != nil {
			return err
		}
	}
	req, err := s.machine.Submit(r.Context(), r.PathValue("id"), actorOf(r, body.Actor))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, req)
}

type approveBody struct {
	Reviewer string               `json:"reviewer"`
	Grade    *approval.GradeInput `json:"grade,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) error {
	var body approveBody
	if err := decode(r, &body); err != nil {
		return err
	}
	req, err := s.machine.Approve(r.Context(), r.PathValue("id"), actorOf(r, body.Reviewer), body.Grade)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, req)
}

type rejectBody struct {
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) error {
	var body rejectBody
	if err := decode(r, &body); err != nil {
		return err
	}
	req, err := s.machine.Reject(r.Context(), r.PathValue("id"), actorOf(r, body.Reviewer), body.Reason)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, req)
}

type applyBody struct {
	Actor  string `json:"actor"`
	DryRun bool   `json:"dry_run"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) error {
	var body applyBody
	if r.ContentLength != 0 {
		if err := decode(r, &body); err != nil {
			return err
		}
	}
	exec := s.executor
	if body.DryRun {
		exec = executor.NewDryRun()
	}
	req, err := s.machine.Apply(r.Context(), r.PathValue("id"), actorOf(r, body.Actor), exec)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, req)
}

type receiptBody struct {
	Actor   string            `json:"actor"`
	Receipt contracts.Receipt `json:"receipt"`
}

func (s *Server) handleRecordReceipt(w http.ResponseWriter, r *http.Request) error {
	var body receiptBody
	if err := decode(r, &body); err != nil {
		return err
	}
	req, err := s.machine.RecordApplied(r.Context(), r.PathValue("id"), actorOf(r, body.Actor), body.Receipt)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) error {
	var item contracts.WorkItem
	if err := decode(r, &item); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, s.classifier.Classify(item))
}

type itemsBody struct {
	Items []contracts.WorkItem `json:"items"`
	// Now overrides the evaluation time for SLA checks.
	Now *time.Time `json:"now,omitempty"`
}

func (s *Server) handleTriageBatch(w http.ResponseWriter, r *http.Request) error {
	var body itemsBody
	if err := decode(r, &body); err != nil {
		return err
	}
	results := make([]contracts.TriageResult, len(body.Items))
	for i, item := range body.Items {
		results[i] = s.classifier.Classify(item)
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"stats":   triage.Summarize(results),
	})
}

func (s *Server) evalTime(override *time.Time) time.Time {
	if override != nil {
		return override.UTC()
	}
	return s.clock().UTC()
}

func (s *Server) handleSLACheck(w http.ResponseWriter, r *http.Request) error {
	var body itemsBody
	if err := decode(r, &body); err != nil {
		return err
	}
	rep, err := s.monitor.Monitor(r.Context(), body.Items, s.evalTime(body.Now))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rep)
}

type escalateBody struct {
	Item contracts.WorkItem `json:"item"`
	Now  *time.Time         `json:"now,omitempty"`
}

// handleEscalate classifies the item, computes its SLA status and evaluates
// the escalation rules against both.
func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) error {
	var body escalateBody
	if err := decode(r, &body); err != nil {
		return err
	}
	item := body.Item
	tr := s.classifier.Classify(item)
	st, err := s.monitor.Check(item, s.evalTime(body.Now))
	if err != nil {
		return &badRequest{msg: err.Error()}
	}
	d := s.escalation.Evaluate(escalation.Context{
		ItemID:   item.ID,
		Priority: item.Priority,
		SLA:      &st,
		History:  item.CustomerHistory,
		Message:  item.Content.OrElse(""),
		Triage:   &tr,
	})
	return writeJSON(w, http.StatusOK, map[string]any{
		"triage":   tr,
		"sla":      st,
		"decision": d,
	})
}

func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) error {
	name := r.PathValue("name")
	job, ok := s.jobs[name]
	if !ok {
		WriteNotFound(w, r, "unknown job "+strconv.Quote(name))
		return nil
	}
	start := time.Now()
	if err := job.Trigger(r.Context()); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"job":         name,
		"status":      "completed",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
