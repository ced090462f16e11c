// Package executor performs the side effects of approved requests. The
// approval machine calls an Executor at most once per request; executors still
// tolerate redelivery by remembering which requests they already ran.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hotdash/opsgate/pkg/contracts"
)

// Executor runs the action steps of an approved request and reports the
// outcome as a receipt. A returned error means the outcome is unknown.
type Executor interface {
	Execute(ctx context.Context, req *contracts.ApprovalRequest) (*contracts.Receipt, error)
}

// ToolDriver performs a single tool call, e.g. an ads API mutation.
type ToolDriver interface {
	Call(ctx context.Context, tool string, args map[string]any) (any, error)
}

// DriverFunc adapts a function to ToolDriver.
type DriverFunc func(ctx context.Context, tool string, args map[string]any) (any, error)

func (f DriverFunc) Call(ctx context.Context, tool string, args map[string]any) (any, error) {
	return f(ctx, tool, args)
}

// ErrNoSteps is returned for a request without action steps.
var ErrNoSteps = errors.New("request has no action steps")

// StepExecutor runs steps in order through a ToolDriver and stops at the
// first failing step. Completed receipts are cached by request id so a
// redelivered request is not executed twice.
type StepExecutor struct {
	id     string
	driver ToolDriver
	clock  func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	done map[string]*contracts.Receipt
}

// NewStepExecutor returns an executor identified as id.
func NewStepExecutor(id string, driver ToolDriver) *StepExecutor {
	return &StepExecutor{
		id:     id,
		driver: driver,
		clock:  time.Now,
		logger: slog.Default().With("component", "executor"),
		done:   make(map[string]*contracts.Receipt),
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *StepExecutor) WithClock(clock func() time.Time) *StepExecutor {
	e.clock = clock
	return e
}

func (e *StepExecutor) Execute(ctx context.Context, req *contracts.ApprovalRequest) (*contracts.Receipt, error) {
	if len(req.Actions) == 0 {
		return nil, ErrNoSteps
	}
	e.mu.Lock()
	if prev, ok := e.done[req.ID]; ok {
		e.mu.Unlock()
		e.logger.InfoContext(ctx, "request already executed", "request_id", req.ID, "receipt_id", prev.ReceiptID)
		cp := *prev
		return &cp, nil
	}
	e.mu.Unlock()

	receipt := &contracts.Receipt{
		ReceiptID:  uuid.NewString(),
		RequestID:  req.ID,
		ExecutorID: e.id,
		Steps:      req.Actions,
		Metadata:   map[string]any{},
	}
	for i, step := range req.Actions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := e.driver.Call(ctx, step.Tool, step.Args)
		if err != nil {
			e.logger.WarnContext(ctx, "step failed", "request_id", req.ID, "step", i, "tool", step.Tool, "error", err)
			receipt.Status = contracts.ReceiptFailed
			receipt.Error = fmt.Sprintf("step %d (%s): %v", i, step.Tool, err)
			receipt.Timestamp = e.clock()
			return receipt, nil
		}
		if out != nil {
			receipt.Metadata[fmt.Sprintf("step_%d", i)] = out
		}
	}
	receipt.Status = contracts.ReceiptSucceeded
	receipt.Timestamp = e.clock()

	e.mu.Lock()
	cp := *receipt
	e.done[req.ID] = &cp
	e.mu.Unlock()
	return receipt, nil
}

// DryRun records what would run without calling anything. Its receipts never
// confirm a side effect, so requests stay approved.
type DryRun struct {
	clock func() time.Time

	mu   sync.Mutex
	runs []*contracts.ApprovalRequest
}

// NewDryRun returns a dry-run executor.
func NewDryRun() *DryRun {
	return &DryRun{clock: time.Now}
}

func (d *DryRun) Execute(ctx context.Context, req *contracts.ApprovalRequest) (*contracts.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.runs = append(d.runs, req)
	d.mu.Unlock()
	return &contracts.Receipt{
		ReceiptID:  uuid.NewString(),
		RequestID:  req.ID,
		Status:     contracts.ReceiptDryRun,
		ExecutorID: "dry-run",
		Steps:      req.Actions,
		Timestamp:  d.clock(),
	}, nil
}

// Runs returns the number of requests seen.
func (d *DryRun) Runs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.runs)
}
