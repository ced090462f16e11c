// Package sources feeds the pipeline jobs: performance metrics for the
// automation scan and open work items for the SLA monitor.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hotdash/opsgate/pkg/contracts"
)

// MetricSource supplies the latest performance metrics.
type MetricSource interface {
	Metrics(ctx context.Context) ([]contracts.PerformanceMetric, error)
}

// ConversationSource supplies the work items to check against SLA targets.
type ConversationSource interface {
	Conversations(ctx context.Context) ([]contracts.WorkItem, error)
}

// StaticMetrics is a fixed MetricSource.
type StaticMetrics []contracts.PerformanceMetric

func (s StaticMetrics) Metrics(ctx context.Context) ([]contracts.PerformanceMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]contracts.PerformanceMetric(nil), s...), nil
}

// StaticConversations is a fixed ConversationSource.
type StaticConversations []contracts.WorkItem

func (s StaticConversations) Conversations(ctx context.Context) ([]contracts.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]contracts.WorkItem(nil), s...), nil
}

// FileMetrics reads a metric snapshot exported by the ads platform. The file
// is YAML, or JSON when it ends in .json, and holds either a bare list or a
// document with a "metrics" list. It is re-read on every call.
type FileMetrics struct {
	Path string
}

func (f FileMetrics) Metrics(ctx context.Context) ([]contracts.PerformanceMetric, error) {
	return readSnapshot[contracts.PerformanceMetric](ctx, f.Path, "metrics")
}

// FileConversations reads work items the same way, under "work_items".
type FileConversations struct {
	Path string
}

func (f FileConversations) Conversations(ctx context.Context) ([]contracts.WorkItem, error) {
	return readSnapshot[contracts.WorkItem](ctx, f.Path, "work_items")
}

func readSnapshot[T any](ctx context.Context, path, key string) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %q: %w", path, err)
	}

	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}

	var list []T
	if err := unmarshal(data, &list); err == nil {
		return nonNil(list), nil
	}
	var doc map[string][]T
	if err := unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse snapshot %q: %w", path, err)
	}
	list, ok := doc[key]
	if !ok {
		return nil, fmt.Errorf("parse snapshot %q: no %q list", path, key)
	}
	return nonNil(list), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
