//go:build property
// +build property

package sla_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/sla"
)

// Same now, same status; a later now never gives back time on either clock.
func TestSLAIdempotenceAndMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("status is stable and remaining time never grows", prop.ForAll(
		func(p int, respondedAfter int64, nowMin int64, delta int64) bool {
			it := contracts.WorkItem{ID: "p", Priority: contracts.Priority(p), CreatedAt: t0}
			if respondedAfter >= 0 {
				it.FirstResponseAt = contracts.Some(t0.Add(time.Duration(respondedAfter) * time.Minute))
			}
			now1 := t0.Add(time.Duration(nowMin) * time.Minute)
			now2 := now1.Add(time.Duration(delta) * time.Minute)

			a, err := sla.CheckSLA(it, now1)
			if err != nil {
				return false
			}
			b, _ := sla.CheckSLA(it, now1)
			if a != b {
				return false
			}
			c, _ := sla.CheckSLA(it, now2)
			return c.ResponseRemaining <= a.ResponseRemaining &&
				c.ResolutionRemaining <= a.ResolutionRemaining &&
				(!a.ResponseBreached || c.ResponseBreached)
		},
		gen.IntRange(0, 3),
		gen.Int64Range(-1, 600),
		gen.Int64Range(0, 6000),
		gen.Int64Range(1, 6000),
	))

	properties.TestingRun(t)
}
