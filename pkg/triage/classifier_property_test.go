//go:build property
// +build property

package triage_test

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/triage"
)

var phrases = []string{
	"where is my order", "thanks", "this is unacceptable", "terrible!!",
	"it arrived broken", "I want a refund", "quick question", "hello",
	"WORST SERVICE EVER", "my package is late",
}

func genContent() gopter.Gen {
	return gen.SliceOfN(4, gen.IntRange(0, len(phrases)-1)).Map(func(idx []int) string {
		parts := make([]string, len(idx))
		for i, n := range idx {
			parts[i] = phrases[n]
		}
		return strings.Join(parts, " ")
	})
}

// Adding unresolved history above the limit never lowers priority.
func TestPriorityMonotonicInHistory(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("history never lowers priority", prop.ForAll(
		func(content string, orderCents int64, unresolved int) bool {
			it := contracts.WorkItem{
				ID:         "p",
				Channel:    contracts.ChannelEmail,
				Content:    contracts.Some(content),
				OrderValue: contracts.Some(contracts.Money(orderCents)),
			}
			before := triage.Classify(it)
			it.CustomerHistory = &contracts.CustomerHistory{UnresolvedIssues: unresolved}
			after := triage.Classify(it)
			return !before.Priority.Outranks(after.Priority)
		},
		genContent(),
		gen.Int64Range(0, 200000),
		gen.IntRange(3, 20),
	))

	properties.TestingRun(t)
}

// Adding an anger phrase never lowers priority.
func TestPriorityMonotonicInAnger(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("anger never lowers priority", prop.ForAll(
		func(content string, orderCents int64) bool {
			it := contracts.WorkItem{
				ID:         "p",
				Channel:    contracts.ChannelEmail,
				Content:    contracts.Some(content),
				OrderValue: contracts.Some(contracts.Money(orderCents)),
			}
			before := triage.Classify(it)
			it.Content = contracts.Some(content + " this is ridiculous and unacceptable!!")
			after := triage.Classify(it)
			return !before.Priority.Outranks(after.Priority) && after.EscalateToHuman
		},
		genContent(),
		gen.Int64Range(0, 200000),
	))

	properties.TestingRun(t)
}

// Classification is a pure function of its input.
func TestClassifyDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("same input, same result", prop.ForAll(
		func(content string) bool {
			it := contracts.WorkItem{ID: "p", Channel: contracts.ChannelSMS, Content: contracts.Some(content)}
			a, b := triage.Classify(it), triage.Classify(it)
			return a.Priority == b.Priority && a.Confidence == b.Confidence &&
				a.EscalateToHuman == b.EscalateToHuman && strings.Join(a.Reasons, "|") == strings.Join(b.Reasons, "|")
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
