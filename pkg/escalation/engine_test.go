package escalation_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/escalation"
)

func always(id string, u contracts.Urgency, chs ...contracts.Channel) escalation.Rule {
	return escalation.Rule{
		ID:       id,
		Name:     id,
		Target:   contracts.RoleSupportTeam,
		Urgency:  u,
		Channels: chs,
		When:     escalation.Func(func(escalation.Context) bool { return true }),
	}
}

func TestEvaluate_NoMatch(t *testing.T) {
	d := escalation.Evaluate(escalation.Context{
		ItemID:   "c1",
		Priority: contracts.P2Normal,
		Message:  "Can I change the color on my order",
	})
	assert.False(t, d.ShouldEscalate)
	assert.Empty(t, d.Channels)
	assert.NotNil(t, d.Channels)
	assert.Empty(t, d.Reason)
	assert.Empty(t, d.TriggeredRules)
}

func TestEvaluate_UnionOfChannelsAndMaxUrgency(t *testing.T) {
	e := escalation.NewEngine(escalation.WithRules([]escalation.Rule{
		always("a", contracts.UrgencyNormal, contracts.ChannelEmail),
		always("b", contracts.UrgencyUrgent, contracts.ChannelSMS),
	}))

	d := e.Evaluate(escalation.Context{ItemID: "c1"})
	assert.True(t, d.ShouldEscalate)
	assert.Equal(t, []contracts.Channel{contracts.ChannelEmail, contracts.ChannelSMS}, d.Channels)
	assert.Equal(t, contracts.UrgencyUrgent, d.Urgency)
	assert.Equal(t, "a, b", d.Reason)
	assert.Equal(t, []string{"a", "b"}, d.TriggeredRules)
}

func TestEvaluate_LegalThreat(t *testing.T) {
	d := escalation.Evaluate(escalation.Context{
		ItemID:   "c1",
		Priority: contracts.P0Critical,
		Message:  "My attorney will be in touch about the refund",
	})

	require.True(t, d.ShouldEscalate)
	assert.Equal(t, contracts.UrgencyImmediate, d.Urgency)
	assert.Equal(t, contracts.RoleManager, d.Target)
	assert.Equal(t, []string{"legal_threat", "p0_critical", "refund_request"}, d.TriggeredRules)
	assert.Equal(t, "Legal threat, Critical priority, Refund request", d.Reason)
	assert.Equal(t, []contracts.Channel{contracts.ChannelChat, contracts.ChannelEmail, contracts.ChannelSMS}, d.Channels)
}

func TestEvaluate_VIPOutranksLeadAtSameUrgency(t *testing.T) {
	d := escalation.Evaluate(escalation.Context{
		ItemID:   "c1",
		Priority: contracts.P1High,
		SLA:      &contracts.SLAStatus{State: contracts.SLABreached, ResponseRemaining: -10},
		History:  &contracts.CustomerHistory{LifetimeValue: contracts.Dollars(1500), TotalOrders: 4},
		Message:  "still waiting on a reply",
	})

	require.True(t, d.ShouldEscalate)
	assert.Equal(t, contracts.UrgencyUrgent, d.Urgency)
	assert.Equal(t, contracts.RoleSeniorSupport, d.Target)
	assert.Equal(t, []string{"sla_breach", "vip_customer"}, d.TriggeredRules)
	assert.Contains(t, d.Notes, "VIP customer (LTV $1,500.00, 4 orders)")
	assert.Contains(t, d.Notes, "SLA breached")
}

func TestEvaluate_VIPByOrderCount(t *testing.T) {
	d := escalation.Evaluate(escalation.Context{
		Priority: contracts.P3Low,
		History:  &contracts.CustomerHistory{TotalOrders: 10},
	})
	assert.Equal(t, []string{"vip_customer"}, d.TriggeredRules)
}

func TestEvaluate_MultipleIssuesAndRepeat(t *testing.T) {
	d := escalation.Evaluate(escalation.Context{
		Priority: contracts.P2Normal,
		History:  &contracts.CustomerHistory{PreviousEscalations: 2},
		Message:  "The package was late and the item was damaged",
	})
	assert.Equal(t, []string{"repeat_escalations", "multiple_issues"}, d.TriggeredRules)
	assert.Equal(t, contracts.RoleSeniorSupport, d.Target)
	assert.Equal(t, contracts.UrgencyNormal, d.Urgency)
}

func TestEvaluate_UsesTriageAngerWhenPresent(t *testing.T) {
	d := escalation.Evaluate(escalation.Context{
		Priority: contracts.P1High,
		Message:  "hello",
		Triage:   &contracts.TriageResult{AngerScore: 0.67},
	})
	assert.Equal(t, []string{"negative_sentiment"}, d.TriggeredRules)
}

func TestEvaluate_CELRule(t *testing.T) {
	rule, err := escalation.RuleSpec{
		ID:       "big_spender_breach",
		Name:     "Big spender breach",
		Target:   contracts.RoleManager,
		Urgency:  "immediate",
		Channels: []string{"slack"},
		When:     `sla.response_breached && history.lifetime_value_cents >= 500000`,
	}.Build()
	require.NoError(t, err)

	e := escalation.NewEngine(escalation.WithRules([]escalation.Rule{rule}))

	hit := e.Evaluate(escalation.Context{
		SLA:     &contracts.SLAStatus{ResponseBreached: true, State: contracts.SLABreached},
		History: &contracts.CustomerHistory{LifetimeValue: contracts.Dollars(6000)},
	})
	want := contracts.EscalationDecision{
		ShouldEscalate: true,
		Target:         contracts.RoleManager,
		Urgency:        contracts.UrgencyImmediate,
		Channels:       []contracts.Channel{contracts.ChannelSlack},
		Reason:         "Big spender breach",
		TriggeredRules: []string{"big_spender_breach"},
	}
	hit.Notes = ""
	if diff := cmp.Diff(want, hit); diff != "" {
		t.Fatalf("decision mismatch (-want +got):\n%s", diff)
	}

	miss := e.Evaluate(escalation.Context{SLA: &contracts.SLAStatus{ResponseBreached: true}})
	assert.False(t, miss.ShouldEscalate)
}

func TestEvaluate_CELCategories(t *testing.T) {
	p, err := escalation.CompileCEL(`"billing" in categories && priority_rank <= 1`)
	require.NoError(t, err)

	ok, err := p.Matches(escalation.Context{Priority: contracts.P1High, Message: "I was double charged"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Matches(escalation.Context{Priority: contracts.P2Normal, Message: "I was double charged"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompileCEL_Rejects(t *testing.T) {
	_, err := escalation.CompileCEL(`priority_rank + 1`)
	assert.Error(t, err, "non-bool output")

	_, err = escalation.CompileCEL(`unknown_var == 1`)
	assert.Error(t, err)

	_, err = escalation.RuleSpec{ID: "x", Urgency: "whenever", Channels: []string{"email"}, When: "true"}.Build()
	assert.Error(t, err)

	_, err = escalation.RuleSpec{ID: "x", Urgency: "normal", When: "true"}.Build()
	assert.Error(t, err)
}

func TestEvaluate_FailingPredicateIsSkipped(t *testing.T) {
	p, err := escalation.CompileCEL(`history.missing_field > 0`)
	require.NoError(t, err)

	e := escalation.NewEngine(escalation.WithRules([]escalation.Rule{
		{ID: "broken", Name: "broken", Urgency: contracts.UrgencyImmediate, Channels: []contracts.Channel{contracts.ChannelSMS}, When: p},
		always("ok", contracts.UrgencyNormal, contracts.ChannelEmail),
	}))
	d := e.Evaluate(escalation.Context{})
	assert.Equal(t, []string{"ok"}, d.TriggeredRules)
	assert.Equal(t, contracts.UrgencyNormal, d.Urgency)
}

func TestAppendRules(t *testing.T) {
	e := escalation.NewEngine(escalation.AppendRules(always("extra", contracts.UrgencyNormal, contracts.ChannelPhone)))
	rules := e.Rules()
	assert.Equal(t, "extra", rules[len(rules)-1].ID)
	assert.Len(t, rules, len(escalation.DefaultRules())+1)
}

func TestEvaluate_SLAAtRiskOnlyForRunningClocks(t *testing.T) {
	answered := &contracts.SLAStatus{
		State:               contracts.SLAAtRisk,
		ResponseMinutes:     contracts.Some(int64(5)),
		ResponseTarget:      60,
		ResolutionTarget:    480,
		ResolutionRemaining: 450,
	}
	d := escalation.Evaluate(escalation.Context{
		ItemID:   "c1",
		Priority: contracts.P2Normal,
		SLA:      answered,
		Message:  "thanks, waiting on the replacement",
	})
	assert.False(t, d.ShouldEscalate)

	running := &contracts.SLAStatus{
		State:               contracts.SLAAtRisk,
		ResponseTarget:      60,
		ResponseRemaining:   10,
		ResolutionTarget:    480,
		ResolutionRemaining: 430,
	}
	d = escalation.Evaluate(escalation.Context{
		ItemID:   "c2",
		Priority: contracts.P2Normal,
		SLA:      running,
		Message:  "thanks, waiting on the replacement",
	})
	require.True(t, d.ShouldEscalate)
	assert.Equal(t, []string{"sla_at_risk"}, d.TriggeredRules)
}
