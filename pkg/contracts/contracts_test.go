package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalJSON(t *testing.T) {
	type wrapper struct {
		At    Optional[time.Time] `json:"at"`
		Value Optional[Money]     `json:"value"`
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data, err := json.Marshal(wrapper{At: Some(at)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"2026-03-01T12:00:00Z","value":null}`, string(data))

	var back wrapper
	require.NoError(t, json.Unmarshal(data, &back))
	got, ok := back.At.Get()
	assert.True(t, ok)
	assert.True(t, got.Equal(at))
	assert.False(t, back.Value.Valid())
}

func TestOptionalZeroIsNotAbsent(t *testing.T) {
	zero := Some(Money(0))
	assert.True(t, zero.Valid())
	assert.Equal(t, Money(0), zero.OrElse(99))
	assert.Equal(t, Money(99), None[Money]().OrElse(99))
}

func TestMoneyString(t *testing.T) {
	cases := map[Money]string{
		0:         "$0.00",
		5:         "$0.05",
		6000:      "$60.00",
		123456789: "$1,234,567.89",
		-2550:     "-$25.50",
	}
	for m, want := range cases {
		assert.Equal(t, want, m.String())
	}
}

func TestMoneyPercentOf(t *testing.T) {
	assert.Equal(t, Money(2000), Money(10000).PercentOf(20))
	assert.Equal(t, Money(3000), Money(10000).PercentOf(30))
	// 333 * 20 / 100 = 66.6 rounds to 67
	assert.Equal(t, Money(67), Money(333).PercentOf(20))
}

func TestPriorityOrdering(t *testing.T) {
	assert.True(t, P0Critical.Outranks(P1High))
	assert.False(t, P2Normal.Outranks(P2Normal))
	assert.Equal(t, P1High, P2Normal.Raise(P1High))
	assert.Equal(t, P0Critical, P0Critical.Raise(P1High))
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("p1")
	require.NoError(t, err)
	assert.Equal(t, P1High, p)

	p, err = ParsePriority("P3_LOW")
	require.NoError(t, err)
	assert.Equal(t, P3Low, p)

	_, err = ParsePriority("P9")
	assert.Error(t, err)
}

func TestPriorityTextRoundTrip(t *testing.T) {
	data, err := json.Marshal(map[string]Priority{"p": P0Critical})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":"P0_CRITICAL"}`, string(data))

	_, err = Priority(7).MarshalText()
	assert.Error(t, err)
}

func TestApprovalStateTerminal(t *testing.T) {
	assert.True(t, ApprovalApplied.Terminal())
	assert.True(t, ApprovalRejected.Terminal())
	assert.False(t, ApprovalApproved.Terminal())
	assert.False(t, ApprovalState("bogus").Valid())
}

func TestProposedActionFingerprint(t *testing.T) {
	a := ProposedAction{Type: ActionPauseCampaign, TargetID: "c-1"}
	assert.Equal(t, "pause_campaign:c-1", a.Fingerprint())
}
