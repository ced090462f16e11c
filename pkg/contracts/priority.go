package contracts

import (
	"fmt"
	"strings"
)

// Priority orders work items. Lower values outrank higher ones:
// P0Critical > P1High > P2Normal > P3Low.
type Priority int

const (
	P0Critical Priority = iota
	P1High
	P2Normal
	P3Low
)

var priorityNames = [...]string{"P0_CRITICAL", "P1_HIGH", "P2_NORMAL", "P3_LOW"}

// Priorities lists every priority from most to least urgent.
var Priorities = []Priority{P0Critical, P1High, P2Normal, P3Low}

func (p Priority) String() string {
	if p < P0Critical || p > P3Low {
		return fmt.Sprintf("Priority(%d)", int(p))
	}
	return priorityNames[p]
}

// Valid reports whether p is one of the four defined priorities.
func (p Priority) Valid() bool {
	return p >= P0Critical && p <= P3Low
}

// Outranks reports whether p is strictly more urgent than q.
func (p Priority) Outranks(q Priority) bool {
	return p < q
}

// Raise returns the more urgent of p and floor.
func (p Priority) Raise(floor Priority) Priority {
	if floor.Outranks(p) {
		return floor
	}
	return p
}

// ParsePriority accepts "P0_CRITICAL" style names and the short "P0".."P3" forms.
func ParsePriority(s string) (Priority, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range priorityNames {
		if u == name || u == name[:2] {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Channel is the medium a work item arrived on or a notification is sent over.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
	ChannelSMS   Channel = "sms"
	ChannelPhone Channel = "phone"
	ChannelSlack Channel = "slack"
)

// Urgency grades an escalation. Ordered normal < urgent < immediate.
type Urgency int

const (
	UrgencyNormal Urgency = iota
	UrgencyUrgent
	UrgencyImmediate
)

var urgencyNames = [...]string{"normal", "urgent", "immediate"}

func (u Urgency) String() string {
	if u < UrgencyNormal || u > UrgencyImmediate {
		return fmt.Sprintf("Urgency(%d)", int(u))
	}
	return urgencyNames[u]
}

// ParseUrgency parses "normal", "urgent" or "immediate".
func ParseUrgency(s string) (Urgency, error) {
	for i, name := range urgencyNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Urgency(i), nil
		}
	}
	return 0, fmt.Errorf("unknown urgency %q", s)
}

func (u Urgency) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *Urgency) UnmarshalText(b []byte) error {
	v, err := ParseUrgency(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// Severity grades a proposed action or alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for sorting; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium, SeverityWarning:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}
