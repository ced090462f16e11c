package triage

import "github.com/hotdash/opsgate/pkg/contracts"

// Targets maps each priority to its SLA targets.
type Targets map[contracts.Priority]contracts.SLATarget

// DefaultTargets returns the stock SLA table in minutes.
func DefaultTargets() Targets {
	return Targets{
		contracts.P0Critical: {ResponseMinutes: 15, ResolutionMinutes: 120},
		contracts.P1High:     {ResponseMinutes: 60, ResolutionMinutes: 480},
		contracts.P2Normal:   {ResponseMinutes: 240, ResolutionMinutes: 1440},
		contracts.P3Low:      {ResponseMinutes: 1440, ResolutionMinutes: 4320},
	}
}

// For returns the target for p, or false for an unknown priority.
func (t Targets) For(p contracts.Priority) (contracts.SLATarget, bool) {
	target, ok := t[p]
	return target, ok
}

// SLATarget looks p up in the default table.
func SLATarget(p contracts.Priority) (contracts.SLATarget, bool) {
	return DefaultTargets().For(p)
}
