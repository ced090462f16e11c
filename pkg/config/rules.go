package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/hotdash/opsgate/pkg/automation"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/escalation"
	"github.com/hotdash/opsgate/pkg/triage"
)

// SupportedRules is the rule-pack version range this build understands.
const SupportedRules = "^1.0.0"

//go:embed rules.schema.json
var rulesSchemaJSON string

const rulesSchemaURL = "https://opsgate.schemas.local/rules.schema.json"

// ConfigurationError is a missing or out-of-range configuration value. It is
// fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// RulePack is the YAML document read by LoadRules.
type RulePack struct {
	Version    string                `yaml:"version"`
	SLATargets map[string]SLATargets `yaml:"sla_targets"`
	Automation *AutomationSpec       `yaml:"automation"`
	Escalation *EscalationSpec       `yaml:"escalation"`
}

// SLATargets is one priority's targets in minutes.
type SLATargets struct {
	ResponseMinutes   int64 `yaml:"response_minutes"`
	ResolutionMinutes int64 `yaml:"resolution_minutes"`
}

// AutomationSpec holds thresholds in the units operators write: percentages,
// ROAS multiples and major currency units. Unset fields keep their defaults.
type AutomationSpec struct {
	PauseLowCTRPercent     *float64 `yaml:"pause_low_ctr_percent"`
	PauseLowROAS           *float64 `yaml:"pause_low_roas"`
	IncreaseBudgetROAS     *float64 `yaml:"increase_budget_roas"`
	DecreaseBudgetROAS     *float64 `yaml:"decrease_budget_roas"`
	PauseKeywordCTRPercent *float64 `yaml:"pause_keyword_ctr_percent"`
	MinSpendForAction      *float64 `yaml:"min_spend_for_action"`
	MinKeywordImpressions  *int64   `yaml:"min_keyword_impressions"`
	BudgetIncreasePct      *int64   `yaml:"budget_increase_pct"`
	BudgetDecreasePct      *int64   `yaml:"budget_decrease_pct"`
}

// EscalationSpec adds CEL rules to, or replaces, the stock escalation rules.
type EscalationSpec struct {
	ReplaceDefaults bool                  `yaml:"replace_defaults"`
	Rules           []escalation.RuleSpec `yaml:"rules"`
}

// Rules is a validated rule pack ready to configure the engines.
type Rules struct {
	Version           *semver.Version
	Targets           triage.Targets
	Thresholds        automation.Thresholds
	Escalation        []escalation.Rule
	ReplaceEscalation bool
}

// DefaultRules returns the built-in configuration.
func DefaultRules() *Rules {
	return &Rules{
		Version:    semver.MustParse("1.0.0"),
		Targets:    triage.DefaultTargets(),
		Thresholds: automation.DefaultThresholds(),
	}
}

// EscalationOptions configures an escalation engine with the pack's rules.
func (r *Rules) EscalationOptions() []escalation.Option {
	if r.ReplaceEscalation {
		return []escalation.Option{escalation.WithRules(r.Escalation)}
	}
	if len(r.Escalation) == 0 {
		return nil
	}
	return []escalation.Option{escalation.AppendRules(r.Escalation...)}
}

// LoadRules reads a rule pack from path. An empty path yields DefaultRules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load rules %q: %w", path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("load rules %q: %w", path, err)
	}
	return rules, nil
}

// ParseRules validates data against the rule-pack schema and the supported
// version range, then range-checks and compiles it.
func ParseRules(data []byte) (*Rules, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var pack RulePack
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil {
		return nil, &ConfigurationError{Field: "rules", Reason: err.Error()}
	}

	v, err := semver.NewVersion(pack.Version)
	if err != nil {
		return nil, &ConfigurationError{Field: "version", Reason: err.Error()}
	}
	supported, err := semver.NewConstraint(SupportedRules)
	if err != nil {
		return nil, err
	}
	if !supported.Check(v) {
		return nil, &ConfigurationError{Field: "version", Reason: fmt.Sprintf("%s does not satisfy %s", v, SupportedRules)}
	}

	rules := DefaultRules()
	rules.Version = v

	if err := applyTargets(rules.Targets, pack.SLATargets); err != nil {
		return nil, err
	}
	if pack.Automation != nil {
		pack.Automation.apply(&rules.Thresholds)
	}
	if err := rules.Thresholds.Validate(); err != nil {
		return nil, &ConfigurationError{Field: "automation", Reason: err.Error()}
	}
	if pack.Escalation != nil {
		rules.ReplaceEscalation = pack.Escalation.ReplaceDefaults
		for i, spec := range pack.Escalation.Rules {
			rule, err := spec.Build()
			if err != nil {
				return nil, &ConfigurationError{Field: fmt.Sprintf("escalation.rules[%d]", i), Reason: err.Error()}
			}
			rules.Escalation = append(rules.Escalation, rule)
		}
		if rules.ReplaceEscalation && len(rules.Escalation) == 0 {
			return nil, &ConfigurationError{Field: "escalation.rules", Reason: "replace_defaults needs at least one rule"}
		}
	}
	return rules, nil
}

func applyTargets(targets triage.Targets, in map[string]SLATargets) error {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field := "sla_targets." + k
		p, err := contracts.ParsePriority(k)
		if err != nil {
			return &ConfigurationError{Field: field, Reason: err.Error()}
		}
		t := in[k]
		if t.ResponseMinutes <= 0 || t.ResolutionMinutes <= 0 {
			return &ConfigurationError{Field: field, Reason: "minutes must be positive"}
		}
		if t.ResponseMinutes > t.ResolutionMinutes {
			return &ConfigurationError{Field: field, Reason: "response target exceeds resolution target"}
		}
		targets[p] = contracts.SLATarget{ResponseMinutes: t.ResponseMinutes, ResolutionMinutes: t.ResolutionMinutes}
	}
	return nil
}

func (a *AutomationSpec) apply(th *automation.Thresholds) {
	if a.PauseLowCTRPercent != nil {
		th.PauseLowCTRBps = automation.PercentToBps(*a.PauseLowCTRPercent)
	}
	if a.PauseLowROAS != nil {
		th.PauseLowROASMilli = automation.MultipleToMilli(*a.PauseLowROAS)
	}
	if a.IncreaseBudgetROAS != nil {
		th.IncreaseBudgetROASMilli = automation.MultipleToMilli(*a.IncreaseBudgetROAS)
	}
	if a.DecreaseBudgetROAS != nil {
		th.DecreaseBudgetROASMilli = automation.MultipleToMilli(*a.DecreaseBudgetROAS)
	}
	if a.PauseKeywordCTRPercent != nil {
		th.PauseKeywordCTRBps = automation.PercentToBps(*a.PauseKeywordCTRPercent)
	}
	if a.MinSpendForAction != nil {
		th.MinSpendForAction = contracts.Money(math.Round(*a.MinSpendForAction * 100))
	}
	if a.MinKeywordImpressions != nil {
		th.MinKeywordImpressions = *a.MinKeywordImpressions
	}
	if a.BudgetIncreasePct != nil {
		th.BudgetIncreasePct = *a.BudgetIncreasePct
	}
	if a.BudgetDecreasePct != nil {
		th.BudgetDecreasePct = *a.BudgetDecreasePct
	}
}

var (
	rulesSchemaOnce sync.Once
	rulesSchema     *jsonschema.Schema
	rulesSchemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	rulesSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(rulesSchemaURL, strings.NewReader(rulesSchemaJSON)); err != nil {
			rulesSchemaErr = fmt.Errorf("rules schema load failed: %w", err)
			return
		}
		rulesSchema, rulesSchemaErr = c.Compile(rulesSchemaURL)
	})
	return rulesSchema, rulesSchemaErr
}

// validateSchema checks the YAML document against the embedded schema. The
// document goes through JSON first so numbers reach the validator as float64.
func validateSchema(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &ConfigurationError{Field: "rules", Reason: err.Error()}
	}
	if doc == nil {
		return &ConfigurationError{Field: "rules", Reason: "empty rule pack"}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return &ConfigurationError{Field: "rules", Reason: err.Error()}
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return &ConfigurationError{Field: "rules", Reason: err.Error()}
	}
	if err := schema.Validate(generic); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			for len(ve.Causes) > 0 {
				ve = ve.Causes[0]
			}
			field := ve.InstanceLocation
			if field == "" {
				field = "rules"
			}
			return &ConfigurationError{Field: field, Reason: ve.Message}
		}
		return &ConfigurationError{Field: "rules", Reason: err.Error()}
	}
	return nil
}
