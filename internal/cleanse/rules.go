package cleanse

import (
	"strings"

	"github.com/keeperdata/keeperdata/internal/dataset"
	"github.com/keeperdata/keeperdata/internal/types"
)

// Rule ids (spec.md §4.7's table).
const (
	RuleCtsCphNotInSam       = "CTS_CPH_NOT_IN_SAM"
	RuleSamCphNotInCts       = "SAM_CPH_NOT_IN_CTS"
	RuleCtsSamNoEmails       = "CTS_SAM_NO_EMAIL_ADDRESSES"
	RuleSamMissingEmail      = "SAM_MISSING_EMAIL_ADDRESS"
	RuleCtsSamNoPhones       = "CTS_SAM_NO_PHONE_NUMBERS"
	RuleSamMissingPhone      = "SAM_MISSING_PHONE_NUMBERS"
	RuleSamNoCattleUnit      = "SAM_NO_CATTLE_UNIT"
	RuleSamCattleRelatedCphs = "SAM_CATTLE_RELATED_CPHS"
)

// ruleContext carries the paired CTS/SAM views a CTS-primary rule
// evaluates over — the "PumpContext" shape spec.md §9's Open Questions
// section adopts in place of positional pump parameters.
type ruleContext struct {
	Lid Lid
	Cts dataset.CtsCphHoldingView
	Sam dataset.SamCphHoldingView
}

// ruleResult is one rule's verdict: whether it fired, and if so the
// context to record against the issue.
type ruleResult struct {
	Fires   bool
	Context types.IssueContext
}

// ctsSamRule is one pure (ctx) -> ruleResult function, tagged with its
// documented priority and rule id. Registration is a static ordered
// list so §4.7's priority ordering is preserved regardless of map
// iteration order (spec.md §9's design note on rules-as-pure-functions).
type ctsSamRule struct {
	Priority int
	RuleID   string
	Eval     func(ruleContext) ruleResult
}

// ctsSamRules is the priority-ordered rule table evaluated by
// ProcessCtsPrimary once both a CTS and a SAM holding are present for
// the same LID (spec.md §4.7). CTS_CPH_NOT_IN_SAM is handled ahead of
// this table, as a precondition rather than a table entry, because it
// short-circuits the rest of the table when the SAM holding is absent.
var ctsSamRules = []ctsSamRule{
	{2, RuleCtsSamNoEmails, evalCtsSamNoEmails},
	{3, RuleSamMissingEmail, evalSamMissingEmail},
	{4, RuleCtsSamNoPhones, evalCtsSamNoPhones},
	{5, RuleSamMissingPhone, evalSamMissingPhone},
	{6, RuleSamNoCattleUnit, evalSamNoCattleUnit},
	{10, RuleSamCattleRelatedCphs, evalSamCattleRelatedCphs},
}

func evalCtsSamNoEmails(ctx ruleContext) ruleResult {
	union := normalizedUnion(ctx.Cts.Emails, ctx.Sam.Emails)
	if len(union) > 0 {
		return ruleResult{}
	}
	return ruleResult{Fires: true, Context: baseContext(ctx)}
}

func evalSamMissingEmail(ctx ruleContext) ruleResult {
	missing := normalizedDifference(ctx.Cts.Emails, ctx.Sam.Emails)
	if len(missing) == 0 {
		return ruleResult{}
	}
	c := baseContext(ctx)
	c.MissingEmails = missing
	return ruleResult{Fires: true, Context: c}
}

func evalCtsSamNoPhones(ctx ruleContext) ruleResult {
	union := normalizedUnion(ctx.Cts.Phones, ctx.Sam.Phones)
	if len(union) > 0 {
		return ruleResult{}
	}
	return ruleResult{Fires: true, Context: baseContext(ctx)}
}

func evalSamMissingPhone(ctx ruleContext) ruleResult {
	missing := normalizedDifference(ctx.Cts.Phones, ctx.Sam.Phones)
	if len(missing) == 0 {
		return ruleResult{}
	}
	c := baseContext(ctx)
	c.MissingPhones = missing
	return ruleResult{Fires: true, Context: c}
}

func evalSamNoCattleUnit(ctx ruleContext) ruleResult {
	if ctx.Sam.AnimalSpeciesCode == dataset.CattleSpeciesCode {
		return ruleResult{}
	}
	return ruleResult{Fires: true, Context: baseContext(ctx)}
}

// blankFeatureNames are the SAM FEATURE_NAME values treated as
// equivalent to "blank" for rule 10 (spec.md §4.7).
var blankFeatureNames = map[string]bool{
	"":          true,
	"unknown":   true,
	"not known": true,
	"notknown":  true,
}

func evalSamCattleRelatedCphs(ctx ruleContext) ruleResult {
	if ctx.Sam.AnimalSpeciesCode != dataset.CattleSpeciesCode {
		return ruleResult{}
	}
	feature := strings.ToLower(strings.TrimSpace(ctx.Sam.FeatureName))
	mismatch := blankFeatureNames[feature] || !strings.EqualFold(ctx.Sam.FeatureName, ctx.Cts.AdrName)
	if !mismatch {
		return ruleResult{}
	}
	return ruleResult{Fires: true, Context: baseContext(ctx)}
}

func baseContext(ctx ruleContext) types.IssueContext {
	return types.IssueContext{
		Cph:         ctx.Lid.Cph,
		Lid:         ctx.Lid.Value,
		EmailsCts:   ctx.Cts.Emails,
		EmailsSam:   ctx.Sam.Emails,
		PhonesCts:   ctx.Cts.Phones,
		PhonesSam:   ctx.Sam.Phones,
		LocationCts: ctx.Cts.AdrName,
		LocationSam: ctx.Sam.FeatureName,
	}
}

// normalizedUnion / normalizedDifference compare two string sets
// case-insensitively and deduplicate on trimmed-lowercase form, but
// report the original-case values (spec.md §4.7: "Set comparisons are
// case-insensitive and deduplicate on normalized form ... but report
// original-case values").
func normalizedUnion(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range append(append([]string{}, a...), b...) {
		n := normalize(v)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, v)
	}
	return out
}

// normalizedDifference returns the values of a not present (by
// normalized form) in b, in a's original order and original case.
func normalizedDifference(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, v := range b {
		inB[normalize(v)] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, v := range a {
		n := normalize(v)
		if n == "" || inB[n] || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, v)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
