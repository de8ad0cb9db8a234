// Package advisor provides suggestions based on memory dump reports.
package advisor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/memdump-analysis/pkg/model"
)

// Rule types, also used as suggestion types.
const (
	RuleJavaHeapShare   = "java_heap_share"
	RuleLargeAshmem     = "large_ashmem"
	RuleNativeHeapShare = "native_heap_share"
	RuleTracingOverhead = "tracing_overhead"
	RuleMallocDominance = "malloc_dominance"
	RuleMissingMmaps    = "missing_mmaps"
)

const mib = 1 << 20

// Advisor generates suggestions from memory dump reports.
type Advisor struct {
	rules []Rule
}

// Rule represents a suggestion rule. Threshold is interpreted by Check;
// Template, when set, replaces the built-in message and may use the
// placeholders {dump}, {target} and {value}.
type Rule struct {
	Type        string
	Description string
	Threshold   float64
	Template    string
	Check       RuleCheckFunc
}

// RuleCheckFunc evaluates a rule against one global dump.
type RuleCheckFunc func(rule *Rule, dump *model.GlobalDumpReport) []model.Suggestion

// RuleContext provides context for rule checking.
type RuleContext struct {
	TaskUUID      string
	Data          *model.MemoryDumpData
	RequestParams *model.RequestParams
}

// NewAdvisor creates a new Advisor with default rules.
func NewAdvisor() *Advisor {
	return &Advisor{
		rules: defaultRules(),
	}
}

// NewAdvisorWithRules creates a new Advisor with custom rules.
func NewAdvisorWithRules(rules []Rule) *Advisor {
	return &Advisor{
		rules: rules,
	}
}

// Rules returns a copy of the configured rules.
func (a *Advisor) Rules() []Rule {
	out := make([]Rule, len(a.rules))
	copy(out, a.rules)
	return out
}

// WithOverrides returns an advisor whose rules take thresholds and message
// templates from stored rules of the same type. Unknown types are ignored.
func (a *Advisor) WithOverrides(stored []model.SuggestionRule) *Advisor {
	rules := a.Rules()
	for _, s := range stored {
		for i := range rules {
			if rules[i].Type != s.Type {
				continue
			}
			if s.Threshold > 0 {
				rules[i].Threshold = s.Threshold
			}
			if s.SuggestionContent != "" {
				rules[i].Template = s.SuggestionContent
			}
		}
	}
	return &Advisor{rules: rules}
}

// Advise evaluates every rule against every global dump.
func (a *Advisor) Advise(ctx *RuleContext) []model.Suggestion {
	suggestions := make([]model.Suggestion, 0)
	if ctx == nil || ctx.Data == nil {
		return suggestions
	}

	for _, dump := range ctx.Data.Dumps {
		for i := range a.rules {
			rule := &a.rules[i]
			if rule.Check == nil {
				continue
			}
			for _, s := range rule.Check(rule, dump) {
				s.TaskUUID = ctx.TaskUUID
				s.DumpID = dump.DumpID
				s.Suggestion = strings.ReplaceAll(s.Suggestion, "{dump}", dump.DumpID)
				suggestions = append(suggestions, s)
			}
		}
	}
	return suggestions
}

// defaultRules returns the default set of analysis rules.
func defaultRules() []Rule {
	return []Rule{
		{
			Type:        RuleJavaHeapShare,
			Description: "Java heap share of overall PSS, in percent",
			Threshold:   50.0,
			Check:       checkJavaHeapShare,
		},
		{
			Type:        RuleLargeAshmem,
			Description: "Ashmem PSS, in MiB",
			Threshold:   256.0,
			Check:       checkLargeAshmem,
		},
		{
			Type:        RuleNativeHeapShare,
			Description: "Native heap share of overall PSS, in percent",
			Threshold:   40.0,
			Check:       checkNativeHeapShare,
		},
		{
			Type:        RuleTracingOverhead,
			Description: "Summary values that turned negative after discounting tracing",
			Check:       checkTracingOverhead,
		},
		{
			Type:        RuleMallocDominance,
			Description: "malloc share of all allocator sizes, in percent",
			Threshold:   60.0,
			Check:       checkMallocDominance,
		},
		{
			Type:        RuleMissingMmaps,
			Description: "Dumps captured without memory maps",
			Check:       checkMissingMmaps,
		},
	}
}

func newSuggestion(rule *Rule, severity, target, value, defaultMsg string) model.Suggestion {
	msg := defaultMsg
	if rule.Template != "" {
		msg = strings.NewReplacer("{target}", target, "{value}", value).Replace(rule.Template)
	}
	return model.Suggestion{
		Type:       rule.Type,
		Severity:   severity,
		Suggestion: msg,
		Target:     target,
	}
}

func shareOf(dump *model.GlobalDumpReport, key string) (float64, bool) {
	total := dump.Summary[model.SummaryOverallPSS]
	if total <= 0 {
		return 0, false
	}
	return float64(dump.Summary[key]) * 100 / float64(total), true
}

func checkJavaHeapShare(rule *Rule, dump *model.GlobalDumpReport) []model.Suggestion {
	pct, ok := shareOf(dump, model.SummaryJavaHeap)
	if !ok || pct <= rule.Threshold {
		return nil
	}
	return []model.Suggestion{newSuggestion(rule, model.SeverityWarning, model.SummaryJavaHeap, formatPercent(pct),
		fmt.Sprintf("Java heap accounts for %s%% of overall PSS in dump %s; check for retained objects or an oversized heap",
			formatPercent(pct), dump.DumpID))}
}

func checkLargeAshmem(rule *Rule, dump *model.GlobalDumpReport) []model.Suggestion {
	value := float64(dump.Summary[model.SummaryAshmem]) / mib
	if value <= rule.Threshold {
		return nil
	}
	return []model.Suggestion{newSuggestion(rule, model.SeverityWarning, model.SummaryAshmem, formatPercent(value),
		fmt.Sprintf("Ashmem PSS is %s MiB in dump %s; look for leaked cursor windows or shared buffers",
			formatPercent(value), dump.DumpID))}
}

func checkNativeHeapShare(rule *Rule, dump *model.GlobalDumpReport) []model.Suggestion {
	pct, ok := shareOf(dump, model.SummaryNativeHeap)
	if !ok || pct <= rule.Threshold {
		return nil
	}
	return []model.Suggestion{newSuggestion(rule, model.SeverityInfo, model.SummaryNativeHeap, formatPercent(pct),
		fmt.Sprintf("Native heap accounts for %s%% of overall PSS in dump %s; inspect native allocations",
			formatPercent(pct), dump.DumpID))}
}

func checkTracingOverhead(rule *Rule, dump *model.GlobalDumpReport) []model.Suggestion {
	// Without mmaps every figure is zero minus the discount; missing_mmaps covers it.
	if !dump.HasMmaps {
		return nil
	}
	var suggestions []model.Suggestion
	for _, key := range model.SummaryKeys {
		value := dump.Summary[key]
		if value >= 0 {
			continue
		}
		suggestions = append(suggestions, newSuggestion(rule, model.SeverityWarning, key, strconv.FormatInt(value, 10),
			fmt.Sprintf("%s is negative (%d bytes) in dump %s: tracing overhead exceeds the measured value, treat it as unreliable",
				key, value, dump.DumpID)))
	}
	return suggestions
}

func checkMallocDominance(rule *Rule, dump *model.GlobalDumpReport) []model.Suggestion {
	var total int64
	for _, size := range dump.AllocatorStats {
		if size > 0 {
			total += size
		}
	}
	malloc := dump.AllocatorStats["malloc"]
	if total <= 0 || malloc <= 0 {
		return nil
	}
	pct := float64(malloc) * 100 / float64(total)
	if pct <= rule.Threshold {
		return nil
	}
	return []model.Suggestion{newSuggestion(rule, model.SeverityInfo, "malloc", formatPercent(pct),
		fmt.Sprintf("malloc holds %s%% of allocator memory in dump %s", formatPercent(pct), dump.DumpID))}
}

func checkMissingMmaps(rule *Rule, dump *model.GlobalDumpReport) []model.Suggestion {
	if dump.HasMmaps {
		return nil
	}
	return []model.Suggestion{newSuggestion(rule, model.SeverityInfo, "process_mmaps", "",
		fmt.Sprintf("Dump %s has no memory maps; category statistics are zero. Capture with detailed dumps enabled", dump.DumpID))}
}

// formatPercent formats a value with up to 2 decimal places.
func formatPercent(pct float64) string {
	s := strconv.FormatFloat(pct, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
