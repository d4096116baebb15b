package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/securecheckio/rules-engine/pkg/rules"
	"github.com/securecheckio/rules-engine/pkg/semantic"
)

// stageOutcome is the verdict of a rule's staged match.
type stageOutcome struct {
	matched    bool
	pattern    string
	similarity float64

	// skipReason, when set, means the rule must surface a diagnostic
	// non-match result (e.g. an invalid regex) instead of being skipped
	// silently.
	skipReason string
}

// matchStages runs the rule's declared stages against the message in cost
// order: keywords, then regexes, then the semantic backend. A rule matches
// iff every declared stage passes; absent stages are vacuously true. A rule
// declaring no stages at all matches by virtue of its flag gate having
// already held.
func (e *Engine) matchStages(ctx context.Context, rule *rules.Rule, message string, memo map[float64][]semantic.Match) stageOutcome {
	var out stageOutcome
	nocase := rule.CaseInsensitive()

	// Content stage: every keyword must occur as a substring.
	if len(rule.Content) > 0 {
		haystack := message
		if nocase {
			haystack = strings.ToLower(message)
		}
		for _, keyword := range rule.Content {
			needle := keyword
			if nocase {
				needle = strings.ToLower(keyword)
			}
			if !strings.Contains(haystack, needle) {
				return stageOutcome{}
			}
		}
		out.pattern = strings.Join(rule.Content, ", ")
	}

	// Pcre stage: every pattern must find at least one occurrence. The
	// first matched substring is reported only when the content stage did
	// not already claim the pattern slot.
	for _, pattern := range rule.PCRE {
		re, err := e.regexes.Get(pattern, nocase)
		if err != nil {
			return stageOutcome{
				skipReason: fmt.Sprintf("Invalid pattern %q: %v", pattern, err),
			}
		}
		loc := re.FindStringIndex(message)
		if loc == nil {
			return stageOutcome{}
		}
		if out.pattern == "" {
			out.pattern = message[loc[0]:loc[1]]
		}
	}

	// Semantic stage: the backend returns every rule clearing the floor;
	// this rule passes iff it is among them.
	if len(rule.Semantic) > 0 {
		if e.matcher == nil {
			// No backend configured. The stage can neither pass nor fail;
			// the rule stands on whatever stages already passed.
			if len(rule.Content) == 0 && len(rule.PCRE) == 0 {
				return stageOutcome{}
			}
		} else {
			threshold := rule.EffectiveSemanticThreshold()
			matches, ok := memo[threshold]
			if !ok {
				var err error
				matches, err = e.matcher.QueryRules(ctx, message, threshold)
				if err != nil {
					e.metrics.SemanticError()
					e.logger.Warn("semantic query failed, treating as no matches",
						"rule_id", rule.ID,
						"error", err,
					)
					matches = nil
				}
				memo[threshold] = matches
			}

			found := false
			for _, m := range matches {
				if m.RuleID == rule.ID {
					found = true
					out.similarity = m.Similarity
					out.pattern = fmt.Sprintf("semantic match (%.1f%%)", m.Similarity*100)
					break
				}
			}
			if !found {
				return stageOutcome{}
			}
		}
	}

	out.matched = true
	return out
}
