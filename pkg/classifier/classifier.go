// Package classifier picks a model tier for a question using cheap local
// heuristics, so routing never costs an extra model round-trip.
package classifier

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/uchilka-bot/uchilka/pkg/models"
)

const (
	// capableMinLen: questions longer than this always go to the capable tier.
	capableMinLen = 200
	// fastMaxLen: questions shorter than this go to the fast tier unless a
	// capable trigger matched first.
	fastMaxLen = 50
)

// Rule names reported by Decide.
const (
	RuleLength  = "length"
	RuleIntent  = "intent"
	RuleDomain  = "domain"
	RuleLookup  = "lookup"
	RuleDefault = "default"
)

// Analytical and explanatory intent.
var intentPattern = regexp.MustCompile(
	`(объясни|explain|разбери|почему|докажи|доказательство|proof|prove|compare|сравни|отличие|анализ|проанализируй|analy[sz]e)`,
)

// Subject-matter markers that signal a correctness-sensitive answer.
var domainMarkers = []string{
	"формула", "теорема", "реакция", "уравнение",
	"formula", "theorem", "reaction", "equation",
}

// Translation, definition and lookup intent.
var lookupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^как (будет|сказать|написать)`),
	regexp.MustCompile(`^что (такое|значит|означает)`),
	regexp.MustCompile(`^переведи`),
	regexp.MustCompile(`^скажи`),
	regexp.MustCompile(`перевод`),
	regexp.MustCompile(`^how (do|would) you say`),
	regexp.MustCompile(`^what (is|are|does)\b`),
	regexp.MustCompile(`^define\b`),
	regexp.MustCompile(`translat`),
}

// Decision is a classification together with the rule that produced it.
type Decision struct {
	Tier models.ModelTier
	Rule string
}

// Classify returns the model tier for a question.
func Classify(text string) models.ModelTier {
	return Decide(text).Tier
}

// Decide classifies text and reports which rule fired. Capable triggers are
// checked before fast triggers; when nothing matches the capable tier wins.
func Decide(text string) Decision {
	// Length counts the raw text; only the anchored patterns skip leading space.
	n := utf8.RuneCountInString(text)
	lower := strings.ToLower(strings.TrimLeftFunc(text, unicode.IsSpace))

	if n > capableMinLen {
		return Decision{models.TierCapable, RuleLength}
	}
	if intentPattern.MatchString(lower) {
		return Decision{models.TierCapable, RuleIntent}
	}
	for _, m := range domainMarkers {
		if strings.Contains(lower, m) {
			return Decision{models.TierCapable, RuleDomain}
		}
	}

	if n < fastMaxLen {
		return Decision{models.TierFast, RuleLength}
	}
	for _, p := range lookupPatterns {
		if p.MatchString(lower) {
			return Decision{models.TierFast, RuleLookup}
		}
	}

	return Decision{models.TierCapable, RuleDefault}
}
