// Package contentfilter decides whether a support note may be stored.
// It never rewrites text: a note is either accepted as written or rejected
// with every rule it violated.
package contentfilter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/lantern/internal/redaction"
)

const (
	MinNoteLength = 10
	MaxNoteLength = 1000

	ReasonContactInfo   = "Contains contact information"
	ReasonContactIntent = "Attempts to establish contact"
	ReasonHarmfulAdvice = "Contains potentially harmful advice"
	ReasonToxic         = "Contains toxic or invalidating language"
	ReasonSpam          = "Contains multiple links (potential spam)"
	ReasonTooShort      = "Note is too short (minimum 10 characters)"
	ReasonTooLong       = "Note is too long (maximum 1000 characters)"
)

var (
	contactKeywords = []string{
		"dm me", "message me", "whatsapp", "instagram", "telegram", "snapchat",
		"facebook", "twitter", "tiktok", "discord", "my number", "call me",
		"text me", "email me", "contact me", "reach me", "find me",
	}
	harmfulKeywords = []string{
		"go confront", "tell them off", "fight back", "get revenge",
		"hurt yourself", "end it all", "give up", "hopeless", "no point",
	}
	// "you deserve" alone would reject "you deserve safety". Keywords match
	// whole words, so inflected forms are listed explicitly.
	toxicKeywords = []string{
		"kill yourself", "you deserve it", "you deserved it", "you deserved this",
		"your fault", "attention seeker", "making it up", "made it up",
		"lying", "liar", "lies", "fake", "faked", "faking", "drama queen",
	}
)

type keywordRule struct {
	reason  string
	pattern *regexp.Regexp
}

var keywordRules = []keywordRule{
	{reason: ReasonContactIntent, pattern: keywordPattern(contactKeywords)},
	{reason: ReasonHarmfulAdvice, pattern: keywordPattern(harmfulKeywords)},
	{reason: ReasonToxic, pattern: keywordPattern(toxicKeywords)},
}

var contactPatterns = redaction.ContactPatterns()

// keywordPattern compiles phrases into one case-insensitive alternation
// anchored on word boundaries. Inner spaces match any run of whitespace.
func keywordPattern(keywords []string) *regexp.Regexp {
	alternatives := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		words := strings.Fields(keyword)
		for index := range words {
			words[index] = regexp.QuoteMeta(words[index])
		}
		alternatives = append(alternatives, strings.Join(words, `\s+`))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`)
}

// Result reports the verdict and every violated rule, in a stable order.
type Result struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons"`
}

// FilterNote runs every rule family against text.
func FilterNote(text string) Result {
	reasons := []string{}

	for _, pattern := range contactPatterns {
		if pattern.MatchString(text) {
			reasons = append(reasons, ReasonContactInfo)
			break
		}
	}
	for _, rule := range keywordRules {
		if rule.pattern.MatchString(text) {
			reasons = append(reasons, rule.reason)
		}
	}
	if len(redaction.URLPattern.FindAllStringIndex(text, 2)) > 1 {
		reasons = append(reasons, ReasonSpam)
	}

	length := utf8.RuneCountInString(strings.TrimSpace(text))
	switch {
	case length < MinNoteLength:
		reasons = append(reasons, ReasonTooShort)
	case length > MaxNoteLength:
		reasons = append(reasons, ReasonTooLong)
	}

	return Result{Allowed: len(reasons) == 0, Reasons: reasons}
}
