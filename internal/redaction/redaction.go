// Package redaction scrubs personally identifying details from narratives
// before they are persisted.
//
// Structured identifiers (emails, phone numbers, links, handles) are replaced
// with labeled placeholders. Free-form identity hints (names, institutions)
// are only flagged for a moderator because rewriting them would change the
// meaning of the story.
package redaction

import "regexp"

// Category names a family of patterns.
type Category string

const (
	CategoryEmail       Category = "email"
	CategoryPhone       Category = "phone"
	CategoryURL         Category = "url"
	CategoryHandle      Category = "handle"
	CategoryName        Category = "name"
	CategoryInstitution Category = "institution"
)

var (
	// EmailPattern matches email addresses.
	EmailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	// URLPattern matches http(s) links and bare www hosts.
	URLPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s]+|\bwww\.[^\s]+`)
	// HandlePattern matches social media handles such as @someone.
	HandlePattern = regexp.MustCompile(`@\w+`)
	// PhonePatterns covers international, parenthesized, dashed and bare ten digit numbers.
	PhonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+\d{1,3}[\-.\s]?\(?\d{1,4}\)?[\-.\s]?\d{1,4}[\-.\s]?\d{1,9}`),
		regexp.MustCompile(`\(\d{3}\)\s?\d{3}[\-.\s]?\d{4}`),
		regexp.MustCompile(`\b\d{3}[\-.\s]?\d{3}[\-.\s]?\d{4}\b`),
		regexp.MustCompile(`\b\d{10}\b`),
	}

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?i:my name is|i'm|i am|call me)\s+[A-Z][a-z]+`),
		regexp.MustCompile(`\b(?i:mr|mrs|ms|dr|prof)\.?\s+[A-Z][a-z]+`),
	}
	institutionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Z][a-z]+ (?:High School|Elementary|Middle School|University|Hospital|Clinic)\b`),
		regexp.MustCompile(`\b(?i:at)\s+(?:[A-Z][\w']*\s+)+(?:School|Hospital|Clinic|Church|Mosque|Temple|Synagogue)\b`),
	}
)

type replaceRule struct {
	category    Category
	patterns    []*regexp.Regexp
	placeholder string
	warning     string
	advisory    string
}

type flagRule struct {
	category Category
	patterns []*regexp.Regexp
	warning  string
	advisory string
}

// Links go before phones so digits inside a URL are not split into a phone match.
var replaceRules = []replaceRule{
	{
		category:    CategoryEmail,
		patterns:    []*regexp.Regexp{EmailPattern},
		placeholder: "[EMAIL REMOVED]",
		warning:     "Email addresses detected and removed",
		advisory:    "Email address detected",
	},
	{
		category:    CategoryURL,
		patterns:    []*regexp.Regexp{URLPattern},
		placeholder: "[URL REMOVED]",
		warning:     "URLs detected and removed",
		advisory:    "URL detected",
	},
	{
		category:    CategoryPhone,
		patterns:    PhonePatterns,
		placeholder: "[PHONE REMOVED]",
		warning:     "Phone numbers detected and removed",
		advisory:    "Phone number detected",
	},
	{
		category:    CategoryHandle,
		patterns:    []*regexp.Regexp{HandlePattern},
		placeholder: "[HANDLE REMOVED]",
		warning:     "Social media handles detected and removed",
		advisory:    "Social media handle detected",
	},
}

var flagRules = []flagRule{
	{
		category: CategoryName,
		patterns: namePatterns,
		warning:  "Potential names detected - requires manual review",
		advisory: "Potential name detected",
	},
	{
		category: CategoryInstitution,
		patterns: institutionPatterns,
		warning:  "Specific institutions mentioned - requires manual review",
		advisory: "Specific institution mentioned",
	},
}

// Result is the outcome of Redact.
type Result struct {
	// Text is the narrative with structured identifiers replaced.
	Text string
	// Warnings holds one message per triggered category, in rule order.
	Warnings []string
	// Redacted lists the categories that were replaced.
	Redacted []Category
	// ReviewFlags lists the categories a moderator should look at.
	ReviewFlags []Category
}

// Redact replaces structured identifiers and flags ambiguous ones.
// Text without any match is returned unchanged with no warnings.
func Redact(text string) Result {
	result := Result{Text: text, Warnings: []string{}}

	for _, rule := range replaceRules {
		triggered := false
		for _, pattern := range rule.patterns {
			if !pattern.MatchString(result.Text) {
				continue
			}
			triggered = true
			result.Text = pattern.ReplaceAllLiteralString(result.Text, rule.placeholder)
		}
		if triggered {
			result.Warnings = append(result.Warnings, rule.warning)
			result.Redacted = append(result.Redacted, rule.category)
		}
	}

	for _, rule := range flagRules {
		if matchesAny(rule.patterns, result.Text) {
			result.Warnings = append(result.Warnings, rule.warning)
			result.ReviewFlags = append(result.ReviewFlags, rule.category)
		}
	}

	return result
}

// DetectPII runs the same pattern families for advisory messages shown before
// submission. It never alters text and never blocks.
func DetectPII(text string) []string {
	issues := []string{}
	remaining := text
	for _, rule := range replaceRules {
		if matchesAny(rule.patterns, remaining) {
			issues = append(issues, rule.advisory)
		}
		// Consumed matches are masked so an email does not also report a handle.
		for _, pattern := range rule.patterns {
			remaining = pattern.ReplaceAllLiteralString(remaining, " ")
		}
	}
	for _, rule := range flagRules {
		if matchesAny(rule.patterns, text) {
			issues = append(issues, rule.advisory)
		}
	}
	return issues
}

// ContactPatterns returns every structured identifier pattern.
func ContactPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, 8)
	for _, rule := range replaceRules {
		patterns = append(patterns, rule.patterns...)
	}
	return patterns
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
