package redaction

import (
	"slices"
	"strings"
	"testing"
)

func TestRedactReplacesEmail(testContext *testing.T) {
	result := Redact("You can reach the person who did this at foo@bar.com if needed.")

	if !strings.Contains(result.Text, "[EMAIL REMOVED]") || strings.Contains(result.Text, "foo@bar.com") {
		testContext.Fatalf("email not redacted: %q", result.Text)
	}
	if len(result.Warnings) != 1 || !strings.Contains(strings.ToLower(result.Warnings[0]), "email") {
		testContext.Fatalf("unexpected warnings %v", result.Warnings)
	}
	if !slices.Equal(result.Redacted, []Category{CategoryEmail}) || len(result.ReviewFlags) != 0 {
		testContext.Fatalf("unexpected categories redacted=%v flags=%v", result.Redacted, result.ReviewFlags)
	}
}

func TestRedactLeavesCleanTextUntouched(testContext *testing.T) {
	text := "It happened during the winter term and nobody believed me for a long time."
	result := Redact(text)

	if result.Text != text {
		testContext.Fatalf("clean text changed: %q", result.Text)
	}
	if result.Warnings == nil || len(result.Warnings) != 0 {
		testContext.Fatalf("expected an empty, non-nil warning list, got %#v", result.Warnings)
	}
	if len(result.Redacted) != 0 || len(result.ReviewFlags) != 0 {
		testContext.Fatalf("unexpected categories redacted=%v flags=%v", result.Redacted, result.ReviewFlags)
	}
}

func TestRedactPhoneFormats(testContext *testing.T) {
	for _, number := range []string{
		"555-123-4567",
		"555.123.4567",
		"5551234567",
		"(555) 123-4567",
		"+44 20 7946 0958",
		"+1-555-123-4567",
	} {
		testContext.Run(number, func(testContext *testing.T) {
			result := Redact("They kept calling " + number + " every night.")
			if !strings.Contains(result.Text, "[PHONE REMOVED]") || strings.Contains(result.Text, number) {
				testContext.Fatalf("phone not redacted: %q", result.Text)
			}
			if !slices.Equal(result.Warnings, []string{"Phone numbers detected and removed"}) {
				testContext.Fatalf("unexpected warnings %v", result.Warnings)
			}
		})
	}
}

func TestRedactWarnsOncePerCategory(testContext *testing.T) {
	result := Redact("Numbers 555-123-4567 and (555) 987-6543 and also a.b@c.org plus d@e.net")

	if strings.Count(result.Text, "[PHONE REMOVED]") != 2 || strings.Count(result.Text, "[EMAIL REMOVED]") != 2 {
		testContext.Fatalf("unexpected redacted text %q", result.Text)
	}
	want := []string{
		"Email addresses detected and removed",
		"Phone numbers detected and removed",
	}
	if !slices.Equal(result.Warnings, want) {
		testContext.Fatalf("unexpected warnings %v", result.Warnings)
	}
}

func TestRedactURLsAndHandles(testContext *testing.T) {
	result := Redact("He posted it on https://example.com/post/1234567890 and tagged @someone_else too.")

	if !strings.Contains(result.Text, "[URL REMOVED]") || !strings.Contains(result.Text, "[HANDLE REMOVED]") {
		testContext.Fatalf("expected url and handle placeholders, got %q", result.Text)
	}
	if strings.Contains(result.Text, "[PHONE REMOVED]") {
		testContext.Fatalf("url digits must not be treated as a phone number: %q", result.Text)
	}
	if !slices.Equal(result.Redacted, []Category{CategoryURL, CategoryHandle}) {
		testContext.Fatalf("unexpected categories %v", result.Redacted)
	}
}

func TestRedactFlagsNamesAndInstitutionsWithoutRemoving(testContext *testing.T) {
	text := "My name is Jordan and this happened at Lincoln High School last year. Mr. Peterson saw it."
	result := Redact(text)

	if result.Text != text {
		testContext.Fatalf("review-only categories must not rewrite text: %q", result.Text)
	}
	if !slices.Equal(result.ReviewFlags, []Category{CategoryName, CategoryInstitution}) {
		testContext.Fatalf("unexpected review flags %v", result.ReviewFlags)
	}
	for _, warning := range []string{
		"Potential names detected - requires manual review",
		"Specific institutions mentioned - requires manual review",
	} {
		if !slices.Contains(result.Warnings, warning) {
			testContext.Fatalf("missing warning %q in %v", warning, result.Warnings)
		}
	}
}

func TestRedactDoesNotFlagLowercasePhrases(testContext *testing.T) {
	result := Redact("i am tired of being told it was nothing, and i'm still scared at school.")
	if len(result.ReviewFlags) != 0 || len(result.Warnings) != 0 {
		testContext.Fatalf("unexpected flags=%v warnings=%v", result.ReviewFlags, result.Warnings)
	}
}

func TestDetectPIIIsAdvisory(testContext *testing.T) {
	issues := DetectPII("email me at foo@bar.com or call 555-123-4567, my name is Alex")
	want := []string{
		"Email address detected",
		"Phone number detected",
		"Potential name detected",
	}
	if !slices.Equal(issues, want) {
		testContext.Fatalf("unexpected issues %v", issues)
	}
}

func TestDetectPIIReportsNothingForCleanText(testContext *testing.T) {
	issues := DetectPII("Nothing identifying in here at all.")
	if issues == nil || len(issues) != 0 {
		testContext.Fatalf("expected an empty, non-nil list, got %#v", issues)
	}
}

func TestContactPatternsCoverEveryStructuredFamily(testContext *testing.T) {
	patterns := ContactPatterns()
	for _, sample := range []string{"a@b.io", "https://x.y", "555-123-4567", "@handle"} {
		matched := false
		for _, pattern := range patterns {
			if pattern.MatchString(sample) {
				matched = true
				break
			}
		}
		if !matched {
			testContext.Fatalf("no contact pattern matched %q", sample)
		}
	}
}
