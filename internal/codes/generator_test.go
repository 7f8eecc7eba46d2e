package codes

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"
)

func TestGenerateProducesGroupedAlphabetSymbols(testContext *testing.T) {
	code, err := NewGenerator(nil).Generate()
	if err != nil {
		testContext.Fatalf("generate failed: %v", err)
	}
	if len(code) != FormattedLength {
		testContext.Fatalf("expected %d characters, got %q", FormattedLength, code)
	}
	groups := strings.Split(code, groupSeparator)
	if len(groups) != 8 {
		testContext.Fatalf("expected 8 groups, got %q", code)
	}
	for _, group := range groups {
		if len(group) != groupSize {
			testContext.Fatalf("unexpected group %q in %s", group, code)
		}
		for _, symbol := range group {
			if !strings.ContainsRune(Alphabet, symbol) {
				testContext.Fatalf("unexpected symbol %q in %s", symbol, code)
			}
		}
	}
}

func TestGenerateDoesNotRepeatAcrossSample(testContext *testing.T) {
	generator := NewGenerator(nil)
	seen := make(map[string]struct{}, 2000)
	for draw := 0; draw < 2000; draw++ {
		code, err := generator.Generate()
		if err != nil {
			testContext.Fatalf("generate failed: %v", err)
		}
		if _, duplicate := seen[code]; duplicate {
			testContext.Fatalf("duplicate code after %d draws", draw)
		}
		seen[code] = struct{}{}
	}
}

func TestGenerateIsDeterministicForFixedEntropy(testContext *testing.T) {
	testCases := []struct {
		fill byte
		want string
	}{
		{fill: 0x00, want: "AAAA-AAAA-AAAA-AAAA-AAAA-AAAA-AAAA-AAAA"},
		{fill: 0xff, want: "9999-9999-9999-9999-9999-9999-9999-9999"},
	}
	for _, testCase := range testCases {
		entropy := bytes.Repeat([]byte{testCase.fill}, entropyBytes)
		code, err := NewGenerator(bytes.NewReader(entropy)).Generate()
		if err != nil {
			testContext.Fatalf("generate failed: %v", err)
		}
		if code != testCase.want {
			testContext.Fatalf("expected %s, got %s", testCase.want, code)
		}
	}
}

func TestGenerateReportsExhaustedEntropy(testContext *testing.T) {
	if _, err := NewGenerator(iotest.ErrReader(errors.New("boom"))).Generate(); !errors.Is(err, ErrEntropyUnavailable) {
		testContext.Fatalf("expected entropy error, got %v", err)
	}
	if _, err := NewGenerator(bytes.NewReader([]byte{1, 2, 3})).Generate(); !errors.Is(err, ErrEntropyUnavailable) {
		testContext.Fatalf("expected entropy error for short reader, got %v", err)
	}
}

func TestNormalizeCanonicalizesInput(testContext *testing.T) {
	code, err := NewGenerator(nil).Generate()
	if err != nil {
		testContext.Fatalf("generate failed: %v", err)
	}

	testCases := []struct {
		name  string
		input string
	}{
		{name: "canonical", input: code},
		{name: "lowercase", input: strings.ToLower(code)},
		{name: "no-separators", input: strings.ReplaceAll(code, "-", "")},
		{name: "spaces", input: " " + strings.ReplaceAll(code, "-", " ") + " "},
	}
	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(testContext *testing.T) {
			normalized, ok := Normalize(testCase.input)
			if !ok || normalized != code {
				testContext.Fatalf("expected %s, got %q (ok=%v)", code, normalized, ok)
			}
		})
	}
}

func TestNormalizeRejectsMalformedInput(testContext *testing.T) {
	for _, input := range []string{
		"",
		"ABCD",
		"ABCD-EFGH-JKLM-NPQR-STUV-WXYZ-2345-678",
		"ABCD-EFGH-JKLM-NPQR-STUV-WXYZ-2345-67899",
		"ABCD-EFGH-JKLM-NPQR-STUV-WXYZ-2345-678O",
		"ABCD-EFGH-JKLM-NPQR-STUV-WXYZ-2345-6781",
		"ABCD_EFGH_JKLM_NPQR_STUV_WXYZ_2345_6789",
	} {
		if _, ok := Normalize(input); ok {
			testContext.Fatalf("expected %q to be rejected", input)
		}
	}
}
