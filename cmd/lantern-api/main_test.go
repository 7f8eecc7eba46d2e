package main

import (
	"strings"
	"testing"
)

func TestReadPasswordTrimsLineEnding(t *testing.T) {
	password, err := readPassword(strings.NewReader("open sesame\r\nignored\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if password != "open sesame" {
		t.Fatalf("unexpected password %q", password)
	}
}

func TestReadPasswordAcceptsMissingNewline(t *testing.T) {
	password, err := readPassword(strings.NewReader("no newline"))
	if err != nil || password != "no newline" {
		t.Fatalf("unexpected result %q (%v)", password, err)
	}
}

func TestReadPasswordRejectsEmptyInput(t *testing.T) {
	if _, err := readPassword(strings.NewReader("\n")); err == nil {
		t.Fatalf("expected empty password to be rejected")
	}
}
