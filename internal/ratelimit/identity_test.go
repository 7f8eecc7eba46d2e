package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientIdentityPrefersFirstForwardedHop(testContext *testing.T) {
	request := httptest.NewRequest(http.MethodPost, "/stories/delete", http.NoBody)
	request.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	request.Header.Set("X-Real-IP", "198.51.100.2")
	request.Header.Set("User-Agent", "agent/1.0")

	if identity := ClientIdentity(request); !strings.HasPrefix(identity, "203.0.113.7:") {
		testContext.Fatalf("expected first forwarded hop, got %q", identity)
	}
}

func TestClientIdentityFallbacks(testContext *testing.T) {
	realIP := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	realIP.Header.Set("X-Real-IP", "198.51.100.2")

	remote := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	remote.RemoteAddr = "192.0.2.10:5555"

	unknown := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	unknown.RemoteAddr = ""

	testCases := []struct {
		request *http.Request
		prefix  string
	}{
		{request: realIP, prefix: "198.51.100.2:"},
		{request: remote, prefix: "192.0.2.10:"},
		{request: unknown, prefix: "unknown:"},
	}
	for _, testCase := range testCases {
		if identity := ClientIdentity(testCase.request); !strings.HasPrefix(identity, testCase.prefix) {
			testContext.Fatalf("expected prefix %q, got %q", testCase.prefix, identity)
		}
	}
}

func TestClientIdentitySeparatesUserAgents(testContext *testing.T) {
	withAgent := func(agent string) *http.Request {
		request := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		request.Header.Set("User-Agent", agent)
		return request
	}
	first := ClientIdentity(withAgent("browser-a"))
	second := ClientIdentity(withAgent("browser-b"))
	repeat := ClientIdentity(withAgent("browser-a"))

	if first == second {
		testContext.Fatalf("different user agents must yield different identities")
	}
	if first != repeat {
		testContext.Fatalf("identity must be stable, got %q and %q", first, repeat)
	}
	if strings.Contains(first, "browser-a") {
		testContext.Fatalf("identity must not embed the raw user agent: %q", first)
	}
}
