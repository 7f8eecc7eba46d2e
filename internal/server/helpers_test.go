package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/lantern/internal/auth"
	"github.com/MarcoPoloResearchLab/lantern/internal/codes"
	"github.com/MarcoPoloResearchLab/lantern/internal/database"
	"github.com/MarcoPoloResearchLab/lantern/internal/lookup"
	"github.com/MarcoPoloResearchLab/lantern/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/lantern/internal/stories"
)

const (
	testAdminPassword = "correct horse battery staple"
	testSigningSecret = "test-signing-secret"
	testCookieName    = "lantern_admin"
	testNarrative     = "It started during my second year and nobody around me wanted to hear about it at all."
)

var testStart = time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)

type serverFixture struct {
	handler http.Handler
	db      *gorm.DB
	feed    *ModerationFeed
	now     time.Time
}

type serverOptions struct {
	policies           map[string]ratelimit.Policy
	limiter            ratelimit.Limiter
	disableAdmin       bool
	allowedOrigins     []string
	autoApproveNotes   bool
	autoApproveStories bool
}

func newServerFixture(t *testing.T, options serverOptions) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:lantern_server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	hasher, err := codes.NewHasher(codes.HashParams{MemoryKiB: 64, Iterations: 1, Parallelism: 1})
	if err != nil {
		t.Fatalf("failed to build hasher: %v", err)
	}
	resolver, err := lookup.NewResolver(lookup.Config{Source: stories.NewCandidateStore(db), Hasher: hasher})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}
	fixture := &serverFixture{db: db, feed: NewModerationFeed(), now: testStart}
	clock := func() time.Time { return fixture.now }

	service, err := stories.NewService(stories.ServiceConfig{
		Database:           db,
		Clock:              clock,
		IDProvider:         stories.NewUUIDProvider(),
		Hasher:             hasher,
		Resolver:           resolver,
		AutoApproveStories: options.autoApproveStories,
		AutoApproveNotes:   options.autoApproveNotes,
		Chooser:            func(int) int { return 0 },
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{SigningSecret: []byte(testSigningSecret), Clock: clock})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}

	passwordHash := ""
	if !options.disableAdmin {
		passwordHash, err = hasher.Hash(testAdminPassword)
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}
	}

	limiter := options.limiter
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{Clock: clock, Random: func() float64 { return 1 }})
	}

	handler, err := NewHTTPHandler(Dependencies{
		Stories:           service,
		Limiter:           limiter,
		Policies:          options.policies,
		SessionIssuer:     issuer,
		SessionValidator:  validator,
		PasswordVerifier:  hasher,
		AdminPasswordHash: passwordHash,
		AllowedOrigins:    options.allowedOrigins,
		Feed:              fixture.feed,
		Clock:             clock,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	fixture.handler = handler
	return fixture
}

// generousPolicies lifts every limit so flow tests are not throttled.
func generousPolicies() map[string]ratelimit.Policy {
	policies := ratelimit.DefaultPolicies()
	for name, policy := range policies {
		policy.MaxRequests = 100
		policies[name] = policy
	}
	return policies
}

func (f *serverFixture) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, http.NoBody)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("User-Agent", "lantern-test")
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode body %q: %v", recorder.Body.String(), err)
	}
}

type receiptBody struct {
	DeletionCode string   `json:"deletion_code"`
	InboxCode    string   `json:"inbox_code"`
	Warnings     []string `json:"warnings"`
	Status       string   `json:"status"`
	Comfort      struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"comfort_message"`
}

func (f *serverFixture) submitStory(t *testing.T, body string) receiptBody {
	t.Helper()
	recorder := f.do(t, http.MethodPost, "/stories", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("submit failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	var receipt receiptBody
	decodeBody(t, recorder, &receipt)
	return receipt
}

func storyJSON(extra string) string {
	payload := `{"narrative":"` + testNarrative + `","context_tags":["school"]`
	if extra != "" {
		payload += "," + extra
	}
	return payload + "}"
}

func (f *serverFixture) loginCookie(t *testing.T) *http.Cookie {
	t.Helper()
	recorder := f.do(t, http.MethodPost, "/admin/login", `{"password":"`+testAdminPassword+`"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == testCookieName {
			return cookie
		}
	}
	t.Fatalf("login did not set the session cookie")
	return nil
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, ratelimit.Policy) (ratelimit.Result, error) {
	return ratelimit.Result{}, fmt.Errorf("counter store offline")
}
