package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// --- fake metrics ---

type fakeAuthMetrics struct {
	failures, successes int
}

func (f *fakeAuthMetrics) IncAuthFailure(string) { f.failures++ }
func (f *fakeAuthMetrics) IncAuthSuccess(string) { f.successes++ }

// --- GenerateAPIKey tests ---

func TestGenerateAPIKey_PrefixAndLength(t *testing.T) {
	key, plaintext, err := GenerateAPIKey(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error: %v", err)
	}

	if !strings.HasPrefix(plaintext, "lfmcp_") {
		t.Errorf("plaintext key should start with 'lfmcp_', got %q", plaintext)
	}

	// "lfmcp_" (6) + 32 random chars = 38
	if len(plaintext) != 38 {
		t.Errorf("expected plaintext length 38, got %d", len(plaintext))
	}

	if key.Prefix != plaintext[:KeyPrefixLen] {
		t.Errorf("expected prefix %q, got %q", plaintext[:KeyPrefixLen], key.Prefix)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(plaintext)); err != nil {
		t.Errorf("hash does not match plaintext: %v", err)
	}
}

func TestGenerateAPIKey_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		_, plaintext, err := GenerateAPIKey(bcrypt.MinCost)
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if seen[plaintext] {
			t.Fatalf("duplicate key generated: %q", plaintext)
		}
		seen[plaintext] = true
	}
}

func TestKeyPrefix_Short(t *testing.T) {
	if got := KeyPrefix("abc"); got != "abc" {
		t.Errorf("KeyPrefix(abc) = %q", got)
	}
}

func TestHashKey_Deterministic(t *testing.T) {
	if HashKey("k") != HashKey("k") {
		t.Error("HashKey is not deterministic")
	}
	if HashKey("a") == HashKey("b") {
		t.Error("different inputs hashed equal")
	}
	if len(HashKey("k")) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(HashKey("k")))
	}
}

// --- Verifier tests ---

func TestNewVerifier_RejectsGarbageHash(t *testing.T) {
	_, err := NewVerifier("not-a-bcrypt-hash")
	if !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestVerifier_DisabledAcceptsAll(t *testing.T) {
	v, err := NewVerifier("")
	if err != nil {
		t.Fatal(err)
	}
	if v.Enabled() {
		t.Fatal("empty hash should disable the verifier")
	}
	if !v.Verify("") {
		t.Fatal("disabled verifier should accept")
	}
}

func TestVerifier_CachesAcceptedKey(t *testing.T) {
	key, plaintext, err := GenerateAPIKey(bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewVerifier(key.Hash)
	if err != nil {
		t.Fatal(err)
	}

	if v.Verify("lfmcp_wrong") {
		t.Fatal("wrong key accepted")
	}
	if !v.Verify(plaintext) {
		t.Fatal("valid key rejected")
	}
	if v.accepted != HashKey(plaintext) {
		t.Fatal("accepted key was not cached")
	}
	if !v.Verify(plaintext) {
		t.Fatal("cached key rejected")
	}
	if v.Verify("lfmcp_wrong") {
		t.Fatal("wrong key accepted after cache fill")
	}
}

func TestKeyPrefixContext_RoundTrip(t *testing.T) {
	ctx := ContextWithKeyPrefix(context.Background(), "lfmcp_abcdef")
	if got := KeyPrefixFromContext(ctx); got != "lfmcp_abcdef" {
		t.Errorf("got %q", got)
	}
	if got := KeyPrefixFromContext(context.Background()); got != "" {
		t.Errorf("expected empty prefix, got %q", got)
	}
}

// --- BearerMiddleware tests ---

func TestBearerMiddleware(t *testing.T) {
	key, plaintext, err := GenerateAPIKey(bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewVerifier(key.Hash)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantError  bool
	}{
		{"valid key", "Bearer " + plaintext, http.StatusOK, false},
		{"lowercase scheme", "bearer " + plaintext, http.StatusOK, false},
		{"invalid key", "Bearer lfmcp_wrongkey000000000000000000", http.StatusUnauthorized, true},
		{"missing header", "", http.StatusUnauthorized, true},
		{"malformed header no bearer", "Token " + plaintext, http.StatusUnauthorized, true},
		{"bearer only no token", "Bearer", http.StatusUnauthorized, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeAuthMetrics{}
			okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := KeyPrefixFromContext(r.Context()); got != key.Prefix {
					t.Errorf("key prefix in context = %q, want %q", got, key.Prefix)
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			BearerMiddleware(v, m)(okHandler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantError {
				assertJSONError(t, rr)
				if m.failures != 1 || m.successes != 0 {
					t.Errorf("metrics = %+v, want one failure", m)
				}
			} else if m.successes != 1 {
				t.Errorf("metrics = %+v, want one success", m)
			}
		})
	}
}

func TestBearerMiddleware_Disabled(t *testing.T) {
	v, _ := NewVerifier("")
	called := false
	h := BearerMiddleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if !called {
		t.Fatal("disabled auth should pass requests through")
	}
}

// assertJSONError checks that the response body contains the expected error JSON structure.
func assertJSONError(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()

	ct := rr.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error.Code != "unauthorized" {
		t.Errorf("expected error code 'unauthorized', got %q", resp.Error.Code)
	}
	if resp.Error.Message == "" {
		t.Error("expected non-empty error message")
	}
}
