package httpapi

import (
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okNext(t *testing.T) (http.Handler, *bool) {
	t.Helper()
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func signedUserToken(t *testing.T, secret, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestRequireUser_ValidToken(t *testing.T) {
	cfg := AuthConfig{JWTSecret: "user-secret"}
	var gotUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFromContext(r.Context())
		if !ok {
			t.Fatal("expected principal in context")
		}
		gotUser = principal.UserID
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/players/p1", nil)
	req.Header.Set("Authorization", "Bearer "+signedUserToken(t, "user-secret", "coach-a"))
	rec := httptest.NewRecorder()

	RequireUser(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotUser != "coach-a" {
		t.Fatalf("expected principal coach-a, got %q", gotUser)
	}
}

func TestRequireUser_WrongSecret(t *testing.T) {
	cfg := AuthConfig{JWTSecret: "user-secret"}
	next, called := okNext(t)

	req := httptest.NewRequest(http.MethodGet, "/api/players/p1", nil)
	req.Header.Set("Authorization", "Bearer "+signedUserToken(t, "other-secret", "coach-a"))
	rec := httptest.NewRecorder()

	RequireUser(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run on a bad token")
	}
}

func TestRequireUser_MissingHeader(t *testing.T) {
	cfg := AuthConfig{JWTSecret: "user-secret"}
	next, called := okNext(t)

	req := httptest.NewRequest(http.MethodGet, "/api/players/p1", nil)
	rec := httptest.NewRecorder()

	RequireUser(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run without credentials")
	}
}

func TestRequireUser_UnconfiguredFailsClosed(t *testing.T) {
	next, called := okNext(t)

	req := httptest.NewRequest(http.MethodGet, "/api/players/p1", nil)
	req.Header.Set("Authorization", "Bearer "+signedUserToken(t, "anything", "coach-a"))
	rec := httptest.NewRecorder()

	RequireUser(AuthConfig{}, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run when the gate is unconfigured")
	}
}

func TestRequireUser_DevBypass(t *testing.T) {
	cfg := AuthConfig{JWTSecret: "user-secret", DevBypass: true}
	var gotUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := principalFromContext(r.Context())
		gotUser = principal.UserID
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/players/p1", nil)
	req.Header.Set(devUserHeader, "dev-coach")
	rec := httptest.NewRecorder()

	RequireUser(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if gotUser != "dev-coach" {
		t.Fatalf("expected dev principal, got %q", gotUser)
	}
}

func TestRequireUser_DevBypassDisabledIgnoresHeader(t *testing.T) {
	cfg := AuthConfig{JWTSecret: "user-secret"}
	next, called := okNext(t)

	req := httptest.NewRequest(http.MethodGet, "/api/players/p1", nil)
	req.Header.Set(devUserHeader, "dev-coach")
	rec := httptest.NewRecorder()

	RequireUser(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if *called {
		t.Fatal("dev header must not bypass a production gate")
	}
}

func signRequest(req *http.Request, secret, timestamp string, body []byte) {
	req.Header.Set(hmacTimestampHeader, timestamp)
	digest := signBrainMessage([]byte(secret), timestamp, body)
	req.Header.Set(hmacSignatureHeader, hmacSignaturePrefix+hex.EncodeToString(digest))
}

func TestRequireHMAC_ValidSignature(t *testing.T) {
	cfg := AuthConfig{HMACSecret: "push-secret"}
	body := []byte(`{"user_id":"coach-a","overall_rating":71}`)

	var seenBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read restored body: %v", err)
		}
		seenBody = string(raw)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/players/p1/progress", strings.NewReader(string(body)))
	signRequest(req, "push-secret", strconv.FormatInt(time.Now().UnixMilli(), 10), body)
	rec := httptest.NewRecorder()

	RequireHMAC(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if seenBody != string(body) {
		t.Fatalf("body was not restored for the handler: %q", seenBody)
	}
}

func TestRequireHMAC_TamperedBody(t *testing.T) {
	cfg := AuthConfig{HMACSecret: "push-secret"}
	signedBody := []byte(`{"user_id":"coach-a"}`)
	sentBody := []byte(`{"user_id":"coach-b"}`)
	next, called := okNext(t)

	req := httptest.NewRequest(http.MethodPost, "/api/players/p1/progress", strings.NewReader(string(sentBody)))
	signRequest(req, "push-secret", strconv.FormatInt(time.Now().UnixMilli(), 10), signedBody)
	rec := httptest.NewRecorder()

	RequireHMAC(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run on a signature mismatch")
	}
}

func TestRequireHMAC_StaleTimestamp(t *testing.T) {
	cfg := AuthConfig{HMACSecret: "push-secret"}
	body := []byte(`{"user_id":"coach-a"}`)
	next, called := okNext(t)

	stale := time.Now().Add(-10 * time.Minute).UnixMilli()
	req := httptest.NewRequest(http.MethodPost, "/api/players/p1/progress", strings.NewReader(string(body)))
	signRequest(req, "push-secret", strconv.FormatInt(stale, 10), body)
	rec := httptest.NewRecorder()

	RequireHMAC(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run outside the skew window")
	}
}

func TestRequireHMAC_MissingHeaders(t *testing.T) {
	cfg := AuthConfig{HMACSecret: "push-secret"}
	next, called := okNext(t)

	req := httptest.NewRequest(http.MethodPost, "/api/players/p1/progress", strings.NewReader("{}"))
	rec := httptest.NewRecorder()

	RequireHMAC(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run without signature headers")
	}
}

func TestRequireCron_ValidToken(t *testing.T) {
	cfg := AuthConfig{CronSecret: "cron-secret"}
	next, called := okNext(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sweep/run", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec := httptest.NewRecorder()

	RequireCron(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !*called {
		t.Fatal("next handler should have run")
	}
}

func TestRequireCron_WrongToken(t *testing.T) {
	cfg := AuthConfig{CronSecret: "cron-secret"}
	next, called := okNext(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sweep/run", nil)
	req.Header.Set("Authorization", "Bearer not-the-secret")
	rec := httptest.NewRecorder()

	RequireCron(cfg, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run on a bad token")
	}
}

func TestRequireCron_UnconfiguredFailsClosed(t *testing.T) {
	next, called := okNext(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sweep/run", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()

	RequireCron(AuthConfig{}, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run when the gate is unconfigured")
	}
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	next, _ := okNext(t)
	handler := CORS([]string{"https://gaffer-companion.example.com"}, next)

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard/global", nil)
	req.Header.Set("Origin", "https://gaffer-companion.example.com")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://gaffer-companion.example.com" {
		t.Fatalf("unexpected Access-Control-Allow-Origin: %q", got)
	}
}

func TestCORS_OptionsPreflight(t *testing.T) {
	next, called := okNext(t)
	handler := CORS([]string{"*"}, next)

	req := httptest.NewRequest(http.MethodOptions, "/api/squads/create", nil)
	req.Header.Set("Origin", "https://gaffer-companion.example.com")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if *called {
		t.Fatal("preflight must not reach the handler")
	}
}

func TestCORS_DisallowsUnconfiguredOrigin(t *testing.T) {
	next, _ := okNext(t)
	handler := CORS([]string{"https://allowed.example.com"}, next)

	req := httptest.NewRequest(http.MethodGet, "/api/leagues", nil)
	req.Header.Set("Origin", "https://not-allowed.example.com")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected empty Access-Control-Allow-Origin, got %q", got)
	}
}
