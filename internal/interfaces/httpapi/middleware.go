package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/gafferhq/brain/internal/domain/user"
	"github.com/gafferhq/brain/internal/usecase"
)

const (
	hmacTimestampHeader = "X-Brain-Timestamp"
	hmacSignatureHeader = "X-Brain-Signature"
	hmacSignaturePrefix = "sha256="
	hmacMaxClockSkew    = 5 * time.Minute

	devUserHeader = "X-Dev-User-Id"
)

// AuthConfig carries the three gate secrets. An empty secret makes its
// gate fail closed; DevBypass additionally allows the dev user header
// outside production.
type AuthConfig struct {
	JWTSecret  string
	HMACSecret string
	CronSecret string
	DevBypass  bool
}

// RequireUser authenticates the end-user JWT and stores the principal
// in the request context.
func RequireUser(cfg AuthConfig, next http.Handler) http.Handler {
	secret := []byte(strings.TrimSpace(cfg.JWTSecret))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.RequireUser")
		defer span.End()

		if cfg.DevBypass {
			if devUser := strings.TrimSpace(r.Header.Get(devUserHeader)); devUser != "" {
				next.ServeHTTP(w, r.WithContext(withPrincipal(ctx, user.Principal{UserID: devUser})))
				return
			}
		}

		if len(secret) == 0 {
			writeError(ctx, w, fmt.Errorf("%w: user authentication is not configured", usecase.ErrDependencyUnavailable))
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if authHeader == "" {
			writeError(ctx, w, fmt.Errorf("%w: missing Authorization header", usecase.ErrUnauthorized))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			writeError(ctx, w, fmt.Errorf("%w: invalid Authorization header format", usecase.ErrUnauthorized))
			return
		}

		userID, err := verifyUserToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: %v", usecase.ErrUnauthorized, err))
			return
		}

		next.ServeHTTP(w, r.WithContext(withPrincipal(ctx, user.Principal{UserID: userID})))
	})
}

func verifyUserToken(raw string, secret []byte) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}

	for _, key := range []string{"sub", "user_id"} {
		if v, ok := claims[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}

	return "", fmt.Errorf("token carries no user id")
}

// RequireHMAC authenticates the game-server push channel: the request
// body is signed as "<timestamp>.<body>" with a shared secret, and the
// timestamp must be within a small clock skew window.
func RequireHMAC(cfg AuthConfig, next http.Handler) http.Handler {
	secret := []byte(strings.TrimSpace(cfg.HMACSecret))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.RequireHMAC")
		defer span.End()

		if len(secret) == 0 {
			writeError(ctx, w, fmt.Errorf("%w: server-to-server authentication is not configured", usecase.ErrDependencyUnavailable))
			return
		}

		timestamp := strings.TrimSpace(r.Header.Get(hmacTimestampHeader))
		signature := strings.TrimSpace(r.Header.Get(hmacSignatureHeader))
		if timestamp == "" || signature == "" {
			writeError(ctx, w, fmt.Errorf("%w: missing signature headers", usecase.ErrUnauthorized))
			return
		}
		if !strings.HasPrefix(signature, hmacSignaturePrefix) {
			writeError(ctx, w, fmt.Errorf("%w: malformed signature", usecase.ErrUnauthorized))
			return
		}

		sentAt, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: malformed timestamp", usecase.ErrUnauthorized))
			return
		}
		if skew := time.Since(time.UnixMilli(sentAt)); skew > hmacMaxClockSkew || skew < -hmacMaxClockSkew {
			writeError(ctx, w, fmt.Errorf("%w: signature timestamp outside allowed window", usecase.ErrUnauthorized))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: read request body: %v", usecase.ErrInvalidInput, err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		expected, err := hex.DecodeString(strings.TrimPrefix(signature, hmacSignaturePrefix))
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: malformed signature", usecase.ErrUnauthorized))
			return
		}

		if !hmac.Equal(expected, signBrainMessage(secret, timestamp, body)) {
			writeError(ctx, w, fmt.Errorf("%w: signature mismatch", usecase.ErrUnauthorized))
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// signBrainMessage computes HMAC-SHA256 over "<timestamp>.<body>". The
// message is assembled in a pooled buffer; progress pushes arrive in
// bursts during sweeps.
func signBrainMessage(secret []byte, timestamp string, body []byte) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString(timestamp)
	buf.WriteByte('.')
	buf.Write(body)

	mac := hmac.New(sha256.New, secret)
	mac.Write(buf.B)

	return mac.Sum(nil)
}

// RequireCron gates the scheduler-only endpoints with a constant-time
// bearer comparison.
func RequireCron(cfg AuthConfig, next http.Handler) http.Handler {
	expected := strings.TrimSpace(cfg.CronSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.RequireCron")
		defer span.End()

		if expected == "" {
			writeError(ctx, w, fmt.Errorf("%w: cron authentication is not configured", usecase.ErrDependencyUnavailable))
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(ctx, w, fmt.Errorf("%w: missing cron bearer token", usecase.ErrUnauthorized))
			return
		}

		provided := strings.TrimSpace(parts[1])
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			writeError(ctx, w, fmt.Errorf("%w: invalid cron bearer token", usecase.ErrUnauthorized))
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.RequestLogging")
		defer span.End()

		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))

		spanContext := trace.SpanContextFromContext(ctx)
		traceID := ""
		spanID := ""
		if spanContext.IsValid() {
			traceID = spanContext.TraceID().String()
			spanID = spanContext.SpanID().String()
		}

		logger.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(started).Milliseconds(),
			"trace_id", traceID,
			"span_id", spanID,
		)
	})
}

func RequestTracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "brain-http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTraceRequest(r.URL.Path)
		}),
	)
}

func shouldTraceRequest(path string) bool {
	normalized := strings.ToLower(strings.TrimSpace(path))
	switch normalized {
	case "/health", "/healthz", "/livez", "/readyz":
		return false
	default:
		return true
	}
}

func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	allowAll := false
	allowMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
			continue
		}
		if origin != "" {
			allowMap[origin] = struct{}{}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowMap[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Brain-Timestamp, X-Brain-Signature, X-Dev-User-Id")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
