package subscription

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenfest/core/internal/config"
	"github.com/lumenfest/core/internal/models"
	"github.com/lumenfest/core/internal/pkg/ident"
	"github.com/lumenfest/core/internal/pkg/response"
	"github.com/lumenfest/core/internal/testutil"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, st *testutil.MemStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hasher, err := ident.NewHasher("handler-test-key")
	if err != nil {
		t.Fatal(err)
	}
	log := zap.NewNop()
	svc := NewService(st, hasher, log)
	limiter := NewLimiter(st, config.DefaultRateLimitRules(), log)
	sink := NewAbuseSink(st, nil, log)
	h := NewHandler(svc, limiter, sink, hasher, nil, log)

	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browserUA)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, w.Body.String())
	}
	return env
}

func TestSubscribeEndpointSuccess(t *testing.T) {
	st := testutil.NewMemStore()
	r := newTestRouter(t, st)

	w := postJSON(r, "/api/v1/subscribe", SubscribeDTO{Email: "jane.doe@outlook.com", Source: "hero"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Fatalf("success = false: %s", w.Body.String())
	}
	if len(st.Subscriptions) != 1 {
		t.Fatalf("store holds %d records, want 1", len(st.Subscriptions))
	}
	if w.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("missing X-RateLimit-Remaining header on allowed request")
	}
}

func TestSubscribeEndpointHoneypot(t *testing.T) {
	st := testutil.NewMemStore()
	r := newTestRouter(t, st)

	w := postJSON(r, "/api/v1/subscribe", SubscribeDTO{Email: "jane.doe@outlook.com", Honeypot: "gotcha"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: the bot must see a success", w.Code)
	}
	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Error("honeypot response must be indistinguishable from success")
	}
	if len(st.Subscriptions) != 0 {
		t.Error("honeypot hit must not create a record")
	}
	if len(st.AbuseEvents) != 1 || st.AbuseEvents[0].Type != models.AbuseHoneypotFilled {
		t.Errorf("abuse log = %+v, want one honeypot-filled event", st.AbuseEvents)
	}
	if m := st.Metrics[time.Now().UTC().Format("2006-01-02")]; m.SpamAttempts != 1 {
		t.Errorf("spamAttempts = %d, want 1", m.SpamAttempts)
	}
}

func TestSubscribeEndpointInvalidEmail(t *testing.T) {
	st := testutil.NewMemStore()
	r := newTestRouter(t, st)

	t.Run("invalid format", func(t *testing.T) {
		w := postJSON(r, "/api/v1/subscribe", SubscribeDTO{Email: "not-an-email"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		env := decodeEnvelope(t, w)
		if env.Error == nil || env.Error.Code != response.CodeInvalidEmail {
			t.Errorf("error = %+v, want code %s", env.Error, response.CodeInvalidEmail)
		}
	})

	t.Run("disposable domain gets its own code", func(t *testing.T) {
		w := postJSON(r, "/api/v1/subscribe", SubscribeDTO{Email: "jane@mailinator.com"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		env := decodeEnvelope(t, w)
		if env.Error == nil || env.Error.Code != response.CodeDisposableEmail {
			t.Errorf("error = %+v, want code %s", env.Error, response.CodeDisposableEmail)
		}
	})

	t.Run("missing email", func(t *testing.T) {
		w := postJSON(r, "/api/v1/subscribe", map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		env := decodeEnvelope(t, w)
		if env.Error == nil || env.Error.Code != response.CodeInvalidRequest {
			t.Errorf("error = %+v, want code %s", env.Error, response.CodeInvalidRequest)
		}
	})
}

func TestSubscribeEndpointRateLimited(t *testing.T) {
	st := testutil.NewMemStore()
	r := newTestRouter(t, st)

	// Per-email limit is 2/hour; the third attempt for the same address
	// breaches it before the service ever sees the request.
	var w *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		w = postJSON(r, "/api/v1/subscribe", SubscribeDTO{Email: "rate.limit.me@outlook.com"})
	}
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (body %s)", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", w.Header().Get("X-RateLimit-Remaining"))
	}
	env := decodeEnvelope(t, w)
	if env.Error == nil || env.Error.Code != response.CodeRateLimitExceeded {
		t.Fatalf("error = %+v, want code %s", env.Error, response.CodeRateLimitExceeded)
	}
	if env.Error.RetryAfter == nil || *env.Error.RetryAfter < 1 {
		t.Error("rate-limit response must carry a retryAfter hint")
	}
}

func TestSubscribeEndpointSpamSilentlyAccepted(t *testing.T) {
	st := testutil.NewMemStore()
	r := newTestRouter(t, st)

	buf, _ := json.Marshal(SubscribeDTO{Email: "jane.doe@outlook.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscribe", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "curl/7.68.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for silently-accepted spam", w.Code)
	}
	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Error("spam rejection must look like a success to the client")
	}
	if len(st.Subscriptions) != 0 {
		t.Error("spam attempt must not create a record")
	}
	if len(st.AbuseEvents) != 1 || st.AbuseEvents[0].Type != models.AbuseSpamDetected {
		t.Errorf("abuse log = %+v, want one spam-detected event", st.AbuseEvents)
	}
}

func TestSubscribeEndpointAlreadySubscribed(t *testing.T) {
	st := testutil.NewMemStore()
	r := newTestRouter(t, st)

	postJSON(r, "/api/v1/subscribe", SubscribeDTO{Email: "jane.doe@outlook.com"})
	w := postJSON(r, "/api/v1/subscribe", SubscribeDTO{Email: "Jane.Doe@outlook.com "})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Success {
		t.Error("duplicate subscribe should not report success")
	}
	if env.Error == nil || env.Error.Code != response.CodeAlreadySubscribed {
		t.Errorf("error = %+v, want code %s", env.Error, response.CodeAlreadySubscribed)
	}
}

func TestSubscribeEndpointStoreFailure(t *testing.T) {
	st := testutil.NewMemStore()
	st.FailOn["GetRateCounter"] = errors.New("store down")
	r := newTestRouter(t, st)

	w := postJSON(r, "/api/v1/subscribe", SubscribeDTO{Email: "jane.doe@outlook.com"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	env := decodeEnvelope(t, w)
	if env.Error == nil || env.Error.Code != response.CodeServerError {
		t.Errorf("error = %+v, want code %s", env.Error, response.CodeServerError)
	}
}

func TestUnsubscribeEndpoint(t *testing.T) {
	st := testutil.NewMemStore()
	r := newTestRouter(t, st)

	postJSON(r, "/api/v1/subscribe", SubscribeDTO{Email: "jane.doe@outlook.com"})
	var token string
	for _, rec := range st.Subscriptions {
		token = rec.UnsubscribeToken
	}

	t.Run("malformed token", func(t *testing.T) {
		w := postJSON(r, "/api/v1/unsubscribe", UnsubscribeDTO{Token: "nope"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		env := decodeEnvelope(t, w)
		if env.Error == nil || env.Error.Code != response.CodeInvalidToken {
			t.Errorf("error = %+v, want code %s", env.Error, response.CodeInvalidToken)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		w := postJSON(r, "/api/v1/unsubscribe", UnsubscribeDTO{Token: ident.NewUnsubscribeToken()})
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})

	t.Run("valid token via POST", func(t *testing.T) {
		w := postJSON(r, "/api/v1/unsubscribe", UnsubscribeDTO{Token: token})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
		}
		env := decodeEnvelope(t, w)
		if !env.Success {
			t.Fatal("want success")
		}
		data, _ := env.Data.(map[string]interface{})
		if email, _ := data["email"].(string); email != "j***@o***.com" {
			t.Errorf("masked email = %q, want j***@o***.com", email)
		}
	})

	t.Run("second call reports already unsubscribed", func(t *testing.T) {
		w := postJSON(r, "/api/v1/unsubscribe", UnsubscribeDTO{Token: token})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		env := decodeEnvelope(t, w)
		if env.Error == nil || env.Error.Code != response.CodeAlreadyUnsubscribed {
			t.Errorf("error = %+v, want code %s", env.Error, response.CodeAlreadyUnsubscribed)
		}
	})

	t.Run("GET link works for mail clients", func(t *testing.T) {
		// Re-subscribe first so the GET has something to flip.
		postJSON(r, "/api/v1/subscribe", SubscribeDTO{Email: "jane.doe@outlook.com"})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/unsubscribe?token="+token, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
		}
	})
}
