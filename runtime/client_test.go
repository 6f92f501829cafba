package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agusx1211/hitlctl/config"
	"github.com/golang-jwt/jwt/v5"
)

func TestThreadEndpoints(t *testing.T) {
	var patched StatePatch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /threads":
			fmt.Fprint(w, `{"thread_id": "t-42"}`)
		case "GET /threads/t-42/state":
			fmt.Fprint(w, `{"values": {"routing_decision": {"process": "etch"}, "step": 3}, "next": ["router_hitl"]}`)
		case "POST /threads/t-42/state":
			b, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(b, &patched); err != nil {
				t.Errorf("decode patch: %v", err)
			}
			fmt.Fprint(w, `{}`)
		case "GET /ok":
			fmt.Fprint(w, `{"ok": true}`)
		case "POST /assistants/search":
			fmt.Fprint(w, `[{"assistant_id": "agent", "graph_id": "agent", "name": "Semiconductor Agent"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	ctx := context.Background()
	id, err := c.CreateThread(ctx)
	if err != nil || id != "t-42" {
		t.Fatalf("create thread: %q %v", id, err)
	}
	st, err := c.GetState(ctx, id)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.Values["step"] != json.Number("3") || len(st.Next) != 1 || st.Next[0] != "router_hitl" {
		t.Fatalf("unexpected state: %#v", st)
	}
	if err := c.UpdateState(ctx, id, StatePatch{Values: map[string]any{"x": 1}, AsNode: "router_hitl"}); err != nil {
		t.Fatalf("update state: %v", err)
	}
	if patched.AsNode != "router_hitl" {
		t.Fatalf("unexpected patch: %#v", patched)
	}
	if !c.HealthCheck(ctx) {
		t.Fatal("expected healthy runtime")
	}
	as, err := c.ListAssistants(ctx)
	if err != nil || len(as) != 1 || as[0].Name != "Semiconductor Agent" {
		t.Fatalf("list assistants: %#v %v", as, err)
	}
}

func TestThreadEndpointStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.CreateThread(context.Background())
	var te *TransportError
	if !errors.As(err, &te) || te.Status != 500 || te.Body != "boom" {
		t.Fatalf("unexpected error: %#v", err)
	}
	if c.HealthCheck(context.Background()) {
		t.Fatal("expected unhealthy runtime")
	}
}

func TestAPIKeyHeader(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Api-Key")
	}))
	defer srv.Close()

	c := New(config.RuntimeConfig{BaseURL: srv.URL, Auth: config.AuthConfig{APIKey: "lg-key"}})
	c.HealthCheck(context.Background())
	if v := <-got; v != "lg-key" {
		t.Fatalf("unexpected api key header: %q", v)
	}
}

func TestJWTBearerToken(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := New(config.RuntimeConfig{BaseURL: srv.URL, Auth: config.AuthConfig{JWTSecret: "s3cret", JWTSubject: "operator", JWTTTLSeconds: 60}})
	c.HealthCheck(context.Background())
	h := <-got
	if !strings.HasPrefix(h, "Bearer ") {
		t.Fatalf("unexpected authorization header: %q", h)
	}
	tok, err := jwt.Parse(strings.TrimPrefix(h, "Bearer "), func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return []byte("s3cret"), nil
	})
	if err != nil || !tok.Valid {
		t.Fatalf("token did not verify: %v", err)
	}
	claims := tok.Claims.(jwt.MapClaims)
	if claims["sub"] != "operator" {
		t.Fatalf("unexpected subject: %v", claims["sub"])
	}
}

func TestRetryIsOptIn(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"thread_id": "t-1"}`)
	}))
	defer srv.Close()

	noRetry := testClient(srv.URL)
	if _, err := noRetry.CreateThread(context.Background()); err == nil {
		t.Fatal("expected throttled request to fail without retries")
	}
	hits.Store(0)
	withRetries := New(config.RuntimeConfig{BaseURL: srv.URL, MaxRetries: 1})
	id, err := withRetries.CreateThread(context.Background())
	if err != nil || id != "t-1" {
		t.Fatalf("expected retry to succeed: %q %v", id, err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected two attempts, got %d", hits.Load())
	}
}

func TestRetryCoversUnavailableOnly(t *testing.T) {
	for _, tc := range []struct {
		status int
		hits   int32
	}{
		{http.StatusServiceUnavailable, 2},
		{529, 1},
		{http.StatusInternalServerError, 1},
	} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(tc.status)
				return
			}
			fmt.Fprint(w, `{"thread_id": "t-1"}`)
		}))
		_, err := New(config.RuntimeConfig{BaseURL: srv.URL, MaxRetries: 3}).CreateThread(context.Background())
		srv.Close()
		if hits.Load() != tc.hits {
			t.Fatalf("status %d: expected %d attempts, got %d", tc.status, tc.hits, hits.Load())
		}
		if (tc.hits == 2) != (err == nil) {
			t.Fatalf("status %d: unexpected result %v", tc.status, err)
		}
	}
}

func TestRetryStopsWithContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(config.RuntimeConfig{BaseURL: srv.URL, MaxRetries: 5}).CreateThread(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the wait to end with the context, got %v", err)
	}
}

func TestPause(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if d := pause(0, "3", now); d != 3*time.Second {
		t.Fatalf("unexpected retry-after delay: %v", d)
	}
	if d := pause(0, "600", now); d != maxPause {
		t.Fatalf("retry-after must be capped, got %v", d)
	}
	if d := pause(0, now.Add(2*time.Second).Format(http.TimeFormat), now); d != 2*time.Second {
		t.Fatalf("unexpected http-date delay: %v", d)
	}
	if d := pause(1, "soon", now); d < 2*firstPause || d > 2*firstPause+firstPause/2 {
		t.Fatalf("unexpected backoff: %v", d)
	}
	if d := pause(40, "", now); d != maxPause {
		t.Fatalf("backoff must be capped, got %v", d)
	}
}

func TestEncodeResume(t *testing.T) {
	tests := []struct {
		encoding string
		resume   Resume
		want     string
	}{
		{config.EncodingBool, Resume{Type: DecisionApprove}, `{"resume":true}`},
		{config.EncodingBool, Resume{Type: DecisionReject, Message: "no"}, `{"resume":false}`},
		{config.EncodingBool, Resume{Type: DecisionEdit, Args: map[string]any{"x": 2}}, `{"resume":true}`},
		{config.EncodingTagged, Resume{Type: DecisionApprove}, `{"resume":{"type":"approve"}}`},
		{config.EncodingTagged, Resume{Type: DecisionReject, Message: "wrong lot"}, `{"resume":{"type":"reject","message":"wrong lot"}}`},
		{config.EncodingTagged, Resume{Type: DecisionEdit, Args: map[string]any{"x": 2}}, `{"resume":{"type":"edit","args":{"x":2}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.encoding+"/"+string(tt.resume.Type), func(t *testing.T) {
			cmd, err := EncodeResume(tt.encoding, tt.resume)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			b, _ := json.Marshal(cmd)
			if string(b) != tt.want {
				t.Fatalf("want %s got %s", tt.want, b)
			}
		})
	}
	if _, err := EncodeResume(config.EncodingTagged, Resume{Type: "maybe"}); !errors.Is(err, ErrUnknownDecision) {
		t.Fatalf("expected ErrUnknownDecision, got %v", err)
	}
	if _, err := EncodeResume("xml", Resume{Type: DecisionApprove}); err == nil {
		t.Fatal("expected unknown encoding error")
	}
}
