package webhooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherSignsPayload(t *testing.T) {
	secret := []byte("secret")
	var (
		mu        sync.Mutex
		body      []byte
		signature string
		event     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		body, signature, event = data, r.Header.Get(SignatureHeader), r.Header.Get(EventHeader)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, secret)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.EnqueueClaim(ClaimPayload{Holder: "stk1abc", Points: 10, Amount: "10000000000000000000"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return signature != ""
	}, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if signature == "" {
		t.Fatalf("expected signature header")
	}
	if !Verify(secret, body, signature) {
		t.Fatalf("signature does not verify")
	}
	if Verify([]byte("other"), body, signature) {
		t.Fatalf("signature must not verify under another secret")
	}
	if event != string(EventRewardsClaimed) {
		t.Fatalf("unexpected event header %q", event)
	}
	var payload ClaimPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.DeliveryID == "" || payload.ClaimedAt.IsZero() || payload.Type != EventRewardsClaimed {
		t.Fatalf("defaults not applied: %+v", payload)
	}
	if payload.Points != 10 || payload.Holder != "stk1abc" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.EnqueueClaim(ClaimPayload{Holder: "stk1abc", Points: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", attempts)
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	if _, err := NewDispatcher(" ", []byte("secret")); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewDispatcher("http://localhost", nil); err == nil {
		t.Fatalf("expected secret error")
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	dispatcher, err := NewDispatcher("http://127.0.0.1:1", []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	dispatcher.Close()
	if err := dispatcher.EnqueueClaim(ClaimPayload{}); !errors.Is(err, errDispatcherClosed) {
		t.Fatalf("expected errDispatcherClosed, got %v", err)
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
