package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

func testKey() Key {
	return Key{TenantID: "t-1", UserID: "u-1", Channel: contractx.ChannelTelegram}
}

func newTestStore(t *testing.T, handler http.HandlerFunc, opts ...StoreOption) *UpstashRedisStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append(opts, WithHTTPClient(server.Client()))
	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		opts...,
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	return store
}

func TestStoreSessionKeyUsesPrefix(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{keyPrefix: defaultStoreKeyPrefix}
	got, err := store.sessionKey(testKey())
	if err != nil {
		t.Fatalf("sessionKey() error = %v", err)
	}
	want := "frontdesk:session:tenant:t-1:user:u-1:telegram"
	if got != want {
		t.Fatalf("sessionKey() = %q, want %q", got, want)
	}
}

func TestStoreLoadNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	})

	_, err := store.Load(context.Background(), testKey())
	if !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	t.Parallel()

	seed := NewSession("s-1", testKey(), time.Now())
	seed.State = StateConsulting
	seed.SetFact(FactName, "Anna")
	seed.Version = 3

	payload, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	encoded, err := json.Marshal(string(payload))
	if err != nil {
		t.Fatalf("marshal encoded seed: %v", err)
	}

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"result":%s}`, encoded)
	})

	got, err := store.Load(context.Background(), testKey())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.ID != "s-1" || got.State != StateConsulting || got.Version != 3 {
		t.Fatalf("Load() = %+v", got)
	}
	if got.Facts.String(FactName) != "Anna" {
		t.Fatalf("facts = %+v", got.Facts)
	}
}

func TestStoreSaveSendsVersionedEval(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	}, WithTTL(time.Minute))

	session := NewSession("s-1", testKey(), time.Now())
	if err := store.Save(context.Background(), session, 0); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if session.Version != 1 {
		t.Fatalf("Version = %d, want 1", session.Version)
	}
	if len(gotCommand) != 7 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "EVAL" {
		t.Fatalf("command[0] = %v, want EVAL", gotCommand[0])
	}
	if gotCommand[3] != "frontdesk:session:tenant:t-1:user:u-1:telegram" {
		t.Fatalf("command[3] = %v", gotCommand[3])
	}
	if ttl, ok := gotCommand[6].(float64); !ok || ttl != 60 {
		t.Fatalf("command[6] = %v, want 60", gotCommand[6])
	}
}

func TestStoreSaveHonorsTTLOverride(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	}, WithTTL(time.Minute))

	session := NewSession("s-1", testKey(), time.Now())
	if err := store.Save(context.Background(), session, 2*time.Minute); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ttl, ok := gotCommand[6].(float64); !ok || ttl != 120 {
		t.Fatalf("command[6] = %v, want 120", gotCommand[6])
	}
}

func TestStoreSaveVersionConflictRestoresVersion(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":"CONFLICT"}`)
	})

	session := NewSession("s-1", testKey(), time.Now())
	session.Version = 4

	err := store.Save(context.Background(), session, 0)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("Save() error = %v, want ErrVersionConflict", err)
	}
	if session.Version != 4 {
		t.Fatalf("Version = %d, want 4 after failed save", session.Version)
	}
}

func TestStoreAcquireLockBusy(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	})

	_, err := store.AcquireLock(context.Background(), testKey(), time.Second)
	if !errors.Is(err, contractx.ErrSessionBusy) {
		t.Fatalf("AcquireLock() error = %v, want ErrSessionBusy", err)
	}
}

func TestStoreAcquireLockSendsSetNXPX(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	})

	token, err := store.AcquireLock(context.Background(), testKey(), 30*time.Second)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if token == "" {
		t.Fatal("empty lock token")
	}

	if len(gotCommand) != 6 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "SET" || gotCommand[3] != "NX" || gotCommand[4] != "PX" {
		t.Fatalf("command = %#v", gotCommand)
	}
	if gotCommand[1] != "frontdesk:session:tenant:t-1:user:u-1:telegram:lock" {
		t.Fatalf("command[1] = %v", gotCommand[1])
	}
	if ms, ok := gotCommand[5].(float64); !ok || ms != 30000 {
		t.Fatalf("command[5] = %v, want 30000", gotCommand[5])
	}
}

func TestStoreReleaseLockRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{keyPrefix: defaultStoreKeyPrefix}
	err := store.ReleaseLock(context.Background(), testKey(), "  ")
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("ReleaseLock() error = %v, want ErrValidation", err)
	}
}
