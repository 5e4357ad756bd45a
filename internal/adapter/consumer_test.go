package adapter

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcgov/showcase-traction-adapter/internal/adaptercfg"
	"github.com/bcgov/showcase-traction-adapter/internal/protocol"
	"github.com/bcgov/showcase-traction-adapter/internal/session"
	"github.com/bcgov/showcase-traction-adapter/internal/tokencrypt"
)

type fakeBroker struct {
	mu         sync.Mutex
	acked      []string
	rejections []protocol.Rejection
}

func (f *fakeBroker) EnsureGroup(ctx context.Context) error { return nil }
func (f *fakeBroker) ReadBatch(ctx context.Context, consumer string, count int, block time.Duration) ([]redis.XMessage, error) {
	return nil, nil
}
func (f *fakeBroker) Ack(ctx context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}
func (f *fakeBroker) Reject(ctx context.Context, record []byte) error {
	var r protocol.Rejection
	if err := json.Unmarshal(record, &r); err != nil { return err }
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejections = append(f.rejections, r)
	return nil
}
func (f *fakeBroker) Close() error { return nil }

func (f *fakeBroker) lastRejection(t *testing.T) protocol.Rejection {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rejections) == 0 { t.Fatalf("expected a rejection") }
	return f.rejections[len(f.rejections)-1]
}

func newTestAdapter(t *testing.T, tractionURL, registryURL string) (*Adapter, *fakeBroker) {
	t.Helper()
	key := make([]byte, tokencrypt.KeySize)
	if _, err := rand.Read(key); err != nil { t.Fatal(err) }
	cfg := &adaptercfg.Config{}
	cfg.Crypto.Key = base64.RawStdEncoding.EncodeToString(key)
	cfg.Traction.APIBase = tractionURL
	cfg.Traction.RequestTimeoutMs = 2000
	cfg.Traction.PollIntervalMs = 5
	cfg.Traction.PollTimeoutMs = 200
	cfg.Registry.APIBase = registryURL
	cfg.Registry.RequestTimeoutMs = 2000
	cfg.Sessions.MaxEntries = 5
	cfg.Sessions.TTLSeconds = 60
	codec, err := tokencrypt.New(cfg.Crypto)
	if err != nil { t.Fatal(err) }
	fb := &fakeBroker{}
	return &Adapter{
		cfg:      cfg,
		sessions: session.NewCache(cfg.Sessions, cfg.Traction, cfg.Registry, codec),
		broker:   fb,
	}, fb
}

// countingServer fails the test if anything reaches it.
func countingServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func msg(id string, values map[string]any) redis.XMessage {
	return redis.XMessage{ID: id, Values: values}
}

func TestProcess_MissingAction(t *testing.T) {
	ledger, lcalls := countingServer(t)
	reg, rcalls := countingServer(t)
	a, fb := newTestAdapter(t, ledger.URL, reg.URL)
	a.process(context.Background(), msg("1-0", map[string]any{
		protocol.FieldTenantID: "t",
		protocol.FieldWalletID: "w",
	}))
	r := fb.lastRejection(t)
	if !strings.Contains(r.Description, "did not contain an action") {
		t.Fatalf("unexpected rejection: %+v", r)
	}
	if lcalls.Load() != 0 || rcalls.Load() != 0 {
		t.Fatalf("protocol error reached external services: ledger=%d registry=%d", lcalls.Load(), rcalls.Load())
	}
	if len(fb.acked) != 1 { t.Fatalf("rejected message not acked: %v", fb.acked) }
}

func TestProcess_MissingTenant(t *testing.T) {
	ledger, lcalls := countingServer(t)
	reg, _ := countingServer(t)
	a, fb := newTestAdapter(t, ledger.URL, reg.URL)
	a.process(context.Background(), msg("1-0", map[string]any{
		protocol.FieldAction:   string(protocol.ActionPublishIssuerAssets),
		protocol.FieldWalletID: "w",
	}))
	r := fb.lastRejection(t)
	if !strings.Contains(r.Description, "did not contain the tenant id") {
		t.Fatalf("unexpected rejection: %+v", r)
	}
	if lcalls.Load() != 0 { t.Fatalf("ledger was called %d times", lcalls.Load()) }
}

func TestProcess_UnsupportedAction(t *testing.T) {
	ledger, lcalls := countingServer(t)
	reg, _ := countingServer(t)
	a, fb := newTestAdapter(t, ledger.URL, reg.URL)
	a.process(context.Background(), msg("1-0", map[string]any{
		protocol.FieldAction:   "reticulate-splines",
		protocol.FieldTenantID: "t",
		protocol.FieldWalletID: "w",
	}))
	r := fb.lastRejection(t)
	if !strings.Contains(r.Description, "unsupported action") {
		t.Fatalf("unexpected rejection: %+v", r)
	}
	if lcalls.Load() != 0 { t.Fatalf("ledger was called %d times", lcalls.Load()) }
}

func TestProcess_BadPayloadRejectedBeforeLedger(t *testing.T) {
	ledger, lcalls := countingServer(t)
	reg, _ := countingServer(t)
	a, fb := newTestAdapter(t, ledger.URL, reg.URL)
	a.process(context.Background(), msg("1-0", map[string]any{
		protocol.FieldAction:   string(protocol.ActionPublishIssuerAssets),
		protocol.FieldTenantID: "t",
		protocol.FieldWalletID: "w",
		protocol.FieldPayload:  `{not json`,
	}))
	r := fb.lastRejection(t)
	if r.Condition != "bad-payload" { t.Fatalf("unexpected condition: %+v", r) }
	if lcalls.Load() != 0 { t.Fatalf("ledger was called %d times", lcalls.Load()) }
}

func TestProcess_PublishAccepted(t *testing.T) {
	ledgerMux := http.NewServeMux()
	ledgerMux.HandleFunc("GET /wallet/did/public", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"did":"did:indy:pub"}}`))
	})
	ledgerMux.HandleFunc("GET /schemas", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	ledgerMux.HandleFunc("POST /schemas", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"schema_id":"did:indy:person:1.0"}`))
	})
	ledgerMux.HandleFunc("GET /credential-definitions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	ledgerMux.HandleFunc("POST /credential-definitions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"credential_definition_id":"did:indy:person:1.0:CL:1.0"}`))
	})
	ledger := httptest.NewServer(ledgerMux)
	defer ledger.Close()

	var puts atomic.Int64
	reg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut { puts.Add(1) }
		_, _ = w.Write([]byte(`{}`))
	}))
	defer reg.Close()

	a, fb := newTestAdapter(t, ledger.URL, reg.URL)
	payload, _ := json.Marshal(map[string]any{
		"id":   "iss-1",
		"name": "Acme",
		"credentialSchemas": []map[string]any{
			{"id": "s-1", "name": "person", "version": "1.0", "attributes": []string{"name"}},
		},
		"credentialDefinitions": []map[string]any{
			{"id": "d-1", "name": "person-cred", "version": "1.0", "approved": true,
				"credentialSchema": map[string]any{"id": "s-1", "name": "person", "version": "1.0"}},
		},
	})
	a.process(context.Background(), msg("7-0", map[string]any{
		protocol.FieldAction:   string(protocol.ActionPublishIssuerAssets),
		protocol.FieldTenantID: "t",
		protocol.FieldWalletID: "w",
		protocol.FieldPayload:  string(payload),
	}))
	if len(fb.rejections) != 0 { t.Fatalf("unexpected rejection: %+v", fb.rejections) }
	if len(fb.acked) != 1 || fb.acked[0] != "7-0" { t.Fatalf("not acked: %v", fb.acked) }
	if puts.Load() != 2 { t.Fatalf("expected 2 registry updates, got %d", puts.Load()) }
}

func TestProcess_RejectionCarriesAddressingContext(t *testing.T) {
	ledger, _ := countingServer(t)
	reg, _ := countingServer(t)
	a, fb := newTestAdapter(t, ledger.URL, reg.URL)
	a.process(context.Background(), msg("9-0", map[string]any{
		protocol.FieldAction:   string(protocol.ActionImportSchema),
		protocol.FieldTenantID: "tenant-z",
		protocol.FieldWalletID: "wallet-z",
		protocol.FieldPayload:  `{"id":"s-1","name":"person"}`,
	}))
	// import without an identifier is a domain error
	r := fb.lastRejection(t)
	if r.Condition != "domain-error" { t.Fatalf("unexpected condition: %+v", r) }
	if !strings.Contains(r.Info, "tenantId=tenant-z") || !strings.Contains(r.Info, "walletId=wallet-z") {
		t.Fatalf("info missing context: %q", r.Info)
	}
}

func TestClassify(t *testing.T) {
	if c := classify(&protocol.Err{Condition: "bad-header", Message: "x"}); c != "bad-header" {
		t.Fatalf("protocol err: %s", c)
	}
	if c := classify(&tokencrypt.DecryptionError{Reason: "x"}); c != "decryption-failed" {
		t.Fatalf("decryption err: %s", c)
	}
	if c := classify(context.DeadlineExceeded); c != "dependency-error" {
		t.Fatalf("default: %s", c)
	}
}
