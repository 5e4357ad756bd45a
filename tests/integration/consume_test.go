//go:build integration

package integration

import (
    "context"
    "crypto/rand"
    "encoding/base64"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    goredis "github.com/redis/go-redis/v9"

    "github.com/bcgov/showcase-traction-adapter/internal/adapter"
    "github.com/bcgov/showcase-traction-adapter/internal/adaptercfg"
    "github.com/bcgov/showcase-traction-adapter/tests/itutil"
)

func cryptoKey(t *testing.T) string {
    t.Helper()
    key := make([]byte, 32)
    if _, err := rand.Read(key); err != nil { t.Fatal(err) }
    return base64.RawStdEncoding.EncodeToString(key)
}

func ledgerStub(t *testing.T) *httptest.Server {
    t.Helper()
    mux := http.NewServeMux()
    mux.HandleFunc("GET /wallet/did/public", func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte(`{"result":{"did":"did:indy:pub"}}`))
    })
    mux.HandleFunc("GET /schemas", func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte(`{"results":[]}`))
    })
    mux.HandleFunc("POST /schemas", func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte(`{"schema_id":"did:indy:person:1.0"}`))
    })
    mux.HandleFunc("GET /credential-definitions", func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte(`{"results":[]}`))
    })
    mux.HandleFunc("POST /credential-definitions", func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte(`{"credential_definition_id":"did:indy:person:1.0:CL:1.0"}`))
    })
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)
    return srv
}

func registryStub(t *testing.T) *httptest.Server {
    t.Helper()
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte(`{}`))
    }))
    t.Cleanup(srv.Close)
    return srv
}

func TestConsume_EndToEnd(t *testing.T) {
    rc, addr := itutil.StartRedis(t)
    defer func() { _ = rc.Terminate(context.Background()) }()

    ledger := ledgerStub(t)
    registry := registryStub(t)

    var cfg adaptercfg.Config
    cfg.Server.Listen = fmt.Sprintf(":%d", itutil.FreePort(t))
    cfg.Broker.Addr = addr
    cfg.Broker.Topic = "showcase-cmd-test"
    cfg.Crypto.Key = cryptoKey(t)
    cfg.Traction.APIBase = ledger.URL
    cfg.Registry.APIBase = registry.URL
    cfg.Traction.PollIntervalMs = 50
    cfg.Traction.PollTimeoutMs = 5000
    path := itutil.WriteAdapterConfig(t, cfg)

    a, err := adapter.New(path)
    if err != nil { t.Fatalf("adapter new: %v", err) }
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    go func() { _ = a.Start(ctx) }()
    time.Sleep(500 * time.Millisecond)

    cli := goredis.NewClient(&goredis.Options{Addr: addr})
    defer cli.Close()

    payload, _ := json.Marshal(map[string]any{
        "id":   "iss-1",
        "name": "Acme",
        "credentialSchemas": []map[string]any{
            {"id": "s-1", "name": "person", "version": "1.0", "attributes": []string{"name"}},
        },
        "credentialDefinitions": []map[string]any{},
    })
    err = cli.XAdd(ctx, &goredis.XAddArgs{
        Stream: "showcase-cmd-test",
        Values: map[string]any{
            "action":   "publish-issuer-assets",
            "tenantId": "t-1",
            "walletId": "w-1",
            "payload":  string(payload),
        },
    }).Err()
    if err != nil { t.Fatalf("xadd: %v", err) }

    // a valid command is eventually acked: the group's pending list drains
    deadline := time.Now().Add(10 * time.Second)
    for {
        pend, err := cli.XPending(ctx, "showcase-cmd-test", "showcase-adapter").Result()
        if err == nil && pend.Count == 0 {
            break
        }
        if time.Now().After(deadline) {
            t.Fatalf("command never acked: %+v err=%v", pend, err)
        }
        time.Sleep(200 * time.Millisecond)
    }

    // a command without an action lands on the reject stream
    err = cli.XAdd(ctx, &goredis.XAddArgs{
        Stream: "showcase-cmd-test",
        Values: map[string]any{"tenantId": "t-1", "walletId": "w-1"},
    }).Err()
    if err != nil { t.Fatalf("xadd: %v", err) }
    deadline = time.Now().Add(10 * time.Second)
    for {
        msgs, err := cli.XRange(ctx, "showcase-cmd-test:rejected", "-", "+").Result()
        if err == nil && len(msgs) > 0 {
            rec, _ := msgs[0].Values["rejection"].(string)
            if !strings.Contains(rec, "did not contain an action") {
                t.Fatalf("unexpected rejection record: %s", rec)
            }
            break
        }
        if time.Now().After(deadline) {
            t.Fatalf("rejection never appeared")
        }
        time.Sleep(200 * time.Millisecond)
    }
}
