package session

import (
    "context"
    "encoding/hex"
    "strings"
    "sync"
    "time"

    "golang.org/x/crypto/sha3"

    "github.com/bcgov/showcase-traction-adapter/internal/adaptercfg"
    "github.com/bcgov/showcase-traction-adapter/internal/logging"
    "github.com/bcgov/showcase-traction-adapter/internal/metrics"
    "github.com/bcgov/showcase-traction-adapter/internal/registry"
    "github.com/bcgov/showcase-traction-adapter/internal/tokencrypt"
    "github.com/bcgov/showcase-traction-adapter/internal/traction"
)

// Session bundles the API clients and bearer tokens used to act on behalf of
// one tenant. Tokens are mutated in place under the session mutex so every
// holder of the session observes a refresh.
type Session struct {
    TenantID string
    WalletID string

    Traction *traction.Client
    Registry *registry.Client

    mu            sync.Mutex
    ledgerToken   string
    registryToken string
}

func (s *Session) LedgerToken() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.ledgerToken
}

func (s *Session) RegistryToken() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.registryToken
}

type entry struct {
    s        *Session
    created  time.Time
    lastUsed time.Time
}

// Cache is the bounded LRU+TTL registry of publishing sessions. A single
// mutex guards the map; concurrent lookups for one key converge on one
// session instance. Eviction only drops the cache's reference, held sessions
// stay valid until released.
type Cache struct {
    mu      sync.Mutex
    entries map[string]*entry

    codec           *tokencrypt.Codec
    apiKey          string
    maxEntries      int
    ttl             time.Duration
    tractionTimeout time.Duration
    registryTimeout time.Duration
}

func NewCache(cfg adaptercfg.SessionsConfig, tcfg adaptercfg.TractionConfig, rcfg adaptercfg.RegistryConfig, codec *tokencrypt.Codec) *Cache {
    return &Cache{
        entries:         make(map[string]*entry),
        codec:           codec,
        apiKey:          tcfg.APIKey,
        maxEntries:      cfg.MaxEntries,
        ttl:             time.Duration(cfg.TTLSeconds) * time.Second,
        tractionTimeout: time.Duration(tcfg.RequestTimeoutMs) * time.Millisecond,
        registryTimeout: time.Duration(rcfg.RequestTimeoutMs) * time.Millisecond,
    }
}

// Key derives the composite cache key. Base paths are normalized and hashed
// so equivalent-but-differently-formatted URLs map to one session.
func Key(ledgerBase, registryBase, tenantID, walletID string) string {
    norm := func(s string) string { return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), "/")) }
    h := sha3.Sum256([]byte(norm(ledgerBase) + "|" + norm(registryBase) + "|" + tenantID + "|" + walletID))
    return hex.EncodeToString(h[:16])
}

// GetOrCreate returns the live session for the addressing tuple, building one
// if none is cached or the cached one expired. A caller-supplied encrypted
// token is decrypted and installed as the registry-side token for this call;
// a missing ledger token is fetched proactively when an API key is
// configured.
func (c *Cache) GetOrCreate(ctx context.Context, tenantID, registryBase, ledgerBase, walletID string, encToken, nonce []byte) (*Session, error) {
    ev := logging.NewEventLogger()
    key := Key(ledgerBase, registryBase, tenantID, walletID)

    c.mu.Lock()
    now := time.Now()
    e, ok := c.entries[key]
    if ok && c.ttl > 0 && now.Sub(e.created) > c.ttl {
        delete(c.entries, key)
        metrics.SessionsEvictedTotal.Inc()
        ev.Session("expire", tenantID, key)
        ok = false
    }
    if !ok {
        s := &Session{TenantID: tenantID, WalletID: walletID}
        s.Traction = traction.NewClient(ledgerBase, c.tractionTimeout, s.LedgerToken)
        s.Registry = registry.NewClient(registryBase, c.registryTimeout, s.RegistryToken)
        e = &entry{s: s, created: now}
        c.entries[key] = e
        c.evictLocked(key)
        metrics.SessionsCreatedTotal.Inc()
        ev.Session("create", tenantID, key)
    } else {
        ev.Session("hit", tenantID, key)
    }
    e.lastUsed = now
    metrics.SessionsGauge.Set(float64(len(c.entries)))
    s := e.s
    c.mu.Unlock()

    if err := c.refresh(ctx, s, encToken, nonce); err != nil {
        return nil, err
    }
    return s, nil
}

// evictLocked drops least-recently-used entries above capacity, never the
// entry just inserted.
func (c *Cache) evictLocked(keep string) {
    for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
        oldestKey := ""
        var oldest time.Time
        for k, e := range c.entries {
            if k == keep {
                continue
            }
            if oldestKey == "" || e.lastUsed.Before(oldest) {
                oldestKey, oldest = k, e.lastUsed
            }
        }
        if oldestKey == "" {
            return
        }
        delete(c.entries, oldestKey)
        metrics.SessionsEvictedTotal.Inc()
        logging.NewEventLogger().Session("evict", c.entries[keep].s.TenantID, oldestKey)
    }
}

// refresh applies the per-lookup token policy under the session mutex so
// concurrent refreshes cannot interleave.
func (c *Cache) refresh(ctx context.Context, s *Session, encToken, nonce []byte) error {
    ev := logging.NewEventLogger()
    if len(encToken) > 0 {
        pt, err := c.codec.Open(encToken, nonce)
        if err != nil {
            ev.Token("decrypt", s.TenantID, false, err.Error())
            return err
        }
        s.mu.Lock()
        s.registryToken = string(pt)
        s.mu.Unlock()
        ev.Token("decrypt", s.TenantID, true, "")
    }
    s.mu.Lock()
    needLedger := s.ledgerToken == "" && c.apiKey != ""
    s.mu.Unlock()
    if needLedger {
        tok, err := requestLedgerToken(ctx, s, c.apiKey)
        if err != nil {
            ev.Token("request", s.TenantID, false, err.Error())
            return err
        }
        s.mu.Lock()
        // another refresh may have won the race; last write is fine, both
        // tokens are valid
        s.ledgerToken = tok
        s.mu.Unlock()
        ev.Token("request", s.TenantID, true, "")
    }
    return nil
}

// Len reports the number of cached sessions.
func (c *Cache) Len() int {
    c.mu.Lock()
    defer c.mu.Unlock()
    return len(c.entries)
}

// indirection for tests
var requestLedgerToken = func(ctx context.Context, s *Session, apiKey string) (string, error) {
    return s.Traction.RequestToken(ctx, s.TenantID, s.WalletID, apiKey)
}
