package traction

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"
)

// ErrNotFound marks a 404 from the agent; callers that need to distinguish
// "searched and not found" from transport failure test for it.
var ErrNotFound = errors.New("not found")

// APIError is any non-2xx agent response.
type APIError struct {
    Status int
    Body   string
}

func (e *APIError) Error() string { return fmt.Sprintf("traction api status %d: %s", e.Status, e.Body) }

// Client talks to the multi-tenant agent fronting the ledger. The bearer
// token is read through tokenFn on every request so an in-place session
// refresh is picked up without rebuilding the client.
type Client struct {
    base    string
    http    *http.Client
    tokenFn func() string
}

func NewClient(base string, timeout time.Duration, tokenFn func() string) *Client {
    return &Client{
        base:    strings.TrimRight(base, "/"),
        http:    &http.Client{Timeout: timeout},
        tokenFn: tokenFn,
    }
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
    var rd io.Reader
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return err }
        rd = bytes.NewReader(b)
    }
    req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
    if err != nil { return err }
    req.Header.Set("Content-Type", "application/json")
    if c.tokenFn != nil {
        if tok := c.tokenFn(); tok != "" {
            req.Header.Set("Authorization", "Bearer "+tok)
        }
    }
    resp, err := c.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
    if resp.StatusCode == http.StatusNotFound {
        return ErrNotFound
    }
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
    }
    if out != nil {
        if err := json.Unmarshal(b, out); err != nil {
            return fmt.Errorf("decode traction response: %w", err)
        }
    }
    return nil
}

// RequestToken exchanges the tenant API key for a bearer token.
func (c *Client) RequestToken(ctx context.Context, tenantID, walletID, apiKey string) (string, error) {
    var out struct {
        Token string `json:"token"`
    }
    body := map[string]string{"api_key": apiKey, "wallet_id": walletID}
    if err := c.do(ctx, http.MethodPost, "/multitenancy/tenant/"+url.PathEscape(tenantID)+"/token", body, &out); err != nil {
        return "", err
    }
    if out.Token == "" {
        return "", errors.New("traction token response empty")
    }
    return out.Token, nil
}

// PublicDID returns the tenant's public ledger identity, or "" when the
// tenant has none (which is not a transport error).
func (c *Client) PublicDID(ctx context.Context) (string, error) {
    var out struct {
        Result struct {
            DID string `json:"did"`
        } `json:"result"`
    }
    err := c.do(ctx, http.MethodGet, "/wallet/did/public", nil, &out)
    if errors.Is(err, ErrNotFound) {
        return "", nil
    }
    if err != nil {
        return "", err
    }
    return out.Result.DID, nil
}

// ListSchemas lists ledger-known schemas filtered by name and version. The
// caller still performs the exact match.
func (c *Client) ListSchemas(ctx context.Context, name, version string) ([]Schema, error) {
    q := url.Values{}
    if name != "" { q.Set("schema_name", name) }
    if version != "" { q.Set("schema_version", version) }
    var out struct {
        Results []Schema `json:"results"`
    }
    if err := c.do(ctx, http.MethodGet, "/schemas?"+q.Encode(), nil, &out); err != nil {
        return nil, err
    }
    return out.Results, nil
}

// GetSchema fetches one schema by its ledger identifier.
func (c *Client) GetSchema(ctx context.Context, id string) (*Schema, error) {
    var out struct {
        Schema *Schema `json:"schema"`
    }
    if err := c.do(ctx, http.MethodGet, "/schemas/"+url.PathEscape(id), nil, &out); err != nil {
        return nil, err
    }
    if out.Schema == nil {
        return nil, ErrNotFound
    }
    return out.Schema, nil
}

// CreateSchema registers a schema. Endorsement-required ledgers answer with a
// pending transaction instead of an identifier.
func (c *Client) CreateSchema(ctx context.Context, name, version string, attrs []string) (*CreateResult, error) {
    body := map[string]any{
        "schema_name":    name,
        "schema_version": version,
        "attributes":     attrs,
    }
    var out struct {
        SchemaID string `json:"schema_id"`
        Txn      *struct {
            TransactionID string `json:"transaction_id"`
        } `json:"txn"`
    }
    if err := c.do(ctx, http.MethodPost, "/schemas", body, &out); err != nil {
        return nil, err
    }
    res := &CreateResult{Identifier: out.SchemaID}
    if out.Txn != nil {
        res.TransactionID = out.Txn.TransactionID
    }
    return res, nil
}

// ListCredentialDefinitions lists the tenant's definitions for a schema.
func (c *Client) ListCredentialDefinitions(ctx context.Context, schemaID string) ([]CredentialDefinition, error) {
    q := url.Values{}
    if schemaID != "" { q.Set("schema_id", schemaID) }
    var out struct {
        Results []CredentialDefinition `json:"results"`
    }
    if err := c.do(ctx, http.MethodGet, "/credential-definitions?"+q.Encode(), nil, &out); err != nil {
        return nil, err
    }
    return out.Results, nil
}

// CreateCredentialDefinition registers a definition bound to schemaID with
// the given tag.
func (c *Client) CreateCredentialDefinition(ctx context.Context, schemaID, tag string) (*CreateResult, error) {
    body := map[string]any{
        "schema_id": schemaID,
        "tag":       tag,
    }
    var out struct {
        CredentialDefinitionID string `json:"credential_definition_id"`
        Txn                    *struct {
            TransactionID string `json:"transaction_id"`
        } `json:"txn"`
    }
    if err := c.do(ctx, http.MethodPost, "/credential-definitions", body, &out); err != nil {
        return nil, err
    }
    res := &CreateResult{Identifier: out.CredentialDefinitionID}
    if out.Txn != nil {
        res.TransactionID = out.Txn.TransactionID
    }
    return res, nil
}

// GetTransaction reports the endorsement state of one ledger transaction.
// A vanished transaction surfaces as ErrNotFound.
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
    var out Transaction
    if err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id), nil, &out); err != nil {
        return nil, err
    }
    if out.ID == "" {
        out.ID = id
    }
    return &out, nil
}
