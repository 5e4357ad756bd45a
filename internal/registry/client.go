package registry

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

var ErrNotFound = errors.New("not found")

type APIError struct {
    Status int
    Body   string
}

func (e *APIError) Error() string { return fmt.Sprintf("registry api status %d: %s", e.Status, e.Body) }

// Client updates the canonical showcase records once ledger registration
// succeeds. The token is read per request so session refreshes take effect.
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
            return fmt.Errorf("decode registry response: %w", err)
        }
    }
    return nil
}

// UpdateSchema writes the ledger identifier (and on import, the attribute
// list) back to the canonical record.
func (c *Client) UpdateSchema(ctx context.Context, s *CredentialSchema) error {
    return c.do(ctx, http.MethodPut, "/credentials/schemas/"+url.PathEscape(s.ID), s, nil)
}

func (c *Client) UpdateCredentialDefinition(ctx context.Context, d *CredentialDefinition) error {
    return c.do(ctx, http.MethodPut, "/credentials/definitions/"+url.PathEscape(d.ID), d, nil)
}
