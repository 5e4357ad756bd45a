package publisher

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    "github.com/bcgov/showcase-traction-adapter/internal/logging"
    "github.com/bcgov/showcase-traction-adapter/internal/metrics"
    "github.com/bcgov/showcase-traction-adapter/internal/registry"
    "github.com/bcgov/showcase-traction-adapter/internal/session"
    "github.com/bcgov/showcase-traction-adapter/internal/traction"
)

// Ledger is the slice of the agent API the orchestrator needs.
type Ledger interface {
    PublicDID(ctx context.Context) (string, error)
    ListSchemas(ctx context.Context, name, version string) ([]traction.Schema, error)
    GetSchema(ctx context.Context, id string) (*traction.Schema, error)
    CreateSchema(ctx context.Context, name, version string, attrs []string) (*traction.CreateResult, error)
    ListCredentialDefinitions(ctx context.Context, schemaID string) ([]traction.CredentialDefinition, error)
    CreateCredentialDefinition(ctx context.Context, schemaID, tag string) (*traction.CreateResult, error)
    GetTransaction(ctx context.Context, id string) (*traction.Transaction, error)
}

// Registry is the slice of the showcase API the orchestrator needs.
type Registry interface {
    UpdateSchema(ctx context.Context, s *registry.CredentialSchema) error
    UpdateCredentialDefinition(ctx context.Context, d *registry.CredentialDefinition) error
}

// Publisher reconciles locally-declared schemas and credential definitions
// with the ledger, creating only what is missing. Network and ledger errors
// propagate; "not found" is always a distinct, expected return value.
type Publisher struct {
    ledger   Ledger
    registry Registry
    ev       *logging.EventLogger
}

// ForSession binds a publisher to a cached session's clients.
func ForSession(s *session.Session) *Publisher {
    return New(s.Traction, s.Registry)
}

func New(l Ledger, r Registry) *Publisher {
    return &Publisher{ledger: l, registry: r, ev: logging.NewEventLogger()}
}

// FindExistingSchema lists ledger schemas and performs an exact (name,
// version) match. A lookup failure is an error, never "absent": absence means
// searched and not found.
func (p *Publisher) FindExistingSchema(ctx context.Context, name, version string) (string, bool, error) {
    schemas, err := p.ledger.ListSchemas(ctx, name, version)
    if err != nil {
        return "", false, err
    }
    for _, s := range schemas {
        if s.Name == name && s.Version == version {
            return s.ID, true, nil
        }
    }
    return "", false, nil
}

// CreateSchema registers the schema and, when the ledger assigned an
// identifier, writes it back to the canonical record exactly once.
func (p *Publisher) CreateSchema(ctx context.Context, s *registry.CredentialSchema) (*traction.CreateResult, error) {
    res, err := p.ledger.CreateSchema(ctx, s.Name, s.Version, s.Attributes)
    if err != nil {
        return nil, err
    }
    metrics.SchemasCreatedTotal.Inc()
    p.ev.Publish("schema_created", s.Name, s.Version, res.Identifier, "")
    if res.Identifier != "" {
        s.Identifier = res.Identifier
        s.IdentifierType = registry.IdentifierTypeDID
        if err := p.registry.UpdateSchema(ctx, s); err != nil {
            return nil, err
        }
    }
    return res, nil
}

// resolveSchemaID determines the ledger schema a definition depends on: the
// schema's own identifier, then the per-batch map, then a ledger lookup.
// Failure to resolve is ErrSchemaUnresolved, not "not found".
func (p *Publisher) resolveSchemaID(ctx context.Context, d *registry.CredentialDefinition, batch map[string]string) (string, error) {
    cs := d.CredentialSchema
    if cs.Identifier != "" {
        return cs.Identifier, nil
    }
    if batch != nil {
        if id, ok := batch[cs.ID]; ok && id != "" {
            return id, nil
        }
        if id, ok := batch[cs.Name+"|"+cs.Version]; ok && id != "" {
            return id, nil
        }
    }
    if cs.Name != "" && cs.Version != "" {
        id, found, err := p.FindExistingSchema(ctx, cs.Name, cs.Version)
        if err != nil {
            return "", err
        }
        if found {
            return id, nil
        }
    }
    return "", ErrSchemaUnresolved
}

// FindExistingCredentialDefinition short-circuits on the record's own
// identifier, otherwise matches ledger definitions on (schema id,
// tag=version).
func (p *Publisher) FindExistingCredentialDefinition(ctx context.Context, d *registry.CredentialDefinition, batch map[string]string) (string, bool, error) {
    if d.Identifier != "" {
        return d.Identifier, true, nil
    }
    schemaID, err := p.resolveSchemaID(ctx, d, batch)
    if err != nil {
        return "", false, err
    }
    return p.findCredDefBySchema(ctx, d, schemaID)
}

func (p *Publisher) findCredDefBySchema(ctx context.Context, d *registry.CredentialDefinition, schemaID string) (string, bool, error) {
    defs, err := p.ledger.ListCredentialDefinitions(ctx, schemaID)
    if err != nil {
        return "", false, err
    }
    for _, cd := range defs {
        if cd.SchemaID == schemaID && cd.Tag == d.Version {
            return cd.ID, true, nil
        }
    }
    return "", false, nil
}

// CreateCredentialDefinition registers the definition and writes any assigned
// identifier back to the canonical record.
func (p *Publisher) CreateCredentialDefinition(ctx context.Context, d *registry.CredentialDefinition, schemaID string) (*traction.CreateResult, error) {
    res, err := p.ledger.CreateCredentialDefinition(ctx, schemaID, d.Version)
    if err != nil {
        return nil, err
    }
    metrics.CredDefsCreatedTotal.Inc()
    p.ev.Publish("creddef_created", d.Name, d.Version, res.Identifier, "")
    if res.Identifier != "" {
        d.Identifier = res.Identifier
        d.IdentifierType = registry.IdentifierTypeDID
        if err := p.registry.UpdateCredentialDefinition(ctx, d); err != nil {
            return nil, err
        }
    }
    return res, nil
}

// PublishIssuerAssets reconciles the issuer's declared schemas and approved
// credential definitions against the ledger, in declaration order, and
// returns every transaction id that still needs endorsement. It does not
// block on endorsement; callers poll with WaitForTransactions.
func (p *Publisher) PublishIssuerAssets(ctx context.Context, iss *registry.Issuer) ([]string, error) {
    did, err := p.ledger.PublicDID(ctx)
    if err != nil {
        return nil, err
    }
    if did == "" {
        return nil, ErrNoPublicDID
    }

    txIDs := []string{}
    // schema id map local to this batch, keyed by local id and by
    // name|version; later definitions depend on earlier schemas through it
    batch := make(map[string]string)
    for i := range iss.CredentialSchemas {
        s := &iss.CredentialSchemas[i]
        id := s.Identifier
        if id == "" {
            var found bool
            id, found, err = p.FindExistingSchema(ctx, s.Name, s.Version)
            if err != nil {
                return nil, err
            }
            if found {
                p.ev.Publish("schema_found", s.Name, s.Version, id, "")
            } else {
                res, err := p.CreateSchema(ctx, s)
                if err != nil {
                    return nil, err
                }
                id = res.Identifier
                if res.TransactionID != "" {
                    txIDs = append(txIDs, res.TransactionID)
                    p.ev.Transaction("submitted", res.TransactionID)
                }
            }
        }
        batch[s.ID] = id
        batch[s.Name+"|"+s.Version] = id
    }

    for i := range iss.CredentialDefinitions {
        d := &iss.CredentialDefinitions[i]
        if !d.Approved {
            // expected condition: unapproved definitions are simply not
            // publishable yet
            continue
        }
        id, found, err := p.FindExistingCredentialDefinition(ctx, d, batch)
        if errors.Is(err, ErrSchemaUnresolved) {
            // one bad definition must not block its siblings
            p.ev.Publish("skipped", d.Name, d.Version, "", "cannot resolve dependent schema")
            continue
        }
        if err != nil {
            return nil, err
        }
        if found {
            p.ev.Publish("creddef_found", d.Name, d.Version, id, "")
            continue
        }
        schemaID, err := p.resolveSchemaID(ctx, d, batch)
        if errors.Is(err, ErrSchemaUnresolved) {
            p.ev.Publish("skipped", d.Name, d.Version, "", "cannot resolve dependent schema")
            continue
        }
        if err != nil {
            return nil, err
        }
        res, err := p.CreateCredentialDefinition(ctx, d, schemaID)
        if err != nil {
            return nil, err
        }
        if res.TransactionID != "" {
            txIDs = append(txIDs, res.TransactionID)
            p.ev.Transaction("submitted", res.TransactionID)
        }
    }
    return txIDs, nil
}

// WaitForTransactions polls each still-pending transaction until every one
// reaches a terminal state or the timeout elapses. A 404 becomes the
// synthetic not_found state; any other per-transaction error leaves the id
// pending for the next tick. Empty input resolves immediately.
func (p *Publisher) WaitForTransactions(ctx context.Context, ids []string, interval, timeout time.Duration) (map[string]traction.TxState, error) {
    result := make(map[string]traction.TxState)
    pending := make(map[string]struct{})
    for _, id := range ids {
        if id != "" {
            pending[id] = struct{}{}
        }
    }
    if len(pending) == 0 {
        return result, nil
    }

    deadline := time.NewTimer(timeout)
    defer deadline.Stop()
    tick := time.NewTicker(interval)
    defer tick.Stop()

    for {
        metrics.TxPollTicksTotal.Inc()
        for id := range pending {
            tx, err := p.ledger.GetTransaction(ctx, id)
            if errors.Is(err, traction.ErrNotFound) {
                result[id] = traction.TxNotFound
                delete(pending, id)
                p.ev.Transaction("not_found", id)
                continue
            }
            if err != nil {
                // transient: retry on the next tick
                logging.Debug("transaction_poll_error", logging.F("transaction_id", id), logging.Err(err))
                continue
            }
            if tx.State.Terminal() {
                result[id] = tx.State
                delete(pending, id)
                p.ev.Transaction(string(tx.State), id)
            }
        }
        if len(pending) == 0 {
            return result, nil
        }
        select {
        case <-ctx.Done():
            return result, ctx.Err()
        case <-tick.C:
        case <-deadline.C:
            out := make([]string, 0, len(pending))
            for id := range pending {
                out = append(out, id)
                p.ev.Transaction("timeout", id)
            }
            return result, &TimeoutError{Outstanding: out}
        }
    }
}

// ImportCredentialSchema records an externally-registered schema: the
// identifier must be supplied, the ledger's attribute list must be a sequence
// of strings, and the registry is only updated after both checks pass.
func (p *Publisher) ImportCredentialSchema(ctx context.Context, s *registry.CredentialSchema) error {
    if s.Identifier == "" {
        return &MissingIdentifierError{Kind: "credential schema", ID: s.ID}
    }
    ledgerSchema, err := p.ledger.GetSchema(ctx, s.Identifier)
    if err != nil {
        return err
    }
    attrs, err := decodeAttributeNames(s.Identifier, ledgerSchema.AttrNames)
    if err != nil {
        return err
    }
    s.Attributes = attrs
    s.IdentifierType = registry.IdentifierTypeDID
    if err := p.registry.UpdateSchema(ctx, s); err != nil {
        return err
    }
    p.ev.Publish("imported", s.Name, s.Version, s.Identifier, "")
    return nil
}

// ImportCredentialDefinition records an externally-registered definition.
func (p *Publisher) ImportCredentialDefinition(ctx context.Context, d *registry.CredentialDefinition) error {
    if d.Identifier == "" {
        return &MissingIdentifierError{Kind: "credential definition", ID: d.ID}
    }
    d.IdentifierType = registry.IdentifierTypeDID
    if err := p.registry.UpdateCredentialDefinition(ctx, d); err != nil {
        return err
    }
    p.ev.Publish("imported", d.Name, d.Version, d.Identifier, "")
    return nil
}

func decodeAttributeNames(identifier string, raw json.RawMessage) ([]string, error) {
    if len(raw) == 0 {
        return nil, &InvalidSchemaResponseError{Identifier: identifier, Reason: "missing attribute list"}
    }
    var items []any
    if err := json.Unmarshal(raw, &items); err != nil {
        return nil, &InvalidSchemaResponseError{Identifier: identifier, Reason: "attribute list not parseable"}
    }
    names := make([]string, 0, len(items))
    for i, it := range items {
        s, ok := it.(string)
        if !ok {
            return nil, &InvalidAttributeNameError{Identifier: identifier, Index: i}
        }
        names = append(names, s)
    }
    return names, nil
}
