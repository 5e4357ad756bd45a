package protocol

import (
    "encoding/base64"
    "encoding/json"
    "fmt"
    "time"

    "github.com/google/uuid"

    "github.com/bcgov/showcase-traction-adapter/internal/registry"
)

// Action is the closed set of commands the adapter executes. Unknown values
// are a terminal protocol error, never silently ignored.
type Action string

const (
    ActionPublishIssuerAssets  Action = "publish-issuer-assets"
    ActionImportSchema         Action = "import-credential-schema"
    ActionImportCredDef        Action = "import-credential-definition"
)

// CommandEnvelope is one delivered command, immutable once decoded and owned
// by the processor for the duration of the delivery.
type CommandEnvelope struct {
    MessageID       string
    Action          Action
    TenantID        string
    WalletID        string
    LedgerAPIBase   string
    RegistryAPIBase string
    EncryptedToken  []byte
    TokenNonce      []byte
    Payload         []byte
}

// Err is a typed protocol error with a stable condition code.
type Err struct {
    Condition string
    Message   string
}

func (e *Err) Error() string { return e.Condition + ": " + e.Message }

// Header field names on the broker record.
const (
    FieldAction          = "action"
    FieldTenantID        = "tenantId"
    FieldWalletID        = "walletId"
    FieldLedgerAPIBase   = "ledgerApiBase"
    FieldRegistryAPIBase = "registryApiBase"
    FieldTokenEnc        = "accessTokenEnc"
    FieldTokenNonce      = "accessTokenNonce"
    FieldPayload         = "payload"
)

// Defaults supplies configured fallbacks applied when a header is absent.
// Tenant and wallet defaults are independent values.
type Defaults struct {
    TenantID        string
    WalletID        string
    LedgerAPIBase   string
    RegistryAPIBase string
}

func field(values map[string]any, key string) string {
    if v, ok := values[key]; ok {
        if s, ok := v.(string); ok { return s }
    }
    return ""
}

// DecodeHeaders validates the broker record's fields and assembles the
// envelope. Each missing required header has its own diagnosable reason, and
// none of these reach the orchestrator.
func DecodeHeaders(messageID string, values map[string]any, def Defaults) (*CommandEnvelope, error) {
    action := field(values, FieldAction)
    if action == "" {
        return nil, &Err{Condition: "missing-header", Message: "message did not contain an action"}
    }
    switch Action(action) {
    case ActionPublishIssuerAssets, ActionImportSchema, ActionImportCredDef:
    default:
        return nil, &Err{Condition: "unsupported-action", Message: fmt.Sprintf("unsupported action %q", action)}
    }
    tenant := field(values, FieldTenantID)
    if tenant == "" { tenant = def.TenantID }
    if tenant == "" {
        return nil, &Err{Condition: "missing-header", Message: "message did not contain the tenant id"}
    }
    wallet := field(values, FieldWalletID)
    if wallet == "" { wallet = def.WalletID }
    if wallet == "" {
        return nil, &Err{Condition: "missing-header", Message: "message did not contain the wallet id"}
    }
    ledgerBase := field(values, FieldLedgerAPIBase)
    if ledgerBase == "" { ledgerBase = def.LedgerAPIBase }
    registryBase := field(values, FieldRegistryAPIBase)
    if registryBase == "" { registryBase = def.RegistryAPIBase }

    env := &CommandEnvelope{
        MessageID:       messageID,
        Action:          Action(action),
        TenantID:        tenant,
        WalletID:        wallet,
        LedgerAPIBase:   ledgerBase,
        RegistryAPIBase: registryBase,
        Payload:         []byte(field(values, FieldPayload)),
    }
    if enc := field(values, FieldTokenEnc); enc != "" {
        b, err := base64.StdEncoding.DecodeString(enc)
        if err != nil {
            return nil, &Err{Condition: "bad-header", Message: "accessTokenEnc is not valid base64"}
        }
        env.EncryptedToken = b
    }
    if nb := field(values, FieldTokenNonce); nb != "" {
        b, err := base64.StdEncoding.DecodeString(nb)
        if err != nil {
            return nil, &Err{Condition: "bad-header", Message: "accessTokenNonce is not valid base64"}
        }
        env.TokenNonce = b
    }
    return env, nil
}

// Payload decoding is a tagged union: exactly one shape per action, checked
// strictly before any external call.

func DecodeIssuerPayload(payload []byte) (*registry.Issuer, error) {
    var iss registry.Issuer
    if err := json.Unmarshal(payload, &iss); err != nil {
        return nil, &Err{Condition: "bad-payload", Message: "payload is not a valid issuer: " + err.Error()}
    }
    if iss.ID == "" {
        return nil, &Err{Condition: "bad-payload", Message: "issuer payload missing id"}
    }
    return &iss, nil
}

func DecodeSchemaPayload(payload []byte) (*registry.CredentialSchema, error) {
    var s registry.CredentialSchema
    if err := json.Unmarshal(payload, &s); err != nil {
        return nil, &Err{Condition: "bad-payload", Message: "payload is not a valid credential schema: " + err.Error()}
    }
    if s.ID == "" {
        return nil, &Err{Condition: "bad-payload", Message: "credential schema payload missing id"}
    }
    return &s, nil
}

func DecodeCredDefPayload(payload []byte) (*registry.CredentialDefinition, error) {
    var d registry.CredentialDefinition
    if err := json.Unmarshal(payload, &d); err != nil {
        return nil, &Err{Condition: "bad-payload", Message: "payload is not a valid credential definition: " + err.Error()}
    }
    if d.ID == "" {
        return nil, &Err{Condition: "bad-payload", Message: "credential definition payload missing id"}
    }
    return &d, nil
}

// Rejection is the structured outcome written to the reject stream. The
// description is safe to log and alert on; it never carries token material.
type Rejection struct {
    ID          string `json:"id"`
    TS          int64  `json:"ts"`
    MessageID   string `json:"messageId"`
    Info        string `json:"info"`
    Condition   string `json:"condition"`
    Description string `json:"description"`
}

// NewRejection builds a rejection record with the addressing context the
// operators need to trace the failure.
func NewRejection(env *CommandEnvelope, condition, description string) Rejection {
    r := Rejection{
        ID:          func() string { u, _ := uuid.NewV7(); return u.String() }(),
        TS:          time.Now().UnixNano(),
        Condition:   condition,
        Description: description,
    }
    if env != nil {
        r.MessageID = env.MessageID
        r.Info = fmt.Sprintf("apiBasePath=%s; tenantId=%s; walletId=%s", env.LedgerAPIBase, env.TenantID, env.WalletID)
    }
    return r
}
