package traction

import "encoding/json"

// TxState is the endorsement transaction lifecycle as reported by the agent.
// not_found is synthesized by the poller for transactions that disappeared.
type TxState string

const (
    TxPending   TxState = "pending"
    TxCompleted TxState = "completed"
    TxRefused   TxState = "refused"
    TxCancelled TxState = "cancelled"
    TxNotFound  TxState = "not_found"
)

// Terminal reports whether a transaction in this state will never change again.
func (s TxState) Terminal() bool {
    switch s {
    case TxCompleted, TxRefused, TxCancelled:
        return true
    }
    return false
}

type Transaction struct {
    ID    string  `json:"transaction_id"`
    State TxState `json:"state"`
}

// Schema is a ledger-anchored schema. AttrNames stays raw so importers can
// validate the attribute list shape themselves.
type Schema struct {
    ID        string          `json:"id"`
    Name      string          `json:"name"`
    Version   string          `json:"version"`
    AttrNames json.RawMessage `json:"attrNames"`
}

type CredentialDefinition struct {
    ID       string `json:"id"`
    SchemaID string `json:"schema_id"`
    Tag      string `json:"tag"`
}

// CreateResult is the synchronous/asynchronous duality of ledger writes: an
// endorsement-required ledger may return only a pending transaction id.
type CreateResult struct {
    Identifier    string
    TransactionID string
}
