package publisher

import (
    "errors"
    "fmt"
    "strings"
)

// Domain errors: "our data is wrong", as opposed to "the network or ledger is
// down". The processor reports them with their own conditions so operators
// can tell the two apart.

// ErrNoPublicDID fails a publish batch before any per-item work: a tenant
// without a public ledger identity cannot anchor anything.
var ErrNoPublicDID = errors.New("tenant has no public ledger identity")

// ErrSchemaUnresolved marks a credential definition whose dependent schema
// identifier cannot be determined. Distinct from "not found".
var ErrSchemaUnresolved = errors.New("cannot resolve dependent schema")

type MissingIdentifierError struct {
    Kind string
    ID   string
}

func (e *MissingIdentifierError) Error() string {
    return fmt.Sprintf("%s %s has no identifier to import", e.Kind, e.ID)
}

type InvalidSchemaResponseError struct {
    Identifier string
    Reason     string
}

func (e *InvalidSchemaResponseError) Error() string {
    return fmt.Sprintf("ledger schema %s response invalid: %s", e.Identifier, e.Reason)
}

type InvalidAttributeNameError struct {
    Identifier string
    Index      int
}

func (e *InvalidAttributeNameError) Error() string {
    return fmt.Sprintf("ledger schema %s attribute %d is not a string", e.Identifier, e.Index)
}

// TimeoutError reports the transactions still outstanding when polling gave
// up.
type TimeoutError struct {
    Outstanding []string
}

func (e *TimeoutError) Error() string {
    return "timed out waiting for transactions: " + strings.Join(e.Outstanding, ", ")
}
