package registry

// Canonical showcase records mirrored by the adapter. The registry API owns
// these; the adapter only fills in ledger identifiers once registration
// succeeds.

const IdentifierTypeDID = "DID"

type CredentialSchema struct {
    ID             string   `json:"id"`
    Name           string   `json:"name"`
    Version        string   `json:"version"`
    Identifier     string   `json:"identifier,omitempty"`
    IdentifierType string   `json:"identifierType,omitempty"`
    Attributes     []string `json:"attributes"`
}

type CredentialDefinition struct {
    ID               string           `json:"id"`
    Name             string           `json:"name"`
    Version          string           `json:"version"`
    CredentialSchema CredentialSchema `json:"credentialSchema"`
    Identifier       string           `json:"identifier,omitempty"`
    IdentifierType   string           `json:"identifierType,omitempty"`
    Approved         bool             `json:"approved"`
}

// Issuer is the unit of batch reconciliation.
type Issuer struct {
    ID                    string                 `json:"id"`
    Name                  string                 `json:"name"`
    CredentialSchemas     []CredentialSchema     `json:"credentialSchemas"`
    CredentialDefinitions []CredentialDefinition `json:"credentialDefinitions"`
}
