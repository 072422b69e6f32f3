package models

import "time"

// OperationKind is the normalized kind of a persisted operation.
type OperationKind string

const (
	KindGenesis   OperationKind = "genesis"
	KindUpdate    OperationKind = "update"
	KindTombstone OperationKind = "tombstone"
)

// Operation is one content-addressed node in an identifier's history.
//
// Invariants:
//   - CID is globally unique and never changes
//   - PrevCID is empty only for the root of an identifier's history
//   - Handle and Endpoint are nil for tombstones
//   - rows are append-only; Nullified is the single field a re-delivery may correct
type Operation struct {
	CID        string           `json:"cid"`
	Kind       OperationKind    `json:"kind"`
	Identifier Identifier       `json:"identifier"`
	PrevCID    string           `json:"prev,omitempty"`
	Handle     *Handle          `json:"handle,omitempty"`
	Endpoint   *ServiceEndpoint `json:"endpoint,omitempty"`
	Nullified  bool             `json:"nullified"`
	CreatedAt  time.Time        `json:"created_at"`
}

func (o *Operation) DID() string {
	return o.Identifier.DID
}

func (o *Operation) IsRoot() bool {
	return o.PrevCID == ""
}

// HandleName returns the bound handle, or "" when the operation carries none.
func (o *Operation) HandleName() string {
	if o.Handle == nil {
		return ""
	}
	return o.Handle.Name
}

// EndpointURL returns the bound service endpoint, or "".
func (o *Operation) EndpointURL() string {
	if o.Endpoint == nil {
		return ""
	}
	return o.Endpoint.Endpoint
}

// Before orders operations by CreatedAt, then CID.
func (o *Operation) Before(other *Operation) bool {
	if !o.CreatedAt.Equal(other.CreatedAt) {
		return o.CreatedAt.Before(other.CreatedAt)
	}
	return o.CID < other.CID
}
