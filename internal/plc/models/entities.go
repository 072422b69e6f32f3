package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind names one of the deduplicated, natural-keyed entities.
type EntityKind string

const (
	EntityIdentifier      EntityKind = "identifier"
	EntityHandle          EntityKind = "handle"
	EntityServiceEndpoint EntityKind = "service_endpoint"
)

func (k EntityKind) IsValid() bool {
	switch k {
	case EntityIdentifier, EntityHandle, EntityServiceEndpoint:
		return true
	}
	return false
}

// EntityRef is the kind-agnostic view of a resolved entity.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
	Key  string     `json:"key"`
}

// Identifier is a DID whose operation history is tracked. Immutable once created.
type Identifier struct {
	ID        uuid.UUID `json:"id"`
	DID       string    `json:"did"`
	CreatedAt time.Time `json:"created_at"`
}

func NewIdentifier(did string, now time.Time) *Identifier {
	return &Identifier{ID: uuid.New(), DID: did, CreatedAt: now}
}

func (i *Identifier) Ref() EntityRef {
	return EntityRef{Kind: EntityIdentifier, ID: i.ID, Key: i.DID}
}

// Handle is a human-readable name some operation bound to an identifier.
// Handles are recycled: many identifiers may reference the same row over time.
type Handle struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"handle"`
	CreatedAt time.Time `json:"-"`
}

func NewHandle(name string, now time.Time) *Handle {
	return &Handle{ID: uuid.New(), Name: name, CreatedAt: now}
}

func (h *Handle) Ref() EntityRef {
	return EntityRef{Kind: EntityHandle, ID: h.ID, Key: h.Name}
}

// ServiceEndpoint is a personal data server URL referenced by operations.
type ServiceEndpoint struct {
	ID        uuid.UUID `json:"id"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"-"`
}

func NewServiceEndpoint(endpoint string, now time.Time) *ServiceEndpoint {
	return &ServiceEndpoint{ID: uuid.New(), Endpoint: endpoint, CreatedAt: now}
}

func (s *ServiceEndpoint) Ref() EntityRef {
	return EntityRef{Kind: EntityServiceEndpoint, ID: s.ID, Key: s.Endpoint}
}
