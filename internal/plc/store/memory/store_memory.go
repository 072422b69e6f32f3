package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"plcwatch/internal/plc/models"
	"plcwatch/pkg/platform/sentinel"
)

// InMemory keeps the four collections in maps and enforces the same uniqueness
// rules as the Postgres schema: one row per natural key, one row per cid.
type InMemory struct {
	mu          sync.RWMutex
	identifiers map[string]*models.Identifier
	handles     map[string]*models.Handle
	endpoints   map[string]*models.ServiceEndpoint
	operations  map[string]*models.Operation
	byDID       map[string][]string
	byHandle    map[string][]string
}

func NewInMemory() *InMemory {
	return &InMemory{
		identifiers: make(map[string]*models.Identifier),
		handles:     make(map[string]*models.Handle),
		endpoints:   make(map[string]*models.ServiceEndpoint),
		operations:  make(map[string]*models.Operation),
		byDID:       make(map[string][]string),
		byHandle:    make(map[string][]string),
	}
}

func (s *InMemory) FindIdentifier(_ context.Context, did string) (*models.Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if identifier, ok := s.identifiers[did]; ok {
		return identifier, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) CreateIdentifier(_ context.Context, identifier *models.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identifiers[identifier.DID]; ok {
		return fmt.Errorf("identifier %q: %w", identifier.DID, sentinel.ErrConflict)
	}
	s.identifiers[identifier.DID] = identifier
	return nil
}

func (s *InMemory) FindHandle(_ context.Context, name string) (*models.Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if handle, ok := s.handles[name]; ok {
		return handle, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) CreateHandle(_ context.Context, handle *models.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[handle.Name]; ok {
		return fmt.Errorf("handle %q: %w", handle.Name, sentinel.ErrConflict)
	}
	s.handles[handle.Name] = handle
	return nil
}

func (s *InMemory) FindServiceEndpoint(_ context.Context, endpoint string) (*models.ServiceEndpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.endpoints[endpoint]; ok {
		return e, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) CreateServiceEndpoint(_ context.Context, endpoint *models.ServiceEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[endpoint.Endpoint]; ok {
		return fmt.Errorf("service endpoint %q: %w", endpoint.Endpoint, sentinel.ErrConflict)
	}
	s.endpoints[endpoint.Endpoint] = endpoint
	return nil
}

func (s *InMemory) ListHandles(_ context.Context) ([]*models.Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) FindOperation(_ context.Context, cid string) (*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if op, ok := s.operations[cid]; ok {
		clone := *op
		return &clone, nil
	}
	return nil, sentinel.ErrNotFound
}

// FindRootOperation returns the operation of did that has no prev.
func (s *InMemory) FindRootOperation(_ context.Context, did string) (*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cid := range s.byDID[did] {
		if op := s.operations[cid]; op.IsRoot() {
			clone := *op
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) CreateOperation(_ context.Context, op *models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operations[op.CID]; ok {
		return fmt.Errorf("operation %q: %w", op.CID, sentinel.ErrConflict)
	}
	if !op.IsRoot() {
		if _, ok := s.operations[op.PrevCID]; !ok {
			return fmt.Errorf("prev operation %q: %w", op.PrevCID, sentinel.ErrNotFound)
		}
	}
	clone := *op
	s.operations[op.CID] = &clone
	s.byDID[op.DID()] = append(s.byDID[op.DID()], op.CID)
	if name := op.HandleName(); name != "" {
		s.byHandle[name] = append(s.byHandle[name], op.CID)
	}
	return nil
}

func (s *InMemory) SetNullified(_ context.Context, cid string, nullified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operations[cid]
	if !ok {
		return sentinel.ErrNotFound
	}
	op.Nullified = nullified
	return nil
}

func (s *InMemory) ListOperationsByIdentifiers(_ context.Context, dids []string) ([]*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Operation
	for _, did := range dids {
		out = append(out, s.collect(s.byDID[did])...)
	}
	return out, nil
}

func (s *InMemory) ListOperationsByHandle(_ context.Context, name string) ([]*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byHandle[name]), nil
}

func (s *InMemory) collect(cids []string) []*models.Operation {
	out := make([]*models.Operation, 0, len(cids))
	for _, cid := range cids {
		clone := *s.operations[cid]
		out = append(out, &clone)
	}
	return out
}
