package models

import (
	"strings"
	"time"
)

// OpType is the wire discriminant of an exported operation.
type OpType string

const (
	OpTypeCreate       OpType = "create"
	OpTypePlcOperation OpType = "plc_operation"
	OpTypePlcTombstone OpType = "plc_tombstone"
)

// AliasScheme prefixes the alsoKnownAs entry that carries the handle.
const AliasScheme = "at://"

// Variant is the decoded body of an exported operation. The set of
// implementations is closed: Genesis, Update and Tombstone.
type Variant interface {
	Kind() OperationKind
	Signature() string
	PrevCID() string
	isVariant()
}

// Genesis is the legacy "create" operation.
type Genesis struct {
	Sig         string
	Handle      string
	Service     string
	SigningKey  string
	RecoveryKey string
}

func (Genesis) Kind() OperationKind { return KindGenesis }
func (g Genesis) Signature() string { return g.Sig }
func (Genesis) PrevCID() string     { return "" }
func (Genesis) isVariant()          {}

// Update is a "plc_operation". Prev is empty for a genesis-form operation.
type Update struct {
	Sig                string
	Prev               string
	PDSEndpoint        string
	AlsoKnownAs        []string
	RotationKeys       []string
	VerificationMethod string
}

func (Update) Kind() OperationKind { return KindUpdate }
func (u Update) Signature() string { return u.Sig }
func (u Update) PrevCID() string   { return u.Prev }
func (Update) isVariant()          {}

// Handle returns the first at:// alias with the scheme stripped.
func (u Update) Handle() (string, bool) {
	for _, aka := range u.AlsoKnownAs {
		if !strings.HasPrefix(aka, AliasScheme) {
			continue
		}
		if name := strings.TrimPrefix(aka, AliasScheme); name != "" {
			return name, true
		}
	}
	return "", false
}

// Tombstone is a "plc_tombstone"; it only points at the operation it retires.
type Tombstone struct {
	Sig  string
	Prev string
}

func (Tombstone) Kind() OperationKind { return KindTombstone }
func (t Tombstone) Signature() string { return t.Sig }
func (t Tombstone) PrevCID() string   { return t.Prev }
func (Tombstone) isVariant()          {}

// ExportedOperation is one decoded record of the directory export feed.
// It carries no database identity.
type ExportedOperation struct {
	DID       string
	CID       string
	Nullified bool
	CreatedAt time.Time
	Operation Variant
}
