// Package decode turns exported directory records into tagged operation variants.
//
// Every variant's required fields are checked here, once. Consumers switch on the
// returned models.Variant and never re-validate or cast.
package decode

import (
	"encoding/json"
	"fmt"
	"time"

	"plcwatch/internal/plc/models"
)

type wireRecord struct {
	DID       *string        `json:"did"`
	CID       *string        `json:"cid"`
	Nullified bool           `json:"nullified"`
	CreatedAt *string        `json:"createdAt"`
	Operation *wireOperation `json:"operation"`
}

type wireOperation struct {
	Type *string `json:"type"`
	Sig  *string `json:"sig"`
	Prev *string `json:"prev"`

	// create
	Handle      *string `json:"handle"`
	Service     *string `json:"service"`
	SigningKey  *string `json:"signingKey"`
	RecoveryKey *string `json:"recoveryKey"`

	// plc_operation
	Services            *wireServices            `json:"services"`
	AlsoKnownAs         *[]string                `json:"alsoKnownAs"`
	RotationKeys        *[]string                `json:"rotationKeys"`
	VerificationMethods *wireVerificationMethods `json:"verificationMethods"`
}

type wireServices struct {
	AtprotoPDS *struct {
		Type     string  `json:"type"`
		Endpoint *string `json:"endpoint"`
	} `json:"atproto_pds"`
}

type wireVerificationMethods struct {
	Atproto *string `json:"atproto"`
}

// Decode parses one exported record.
func Decode(data []byte) (*models.ExportedOperation, error) {
	var rec wireRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, models.Invalid("record", fmt.Sprintf("invalid json: %v", err))
	}

	did, err := required("did", rec.DID)
	if err != nil {
		return nil, err
	}
	cid, err := required("cid", rec.CID)
	if err != nil {
		return nil, err
	}
	rawCreatedAt, err := required("createdAt", rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreatedAt)
	if err != nil {
		return nil, models.Invalid("createdAt", "not an RFC 3339 timestamp")
	}
	if rec.Operation == nil {
		return nil, models.Missing("operation")
	}

	variant, err := decodeVariant(rec.Operation)
	if err != nil {
		return nil, err
	}

	return &models.ExportedOperation{
		DID:       did,
		CID:       cid,
		Nullified: rec.Nullified,
		CreatedAt: createdAt.UTC(),
		Operation: variant,
	}, nil
}

func decodeVariant(op *wireOperation) (models.Variant, error) {
	opType, err := required("operation.type", op.Type)
	if err != nil {
		return nil, err
	}
	sig, err := required("operation.sig", op.Sig)
	if err != nil {
		return nil, err
	}

	switch models.OpType(opType) {
	case models.OpTypeCreate:
		return decodeGenesis(sig, op)
	case models.OpTypePlcOperation:
		return decodeUpdate(sig, op)
	case models.OpTypePlcTombstone:
		prev, err := required("operation.prev", op.Prev)
		if err != nil {
			return nil, err
		}
		return models.Tombstone{Sig: sig, Prev: prev}, nil
	default:
		return nil, models.Invalid("operation.type", fmt.Sprintf("unknown type %q", opType))
	}
}

func decodeGenesis(sig string, op *wireOperation) (models.Variant, error) {
	if op.Prev != nil && *op.Prev != "" {
		return nil, models.Invalid("operation.prev", "must be null for create")
	}
	g := models.Genesis{Sig: sig}
	fields := []struct {
		name string
		src  *string
		dst  *string
	}{
		{"operation.handle", op.Handle, &g.Handle},
		{"operation.service", op.Service, &g.Service},
		{"operation.signingKey", op.SigningKey, &g.SigningKey},
		{"operation.recoveryKey", op.RecoveryKey, &g.RecoveryKey},
	}
	for _, f := range fields {
		v, err := required(f.name, f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return g, nil
}

func decodeUpdate(sig string, op *wireOperation) (models.Variant, error) {
	if op.Services == nil {
		return nil, models.Missing("operation.services")
	}
	if op.Services.AtprotoPDS == nil {
		return nil, models.Missing("operation.services.atproto_pds")
	}
	endpoint, err := required("operation.services.atproto_pds.endpoint", op.Services.AtprotoPDS.Endpoint)
	if err != nil {
		return nil, err
	}
	if op.AlsoKnownAs == nil {
		return nil, models.Missing("operation.alsoKnownAs")
	}
	if op.RotationKeys == nil {
		return nil, models.Missing("operation.rotationKeys")
	}
	if op.VerificationMethods == nil {
		return nil, models.Missing("operation.verificationMethods")
	}
	verification, err := required("operation.verificationMethods.atproto", op.VerificationMethods.Atproto)
	if err != nil {
		return nil, err
	}

	u := models.Update{
		Sig:                sig,
		PDSEndpoint:        endpoint,
		AlsoKnownAs:        *op.AlsoKnownAs,
		RotationKeys:       *op.RotationKeys,
		VerificationMethod: verification,
	}
	if op.Prev != nil {
		u.Prev = *op.Prev
	}
	return u, nil
}

func required(field string, v *string) (string, error) {
	if v == nil || *v == "" {
		return "", models.Missing(field)
	}
	return *v, nil
}
