package handler

import (
	"time"

	"plcwatch/internal/plc/chain"
	"plcwatch/internal/plc/models"
)

type HandleView struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

type HandlesResponse struct {
	Handles []HandleView `json:"handles"`
}

type OperationView struct {
	CID       string    `json:"cid"`
	Kind      string    `json:"kind"`
	Prev      string    `json:"prev,omitempty"`
	Handle    string    `json:"handle,omitempty"`
	PDS       string    `json:"pds,omitempty"`
	Nullified bool      `json:"nullified"`
	CreatedAt time.Time `json:"created_at"`
}

type ChainView struct {
	Canonical  bool            `json:"canonical"`
	Operations []OperationView `json:"operations"`
}

type ChainsResponse struct {
	DID    string      `json:"did"`
	Chains []ChainView `json:"chains"`
}

func toHandleViews(handles []*models.Handle) []HandleView {
	out := make([]HandleView, 0, len(handles))
	for _, h := range handles {
		out = append(out, HandleView{ID: h.ID.String(), Handle: h.Name})
	}
	return out
}

// NewChainsResponse renders ranked chains; the first one is canonical.
func NewChainsResponse(did string, chains []chain.Chain) ChainsResponse {
	resp := ChainsResponse{DID: did, Chains: make([]ChainView, 0, len(chains))}
	for i, c := range chains {
		view := ChainView{Canonical: i == 0, Operations: make([]OperationView, 0, len(c))}
		for _, op := range c {
			view.Operations = append(view.Operations, ToOperationView(op))
		}
		resp.Chains = append(resp.Chains, view)
	}
	return resp
}

func ToOperationView(op *models.Operation) OperationView {
	return OperationView{
		CID:       op.CID,
		Kind:      string(op.Kind),
		Prev:      op.PrevCID,
		Handle:    op.HandleName(),
		PDS:       op.EndpointURL(),
		Nullified: op.Nullified,
		CreatedAt: op.CreatedAt,
	}
}
