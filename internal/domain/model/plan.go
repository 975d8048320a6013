package model

import (
	"time"

	"pix-membership-platform/internal/domain"
)

// Plan is a purchasable subscription plan for one product, priced in
// centavos with a fixed validity in days. Catalog entities are read-only
// from the payment pipeline's perspective.
type Plan struct {
	ID           string // human-chosen, e.g. "ferramentas_mensal"
	ProductID    string // e.g. "ferramentas"
	Name         string
	DurationDays int
	PriceCents   int64
	CreatedAt    time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// NewPlan validates and constructs a plan.
func NewPlan(id, productID, name string, durationDays int, priceCents int64) (*Plan, error) {
	if id == "" || productID == "" || name == "" || durationDays <= 0 || priceCents <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		ID:           id,
		ProductID:    productID,
		Name:         name,
		DurationDays: durationDays,
		PriceCents:   priceCents,
		CreatedAt:    time.Now(),
	}, nil
}
