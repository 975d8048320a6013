package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusNone    SubscriptionStatus = "none"
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

// UserSubscription is the entitlement a user holds for one product. A user
// has at most one per product; renewals mutate it in place.
type UserSubscription struct {
	UserID            string
	ProductID         string
	Status            SubscriptionStatus
	PlanID            *string
	StartedAt         *time.Time
	ExpiresAt         *time.Time
	LastTransactionID *string
}

// EffectivelyActive resolves staleness at read time: the cached status string
// alone is not authoritative once the expiry has passed.
func (s *UserSubscription) EffectivelyActive(now time.Time) bool {
	if s == nil || s.Status != SubscriptionStatusActive {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// ComputeRenewal is the entitlement calculator. It is a pure function of its
// inputs so that webhook and reconciler runs for the same payment compute the
// same record; the caller's status compare-and-set guarantees only one of
// them commits.
//
// A missing, inactive or expired subscription starts fresh at now. An
// effectively active one stacks the plan duration onto the authoritative
// remaining expiry rather than resetting it.
func ComputeRenewal(existing *UserSubscription, plan *Plan, now time.Time, transactionID string) UserSubscription {
	started := now
	expires := now.Add(time.Duration(plan.DurationDays) * 24 * time.Hour)
	if existing.EffectivelyActive(now) && existing.ExpiresAt != nil {
		expires = existing.ExpiresAt.Add(time.Duration(plan.DurationDays) * 24 * time.Hour)
	}
	planID := plan.ID
	txID := transactionID
	var userID string
	if existing != nil {
		userID = existing.UserID
	}
	return UserSubscription{
		UserID:            userID,
		ProductID:         plan.ProductID,
		Status:            SubscriptionStatusActive,
		PlanID:            &planID,
		StartedAt:         &started,
		ExpiresAt:         &expires,
		LastTransactionID: &txID,
	}
}
