package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrUserNotFound       = errors.New("user not found")
	ErrAffiliateNotFound  = errors.New("affiliate not found")

	// Payment pipeline
	ErrAlreadyProcessed     = errors.New("payment already processed")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrMissingGatewayRef    = errors.New("payment has no gateway transaction id")
	ErrDuplicateProductPlan = errors.New("basket contains two plans for the same product")

	// Commission ledger
	ErrCommissionNotPending = errors.New("commission is not in pending state")
	ErrInsufficientBalance  = errors.New("insufficient affiliate balance")

	// Coupons
	ErrCouponExpired   = errors.New("coupon has expired")
	ErrCouponExhausted = errors.New("coupon usage limit reached")

	// Infra
	ErrLockNotAcquired = errors.New("could not acquire lock")
)
