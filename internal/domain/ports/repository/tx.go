package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Repositories accept it alongside ctx
// and fall back to their non-transactional executor when it is nil; the
// concrete type is infra-defined (pgx.Tx for Postgres).
type Tx interface{}

// NoTX is passed where a method requires a Tx argument but the caller wants
// the non-transactional path.
var NoTX Tx

// TransactionManager executes fn inside a database transaction, passing the
// transaction handle through so repositories can share it. If fn returns an
// error the transaction is rolled back, otherwise committed.
//
// All entitlement and balance mutations in the payment pipeline go through
// WithTx: the pending->terminal compare-and-set on a payment record, the
// subscription upsert, and the commission credit/reversal must land
// atomically or not at all.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
