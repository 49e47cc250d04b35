package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction. The handle passed
// to fn is infra-defined (pgx.Tx for Postgres) and is handed unchanged to
// repository methods. Repositories accept a nil Tx for the non-transactional
// path.
//
// Job record creation and its outbox row share one WithTx call, and so does
// every ledger debit (row lock, balance update and ledger entry).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
