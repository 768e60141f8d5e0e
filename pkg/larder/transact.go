package larder

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/internal/log"
	"github.com/mesh-intelligence/larder/internal/metrics"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// OpError reports a failed operation.
type OpError struct {
	Op    string
	Store string
	Err   error
}

func (e *OpError) Error() string {
	return "larder: " + e.Op + " " + e.Store + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// transact runs fn in one transaction on store and settles its result:
// commit when fn succeeds, roll back when it fails.
func transact[T any](ctx context.Context, db *Database, op, store string, mode types.Mode, fn func(types.Txn) (T, error)) (result T, err error) {
	store = db.storeName(store)
	start := time.Now()
	ctx = log.WithFields(ctx, zap.String("op", op), zap.String("store", store))
	logger := log.WithContext(ctx, db.logger)

	defer func() {
		metrics.Observe(op, store, start, err)
		if err != nil {
			logger.Debug("operation failed", zap.Error(err))
			err = &OpError{Op: op, Store: store, Err: err}
			return
		}
		logger.Debug("operation done", zap.Duration("took", time.Since(start)))
	}()

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	txn, err := db.conn.Begin(ctx, store, mode)
	if err != nil {
		return zero, err
	}

	result, err = fn(txn)
	if err != nil {
		if rbErr := txn.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return zero, err
	}
	if err := txn.Commit(); err != nil {
		return zero, err
	}
	return result, nil
}
