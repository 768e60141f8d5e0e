package sqlite

import (
	"errors"
	"fmt"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// mapError converts SQLite constraint failures to types.ErrConstraint and
// wraps everything else with the operation name.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *msqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %s: %v", types.ErrConstraint, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
