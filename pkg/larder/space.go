package larder

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// UnitKB is the unit Estimate reports in.
const UnitKB = "kb"

// Estimate reports how much space the database uses, in kilobytes. Quota
// comes from Config.QuotaKB; when it is 0 the quota is unknown and both
// quota and remaining are reported as 0.
func (db *Database) Estimate(ctx context.Context) (types.Space, error) {
	if err := ctx.Err(); err != nil {
		return types.Space{}, err
	}
	size, err := db.conn.Size()
	if err != nil {
		return types.Space{}, &OpError{Op: "estimate", Store: db.cfg.Name, Err: err}
	}
	return space(size, db.cfg.QuotaKB), nil
}

func space(sizeBytes int64, quotaKB uint64) types.Space {
	s := types.Space{
		UsageKB: float64(sizeBytes) / 1024,
		Unit:    UnitKB,
	}
	if quotaKB > 0 {
		s.QuotaKB = float64(quotaKB)
		s.RemainingKB = max(s.QuotaKB-s.UsageKB, 0)
	}
	return s
}

// FormatSpace renders s for display.
func FormatSpace(s types.Space) string {
	if s.QuotaKB == 0 {
		return fmt.Sprintf("%.1f%s used", s.UsageKB, s.Unit)
	}
	return fmt.Sprintf("%.1f%s used of %.1f%s (%.1f%s remaining)", s.UsageKB, s.Unit, s.QuotaKB, s.Unit, s.RemainingKB, s.Unit)
}
