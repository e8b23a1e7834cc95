package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type latestRow struct {
	EntityID uuid.UUID `gorm:"column:entity_id"`
	Status   string    `gorm:"column:status"`
}

// latestRows is the one query that answers "what is the current status".
// The newest row wins by timestamp; equal timestamps fall back to insertion
// order through the serial id.
func latestRows(ctx context.Context, db *gorm.DB, table, key string, ids []uuid.UUID) ([]latestRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT h.%[2]s AS entity_id, h.status AS status
FROM %[1]s h
WHERE h.%[2]s IN ?
  AND NOT EXISTS (
    SELECT 1 FROM %[1]s n
    WHERE n.%[2]s = h.%[2]s
      AND (n.timestamp_ms > h.timestamp_ms OR (n.timestamp_ms = h.timestamp_ms AND n.id > h.id))
  )`, table, key)

	var rows []latestRow
	if err := db.WithContext(ctx).Raw(query, ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
