package sweeper

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// SweepCheckpoint records how far the fallback sweep has read each store's
// settled-invoice history.
type SweepCheckpoint struct {
	StoreID     string    `json:"store_id" gorm:"primaryKey;type:text"`
	LastSweepAt time.Time `json:"last_sweep_at" gorm:"not null"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null"`
}

func (SweepCheckpoint) TableName() string { return "sweep_checkpoints" }

func findCheckpoint(ctx context.Context, db *gorm.DB, storeID string) (*SweepCheckpoint, error) {
	var checkpoint SweepCheckpoint
	err := db.WithContext(ctx).Raw(
		`SELECT store_id, last_sweep_at, updated_at
		 FROM sweep_checkpoints
		 WHERE store_id = ?
		 LIMIT 1`,
		storeID,
	).Scan(&checkpoint).Error
	if err != nil {
		return nil, err
	}
	if checkpoint.StoreID == "" {
		return nil, nil
	}
	return &checkpoint, nil
}

func saveCheckpoint(ctx context.Context, db *gorm.DB, checkpoint *SweepCheckpoint) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sweep_checkpoints (store_id, last_sweep_at, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (store_id) DO UPDATE SET
			last_sweep_at = EXCLUDED.last_sweep_at,
			updated_at = EXCLUDED.updated_at`,
		checkpoint.StoreID,
		checkpoint.LastSweepAt,
		checkpoint.UpdatedAt,
	).Error
}
