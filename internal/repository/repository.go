// Package repository mirrors the ledger into postgres through gorm.
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"privacymixer/internal/models"
)

// GormRepository stores deposits, pool rows and pool snapshots
type GormRepository struct {
	db *gorm.DB
}

// New wraps db
func New(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// SaveDeposit inserts or fully replaces the deposit row with the same id
func (r *GormRepository) SaveDeposit(ctx context.Context, d models.Deposit) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&d).Error
	if err != nil {
		return fmt.Errorf("save deposit %s: %w", d.ID, err)
	}
	return nil
}

// SavePoolStats inserts or replaces the row for the pool's currency. A stored row with a
// later updated_at is kept, so an out-of-order save cannot roll the totals back.
func (r *GormRepository) SavePoolStats(ctx context.Context, s models.PoolStats) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "currency"}},
			UpdateAll: true,
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "pool_stats.updated_at <= excluded.updated_at"},
			}},
		}).
		Create(&s).Error
	if err != nil {
		return fmt.Errorf("save pool stats %s: %w", s.Currency, err)
	}
	return nil
}

// LoadDeposits returns every deposit ordered by deposit time
func (r *GormRepository) LoadDeposits(ctx context.Context) ([]models.Deposit, error) {
	var deposits []models.Deposit
	if err := r.db.WithContext(ctx).Order("deposit_time ASC, id ASC").Find(&deposits).Error; err != nil {
		return nil, fmt.Errorf("load deposits: %w", err)
	}
	return deposits, nil
}

// LoadPoolStats returns every pool row ordered by currency
func (r *GormRepository) LoadPoolStats(ctx context.Context) ([]models.PoolStats, error) {
	var stats []models.PoolStats
	if err := r.db.WithContext(ctx).Order("currency ASC").Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("load pool stats: %w", err)
	}
	return stats, nil
}

// SaveSnapshots writes one snapshot row per pool, all stamped with takenAt
func (r *GormRepository) SaveSnapshots(ctx context.Context, pools []models.PoolStats, takenAt time.Time) error {
	if len(pools) == 0 {
		return nil
	}
	rows := make([]models.PoolSnapshot, 0, len(pools))
	for _, p := range pools {
		rows = append(rows, models.NewPoolSnapshot(p, takenAt))
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("save pool snapshots: %w", err)
	}
	return nil
}

// ListSnapshots returns the snapshots of currency taken in [from, to], oldest first
func (r *GormRepository) ListSnapshots(ctx context.Context, currency models.Currency, from, to time.Time) ([]models.PoolSnapshot, error) {
	var rows []models.PoolSnapshot
	err := r.db.WithContext(ctx).
		Where("currency = ? AND taken_at BETWEEN ? AND ?", currency, from, to).
		Order("taken_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list snapshots %s: %w", currency, err)
	}
	return rows, nil
}

// Clear removes all deposits and pool rows; snapshots are history and are kept
func (r *GormRepository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Deposit{}).Error; err != nil {
			return fmt.Errorf("clear deposits: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PoolStats{}).Error; err != nil {
			return fmt.Errorf("clear pool stats: %w", err)
		}
		return nil
	})
}
