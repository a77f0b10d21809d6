package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("store: not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *DB) *Repository { return &Repository{db: db.DB} }

// SaveReport inserts the report or replaces a record with the same id.
func (r *Repository) SaveReport(ctx context.Context, rec *ReportRecord) error {
	rec.TxHash = strings.ToLower(rec.TxHash)
	rec.Chain = strings.ToLower(rec.Chain)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name":        rec.Name,
			"status":      rec.Status,
			"root_cause":  rec.RootCause,
			"report_data": rec.ReportData,
			"expires_at":  rec.ExpiresAt,
			"updated_at":  gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(rec).Error
}

// GetReport returns the report with id, or nil when it is missing or expired.
func (r *Repository) GetReport(ctx context.Context, id string, now time.Time) (*ReportRecord, error) {
	var rec ReportRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, now).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// FindLatestByTx returns the newest unexpired report for a transaction on a
// chain, or nil.
func (r *Repository) FindLatestByTx(ctx context.Context, txHash, chain string, now time.Time) (*ReportRecord, error) {
	var rec ReportRecord
	err := r.db.WithContext(ctx).
		Where("tx_hash = ? AND chain = ? AND expires_at > ?", strings.ToLower(txHash), strings.ToLower(chain), now).
		Order("created_at desc").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

type ReportListParams struct {
	Chain  string
	Status string
	Limit  int
}

// ListReports returns unexpired reports, newest first.
func (r *Repository) ListReports(ctx context.Context, params ReportListParams, now time.Time) ([]ReportRecord, error) {
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := r.db.WithContext(ctx).
		Select("id", "name", "tx_hash", "chain", "status", "root_cause", "expires_at", "created_at", "updated_at").
		Where("expires_at > ?", now)
	if params.Chain != "" {
		query = query.Where("chain = ?", strings.ToLower(params.Chain))
	}
	if params.Status != "" {
		query = query.Where("status = ?", strings.ToLower(params.Status))
	}
	var out []ReportRecord
	err := query.Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// PurgeExpired deletes every report whose expiry is not after now.
func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&ReportRecord{})
	return res.RowsAffected, res.Error
}
