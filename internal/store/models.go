package store

import "time"

// ReportRecord is a persisted diagnostic report. ReportData holds the full
// report JSON; the other columns are copies used for lookups and listings.
type ReportRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Name       string    `gorm:"size:255"`
	TxHash     string    `gorm:"size:66;not null;index:idx_report_tx_chain"`
	Chain      string    `gorm:"size:64;not null;index:idx_report_tx_chain"`
	Status     string    `gorm:"size:16;index"`
	RootCause  string    `gorm:"type:text"`
	ReportData string    `gorm:"type:text;not null"`
	ExpiresAt  time.Time `gorm:"index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (ReportRecord) TableName() string { return "reports" }

func (r *ReportRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
