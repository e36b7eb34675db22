package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pyramidtracker/src/database"
	"pyramidtracker/src/model"
)

// ReportRepository persists generated daily reports keyed by date.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository() *ReportRepository {
	return &ReportRepository{db: database.DB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ReportRepository) WithDB(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Save writes a report record, replacing any earlier run for the same date.
// Regenerating a report is a normal operation, not a conflict.
func (r *ReportRepository) Save(ctx context.Context, record *model.DailyReportRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_trades", "total_pyramids", "net_pnl", "report_json", "generated_at",
			}),
		}).
		Create(record).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ReportRepository",
			"op":   "Save",
			"date": record.Date,
		}).WithError(err).Error("Failed to save daily report")

		return err
	}

	return nil
}

// FindByDate returns the stored report for a date, or (nil, nil) when none
// was generated.
func (r *ReportRepository) FindByDate(ctx context.Context, date string) (*model.DailyReportRecord, error) {
	var record model.DailyReportRecord

	err := r.db.WithContext(ctx).
		Where("date = ?", date).
		First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "ReportRepository",
			"op":   "FindByDate",
			"date": date,
		}).WithError(err).Error("Failed to fetch daily report")

		return nil, err
	}

	return &record, nil
}
