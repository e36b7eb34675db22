package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pyramidtracker/src/database"
	"pyramidtracker/src/model"
)

// AnomalyRepository persists audit records for conditions that must not be
// silently dropped, such as exits without an open trade.
type AnomalyRepository struct {
	db *gorm.DB
}

func NewAnomalyRepository() *AnomalyRepository {
	return &AnomalyRepository{db: database.DB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *AnomalyRepository) WithDB(db *gorm.DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

// Record writes one anomaly row. A failure here is logged but callers may
// choose to continue; losing an audit row must never lose a trade.
func (r *AnomalyRepository) Record(ctx context.Context, anomaly *model.Anomaly) error {
	if err := r.db.WithContext(ctx).Create(anomaly).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AnomalyRepository",
			"op":   "Record",
			"kind": anomaly.Kind,
		}).WithError(err).Error("Failed to record anomaly")

		return err
	}

	return nil
}

// FindRecent lists the latest anomalies, newest first.
func (r *AnomalyRepository) FindRecent(ctx context.Context, limit int) ([]model.Anomaly, error) {
	if limit <= 0 {
		limit = 50
	}

	var anomalies []model.Anomaly

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&anomalies).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "AnomalyRepository",
			"op":    "FindRecent",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch anomalies")

		return nil, err
	}

	return anomalies, nil
}
