package model

import "time"

const (
	AnomalyOrphanExit       = "orphan_exit"
	AnomalyValidationWarn   = "validation_warning"
	AnomalyConflictingAlert = "conflicting_alert"
	AnomalyPyramidLimit     = "pyramid_limit"
)

// Anomaly records an operator-visible condition that must be persisted
// for auditing rather than silently dropped.
type Anomaly struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Kind     string `gorm:"size:40;index;not null" json:"kind"`
	Exchange string `gorm:"size:20;index" json:"exchange"`
	Pair     string `gorm:"size:40" json:"pair"`
	AlertID  string `gorm:"size:80" json:"alert_id"`

	Message string `gorm:"type:text" json:"message"`

	CreatedAt time.Time `json:"created_at"`
}

func (Anomaly) TableName() string {
	return "anomalies"
}
