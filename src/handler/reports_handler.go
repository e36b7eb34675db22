package handler

import (
	"context"
	"net/http"
	"time"

	logger "github.com/sirupsen/logrus"

	"pyramidtracker/src/model"
)

type reportGenerator interface {
	GenerateAndStore(ctx context.Context, date string) (*model.DailyReport, error)
	Today() string
}

// DailyReportHandler generates (or regenerates) the report for a day on
// demand. Without a date parameter it reports on today in the reporting
// timezone.
func DailyReportHandler(service reportGenerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = service.Today()
		} else if _, err := time.Parse("2006-01-02", date); err != nil {
			http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}

		report, err := service.GenerateAndStore(r.Context(), date)
		if err != nil {
			logger.WithField("date", date).
				WithError(err).Error("Failed to generate daily report")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}
