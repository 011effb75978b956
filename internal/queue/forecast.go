package queue

import (
	"time"

	"github.com/hotdog-curator/internal/models"
)

// ForecastDay is the projected queue at the end of one future day
type ForecastDay struct {
	Day           int       `json:"day" yaml:"day"`
	Date          time.Time `json:"date" yaml:"date"`
	Projected     int       `json:"projected" yaml:"projected"`
	DaysOfContent float64   `json:"days_of_content" yaml:"days_of_content"`
	BelowMinimum  bool      `json:"below_minimum" yaml:"below_minimum"`
}

// Forecast projects the queue for the coming days at a constant posting rate, assuming no
// new content is approved
func (m *Manager) Forecast(stats *models.QueueStats, days int) []ForecastDay {
	out := make([]ForecastDay, 0, days)
	start := stats.ComputedAt
	if start.IsZero() {
		start = m.now()
	}

	for d := 1; d <= days; d++ {
		projected := stats.Total - d*m.targets.PostsPerDay
		if projected < 0 {
			projected = 0
		}
		out = append(out, ForecastDay{
			Day:           d,
			Date:          start.AddDate(0, 0, d),
			Projected:     projected,
			DaysOfContent: float64(projected) / float64(m.targets.PostsPerDay),
			BelowMinimum:  projected < m.targets.MinSize,
		})
	}
	return out
}
