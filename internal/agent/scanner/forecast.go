package scanner

import (
	"context"
	"time"

	"github.com/hotdog-curator/internal/queue"
)

const forecastDays = 7

// Forecast projects the queue over the coming week without scanning
type Forecast struct {
	GeneratedAt  time.Time           `json:"generated_at" yaml:"generated_at"`
	Current      int                 `json:"current" yaml:"current"`
	PostsPerDay  int                 `json:"posts_per_day" yaml:"posts_per_day"`
	MinSize      int                 `json:"min_size" yaml:"min_size"`
	Days         []queue.ForecastDay `json:"days" yaml:"days"`
	ShortfallDay int                 `json:"shortfall_day" yaml:"shortfall_day"` // first day below minimum, 0 if none
}

// WeeklyForecast projects, for each of the next seven days, whether the queue falls below
// its minimum at the configured posting rate
func (a *Agent) WeeklyForecast(ctx context.Context) (*Forecast, error) {
	stats, err := a.queue.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	targets := a.queue.Targets()
	f := &Forecast{
		GeneratedAt: stats.ComputedAt,
		Current:     stats.Total,
		PostsPerDay: targets.PostsPerDay,
		MinSize:     targets.MinSize,
		Days:        a.queue.Forecast(stats, forecastDays),
	}
	for _, d := range f.Days {
		if d.BelowMinimum {
			f.ShortfallDay = d.Day
			break
		}
	}
	return f, nil
}
