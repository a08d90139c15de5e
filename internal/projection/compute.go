package projection

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/User159951/IntelliPM-sub015/internal/model"
	"github.com/User159951/IntelliPM-sub015/internal/repo"
)

// velocityWindow is how many completed sprints feed the trailing average.
const velocityWindow = 5

// burndown builds the daily series from sprint start to the earlier of the
// sprint end or today. A sprint spanning zero or negative days yields an
// empty series rather than a divide-by-zero on the ideal burn rate.
func burndown(sprint *model.Sprint, tasks []model.Task, now time.Time) []model.BurndownPoint {
	days := int(sprint.EndDate.Sub(sprint.StartDate).Hours() / 24)
	if days <= 0 {
		return []model.BurndownPoint{}
	}

	total := decimal.Zero
	for _, t := range tasks {
		total = total.Add(t.StoryPoints)
	}
	idealStep := total.Div(decimal.NewFromInt(int64(days)))

	last := sprint.EndDate
	if now.Before(last) {
		last = now
	}

	series := []model.BurndownPoint{}
	for d := 0; ; d++ {
		day := sprint.StartDate.AddDate(0, 0, d)
		if day.After(last) {
			break
		}
		ideal := total.Sub(idealStep.Mul(decimal.NewFromInt(int64(d))))
		if ideal.IsNegative() {
			ideal = decimal.Zero
		}
		dayEnd := day.AddDate(0, 0, 1)
		done := decimal.Zero
		for _, t := range tasks {
			if t.CompletedAt != nil && t.CompletedAt.Before(dayEnd) {
				done = done.Add(t.StoryPoints)
			}
		}
		series = append(series, model.BurndownPoint{
			Day:       day,
			Ideal:     ideal.Round(2),
			Remaining: total.Sub(done),
		})
	}
	return series
}

// velocityTrend returns the trailing average over the last velocityWindow
// completed sprints plus the per-sprint series, oldest first. No completed
// sprints means average zero and an empty series.
func velocityTrend(ctx context.Context, r repo.RepositoryInterface, projectID uint64) (decimal.Decimal, []model.VelocityPoint, error) {
	completed, err := r.CompletedSprints(ctx, projectID, velocityWindow)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if len(completed) == 0 {
		return decimal.Zero, []model.VelocityPoint{}, nil
	}
	trend := make([]model.VelocityPoint, 0, len(completed))
	sum := decimal.Zero
	// CompletedSprints is newest-first; the trend reads oldest-first.
	for i := len(completed) - 1; i >= 0; i-- {
		s := completed[i]
		pts, err := r.SprintCompletedPoints(ctx, s.ID)
		if err != nil {
			return decimal.Zero, nil, err
		}
		trend = append(trend, model.VelocityPoint{SprintNumber: s.Number, Points: pts})
		sum = sum.Add(pts)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(completed)))).Round(2)
	return avg, trend, nil
}

// healthScore blends completion ratio (40), active-sprint presence (30) and
// recent activity (30, saturating at 10 events/week) into a 0-100 score.
func healthScore(totalTasks, doneTasks int, hasActiveSprint bool, activity7d int) int {
	completion := 1.0
	if totalTasks > 0 {
		completion = float64(doneTasks) / float64(totalTasks)
	}
	active := 0.0
	if hasActiveSprint {
		active = 1.0
	}
	activity := float64(activity7d)
	if activity > 10 {
		activity = 10
	}
	return int(math.Round(40*completion + 30*active + 3*activity))
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
