// Package series buckets polls by day and averages well-known answer
// categories for charting.
package series

import (
	"sort"
	"strings"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
)

// Point is one day of aggregated approval polling. Averages are nil when no
// poll that day carried both categories.
type Point struct {
	Date              string   `json:"date"`
	Approve           *float64 `json:"approve"`
	Disapprove        *float64 `json:"disapprove"`
	Net               *float64 `json:"net"`
	SampleWeightedNet *float64 `json:"sampleWeightedNet"`
	N                 int      `json:"n"`
}

// bucket is an immutable per-day accumulator; add returns a new value
// rather than mutating in place.
type bucket struct {
	approveSum     float64
	disapproveSum  float64
	count          int
	wApproveSum    float64
	wDisapproveSum float64
	weight         float64
}

func (b bucket) add(approve, disapprove, weight float64) bucket {
	return bucket{
		approveSum:     b.approveSum + approve,
		disapproveSum:  b.disapproveSum + disapprove,
		count:          b.count + 1,
		wApproveSum:    b.wApproveSum + approve*weight,
		wDisapproveSum: b.wDisapproveSum + disapprove*weight,
		weight:         b.weight + weight,
	}
}

// Approval folds polls into per-day approve/disapprove averages, simple and
// sample-weighted. Polls without an end date or without both categories are
// skipped. The result is ordered by date ascending.
func Approval(polls []model.Poll) []Point {
	byDay := make(map[string]bucket)
	for _, p := range polls {
		if p.EndDate == nil {
			continue
		}
		approve := answerPercent(p.Answers, "approve")
		disapprove := answerPercent(p.Answers, "disapprove")
		if approve == nil || disapprove == nil {
			continue
		}

		weight := 0.0
		if p.SampleSize != nil && *p.SampleSize > 0 {
			weight = float64(*p.SampleSize)
		}

		date := p.EndDate.UTC().Format("2006-01-02")
		byDay[date] = byDay[date].add(*approve, *disapprove, weight)
	}

	dates := make([]string, 0, len(byDay))
	for date := range byDay {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	points := make([]Point, 0, len(dates))
	for _, date := range dates {
		b := byDay[date]
		point := Point{Date: date, N: b.count}

		if b.count > 0 {
			approve := b.approveSum / float64(b.count)
			disapprove := b.disapproveSum / float64(b.count)
			net := approve - disapprove
			point.Approve, point.Disapprove, point.Net = &approve, &disapprove, &net
		}
		if b.weight > 0 {
			wNet := b.wApproveSum/b.weight - b.wDisapproveSum/b.weight
			point.SampleWeightedNet = &wNet
		}
		points = append(points, point)
	}
	return points
}

// answerPercent finds the percent for a categorical label, matching
// case-insensitively with whitespace collapsed.
func answerPercent(answers []model.Answer, label string) *float64 {
	for _, a := range answers {
		if normalizeChoice(a.Choice) == label {
			return a.Percent
		}
	}
	return nil
}

func normalizeChoice(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
