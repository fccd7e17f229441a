package series

import (
	"testing"
	"time"

	"github.com/civicpulse/poll-indexer/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalPoll(endDate time.Time, approve, disapprove float64, sampleSize int) model.Poll {
	p := model.Poll{
		PollType: "approval",
		EndDate:  &endDate,
		Answers: []model.Answer{
			{Choice: "approve", Percent: &approve},
			{Choice: "disapprove", Percent: &disapprove},
		},
	}
	if sampleSize > 0 {
		p.SampleSize = &sampleSize
	}
	return p
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestApproval_AveragesWithinADay(t *testing.T) {
	polls := []model.Poll{
		approvalPoll(day(2025, 6, 3), 40, 50, 100),
		approvalPoll(day(2025, 6, 3), 60, 30, 300),
	}

	points := Approval(polls)
	require.Len(t, points, 1)

	p := points[0]
	assert.Equal(t, "2025-06-03", p.Date)
	assert.Equal(t, 2, p.N)
	require.NotNil(t, p.Approve)
	assert.InDelta(t, 50, *p.Approve, 1e-9)
	require.NotNil(t, p.Disapprove)
	assert.InDelta(t, 40, *p.Disapprove, 1e-9)
	require.NotNil(t, p.Net)
	assert.InDelta(t, 10, *p.Net, 1e-9)

	// Weighted: approve (40*100+60*300)/400 = 55, disapprove
	// (50*100+30*300)/400 = 35.
	require.NotNil(t, p.SampleWeightedNet)
	assert.InDelta(t, 20, *p.SampleWeightedNet, 1e-9)
}

func TestApproval_OrderedByDateAscending(t *testing.T) {
	polls := []model.Poll{
		approvalPoll(day(2025, 6, 10), 45, 45, 0),
		approvalPoll(day(2025, 6, 1), 40, 50, 0),
		approvalPoll(day(2025, 6, 5), 42, 48, 0),
	}

	points := Approval(polls)
	require.Len(t, points, 3)
	assert.Equal(t, "2025-06-01", points[0].Date)
	assert.Equal(t, "2025-06-05", points[1].Date)
	assert.Equal(t, "2025-06-10", points[2].Date)
}

func TestApproval_SkipsPollsMissingEndDate(t *testing.T) {
	undated := approvalPoll(day(2025, 6, 3), 40, 50, 0)
	undated.EndDate = nil

	points := Approval([]model.Poll{undated})
	assert.Empty(t, points)
}

func TestApproval_SkipsPollsMissingACategory(t *testing.T) {
	approve := 47.0
	onlyApprove := model.Poll{
		EndDate: timePtr(day(2025, 6, 3)),
		Answers: []model.Answer{{Choice: "approve", Percent: &approve}},
	}
	nilPercent := model.Poll{
		EndDate: timePtr(day(2025, 6, 3)),
		Answers: []model.Answer{
			{Choice: "approve", Percent: &approve},
			{Choice: "disapprove", Percent: nil},
		},
	}

	points := Approval([]model.Poll{onlyApprove, nilPercent})
	assert.Empty(t, points)
}

func TestApproval_NoWeightWithoutSampleSizes(t *testing.T) {
	points := Approval([]model.Poll{approvalPoll(day(2025, 6, 3), 40, 50, 0)})
	require.Len(t, points, 1)
	assert.NotNil(t, points[0].Net)
	assert.Nil(t, points[0].SampleWeightedNet)
}

func TestApproval_MixedWeightsSkipUnsampledPolls(t *testing.T) {
	points := Approval([]model.Poll{
		approvalPoll(day(2025, 6, 3), 40, 50, 200),
		approvalPoll(day(2025, 6, 3), 60, 30, 0),
	})
	require.Len(t, points, 1)

	// Simple average covers both polls, the weighted one only the sampled
	// poll.
	require.NotNil(t, points[0].Net)
	assert.InDelta(t, 10, *points[0].Net, 1e-9)
	require.NotNil(t, points[0].SampleWeightedNet)
	assert.InDelta(t, -10, *points[0].SampleWeightedNet, 1e-9)
}

func TestApproval_ChoiceNormalization(t *testing.T) {
	approve, disapprove := 52.0, 41.0
	p := model.Poll{
		EndDate: timePtr(day(2025, 6, 3)),
		Answers: []model.Answer{
			{Choice: "  Approve ", Percent: &approve},
			{Choice: "DISAPPROVE", Percent: &disapprove},
		},
	}

	points := Approval([]model.Poll{p})
	require.Len(t, points, 1)
	require.NotNil(t, points[0].Net)
	assert.InDelta(t, 11, *points[0].Net, 1e-9)
}

func TestApproval_BucketsByUTCDay(t *testing.T) {
	loc := time.FixedZone("ET", -4*60*60)
	late := time.Date(2025, 6, 3, 22, 0, 0, 0, loc) // 2025-06-04 02:00 UTC

	points := Approval([]model.Poll{approvalPoll(late, 40, 50, 0)})
	require.Len(t, points, 1)
	assert.Equal(t, "2025-06-04", points[0].Date)
}

func TestApproval_Empty(t *testing.T) {
	assert.Empty(t, Approval(nil))
}

func timePtr(t time.Time) *time.Time { return &t }
