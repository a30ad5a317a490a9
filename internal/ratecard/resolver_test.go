package ratecard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateAt(job, project, department, worksite string, priority int, start string) PayRate {
	d, _ := time.Parse("2006-01-02", start)
	return PayRate{Job: job, Project: project, Department: department, Worksite: worksite, Priority: priority, StartDate: d}
}

func TestResolve_PicksHighestDimensionScore(t *testing.T) {
	wildcard := rateAt("", "", "", "", 0, "2026-01-01")
	jobMatch := rateAt("welder", "", "", "", 0, "2026-01-01")

	dims := Dimensions{Job: "welder"}
	got, err := Resolve([]PayRate{wildcard, jobMatch}, dims, nil)
	require.NoError(t, err)
	assert.Equal(t, "welder", got.Job)
}

func TestResolve_DisqualifiesContradictingDimension(t *testing.T) {
	welderOnly := rateAt("welder", "", "", "", 0, "2026-01-01")
	dims := Dimensions{Job: "electrician"}

	_, err := Resolve([]PayRate{welderOnly}, dims, nil)
	assert.ErrorIs(t, err, ErrRateNotFound)
}

func TestResolve_TiesBrokenByPriorityThenRecency(t *testing.T) {
	older := rateAt("", "", "", "", 1, "2026-01-01")
	newer := rateAt("", "", "", "", 1, "2026-06-01")
	lowerPriority := rateAt("", "", "", "", 0, "2026-12-01")

	got, err := Resolve([]PayRate{older, newer, lowerPriority}, Dimensions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, newer.StartDate, got.StartDate)
}

func TestResolve_RateOverrideBypassesSelection(t *testing.T) {
	override := rateAt("anything", "", "", "", 0, "2020-01-01")
	candidates := []PayRate{rateAt("welder", "", "", "", 99, "2026-01-01")}

	got, err := Resolve(candidates, Dimensions{Job: "mismatch"}, &override)
	require.NoError(t, err)
	assert.Equal(t, override.StartDate, got.StartDate)
}

func TestResolve_NoCandidatesReturnsNotFound(t *testing.T) {
	_, err := Resolve(nil, Dimensions{}, nil)
	assert.ErrorIs(t, err, ErrRateNotFound)
}

func TestFilterEffective_ExcludesOutOfRange(t *testing.T) {
	start, _ := time.Parse("2006-01-02", "2026-01-01")
	end, _ := time.Parse("2006-01-02", "2026-06-30")
	endPtr := end
	within := PayRate{StartDate: start, EndDate: &endPtr}
	expired := PayRate{StartDate: start, EndDate: &endPtr}

	asOf, _ := time.Parse("2006-01-02", "2026-03-01")
	afterEnd, _ := time.Parse("2006-01-02", "2026-07-01")

	got := filterEffective([]PayRate{within}, asOf)
	assert.Len(t, got, 1)

	got = filterEffective([]PayRate{expired}, afterEnd)
	assert.Len(t, got, 0)
}
