package ratecard

import (
	"errors"
	"time"
)

// ErrRateNotFound is returned when no candidate rate qualifies for the
// given employee, as-of date, and dimensions.
var ErrRateNotFound = errors.New("ratecard: no applicable rate found")

// score computes the dimension score for a candidate against the caller's
// qualifiers: matching dimensions add their weight, a rate-specified
// dimension that the caller contradicts disqualifies the rate (-1), and
// dimensions the rate leaves blank are wildcards (0).
func score(rate PayRate, dims Dimensions) int {
	total := 0
	for _, d := range []struct {
		rateVal, callerVal string
		weight             int
	}{
		{rate.Job, dims.Job, weightJob},
		{rate.Project, dims.Project, weightProject},
		{rate.Department, dims.Department, weightDepartment},
		{rate.Worksite, dims.Worksite, weightWorksite},
	} {
		if d.rateVal == "" {
			continue
		}
		if d.rateVal == d.callerVal {
			total += d.weight
		} else {
			return disqualified
		}
	}
	return total
}

// Resolve selects the best-matching rate among candidates for asOf and
// dims, per §4.1: highest valid score wins, ties broken by higher priority,
// then by the most recent start date. A rateOverride, when non-nil,
// bypasses the whole procedure and is returned directly.
func Resolve(candidates []PayRate, dims Dimensions, rateOverride *PayRate) (PayRate, error) {
	if rateOverride != nil {
		return *rateOverride, nil
	}

	var best *PayRate
	bestScore := disqualified
	for i := range candidates {
		s := score(candidates[i], dims)
		if s < 0 {
			continue
		}
		if best == nil {
			best, bestScore = &candidates[i], s
			continue
		}
		switch {
		case s > bestScore:
			best, bestScore = &candidates[i], s
		case s == bestScore:
			if candidates[i].Priority > best.Priority {
				best = &candidates[i]
			} else if candidates[i].Priority == best.Priority && candidates[i].StartDate.After(best.StartDate) {
				best = &candidates[i]
			}
		}
	}

	if best == nil {
		return PayRate{}, ErrRateNotFound
	}
	return *best, nil
}

// filterEffective narrows candidates to those whose effective range covers
// asOf — the repository's job in production, exposed here so the resolver's
// selection logic can be exercised against an in-memory candidate list too.
func filterEffective(candidates []PayRate, asOf time.Time) []PayRate {
	var out []PayRate
	for _, c := range candidates {
		if c.effectiveOn(asOf) {
			out = append(out, c)
		}
	}
	return out
}
