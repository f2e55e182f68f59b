package analyze

import (
	"fmt"
	"math"

	"github.com/bayneri/slareport/internal/spec"
)

// Evaluate decides, minute by minute over [start, end), whether the service was
// down. Both ends are floored to the minute first. bad holds the series read through cfg.BadOutcome's filter: error counts
// for direct strategies, success counts for derived ones.
func Evaluate(total, bad AlignedSeries, cfg spec.ServiceSLAConfig, start, end int64) (SLAResult, error) {
	start, end = floorUnix(start), floorUnix(end)
	evaluated := (end - start) / bucketSeconds
	if evaluated <= 0 {
		return SLAResult{}, fmt.Errorf("%w: [%d, %d) holds no whole minute", ErrDegenerateWindow, start, end)
	}
	if cfg.BadOutcome == nil {
		return SLAResult{}, fmt.Errorf("service type %q has no bad-outcome strategy", cfg.ServiceType)
	}

	var downtime, skipped int64
	for i := int64(0); i < evaluated; i++ {
		t := start + i*bucketSeconds
		totalT := total.Get(t)
		// Under-sampled minutes stay in the denominator but are never down.
		if totalT <= 0 || totalT < float64(cfg.MinRequestsPerMinute) {
			skipped++
			continue
		}
		badT := cfg.BadOutcome.Bad(totalT, bad.Get(t))
		if badT/totalT > cfg.ErrorRateThreshold {
			downtime++
		}
	}

	return SLAResult{
		UptimePct:        round4(float64(evaluated-downtime) / float64(evaluated) * 100),
		DowntimeMinutes:  downtime,
		EvaluatedMinutes: evaluated,
		SkippedMinutes:   skipped,
	}, nil
}

// ComputeBudget works on fractions: goal is the objective, compliance the
// observed good fraction. consumed is the share of the error budget spent, in
// percent.
func ComputeBudget(goal, compliance float64) (allowedBad, bad, consumed float64, notes []string) {
	allowedBad = 1 - goal
	complianceClamped, clampNote := clamp01(compliance)
	if clampNote != "" {
		notes = append(notes, clampNote)
	}
	bad = 1 - complianceClamped
	if allowedBad <= 0 {
		return allowedBad, bad, 0, notes
	}
	consumed = (bad / allowedBad) * 100
	return allowedBad, bad, consumed, notes
}

func clamp01(value float64) (float64, string) {
	if value < 0 {
		return 0, "compliance clamped to 0"
	}
	if value > 1 {
		return 1, "compliance clamped to 1"
	}
	return value, ""
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}
