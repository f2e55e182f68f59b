package analyze

import "time"

const bucketSeconds = 60

// Sample is one raw backend point.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// AlignedSeries maps a minute-aligned Unix timestamp to the summed counter
// value of that minute. A missing key means zero.
type AlignedSeries map[int64]float64

func (s AlignedSeries) Get(t int64) float64 {
	return s[t]
}

// Align folds samples into 60-second buckets within [start, end), both floored
// to the minute. Samples landing in the same bucket are summed, which merges
// the partial series a backend returns for extra grouping labels.
func Align(samples []Sample, start, end time.Time) AlignedSeries {
	lo := floorUnix(start.Unix())
	hi := floorUnix(end.Unix())
	out := AlignedSeries{}
	for _, sample := range samples {
		if sample.Value < 0 {
			continue
		}
		t := floorUnix(sample.Timestamp.Unix())
		if t < lo || t >= hi {
			continue
		}
		out[t] += sample.Value
	}
	return out
}

func FloorMinute(t time.Time) time.Time {
	return time.Unix(floorUnix(t.Unix()), 0).UTC()
}

func floorUnix(sec int64) int64 {
	r := sec % bucketSeconds
	if r < 0 {
		r += bucketSeconds
	}
	return sec - r
}
