package metrics

import (
	"math"
	"sort"
)

// Observation pairs an indicator reading (e.g. a moving-average bias) with
// the forward return realized after it. Offline research groups observations
// into indicator buckets to see where the indicator had predictive value.
type Observation struct {
	Indicator     float64
	ForwardReturn float64
}

// ForwardReturns computes the fractional return horizon bars ahead for each
// close: r[i] = closes[i+horizon]/closes[i] - 1. The trailing entries without
// a full horizon are NaN, mirroring the undefined-window convention used by
// the rolling indicators.
func ForwardReturns(closes []float64, horizon int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if horizon <= 0 || i+horizon >= len(closes) || closes[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = closes[i+horizon]/closes[i] - 1
	}
	return out
}

// BucketStat summarizes the observations whose indicator fell into
// [Lower, Upper).
type BucketStat struct {
	Lower    float64
	Upper    float64
	Count    int
	WinRate  float64 // share of observations with positive forward return
	MeanWin  float64 // mean positive forward return, 0 when none
	MeanLoss float64 // mean non-positive forward return (<= 0), 0 when none
	Kelly    float64 // KellyCriterion(WinRate, MeanWin, MeanLoss)
}

// BucketStats groups observations into the half-open buckets defined by the
// sorted edge values and computes per-bucket win statistics plus the Kelly
// fraction. Observations with NaN fields are dropped; edges must contain at
// least two values. Buckets with no observations are kept in the table with
// zero statistics so the bucket axis stays contiguous.
func BucketStats(obs []Observation, edges []float64) []BucketStat {
	if len(edges) < 2 {
		return nil
	}
	sorted := append([]float64(nil), edges...)
	sort.Float64s(sorted)

	stats := make([]BucketStat, len(sorted)-1)
	for i := range stats {
		stats[i].Lower = sorted[i]
		stats[i].Upper = sorted[i+1]
	}

	type acc struct {
		wins, losses    int
		winSum, lossSum float64
	}
	accs := make([]acc, len(stats))

	for _, o := range obs {
		if math.IsNaN(o.Indicator) || math.IsNaN(o.ForwardReturn) {
			continue
		}
		idx := bucketIndex(sorted, o.Indicator)
		if idx < 0 {
			continue
		}
		stats[idx].Count++
		if o.ForwardReturn > 0 {
			accs[idx].wins++
			accs[idx].winSum += o.ForwardReturn
		} else {
			accs[idx].losses++
			accs[idx].lossSum += o.ForwardReturn
		}
	}

	for i := range stats {
		a := accs[i]
		if stats[i].Count == 0 {
			continue
		}
		stats[i].WinRate = float64(a.wins) / float64(stats[i].Count)
		if a.wins > 0 {
			stats[i].MeanWin = a.winSum / float64(a.wins)
		}
		if a.losses > 0 {
			stats[i].MeanLoss = a.lossSum / float64(a.losses)
		}
		stats[i].Kelly = KellyCriterion(stats[i].WinRate, stats[i].MeanWin, stats[i].MeanLoss)
	}
	return stats
}

// bucketIndex returns the index of the half-open bucket [edges[i], edges[i+1])
// containing v, with the last bucket closed on the right. -1 when v is out of
// range.
func bucketIndex(edges []float64, v float64) int {
	if v < edges[0] || v > edges[len(edges)-1] {
		return -1
	}
	if v == edges[len(edges)-1] {
		return len(edges) - 2
	}
	i := sort.SearchFloat64s(edges, v)
	if i < len(edges) && edges[i] == v {
		return i
	}
	return i - 1
}

// Region is a maximal run of consecutive non-empty buckets over which the
// win rate moves in one direction.
type Region struct {
	Start      int // index into the bucket table, inclusive
	End        int // inclusive
	Increasing bool
}

// MonotonicRegions discovers the maximal runs of consecutive non-empty
// buckets whose win rates are monotonically non-decreasing or non-increasing.
// Runs shorter than two buckets carry no ordering information and are
// omitted. A region where the indicator orders the win rate is the raw
// material for a threshold rule.
func MonotonicRegions(stats []BucketStat) []Region {
	// Work on the non-empty buckets only; empty buckets break a run.
	var regions []Region

	i := 0
	for i < len(stats) {
		if stats[i].Count == 0 {
			i++
			continue
		}
		j := i
		var dir int // 0 unknown, +1 increasing, -1 decreasing
		for j+1 < len(stats) && stats[j+1].Count > 0 {
			diff := stats[j+1].WinRate - stats[j].WinRate
			step := 0
			if diff > 0 {
				step = 1
			} else if diff < 0 {
				step = -1
			}
			if step != 0 && dir != 0 && step != dir {
				break
			}
			if step != 0 {
				dir = step
			}
			j++
		}
		if j > i {
			regions = append(regions, Region{Start: i, End: j, Increasing: dir >= 0})
			i = j // the pivot bucket starts the next run
		} else {
			i++
		}
	}
	return regions
}
