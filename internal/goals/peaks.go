package goals

import (
	"sort"

	"github.com/montanaflynn/stats"
)

// flatStd is the standard deviation below which a series is treated as flat.
const flatStd = 1e-12

// PeakOptions are the filters applied to local maxima.
type PeakOptions struct {
	HeightStdMultiplier float64
	MinProminence       float64
	// MinDistance is the minimum separation of two peaks in seconds.
	MinDistance float64
}

// HeightThreshold returns mean + k*std of values, using the population
// standard deviation. ok is false when the series is empty or flat.
func HeightThreshold(values []float64, k float64) (height float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return 0, false
	}
	std, err := stats.StandardDeviationPopulation(values)
	if err != nil || std <= flatStd {
		return mean, false
	}
	return mean + k*std, true
}

// FindPeaks returns the peaks of the smoothed series in time order, along with
// the height threshold that was applied.
func FindPeaks(samples []SmoothedSample, opts PeakOptions) ([]Peak, float64) {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}

	height, ok := HeightThreshold(values, opts.HeightStdMultiplier)
	if !ok || len(values) < 3 {
		return nil, height
	}

	var candidates []Peak
	for i := 1; i < len(values)-1; i++ {
		v := values[i]
		if v <= values[i-1] || v < values[i+1] || v < height {
			continue
		}
		prom := prominence(values, i)
		if prom < opts.MinProminence {
			continue
		}
		candidates = append(candidates, Peak{
			FrameIndex: samples[i].FrameIndex,
			Timestamp:  samples[i].Timestamp,
			Value:      v,
			Prominence: prom,
		})
	}
	return enforceDistance(candidates, opts.MinDistance), height
}

// prominence measures how far values[i] stands above the higher of the two
// minima found walking outwards until a strictly higher value or the boundary.
func prominence(values []float64, i int) float64 {
	v := values[i]

	leftMin := v
	for j := i - 1; j >= 0 && values[j] <= v; j-- {
		if values[j] < leftMin {
			leftMin = values[j]
		}
	}
	rightMin := v
	for j := i + 1; j < len(values) && values[j] <= v; j++ {
		if values[j] < rightMin {
			rightMin = values[j]
		}
	}

	base := leftMin
	if rightMin > base {
		base = rightMin
	}
	return v - base
}

// enforceDistance keeps peaks greedily from the highest down, dropping any
// peak closer than minDistance seconds to one already kept. Equal values
// favour the earlier peak. peaks must be in time order.
func enforceDistance(peaks []Peak, minDistance float64) []Peak {
	if len(peaks) < 2 || minDistance <= 0 {
		return peaks
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return peaks[order[a]].Value > peaks[order[b]].Value
	})

	removed := make([]bool, len(peaks))
	for _, i := range order {
		if removed[i] {
			continue
		}
		for j := i - 1; j >= 0 && peaks[i].Timestamp-peaks[j].Timestamp < minDistance; j-- {
			removed[j] = true
		}
		for j := i + 1; j < len(peaks) && peaks[j].Timestamp-peaks[i].Timestamp < minDistance; j++ {
			removed[j] = true
		}
	}

	kept := make([]Peak, 0, len(peaks))
	for i, p := range peaks {
		if !removed[i] {
			kept = append(kept, p)
		}
	}
	return kept
}
