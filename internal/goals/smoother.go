package goals

// windowEpsilon absorbs float error in timestamps derived from index/fps.
const windowEpsilon = 1e-9

// compactAfter is the number of expired entries tolerated before the queue
// is shifted down and its sum recomputed.
const compactAfter = 1024

// Smoother computes a trailing mean over a fixed time window. Each sample
// averages every pushed value whose timestamp lies in [t-window, t]. Both ends
// are inclusive, so at a constant frame rate a window of k/fps seconds spans
// k+1 frames and only a window shorter than 1/fps returns its input unchanged.
type Smoother struct {
	window float64
	times  []float64
	values []float64
	head   int
	sum    float64
}

// NewSmoother returns a smoother over window seconds. A zero window averages
// only the samples sharing the current timestamp.
func NewSmoother(window float64) *Smoother {
	return &Smoother{window: window}
}

// Push adds a sample and returns the mean of the current window. Timestamps
// must not decrease.
func (s *Smoother) Push(timestamp, value float64) float64 {
	s.times = append(s.times, timestamp)
	s.values = append(s.values, value)
	s.sum += value

	cutoff := timestamp - s.window - windowEpsilon
	for s.times[s.head] < cutoff {
		s.sum -= s.values[s.head]
		s.head++
	}
	if s.head >= compactAfter && s.head*2 >= len(s.times) {
		s.compact()
	}

	n := len(s.times) - s.head
	if n == 1 {
		s.sum = value
	}
	return clamp01(s.sum / float64(n))
}

// compact drops expired entries and recomputes the sum, bounding drift.
func (s *Smoother) compact() {
	live := len(s.times) - s.head
	copy(s.times, s.times[s.head:])
	copy(s.values, s.values[s.head:])
	s.times = s.times[:live]
	s.values = s.values[:live]
	s.head = 0
	s.sum = 0
	for _, v := range s.values {
		s.sum += v
	}
}

// Smooth applies a trailing window of window seconds to a signal series.
// The result has one sample per input signal, in the same order.
func Smooth(signals []FrameSignal, window float64) []SmoothedSample {
	s := NewSmoother(window)
	out := make([]SmoothedSample, len(signals))
	for i, sig := range signals {
		out[i] = SmoothedSample{
			FrameIndex: sig.FrameIndex,
			Timestamp:  sig.Timestamp,
			Value:      s.Push(sig.Timestamp, sig.Confidence),
		}
	}
	return out
}
