package goals

import (
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func signalsOf(fps float64, values ...float64) []FrameSignal {
	out := make([]FrameSignal, len(values))
	for i, v := range values {
		out[i] = FrameSignal{FrameIndex: i, Timestamp: float64(i) / fps, Confidence: v}
	}
	return out
}

func TestSmoothTrailingMean(t *testing.T) {
	out := Smooth(signalsOf(1, 1, 0, 0, 1), 2)
	test.That(t, out, test.ShouldHaveLength, 4)
	test.That(t, out[0].Value, test.ShouldAlmostEqual, 1.0)
	test.That(t, out[1].Value, test.ShouldAlmostEqual, 0.5)
	test.That(t, out[2].Value, test.ShouldAlmostEqual, 1.0/3)
	test.That(t, out[3].Value, test.ShouldAlmostEqual, 1.0/3)
	test.That(t, out[3].FrameIndex, test.ShouldEqual, 3)
	test.That(t, out[3].Timestamp, test.ShouldEqual, 3.0)
}

func TestSmoothOneFrameWindowIsIdentity(t *testing.T) {
	in := signalsOf(25, 0, 0.35, 1, 0.65, 0, 0, 1)
	for _, window := range []float64{0, 0.5 / 25, 0.999 / 25} {
		out := Smooth(in, window)
		test.That(t, out, test.ShouldHaveLength, len(in))
		for i := range in {
			test.That(t, out[i].Value, test.ShouldAlmostEqual, in[i].Confidence)
		}
	}
}

func TestSmoothWindowEndsAreInclusive(t *testing.T) {
	// one frame interval reaches back exactly one frame
	out := Smooth(signalsOf(25, 0, 1, 0, 1, 0), 1.0/25)
	want := []float64{0, 0.5, 0.5, 0.5, 0.5}
	for i, w := range want {
		test.That(t, out[i].Value, test.ShouldAlmostEqual, w)
	}

	// two seconds at 25 fps spans 51 frames
	values := make([]float64, 60)
	values[0] = 1
	values[8] = 1
	out = Smooth(signalsOf(25, values...), 2)
	test.That(t, out[50].Value, test.ShouldAlmostEqual, 2.0/51)
	test.That(t, out[51].Value, test.ShouldAlmostEqual, 1.0/51)
}

func TestSmoothEmpty(t *testing.T) {
	test.That(t, Smooth(nil, 2), test.ShouldBeEmpty)
}

func TestSmootherMatchesBruteForce(t *testing.T) {
	const (
		fps    = 25.0
		window = 2.0
		n      = 5000
	)
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, n)
	for i := range values {
		values[i] = []float64{0, 0.35, 0.65, 1}[rng.Intn(4)]
	}

	out := Smooth(signalsOf(fps, values...), window)
	test.That(t, out, test.ShouldHaveLength, n)
	for i := 0; i < n; i += 37 {
		ts := float64(i) / fps
		sum, count := 0.0, 0
		for j := i; j >= 0 && float64(j)/fps >= ts-window-windowEpsilon; j-- {
			sum += values[j]
			count++
		}
		test.That(t, out[i].Value, test.ShouldAlmostEqual, sum/float64(count), 1e-9)
		test.That(t, out[i].Value, test.ShouldBeGreaterThanOrEqualTo, 0.0)
		test.That(t, out[i].Value, test.ShouldBeLessThanOrEqualTo, 1.0)
	}
}

func TestSmootherLongMatch(t *testing.T) {
	const (
		fps    = 25.0
		window = 2.0
		n      = int(90 * 60 * fps)
	)
	// a goal-like burst every 10 minutes on a flat background
	value := func(i int) float64 {
		if i%(int(600*fps)) < int(4*fps) {
			return 1
		}
		return 0.35 * float64(i%3) / 2
	}

	s := NewSmoother(window)
	span := int(window*fps) + 1
	var last float64
	maxLive, maxQueue := 0, 0
	for i := 0; i < n; i++ {
		last = s.Push(float64(i)/fps, value(i))
		maxLive = max(maxLive, len(s.times)-s.head)
		maxQueue = max(maxQueue, len(s.times))
	}
	test.That(t, maxLive, test.ShouldEqual, span)
	test.That(t, maxQueue, test.ShouldBeLessThanOrEqualTo, compactAfter+span+1)

	sum := 0.0
	for j := n - span; j < n; j++ {
		sum += value(j)
	}
	test.That(t, last, test.ShouldAlmostEqual, sum/float64(span), 1e-9)
}
