package detection

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestBoxValidate(t *testing.T) {
	test.That(t, Box{0, 0, 10, 10}.Validate(), test.ShouldBeNil)
	test.That(t, Box{5, 5, 5, 5}.Validate(), test.ShouldBeNil)

	for _, b := range []Box{
		{10, 0, 0, 10},
		{0, 10, 10, 0},
		{math.NaN(), 0, 1, 1},
		{0, 0, math.Inf(1), 1},
	} {
		err := b.Validate()
		test.That(t, errors.Is(err, ErrMalformed), test.ShouldBeTrue)
	}
}

func TestBoxGeometry(t *testing.T) {
	x, y := Box{0, 10, 20, 50}.Center()
	test.That(t, x, test.ShouldEqual, 10.0)
	test.That(t, y, test.ShouldEqual, 30.0)

	a := Box{0, 0, 10, 10}
	test.That(t, IoU(a, a), test.ShouldAlmostEqual, 1.0)
	test.That(t, IoU(a, Box{5, 0, 15, 10}), test.ShouldAlmostEqual, 50.0/150.0)
	test.That(t, IoU(a, Box{20, 20, 30, 30}), test.ShouldEqual, 0.0)
}

func TestClassMapping(t *testing.T) {
	c, err := ClassFromCOCO(COCOPerson)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c, test.ShouldEqual, ClassPerson)

	c, err = ClassFromCOCO(COCOSportsBall)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c, test.ShouldEqual, ClassBall)

	_, err = ClassFromCOCO(-1)
	test.That(t, errors.Is(err, ErrMalformed), test.ShouldBeTrue)

	test.That(t, ParseClass(" Sports Ball "), test.ShouldEqual, ClassBall)
	test.That(t, ParseClass("goalpost"), test.ShouldEqual, ClassOther)

	d := Detection{Class: Class(7), Box: Box{0, 0, 1, 1}}
	test.That(t, errors.Is(d.Validate(), ErrMalformed), test.ShouldBeTrue)
}

func TestStreamInfo(t *testing.T) {
	info := StreamInfo{FPS: 25, Width: 1, Height: 1}
	test.That(t, info.Validate(), test.ShouldBeNil)
	test.That(t, info.Timestamp(50), test.ShouldEqual, 2.0)

	test.That(t, StreamInfo{Width: 1, Height: 1}.Validate(), test.ShouldNotBeNil)
	test.That(t, StreamInfo{FPS: 25}.Validate(), test.ShouldNotBeNil)
	test.That(t, StreamInfo{FPS: math.NaN(), Width: 1, Height: 1}.Validate(), test.ShouldNotBeNil)
}
