package detection

import (
	"bytes"
	"context"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.viam.com/test"
)

var testInfo = StreamInfo{FPS: 25, Width: 1920, Height: 1080}

func readAll(t *testing.T, src Source) []Frame {
	t.Helper()
	var frames []Frame
	for {
		f, err := src.Next(context.Background())
		if err == io.EOF {
			return frames
		}
		test.That(t, err, test.ShouldBeNil)
		frames = append(frames, f)
	}
}

func TestCSVSourceGroupsRowsByFrame(t *testing.T) {
	data := `frame_number,timestamp_sec,class_name,confidence,bbox_x1,bbox_y1,bbox_x2,bbox_y2
0,0.0,person,0.9,10,10,20,40
0,0.0,sports ball,0.8,100,500,110,510
3,0.12,person,0.7,30,30,40,60
7,0.28,car,0.6,1,1,2,2
`
	src, err := NewCSVSource(strings.NewReader(data), testInfo, zerolog.Nop())
	test.That(t, err, test.ShouldBeNil)

	frames := readAll(t, src)
	test.That(t, frames, test.ShouldHaveLength, 3)
	test.That(t, frames[0].Index, test.ShouldEqual, 0)
	test.That(t, frames[0].Detections, test.ShouldHaveLength, 2)
	test.That(t, frames[0].Detections[1].Class, test.ShouldEqual, ClassBall)
	test.That(t, frames[0].Detections[1].Confidence, test.ShouldAlmostEqual, 0.8)
	test.That(t, frames[1].Index, test.ShouldEqual, 3)
	test.That(t, frames[1].Detections[0].Timestamp, test.ShouldAlmostEqual, 0.12)
	test.That(t, frames[2].Index, test.ShouldEqual, 7)
	test.That(t, frames[2].Detections[0].Class, test.ShouldEqual, ClassOther)
	test.That(t, src.Skipped(), test.ShouldEqual, 0)
}

func TestCSVSourceClassIDs(t *testing.T) {
	data := `frame_number,class_id,bbox_x1,bbox_y1,bbox_x2,bbox_y2
1,0,0,0,1,1
1,32,0,0,1,1
1,2,0,0,1,1
2,99,0,0,1,1
`
	src, err := NewCSVSource(strings.NewReader(data), testInfo, zerolog.Nop())
	test.That(t, err, test.ShouldBeNil)

	frames := readAll(t, src)
	test.That(t, frames, test.ShouldHaveLength, 2)
	test.That(t, frames[0].Detections, test.ShouldHaveLength, 3)
	test.That(t, frames[0].Detections[0].Class, test.ShouldEqual, ClassPerson)
	test.That(t, frames[0].Detections[1].Class, test.ShouldEqual, ClassBall)
	test.That(t, frames[0].Detections[2].Class, test.ShouldEqual, ClassOther)

	// invalid class id still yields the frame, without the detection
	test.That(t, frames[1].Index, test.ShouldEqual, 2)
	test.That(t, frames[1].Detections, test.ShouldBeEmpty)
	test.That(t, src.Skipped(), test.ShouldEqual, 1)
}

func TestCSVSourceSkipsBadRows(t *testing.T) {
	data := `frame_number,class_name,bbox_x1,bbox_y1,bbox_x2,bbox_y2
x,person,0,0,1,1
4,person,abc,0,1,1
4,person,0,0,1,1
5,ball,NaN,0,1,1
`
	src, err := NewCSVSource(strings.NewReader(data), testInfo, zerolog.Nop())
	test.That(t, err, test.ShouldBeNil)

	frames := readAll(t, src)
	test.That(t, frames, test.ShouldHaveLength, 2)
	test.That(t, frames[0].Detections, test.ShouldHaveLength, 1)
	test.That(t, src.Skipped(), test.ShouldEqual, 2)

	// NaN parses, validation rejects it later
	nan := frames[1].Detections[0]
	test.That(t, math.IsNaN(nan.Box.XMin), test.ShouldBeTrue)
	test.That(t, errors.Is(nan.Validate(), ErrMalformed), test.ShouldBeTrue)
}

func TestCSVSourceMissingColumns(t *testing.T) {
	_, err := NewCSVSource(strings.NewReader("frame_number,class_name\n"), testInfo, zerolog.Nop())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bbox_x1")

	_, err = NewCSVSource(strings.NewReader("frame_number,bbox_x1,bbox_y1,bbox_x2,bbox_y2\n"), testInfo, zerolog.Nop())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "class_name")

	_, err = NewCSVSource(strings.NewReader(""), testInfo, zerolog.Nop())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCSVSourceCancelled(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader("frame_number,class_name,bbox_x1,bbox_y1,bbox_x2,bbox_y2\n"), testInfo, zerolog.Nop())
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestCSVWriterRoundTrip(t *testing.T) {
	frames := []Frame{
		{Index: 2, Detections: []Detection{
			{Class: ClassPerson, Confidence: 0.9, Box: Box{10, 20, 30, 40}},
			{Class: ClassBall, Confidence: 0.5, Box: Box{1, 2, 3, 4}},
		}},
		{Index: 9, Detections: []Detection{
			{Class: ClassPerson, Confidence: 0.75, Box: Box{5, 6, 7, 8}},
		}},
	}

	var buf bytes.Buffer
	w, err := NewCSVWriter(&buf, 25)
	test.That(t, err, test.ShouldBeNil)
	tee := Tee(NewSliceSource(testInfo, frames), w)
	test.That(t, readAll(t, tee), test.ShouldHaveLength, 2)
	test.That(t, w.Close(), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "9,0.360,person,0.7500,5.00,6.00,7.00,8.00")

	src, err := NewCSVSource(&buf, testInfo, zerolog.Nop())
	test.That(t, err, test.ShouldBeNil)
	got := readAll(t, src)
	test.That(t, got, test.ShouldHaveLength, 2)
	test.That(t, got[0].Index, test.ShouldEqual, 2)
	test.That(t, got[0].Detections[0].Box, test.ShouldResemble, Box{10, 20, 30, 40})
	test.That(t, got[0].Detections[1].Class, test.ShouldEqual, ClassBall)
	test.That(t, got[1].Index, test.ShouldEqual, 9)
}
