package vision

import (
	"sort"

	"github.com/keagan/goalcut/internal/detection"
)

// YOLOv8 COCO output layout: [1, 4+classes, anchors], boxes as centre x,
// centre y, width, height in model input pixels.
const (
	yoloClasses = 80
	yoloAnchors = 8400
)

type candidate struct {
	classID    int
	confidence float32
	box        detection.Box
}

// decodeOutput reads the raw YOLOv8 tensor and returns the boxes whose best
// class score reaches minConf, scaled from the model input size to the frame
// size. Only classes accepted by keep are returned.
func decodeOutput(out []float32, anchors, classes, inputSize, frameW, frameH int, minConf float32, keep func(int) bool) []candidate {
	if len(out) < anchors*(4+classes) {
		return nil
	}
	sx := float32(frameW) / float32(inputSize)
	sy := float32(frameH) / float32(inputSize)

	var cands []candidate
	for idx := 0; idx < anchors; idx++ {
		classID := -1
		best := float32(-1e9)
		for c := 0; c < classes; c++ {
			if p := out[anchors*(c+4)+idx]; p > best {
				best = p
				classID = c
			}
		}
		if best < minConf || !keep(classID) {
			continue
		}

		xc, yc := out[idx], out[anchors+idx]
		w, h := out[2*anchors+idx], out[3*anchors+idx]
		cands = append(cands, candidate{
			classID:    classID,
			confidence: best,
			box: detection.Box{
				XMin: float64(clampf((xc-w/2)*sx, 0, float32(frameW))),
				YMin: float64(clampf((yc-h/2)*sy, 0, float32(frameH))),
				XMax: float64(clampf((xc+w/2)*sx, 0, float32(frameW))),
				YMax: float64(clampf((yc+h/2)*sy, 0, float32(frameH))),
			},
		})
	}
	return cands
}

// nonMaxSuppression keeps the most confident box of every cluster of same
// class boxes overlapping by more than iouThreshold. The result is ordered by
// descending confidence.
func nonMaxSuppression(cands []candidate, iouThreshold float64) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].confidence > cands[j].confidence
	})

	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		overlaps := false
		for _, k := range kept {
			if k.classID == c.classID && detection.IoU(k.box, c.box) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	return kept
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
