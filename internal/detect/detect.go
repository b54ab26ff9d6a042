package detect

import "sort"

// Box is an axis-aligned bounding box in corner form.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Area returns the signed area. Degenerate boxes may yield zero or
// negative values; IoU tolerates both.
func (b Box) Area() float32 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Detection is one decoded object detection. Coordinates are in model
// input space, or original image space when the decode call was given a
// rescale target.
type Detection struct {
	Box        Box
	Confidence float32
	Class      int
}

// Shape is a width/height pair in pixels.
type Shape struct {
	Width  int
	Height int
}

// Params carries the thresholds and coordinate spaces for one decode
// call. A nil OriginalShape leaves coordinates in model input space.
type Params struct {
	ConfThreshold float32
	IoUThreshold  float32
	InputShape    Shape
	OriginalShape *Shape
}

func (p Params) scale() (sx, sy float32) {
	if p.OriginalShape == nil {
		return 1, 1
	}
	sx = float32(p.OriginalShape.Width) / float32(p.InputShape.Width)
	sy = float32(p.OriginalShape.Height) / float32(p.InputShape.Height)
	return sx, sy
}

func scaleBox(b Box, sx, sy float32) Box {
	return Box{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}
}

// IoU returns intersection over union of two boxes. A pair with zero
// union area has IoU 0.
func IoU(a, b Box) float32 {
	w := min(a.X2, b.X2) - max(a.X1, b.X1)
	h := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	inter := w * h
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NMS performs greedy non-maximum suppression and returns the indices of
// the kept boxes, highest score first. boxes and scores must have equal
// length. Equal scores keep their original relative order; a candidate is
// suppressed only when its IoU with a kept box strictly exceeds
// iouThreshold.
func NMS(boxes []Box, scores []float32, iouThreshold float32) []int {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	keep := make([]int, 0, len(boxes))
	suppressed := make([]bool, len(boxes))
	for pos, i := range order {
		if suppressed[i] {
			continue
		}
		keep = append(keep, i)
		for _, j := range order[pos+1:] {
			if suppressed[j] {
				continue
			}
			if IoU(boxes[i], boxes[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}
