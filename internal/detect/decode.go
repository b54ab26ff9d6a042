package detect

import "fmt"

// Encoding identifies the tensor layout of a raw model output.
type Encoding int

const (
	// EncodingDenseGrid is a YOLO-style [num_anchors][4+num_classes]
	// layout: each row is cx, cy, w, h followed by per-class scores.
	EncodingDenseGrid Encoding = iota
	// EncodingQuerySet is a DETR-style [num_queries][6] layout:
	// each row is x1, y1, x2, y2, confidence, class.
	EncodingQuerySet
)

// String returns a human-readable encoding name
func (e Encoding) String() string {
	switch e {
	case EncodingDenseGrid:
		return "dense grid"
	case EncodingQuerySet:
		return "query set"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// ShapeMismatchError reports raw output data that does not fit its
// declared tensor geometry.
type ShapeMismatchError struct {
	Encoding Encoding
	Rows     int
	Cols     int
	Len      int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s output: declared shape [%d][%d] does not fit %d values",
		e.Encoding, e.Rows, e.Cols, e.Len)
}

// RawOutput is a raw model output tagged with its encoding. Construct it
// with NewDenseGridOutput, NewDenseGridOutputCHW or NewQuerySetOutput so
// the geometry is validated up front; the zero value decodes to nothing.
type RawOutput struct {
	enc     Encoding
	data    []float32 // row-major [rows][cols]
	rows    int
	cols    int
	classes int // dense grid only
}

// NewDenseGridOutput wraps a row-major [anchors][4+classes] tensor.
func NewDenseGridOutput(data []float32, anchors, classes int) (RawOutput, error) {
	cols := 4 + classes
	if anchors < 0 || classes < 1 || len(data) != anchors*cols {
		return RawOutput{}, &ShapeMismatchError{Encoding: EncodingDenseGrid, Rows: anchors, Cols: cols, Len: len(data)}
	}
	return RawOutput{enc: EncodingDenseGrid, data: data, rows: anchors, cols: cols, classes: classes}, nil
}

// NewDenseGridOutputCHW wraps the same tensor in its usual wire layout
// [4+classes][anchors] (a YOLO11 output0 of shape [1, 84, 8400] arrives
// channel-major) and transposes it to row-major.
func NewDenseGridOutputCHW(data []float32, anchors, classes int) (RawOutput, error) {
	cols := 4 + classes
	if anchors < 0 || classes < 1 || len(data) != anchors*cols {
		return RawOutput{}, &ShapeMismatchError{Encoding: EncodingDenseGrid, Rows: anchors, Cols: cols, Len: len(data)}
	}
	rowMajor := make([]float32, len(data))
	for a := 0; a < anchors; a++ {
		for c := 0; c < cols; c++ {
			rowMajor[a*cols+c] = data[c*anchors+a]
		}
	}
	return RawOutput{enc: EncodingDenseGrid, data: rowMajor, rows: anchors, cols: cols, classes: classes}, nil
}

// NewQuerySetOutput wraps a row-major [queries][6] tensor.
func NewQuerySetOutput(data []float32, queries int) (RawOutput, error) {
	if queries < 0 || len(data) != queries*6 {
		return RawOutput{}, &ShapeMismatchError{Encoding: EncodingQuerySet, Rows: queries, Cols: 6, Len: len(data)}
	}
	return RawOutput{enc: EncodingQuerySet, data: data, rows: queries, cols: 6}, nil
}

// Decode converts a raw output into detections above the confidence
// threshold. Dense grid rows are kept only on a strict > comparison and
// then compete in NMS; query set rows are kept on >= and skip NMS, since
// that model family de-duplicates in the network. The two comparisons
// differ on purpose: a score equal to the threshold drops a dense grid
// row but keeps a query set row. An empty or fully filtered output
// decodes to an empty slice, not an error.
func Decode(raw RawOutput, p Params) ([]Detection, error) {
	if p.OriginalShape != nil && (p.InputShape.Width <= 0 || p.InputShape.Height <= 0) {
		return nil, fmt.Errorf("decode: input shape %dx%d cannot be a rescale basis",
			p.InputShape.Width, p.InputShape.Height)
	}

	switch raw.enc {
	case EncodingDenseGrid:
		return decodeDenseGrid(raw, p), nil
	case EncodingQuerySet:
		return decodeQuerySet(raw, p), nil
	default:
		return nil, &ShapeMismatchError{Encoding: raw.enc, Rows: raw.rows, Cols: raw.cols, Len: len(raw.data)}
	}
}

func decodeDenseGrid(raw RawOutput, p Params) []Detection {
	var (
		boxes   []Box
		scores  []float32
		classes []int
	)

	for r := 0; r < raw.rows; r++ {
		row := raw.data[r*raw.cols : (r+1)*raw.cols]

		// Highest class score wins; the first index wins ties.
		class := 0
		best := row[4]
		for c := 1; c < raw.classes; c++ {
			if row[4+c] > best {
				best = row[4+c]
				class = c
			}
		}
		if best <= p.ConfThreshold {
			continue
		}

		cx, cy, w, h := row[0], row[1], row[2], row[3]
		boxes = append(boxes, Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2})
		scores = append(scores, best)
		classes = append(classes, class)
	}

	// NMS runs across all classes at once: boxes with different class
	// labels still suppress each other.
	keep := NMS(boxes, scores, p.IoUThreshold)

	sx, sy := p.scale()
	out := make([]Detection, 0, len(keep))
	for _, i := range keep {
		out = append(out, Detection{
			Box:        scaleBox(boxes[i], sx, sy),
			Confidence: scores[i],
			Class:      classes[i],
		})
	}
	return out
}

func decodeQuerySet(raw RawOutput, p Params) []Detection {
	sx, sy := p.scale()
	out := make([]Detection, 0)

	for r := 0; r < raw.rows; r++ {
		row := raw.data[r*raw.cols : (r+1)*raw.cols]
		conf := row[4]
		if conf < p.ConfThreshold {
			continue
		}
		out = append(out, Detection{
			Box:        scaleBox(Box{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}, sx, sy),
			Confidence: conf,
			Class:      int(row[5]),
		})
	}
	return out
}
