package types

// Detection is one decoded object detection in wire form.
// Coordinates are corner format; the space (model input or original image)
// depends on whether the publisher rescaled.
type Detection struct {
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
	Confidence float32 `json:"confidence"`
	ClassID    int     `json:"class_id"`
}

// DetectionEvent is the JSON record published on the detection topic,
// one per inference frame. Timestamp is unix seconds (fractional).
// Detections is mandatory; an event without it is malformed.
type DetectionEvent struct {
	FrameNumber uint64      `json:"frame_number,omitempty"`
	Timestamp   float64     `json:"timestamp,omitempty"`
	Detections  []Detection `json:"detections"`
}

// StateChange describes one controller phase transition.
// Count is the detection count of the observation that caused it
// (0 for tick-driven and shutdown transitions).
type StateChange struct {
	Phase     string  `json:"phase"`
	Timestamp float64 `json:"timestamp"`
	Count     int     `json:"count"`
}
