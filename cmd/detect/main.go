// detect runs one image through the inference server and prints the
// decoded detections as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/detect"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/preprocess"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/triton"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/pkg/types"
)

var (
	imagePath  = flag.String("image", "test.jpg", "Image file to run through the model")
	model      = flag.String("model", "yolo11n", "Model name")
	serverURL  = flag.String("url", "http://localhost:8000", "Triton server base URL")
	encoding   = flag.String("encoding", "dense-grid", "Output encoding: dense-grid or query-set")
	confThresh = flag.Float64("conf", 0.25, "Confidence threshold")
	iouThresh  = flag.Float64("iou", 0.45, "IoU threshold for suppression")
	inputW     = flag.Int("input-width", 640, "Model input width")
	inputH     = flag.Int("input-height", 640, "Model input height")
	inputName  = flag.String("input", "images", "Model input tensor name")
	outputName = flag.String("output", "output0", "Model output tensor name")
	timeout    = flag.Duration("timeout", 30*time.Second, "Inference timeout")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatalf("detect: %v", err)
	}
}

func run() error {
	f, err := os.Open(*imagePath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	img, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	log.Printf("Loaded %s image %dx%d", format, bounds.Dx(), bounds.Dy())

	tensor, err := preprocess.ImageToTensor(img, *inputW, *inputH)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := triton.NewClient(*serverURL)
	if err := client.Ready(ctx); err != nil {
		return err
	}

	log.Printf("Running inference (%s on %s)...", *model, *serverURL)
	outputs, err := client.Infer(ctx, *model, []triton.InferInput{{
		Name:     *inputName,
		Shape:    []int64{1, 3, int64(*inputH), int64(*inputW)},
		Datatype: triton.DatatypeFP32,
		Data:     tensor,
	}}, *outputName)
	if err != nil {
		return err
	}

	out, err := findOutput(outputs, *outputName)
	if err != nil {
		return err
	}
	log.Printf("Output %s shape %v (%d values)", out.Name, out.Shape, len(out.Data))

	raw, err := rawFromOutput(out, *encoding)
	if err != nil {
		return err
	}

	dets, err := detect.Decode(raw, detect.Params{
		ConfThreshold: float32(*confThresh),
		IoUThreshold:  float32(*iouThresh),
		InputShape:    detect.Shape{Width: *inputW, Height: *inputH},
		OriginalShape: &detect.Shape{Width: bounds.Dx(), Height: bounds.Dy()},
	})
	if err != nil {
		return err
	}

	event := types.DetectionEvent{
		Timestamp:  float64(time.Now().UnixNano()) / float64(time.Second),
		Detections: toWire(dets),
	}
	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	log.Printf("%d detections above confidence %.2f", len(dets), *confThresh)
	return nil
}

func findOutput(outputs []triton.InferOutput, name string) (triton.InferOutput, error) {
	for _, out := range outputs {
		if out.Name == name {
			return out, nil
		}
	}
	return triton.InferOutput{}, fmt.Errorf("output %q not in response", name)
}

// rawFromOutput maps the declared tensor shape onto a decodable layout.
// Dense grid tensors arrive channels-first as [1, 4+classes, anchors],
// query set tensors as [1, queries, 6].
func rawFromOutput(out triton.InferOutput, encoding string) (detect.RawOutput, error) {
	dims := out.Shape
	if len(dims) == 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return detect.RawOutput{}, fmt.Errorf("unsupported output shape %v", out.Shape)
	}

	switch encoding {
	case "dense-grid":
		cols, anchors := int(dims[0]), int(dims[1])
		if cols < 5 {
			return detect.RawOutput{}, fmt.Errorf("dense grid output needs at least 5 channels, got shape %v", out.Shape)
		}
		return detect.NewDenseGridOutputCHW(out.Data, anchors, cols-4)

	case "query-set":
		queries := int(dims[0])
		if dims[1] != 6 {
			return detect.RawOutput{}, fmt.Errorf("query set output needs 6 columns, got shape %v", out.Shape)
		}
		return detect.NewQuerySetOutput(out.Data, queries)

	default:
		return detect.RawOutput{}, fmt.Errorf("unknown encoding %q (want dense-grid or query-set)", encoding)
	}
}

func toWire(dets []detect.Detection) []types.Detection {
	wire := make([]types.Detection, len(dets))
	for i, d := range dets {
		wire[i] = types.Detection{
			X1:         d.Box.X1,
			Y1:         d.Box.Y1,
			X2:         d.Box.X2,
			Y2:         d.Box.Y2,
			Confidence: d.Confidence,
			ClassID:    d.Class,
		}
	}
	return wire
}
