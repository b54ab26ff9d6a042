package triton

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/health/ready" {
			t.Errorf("path = %s, want /v2/health/ready", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).Ready(context.Background()); err != nil {
		t.Fatalf("Ready() = %v", err)
	}
}

func TestReadyRejectsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).Ready(context.Background()); err == nil {
		t.Fatal("expected error on 503 response")
	}
}

func TestModelMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/models/yolo11n" {
			t.Errorf("path = %s, want /v2/models/yolo11n", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ModelMetadata{
			Name:     "yolo11n",
			Platform: "onnxruntime_onnx",
			Versions: []string{"1"},
			Inputs: []TensorMeta{
				{Name: "images", Datatype: "FP32", Shape: []int64{1, 3, 640, 640}},
			},
			Outputs: []TensorMeta{
				{Name: "output0", Datatype: "FP32", Shape: []int64{1, 84, 8400}},
			},
		})
	}))
	defer srv.Close()

	meta, err := NewClient(srv.URL).ModelMetadata(context.Background(), "yolo11n")
	if err != nil {
		t.Fatalf("ModelMetadata() = %v", err)
	}
	if meta.Name != "yolo11n" || meta.Platform != "onnxruntime_onnx" {
		t.Errorf("metadata = %+v", meta)
	}
	if len(meta.Outputs) != 1 || meta.Outputs[0].Name != "output0" {
		t.Errorf("outputs = %+v, want output0", meta.Outputs)
	}
}

func TestInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v2/models/yolo11n/infer" {
			t.Errorf("path = %s, want /v2/models/yolo11n/infer", r.URL.Path)
		}
		var req inferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Inputs) != 1 {
			t.Fatalf("inputs = %d, want 1", len(req.Inputs))
		}
		in := req.Inputs[0]
		if in.Name != "images" || in.Datatype != DatatypeFP32 {
			t.Errorf("input = %s/%s, want images/FP32", in.Name, in.Datatype)
		}
		if !reflect.DeepEqual(in.Shape, []int64{1, 3, 2, 2}) {
			t.Errorf("shape = %v, want [1 3 2 2]", in.Shape)
		}
		if len(in.Data) != 12 {
			t.Errorf("data length = %d, want 12", len(in.Data))
		}
		if len(req.Outputs) != 1 || req.Outputs[0].Name != "output0" {
			t.Errorf("requested outputs = %+v, want output0", req.Outputs)
		}

		json.NewEncoder(w).Encode(inferResponse{
			ModelName: "yolo11n",
			Outputs: []InferOutput{
				{Name: "output0", Datatype: DatatypeFP32, Shape: []int64{1, 2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
			},
		})
	}))
	defer srv.Close()

	input := InferInput{
		Name:     "images",
		Shape:    []int64{1, 3, 2, 2},
		Datatype: DatatypeFP32,
		Data:     make([]float32, 12),
	}
	outputs, err := NewClient(srv.URL).Infer(context.Background(), "yolo11n", []InferInput{input}, "output0")
	if err != nil {
		t.Fatalf("Infer() = %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(outputs))
	}
	out := outputs[0]
	if out.Name != "output0" {
		t.Errorf("output name = %s, want output0", out.Name)
	}
	if !reflect.DeepEqual(out.Shape, []int64{1, 2, 3}) {
		t.Errorf("output shape = %v, want [1 2 3]", out.Shape)
	}
	if !reflect.DeepEqual(out.Data, []float32{1, 2, 3, 4, 5, 6}) {
		t.Errorf("output data = %v", out.Data)
	}
}

func TestInferReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "unexpected shape for input 'images'"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Infer(context.Background(), "yolo11n", nil)
	if err == nil {
		t.Fatal("expected error on 400 response")
	}
	if !strings.Contains(err.Error(), "unexpected shape") {
		t.Errorf("error = %q, want the server message in it", err)
	}
}
