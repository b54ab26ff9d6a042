// check-services verifies that the services the motion gate depends on
// are up before the daemon or the detection pipeline is started.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/mediamtx"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/triton"
)

func main() {
	defaults := config.DefaultConfig()

	tritonURL := flag.String("triton", "http://localhost:8000", "Triton server base URL")
	model := flag.String("model", "yolo11n", "Model that must be loaded")
	mediamtxURL := flag.String("mediamtx", defaults.MediaMTXBaseURL, "MediaMTX API base URL")
	brokerURL := flag.String("broker", defaults.BrokerURL, "MQTT broker URL")
	timeout := flag.Duration("timeout", 2*time.Second, "Per-check timeout")
	flag.Parse()

	fmt.Println("Motion Gate Service Check")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	type result struct {
		name     string
		ok       bool
		required bool
	}
	results := []result{
		{"Triton Server", checkTriton(*tritonURL, *timeout), true},
		{"Triton Model", checkModel(*tritonURL, *model, *timeout), true},
		{"MediaMTX", checkMediaMTX(*mediamtxURL, *timeout), false},
		{"MQTT Broker", checkBroker(*brokerURL, *timeout), true},
	}

	fmt.Println()
	fmt.Println("Summary")
	fmt.Println(strings.Repeat("=", 60))

	failed := false
	for _, r := range results {
		mark := "✓"
		if !r.ok {
			mark = "⚠"
			if r.required {
				mark = "✗"
				failed = true
			}
		}
		fmt.Printf("%s %s\n", mark, r.name)
	}

	if failed {
		fmt.Println("\nSome required services are not ready")
		os.Exit(1)
	}
	fmt.Println("\nAll required services are ready")
}

func checkTriton(baseURL string, timeout time.Duration) bool {
	fmt.Println("Checking Triton inference server...")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := triton.NewClient(baseURL).Ready(ctx); err != nil {
		fmt.Printf("✗ Triton server is not ready: %v\n", err)
		return false
	}
	fmt.Println("✓ Triton server is running and ready")
	return true
}

func checkModel(baseURL, model string, timeout time.Duration) bool {
	fmt.Printf("\nChecking model %s...\n", model)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	meta, err := triton.NewClient(baseURL).ModelMetadata(ctx, model)
	if err != nil {
		fmt.Printf("✗ Model %s is not available: %v\n", model, err)
		return false
	}
	fmt.Printf("✓ Model '%s' is loaded and ready\n", meta.Name)
	if meta.Platform != "" {
		fmt.Printf("  Platform: %s\n", meta.Platform)
	}
	if len(meta.Versions) > 0 {
		fmt.Printf("  Versions: %s\n", strings.Join(meta.Versions, ", "))
	}
	return true
}

func checkMediaMTX(baseURL string, timeout time.Duration) bool {
	fmt.Println("\nChecking MediaMTX...")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := mediamtx.NewClient(baseURL, "").Healthy(ctx); err != nil {
		fmt.Printf("⚠ MediaMTX is not reachable (optional): %v\n", err)
		return false
	}
	fmt.Println("✓ MediaMTX is running")
	return true
}

func checkBroker(brokerURL string, timeout time.Duration) bool {
	fmt.Println("\nChecking MQTT broker...")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID("motion-gate-check")
	opts.SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout + time.Second) {
		fmt.Println("✗ MQTT broker connection timed out")
		return false
	}
	if err := token.Error(); err != nil {
		fmt.Printf("✗ MQTT broker is not reachable: %v\n", err)
		return false
	}
	client.Disconnect(100)
	fmt.Println("✓ MQTT broker is reachable")
	return true
}
