package config

import "time"

// Config defines the runtime configuration for the motion gate daemon.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	PprofAddr   string

	BrokerURL      string
	Topic          string
	ClientID       string
	ConnectTimeout time.Duration

	MediaMTXBaseURL string
	StreamPath      string
	ToggleTimeout   time.Duration

	MotionThreshold int
	MotionTimeout   time.Duration
	TickInterval    time.Duration
	QueueSize       int
}

// DefaultConfig returns a config aligned with the camera stack's default ports.
// The streaming server owns :8080/:8081/:9090/:6060; the gate sits beside it.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8082",
		MetricsAddr:     ":9091",
		PprofAddr:       ":6061",
		BrokerURL:       "tcp://localhost:1883",
		Topic:           "deepstream-detections",
		ClientID:        "motion-gate",
		ConnectTimeout:  10 * time.Second,
		MediaMTXBaseURL: "http://localhost:8889",
		StreamPath:      "stream1",
		ToggleTimeout:   5 * time.Second,
		MotionThreshold: 1,
		MotionTimeout:   5 * time.Second,
		TickInterval:    1 * time.Second,
		QueueSize:       64,
	}
}
