// Package ingest subscribes to the detection topic and converts incoming
// events into motion observations.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/motion"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/pkg/types"
)

// ObservationSink receives observations parsed off the wire. Offer must
// not block.
type ObservationSink interface {
	Offer(motion.Observation) bool
}

// Config holds the broker connection parameters.
type Config struct {
	BrokerURL      string
	Topic          string
	ClientID       string
	ConnectTimeout time.Duration
}

// detectionEvent is the wire payload on the detection topic. Detections
// is a pointer so a missing or null field is distinguishable from an
// empty list.
type detectionEvent struct {
	FrameNumber uint64             `json:"frame_number"`
	Timestamp   float64            `json:"timestamp"`
	Detections  *[]types.Detection `json:"detections"`
}

// Subscriber bridges the MQTT detection topic to an ObservationSink.
type Subscriber struct {
	cfg  Config
	sink ObservationSink
	clk  clock.Clock
	m    *metrics.Metrics

	client mqtt.Client
}

func NewSubscriber(cfg Config, sink ObservationSink, clk clock.Clock, m *metrics.Metrics) *Subscriber {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Subscriber{cfg: cfg, sink: sink, clk: clk, m: m}
}

// Start connects to the broker and subscribes. The subscription is made
// from the on-connect handler so it survives automatic reconnects.
func (s *Subscriber) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		s.m.BrokerConnected.Store(1)
		logger.Info("Ingest", "Connected to %s, subscribing to %s", s.cfg.BrokerURL, s.cfg.Topic)
		if token := client.Subscribe(s.cfg.Topic, 0, s.handleMessage); token.Wait() && token.Error() != nil {
			logger.Error("Ingest", "Subscribe to %s failed: %v", s.cfg.Topic, token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.m.BrokerConnected.Store(0)
		logger.Warn("Ingest", "Broker connection lost: %v", err)
	})

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("connect to %s: timeout after %s", s.cfg.BrokerURL, s.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", s.cfg.BrokerURL, err)
	}
	return nil
}

// Stop disconnects from the broker, waiting briefly for in-flight work.
func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
		logger.Info("Ingest", "Disconnected from broker")
	}
	s.m.BrokerConnected.Store(0)
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	s.process(msg.Payload())
}

// process parses one payload and offers the resulting observation. A
// payload that is not JSON or lacks a detections list is counted as
// malformed and skipped; an empty list is a valid zero-motion sample.
func (s *Subscriber) process(payload []byte) {
	s.m.ObservationsReceived.Add(1)

	var ev detectionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.m.ObservationsMalformed.Add(1)
		logger.Warn("Ingest", "Dropping malformed payload: %v", err)
		return
	}
	if ev.Detections == nil {
		s.m.ObservationsMalformed.Add(1)
		logger.Warn("Ingest", "Dropping payload without detections list")
		return
	}

	at := s.clk.Now()
	if ev.Timestamp > 0 {
		at = time.Unix(0, int64(ev.Timestamp*float64(time.Second)))
	}

	obs := motion.Observation{Time: at, Count: len(*ev.Detections)}
	if !s.sink.Offer(obs) {
		s.m.ObservationsDropped.Add(1)
		logger.Warn("Ingest", "Observation queue full, dropping frame %d", ev.FrameNumber)
		return
	}
	logger.Debug("Ingest", "Frame %d: %d detections", ev.FrameNumber, obs.Count)
}
