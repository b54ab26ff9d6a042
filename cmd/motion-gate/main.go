package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/ingest"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/mediamtx"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/monitor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/motion"
)

func main() {
	cfg := config.DefaultConfig()

	var logLevel string
	var logColor bool

	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP server address")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Metrics server address")
	flag.StringVar(&cfg.PprofAddr, "pprof", cfg.PprofAddr, "pprof server address")
	flag.StringVar(&cfg.BrokerURL, "broker", cfg.BrokerURL, "MQTT broker URL")
	flag.StringVar(&cfg.Topic, "topic", cfg.Topic, "MQTT detection topic")
	flag.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "MQTT client ID")
	flag.StringVar(&cfg.MediaMTXBaseURL, "mediamtx", cfg.MediaMTXBaseURL, "MediaMTX API base URL")
	flag.StringVar(&cfg.StreamPath, "stream-path", cfg.StreamPath, "MediaMTX stream path")
	flag.IntVar(&cfg.MotionThreshold, "motion-threshold", cfg.MotionThreshold, "Minimum detections per event to count as motion")
	flag.DurationVar(&cfg.MotionTimeout, "motion-timeout", cfg.MotionTimeout, "Quiet period before the stream is disabled")
	flag.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Timeout check interval")
	flag.IntVar(&cfg.QueueSize, "queue", cfg.QueueSize, "Observation queue size")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	logger.Info("Main", "Motion gate starting...")
	logger.Info("Main", "Log level: %s", level)

	svc := NewService(cfg)

	if err := svc.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")

	if err := svc.Shutdown(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Motion gate stopped")
}

// Service wires the subscriber, the controller and the HTTP surfaces
// together.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cfg        config.Config
	metrics    *metrics.Metrics
	controller *motion.Controller
	subscriber *ingest.Subscriber
	httpServer *http.Server
}

// NewService builds the full pipeline: MQTT ingest feeds the controller,
// the controller toggles MediaMTX and publishes transitions to the
// monitor's broadcaster.
func NewService(cfg config.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	m := metrics.New()
	toggler := mediamtx.NewClient(cfg.MediaMTXBaseURL, cfg.StreamPath)

	controller := motion.NewController(motion.Config{
		MotionThreshold: cfg.MotionThreshold,
		MotionTimeout:   cfg.MotionTimeout,
		TickInterval:    cfg.TickInterval,
		QueueSize:       cfg.QueueSize,
		ToggleTimeout:   cfg.ToggleTimeout,
	}, toggler, clock.New(), m)

	broadcaster := monitor.NewBroadcaster()
	controller.SetListener(broadcaster)

	subscriber := ingest.NewSubscriber(ingest.Config{
		BrokerURL:      cfg.BrokerURL,
		Topic:          cfg.Topic,
		ClientID:       cfg.ClientID,
		ConnectTimeout: cfg.ConnectTimeout,
	}, controller, clock.New(), m)

	monitorSrv := monitor.NewServer(controller, broadcaster, monitor.Info{
		MotionThreshold: cfg.MotionThreshold,
		MotionTimeout:   cfg.MotionTimeout,
		Topic:           cfg.Topic,
		StreamPath:      cfg.StreamPath,
	}, m)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: monitorSrv.Handler(),
	}

	return &Service{
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		metrics:    m,
		controller: controller,
		subscriber: subscriber,
		httpServer: httpServer,
	}
}

// Start launches all components.
func (s *Service) Start() error {
	log.Printf("Starting motion gate...")
	log.Printf("  Broker: %s (topic %s)", s.cfg.BrokerURL, s.cfg.Topic)
	log.Printf("  MediaMTX: %s (path %s)", s.cfg.MediaMTXBaseURL, s.cfg.StreamPath)
	log.Printf("  HTTP server: %s", s.cfg.HTTPAddr)
	log.Printf("  Metrics server: %s", s.cfg.MetricsAddr)
	log.Printf("  pprof server: %s", s.cfg.PprofAddr)

	// Start pprof server
	go func() {
		log.Printf("Starting pprof server on %s", s.cfg.PprofAddr)
		if err := http.ListenAndServe(s.cfg.PprofAddr, nil); err != nil {
			log.Printf("pprof server error: %v", err)
		}
	}()

	// Start metrics server
	go func() {
		log.Printf("Starting metrics server on %s", s.cfg.MetricsAddr)
		if err := s.metrics.StartServer(s.cfg.MetricsAddr); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on %s", s.cfg.HTTPAddr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Run the controller before connecting so observations always have
	// a consumer.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.controller.Run(s.ctx)
	}()

	if err := s.subscriber.Start(); err != nil {
		s.cancel()
		s.wg.Wait()
		return err
	}

	log.Println("Motion gate started successfully")
	return nil
}

// Shutdown stops intake first, then the controller, which disables the
// stream if it is still active.
func (s *Service) Shutdown() error {
	s.subscriber.Stop()

	s.cancel()
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
