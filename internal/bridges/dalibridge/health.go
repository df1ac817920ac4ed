package dalibridge

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/mqtt"
)

const (
	defaultHealthInterval = 30 * time.Second
	healthCheckTimeout    = 5 * time.Second
)

// HealthCheck probes one dependency (database, InfluxDB). A nil return
// means healthy.
type HealthCheck func(ctx context.Context) error

// HealthPublisher is the part of the MQTT client the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatsSource provides receive statistics. Every dali.Driver satisfies it.
type StatsSource interface {
	Stats() dali.EngineStats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	GatewayID string
	Version   string
	Transport string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Engine    StatsSource

	// Bridge returns MQTT side counters. Optional.
	Bridge func() BridgeStatistics

	// Telemetry receives an engine snapshot on every report. Optional.
	Telemetry Telemetry

	// Checks are run by name on every report; the first failure degrades
	// an otherwise healthy status.
	Checks map[string]HealthCheck
}

// HealthReporter publishes gateway health to MQTT at regular intervals.
type HealthReporter struct {
	cfg       HealthReporterConfig
	topic     string
	startTime time.Time
	now       func() time.Time

	// lastDropped is the drop counter at the previous report; new drops
	// degrade the status until the next quiet interval.
	lastDropped uint64
	dropMu      sync.Mutex

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	return &HealthReporter{
		cfg:       cfg,
		topic:     mqtt.Topics{}.Health(),
		startTime: time.Now(),
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "gateway stopping")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "gateway starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus(h.engineStats())
	if status == HealthHealthy {
		if failed := h.checkDependencies(); failed != "" {
			status, reason = HealthDegraded, failed
		}
	}
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	h.report()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.report()
		}
	}
}

func (h *HealthReporter) report() {
	if h.cfg.Telemetry != nil {
		h.cfg.Telemetry.WriteEngineStats(h.engineStats(), h.now())
	}
	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish health", err)
	}
}

func (h *HealthReporter) engineStats() dali.EngineStats {
	if h.cfg.Engine == nil {
		return dali.EngineStats{}
	}
	return h.cfg.Engine.Stats()
}

// determineStatus evaluates gateway health from a stats snapshot.
// Drivers without a receive engine (QueueCapacity 0) are always healthy.
func (h *HealthReporter) determineStatus(stats dali.EngineStats) (HealthStatus, string) {
	h.dropMu.Lock()
	newDrops := stats.FramesDropped > h.lastDropped
	h.lastDropped = stats.FramesDropped
	h.dropMu.Unlock()

	if stats.QueueCapacity > 0 && !stats.Running {
		return HealthUnhealthy, "receive stopped"
	}
	if newDrops {
		return HealthDegraded, "receive queue overflow"
	}
	return HealthHealthy, ""
}

// checkDependencies returns "name: error" for the first failing check in
// name order, or "" when all pass.
func (h *HealthReporter) checkDependencies() string {
	for _, name := range slices.Sorted(maps.Keys(h.cfg.Checks)) {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		err := h.cfg.Checks[name](ctx)
		cancel()
		if err != nil {
			return fmt.Sprintf("%s: %v", name, err)
		}
	}
	return ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return nil
	}

	now := h.now()
	msg := HealthMessage{
		Gateway:       h.cfg.GatewayID,
		Timestamp:     now.UTC(),
		Status:        status,
		Version:       h.cfg.Version,
		Transport:     h.cfg.Transport,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Engine:        newEngineStatistics(h.engineStats()),
		Reason:        reason,
	}
	if h.cfg.Bridge != nil {
		bs := h.cfg.Bridge()
		msg.Bridge = &bs
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
