package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// BotMetrics holds the bot's monotone counters. Counters are atomics so
// listener tasks can bump them without coordination; each is mirrored
// into a prometheus counter.
type BotMetrics struct {
	ScanCycles               atomic.Int64
	OpportunitiesFound       atomic.Int64
	TriangularOpportunities  atomic.Int64
	SimulationFailures       atomic.Int64
	ExecutionFailures        atomic.Int64
	SuccessfulArbs           atomic.Int64
	JitoSubmissions          atomic.Int64
	NewPoolsDetected         atomic.Int64
	BackrunSignals           atomic.Int64
	TotalProfit              atomic.Int64
	TotalGasSpent            atomic.Int64

	startTime time.Time
	logger    *logger.Logger

	registry *prometheus.Registry
	promVecs map[string]prometheus.Counter
}

// New creates the metrics set
func New(log *logger.Logger) *BotMetrics {
	m := &BotMetrics{
		startTime: time.Now(),
		logger:    log.Named("metrics"),
		registry:  prometheus.NewRegistry(),
		promVecs:  make(map[string]prometheus.Counter),
	}

	for _, name := range []string{
		"scan_cycles",
		"opportunities_found",
		"triangular_opportunities",
		"simulation_failures",
		"execution_failures",
		"successful_arbs",
		"jito_submissions",
		"new_pools_detected",
		"backrun_signals",
	} {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arb",
			Name:      name,
		})
		m.registry.MustRegister(counter)
		m.promVecs[name] = counter
	}
	return m
}

// Inc bumps both the atomic and the prometheus counter for a name.
func (m *BotMetrics) inc(counter *atomic.Int64, name string) {
	counter.Add(1)
	if c, ok := m.promVecs[name]; ok {
		c.Inc()
	}
}

// IncScanCycles increments the scan-cycle counter
func (m *BotMetrics) IncScanCycles() { m.inc(&m.ScanCycles, "scan_cycles") }

// IncOpportunities increments the two-leg opportunity counter
func (m *BotMetrics) IncOpportunities() { m.inc(&m.OpportunitiesFound, "opportunities_found") }

// IncTriangular increments the triangular opportunity counter
func (m *BotMetrics) IncTriangular() { m.inc(&m.TriangularOpportunities, "triangular_opportunities") }

// IncSimulationFailures increments the simulation-failure counter
func (m *BotMetrics) IncSimulationFailures() { m.inc(&m.SimulationFailures, "simulation_failures") }

// IncExecutionFailures increments the execution-failure counter
func (m *BotMetrics) IncExecutionFailures() { m.inc(&m.ExecutionFailures, "execution_failures") }

// IncSuccessfulArbs increments the successful-arbitrage counter
func (m *BotMetrics) IncSuccessfulArbs() { m.inc(&m.SuccessfulArbs, "successful_arbs") }

// IncJitoSubmissions increments the block-engine submission counter
func (m *BotMetrics) IncJitoSubmissions() { m.inc(&m.JitoSubmissions, "jito_submissions") }

// IncNewPools increments the new-pool counter
func (m *BotMetrics) IncNewPools() { m.inc(&m.NewPoolsDetected, "new_pools_detected") }

// IncBackrunSignals increments the backrun-signal counter
func (m *BotMetrics) IncBackrunSignals() { m.inc(&m.BackrunSignals, "backrun_signals") }

// AddProfit accumulates realized profit in borrow-token units
func (m *BotMetrics) AddProfit(amount int64) { m.TotalProfit.Add(amount) }

// AddGasSpent accumulates lamports spent on gas
func (m *BotMetrics) AddGasSpent(lamports int64) { m.TotalGasSpent.Add(lamports) }

// Uptime returns time since process start
func (m *BotMetrics) Uptime() time.Duration { return time.Since(m.startTime) }

// LogSummary emits the periodic one-line summary.
func (m *BotMetrics) LogSummary() {
	m.logger.Info("summary",
		"uptime_s", int(m.Uptime().Seconds()),
		"scan_cycles", m.ScanCycles.Load(),
		"opportunities", m.OpportunitiesFound.Load(),
		"triangular", m.TriangularOpportunities.Load(),
		"sim_failures", m.SimulationFailures.Load(),
		"exec_failures", m.ExecutionFailures.Load(),
		"successful_arbs", m.SuccessfulArbs.Load(),
		"jito_submissions", m.JitoSubmissions.Load(),
		"new_pools", m.NewPoolsDetected.Load(),
		"backrun_signals", m.BackrunSignals.Load(),
		"total_profit", m.TotalProfit.Load(),
		"total_gas", m.TotalGasSpent.Load())
}

// StartSummaryLoop logs the summary every interval until ctx is done.
func (m *BotMetrics) StartSummaryLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}

// Serve exposes the prometheus registry at /metrics on addr.
func (m *BotMetrics) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Warn("metrics server stopped", "error", err)
		}
	}()
}
