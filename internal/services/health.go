package services

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/pkg/models"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name     string
	critical bool
	check    HealthCheck
}

type HealthService struct {
	logger      *logrus.Logger
	checks      []namedCheck
	modelStatus func(ctx context.Context) models.ModelStatus
	pool        *pgxpool.Pool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Prometheus metrics
	healthCheckStatus   *prometheus.GaugeVec
	lastHealthCheck     *prometheus.GaugeVec
	systemMetrics       *prometheus.GaugeVec
	dbConnectionMetrics *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string              `json:"status"`
	Timestamp   time.Time           `json:"timestamp"`
	Services    map[string]string   `json:"services"`
	Critical    []string            `json:"critical_failures,omitempty"`
	NonCritical []string            `json:"non_critical_failures,omitempty"`
	Models      *models.ModelStatus `json:"models,omitempty"`
}

func NewHealthService(logger *logrus.Logger, registerer prometheus.Registerer) *HealthService {
	hs := &HealthService{
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	hs.healthCheckStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"})

	hs.lastHealthCheck = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_timestamp",
		Help: "Timestamp of last health check",
	}, []string{"service"})

	hs.systemMetrics = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_info",
		Help: "System information metrics",
	}, []string{"metric_type"})

	hs.dbConnectionMetrics = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "database_connection_pool_usage",
		Help: "Database connection pool usage",
	}, []string{"database", "state"})

	// Register metrics with error handling - ignore if already registered
	for _, collector := range []prometheus.Collector{
		hs.healthCheckStatus,
		hs.lastHealthCheck,
		hs.systemMetrics,
		hs.dbConnectionMetrics,
	} {
		if err := registerer.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				logger.WithError(err).Warn("Failed to register health metric")
			}
		}
	}

	return hs
}

// AddCheck registers a dependency probe. A failing critical check makes the
// service unhealthy; a failing non-critical one makes it degraded.
func (s *HealthService) AddCheck(name string, critical bool, check HealthCheck) {
	s.checks = append(s.checks, namedCheck{name: name, critical: critical, check: check})
}

// SetModelStatus attaches model freshness to every health report.
func (s *HealthService) SetModelStatus(fn func(ctx context.Context) models.ModelStatus) {
	s.modelStatus = fn
}

// WatchPool enables connection pool metrics for pool.
func (s *HealthService) WatchPool(pool *pgxpool.Pool) {
	s.pool = pool
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	allCriticalHealthy := true
	for _, c := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := c.check(checkCtx)
		cancel()

		if err == nil {
			status.Services[c.name] = "healthy"
			s.UpdateHealthMetrics(c.name, true)
			continue
		}

		status.Services[c.name] = "unhealthy"
		s.UpdateHealthMetrics(c.name, false)
		if c.critical {
			status.Critical = append(status.Critical, c.name)
			allCriticalHealthy = false
			s.logger.WithError(err).Errorf("Critical service %s is unhealthy", c.name)
		} else {
			status.NonCritical = append(status.NonCritical, c.name)
			s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", c.name)
		}
	}
	sort.Strings(status.Critical)
	sort.Strings(status.NonCritical)

	// Overall status
	if allCriticalHealthy {
		if len(status.NonCritical) == 0 {
			status.Status = "healthy"
		} else {
			status.Status = "degraded"
		}
	} else {
		status.Status = "unhealthy"
	}

	if s.modelStatus != nil {
		ms := s.modelStatus(ctx)
		status.Models = &ms
	}

	return status
}

// Start launches the background system and pool metric collectors.
func (s *HealthService) Start() {
	s.wg.Add(2)
	go s.collectSystemMetrics()
	go s.collectDatabaseMetrics()
}

func (s *HealthService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// collectSystemMetrics collects system-level metrics
func (s *HealthService) collectSystemMetrics() {
	defer s.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var memStats runtime.MemStats

	for {
		select {
		case <-ticker.C:
			runtime.ReadMemStats(&memStats)

			s.systemMetrics.WithLabelValues("memory_alloc_bytes").Set(float64(memStats.Alloc))
			s.systemMetrics.WithLabelValues("memory_sys_bytes").Set(float64(memStats.Sys))
			s.systemMetrics.WithLabelValues("goroutines_count").Set(float64(runtime.NumGoroutine()))
			s.systemMetrics.WithLabelValues("gc_runs_total").Set(float64(memStats.NumGC))
		case <-s.stopChan:
			return
		}
	}
}

// collectDatabaseMetrics collects database connection metrics
func (s *HealthService) collectDatabaseMetrics() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.pool == nil {
				continue
			}
			stats := s.pool.Stat()

			s.dbConnectionMetrics.WithLabelValues("postgresql", "acquired_conns").Set(float64(stats.AcquiredConns()))
			s.dbConnectionMetrics.WithLabelValues("postgresql", "idle_conns").Set(float64(stats.IdleConns()))
			s.dbConnectionMetrics.WithLabelValues("postgresql", "max_conns").Set(float64(stats.MaxConns()))
			s.dbConnectionMetrics.WithLabelValues("postgresql", "total_conns").Set(float64(stats.TotalConns()))
		case <-s.stopChan:
			return
		}
	}
}

// UpdateHealthMetrics updates health check metrics
func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}
