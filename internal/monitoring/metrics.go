package monitoring

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type Metrics struct {
	TotalActions   int                      `json:"total_actions"`
	Succeeded      int                      `json:"succeeded"`
	Failed         int                      `json:"failed"`
	LastAction     time.Time                `json:"last_action"`
	AverageLatency time.Duration            `json:"average_latency"`
	ErrorRate      float64                  `json:"error_rate"`
	BackendMetrics map[string]BackendMetric `json:"backend_metrics"`
}

type BackendMetric struct {
	Actions        int           `json:"actions"`
	Errors         int           `json:"errors"`
	LastUsed       time.Time     `json:"last_used"`
	AverageLatency time.Duration `json:"average_latency"`
}

type Monitor struct {
	metrics     *Metrics
	logger      *logrus.Logger
	metricsFile string
}

func NewMonitor(logger *logrus.Logger, metricsFile string) *Monitor {
	monitor := &Monitor{
		metrics: &Metrics{
			BackendMetrics: make(map[string]BackendMetric),
		},
		logger:      logger,
		metricsFile: metricsFile,
	}

	monitor.loadMetrics()
	return monitor
}

// RecordAction folds one dispatched action into the running totals and the
// per-backend breakdown, then persists the file.
func (m *Monitor) RecordAction(backendName string, ok bool, duration time.Duration) {
	m.metrics.TotalActions++
	if ok {
		m.metrics.Succeeded++
	} else {
		m.metrics.Failed++
	}
	m.metrics.LastAction = time.Now()

	if m.metrics.TotalActions > 1 {
		m.metrics.AverageLatency = (m.metrics.AverageLatency + duration) / 2
	} else {
		m.metrics.AverageLatency = duration
	}

	if m.metrics.TotalActions > 0 {
		m.metrics.ErrorRate = float64(m.metrics.Failed) / float64(m.metrics.TotalActions) * 100
	}

	backendMetric := m.metrics.BackendMetrics[backendName]
	backendMetric.Actions++
	if !ok {
		backendMetric.Errors++
	}
	backendMetric.LastUsed = time.Now()

	if backendMetric.AverageLatency == 0 {
		backendMetric.AverageLatency = duration
	} else {
		backendMetric.AverageLatency = (backendMetric.AverageLatency + duration) / 2
	}

	m.metrics.BackendMetrics[backendName] = backendMetric

	m.saveMetrics()
}

func (m *Monitor) GetMetrics() *Metrics {
	return m.metrics
}

func (m *Monitor) GetHealthStatus() map[string]interface{} {
	status := map[string]interface{}{
		"status":          "healthy",
		"last_action":     m.metrics.LastAction.Format(time.RFC3339),
		"total_actions":   m.metrics.TotalActions,
		"error_rate":      fmt.Sprintf("%.2f%%", m.metrics.ErrorRate),
		"average_latency": m.metrics.AverageLatency.String(),
	}

	// Check if last action was too long ago
	if time.Since(m.metrics.LastAction) > 24*time.Hour {
		status["status"] = "warning"
		status["warning"] = "No actions dispatched in the last 24 hours"
	}

	// Check error rate
	if m.metrics.ErrorRate > 10 {
		status["status"] = "warning"
		status["warning"] = "High error rate detected"
	}

	return status
}

func (m *Monitor) GenerateReport() string {
	report := fmt.Sprintf(`
Account Action Dispatcher Monitoring Report
===========================================
Generated: %s

Overall Statistics:
- Total Actions: %d
- Succeeded: %d
- Failed: %d
- Error Rate: %.2f%%
- Average Latency: %s
- Last Action: %s

Backend Performance:
`,
		time.Now().Format("2006-01-02 15:04:05"),
		m.metrics.TotalActions,
		m.metrics.Succeeded,
		m.metrics.Failed,
		m.metrics.ErrorRate,
		m.metrics.AverageLatency,
		m.metrics.LastAction.Format("2006-01-02 15:04:05"),
	)

	for backendName, metric := range m.metrics.BackendMetrics {
		report += fmt.Sprintf(`
- Backend %s:
  Actions: %d
  Errors: %d
  Last Used: %s
  Average Latency: %s
`,
			backendName,
			metric.Actions,
			metric.Errors,
			metric.LastUsed.Format("2006-01-02 15:04:05"),
			metric.AverageLatency,
		)
	}

	return report
}

func (m *Monitor) loadMetrics() {
	if _, err := os.Stat(m.metricsFile); os.IsNotExist(err) {
		m.logger.Info("No existing metrics file found, starting fresh")
		return
	}

	data, err := os.ReadFile(m.metricsFile)
	if err != nil {
		m.logger.Warnf("Failed to read metrics file: %v", err)
		return
	}

	if err := json.Unmarshal(data, m.metrics); err != nil {
		m.logger.Warnf("Failed to parse metrics file: %v", err)
		return
	}

	m.logger.Info("Loaded existing metrics from file")
}

func (m *Monitor) saveMetrics() {
	data, err := json.MarshalIndent(m.metrics, "", "  ")
	if err != nil {
		m.logger.Errorf("Failed to marshal metrics: %v", err)
		return
	}

	if err := os.WriteFile(m.metricsFile, data, 0644); err != nil {
		m.logger.Errorf("Failed to save metrics: %v", err)
		return
	}
}

// AlertManager handles alerting based on metrics
type AlertManager struct {
	monitor *Monitor
	logger  *logrus.Logger
}

func NewAlertManager(monitor *Monitor, logger *logrus.Logger) *AlertManager {
	return &AlertManager{
		monitor: monitor,
		logger:  logger,
	}
}

func (am *AlertManager) CheckAlerts() []string {
	var alerts []string
	metrics := am.monitor.GetMetrics()

	// Check if the dispatcher hasn't run recently
	if time.Since(metrics.LastAction) > 25*time.Hour {
		alerts = append(alerts, "ALERT: Dispatcher hasn't run in over 24 hours")
	}

	// Check error rate
	if metrics.ErrorRate > 15 {
		alerts = append(alerts, fmt.Sprintf("ALERT: High error rate: %.2f%%", metrics.ErrorRate))
	}

	// Check if no actions were dispatched at all
	if metrics.TotalActions == 0 {
		alerts = append(alerts, "ALERT: No actions have been dispatched")
	}

	return alerts
}

func (am *AlertManager) SendAlerts(alerts []string) {
	for _, alert := range alerts {
		am.logger.Warn(alert)
		// Here you could integrate with external alerting systems
		// like Slack, email, PagerDuty, etc.
	}
}
