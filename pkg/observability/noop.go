package observability

import "time"

// NoopLogger discards everything. Useful in tests.
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards all messages.
func NewNoopLogger() Logger { return &NoopLogger{} }

func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Debugf(format string, args ...interface{})       {}
func (l *NoopLogger) Infof(format string, args ...interface{})        {}
func (l *NoopLogger) Warnf(format string, args ...interface{})        {}
func (l *NoopLogger) Errorf(format string, args ...interface{})       {}
func (l *NoopLogger) WithPrefix(prefix string) Logger                 { return l }
func (l *NoopLogger) With(fields map[string]interface{}) Logger       { return l }

// NoopMetrics discards all metrics.
type NoopMetrics struct{}

// NewNoopMetricsClient creates a metrics client that discards everything.
func NewNoopMetricsClient() MetricsClient { return &NoopMetrics{} }

func (m *NoopMetrics) RecordCounter(name string, value float64, labels map[string]string)   {}
func (m *NoopMetrics) RecordGauge(name string, value float64, labels map[string]string)     {}
func (m *NoopMetrics) RecordHistogram(name string, value float64, labels map[string]string) {}
func (m *NoopMetrics) RecordLatency(operation string, duration time.Duration)               {}
func (m *NoopMetrics) IncrementCounter(name string, value float64)                          {}
func (m *NoopMetrics) StartTimer(name string, labels map[string]string) func()              { return func() {} }
func (m *NoopMetrics) Close() error                                                         { return nil }
