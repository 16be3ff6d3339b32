package models

import "time"

// MetricSample is one row of the performance_metrics collection.
type MetricSample struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Entity    string            `json:"entity"`
	Name      string            `json:"metric_name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}
