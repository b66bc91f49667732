package models

// Band is a traffic-light classification of a single value.
type Band string

const (
	BandGood    Band = "good"
	BandWarning Band = "warning"
	BandPoor    Band = "poor"
)

// HealthStatus is the overall classification of a project.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthAtRisk   HealthStatus = "at-risk"
	HealthCritical HealthStatus = "critical"
)
