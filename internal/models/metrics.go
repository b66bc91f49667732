package models

import "time"

// CoreWebVitals holds the LCP (seconds), CLS (unitless) and INP (milliseconds) triad.
type CoreWebVitals struct {
	LCP float64 `json:"lcp" yaml:"lcp"`
	CLS float64 `json:"cls" yaml:"cls"`
	INP float64 `json:"inp" yaml:"inp"`
}

// DeviceVitals splits Core Web Vitals by form factor.
type DeviceVitals struct {
	Desktop CoreWebVitals `json:"desktop" yaml:"desktop"`
	Mobile  CoreWebVitals `json:"mobile" yaml:"mobile"`
}

// PerfMetrics are the Lighthouse-style performance signals of a snapshot.
type PerfMetrics struct {
	CoreWebVitals       CoreWebVitals `json:"coreWebVitals" yaml:"coreWebVitals"`
	Accessibility       float64       `json:"accessibility" yaml:"accessibility"`
	BestPractices       float64       `json:"bestPractices" yaml:"bestPractices"`
	SEO                 float64       `json:"seo" yaml:"seo"`
	CoreWebVitalsDevice *DeviceVitals `json:"coreWebVitalsDevice,omitempty" yaml:"coreWebVitalsDevice,omitempty"`
}

// FlowMetrics are delivery-flow signals derived from the issue tracker.
// QualitySpecial, QualityIssuesCount and the window bounds are derived by the normalizer.
type FlowMetrics struct {
	ThroughputRatio    float64    `json:"throughputRatio" yaml:"throughputRatio"`
	WIPRatio           float64    `json:"wipRatio" yaml:"wipRatio"`
	QualitySpecial     float64    `json:"qualitySpecial" yaml:"qualitySpecial"`
	CycleTimeP50       float64    `json:"cycleTimeP50" yaml:"cycleTimeP50"`
	CycleTimeP85       float64    `json:"cycleTimeP85" yaml:"cycleTimeP85"`
	CycleTimeP95       float64    `json:"cycleTimeP95" yaml:"cycleTimeP95"`
	WIPCount           *int       `json:"wipCount,omitempty" yaml:"wipCount,omitempty"`
	ThroughputCount    *int       `json:"throughputCount,omitempty" yaml:"throughputCount,omitempty"`
	TotalItemsCount    *int       `json:"totalItemsCount,omitempty" yaml:"totalItemsCount,omitempty"`
	QualityIssuesCount *int       `json:"qualityIssuesCount,omitempty" yaml:"qualityIssuesCount,omitempty"`
	QualityWindowStart *time.Time `json:"qualityWindowStart,omitempty" yaml:"qualityWindowStart,omitempty"`
	QualityWindowEnd   *time.Time `json:"qualityWindowEnd,omitempty" yaml:"qualityWindowEnd,omitempty"`
}

// CycleTimesOrdered reports whether P50 <= P85 <= P95.
func (f FlowMetrics) CycleTimesOrdered() bool {
	return f.CycleTimeP50 <= f.CycleTimeP85 && f.CycleTimeP85 <= f.CycleTimeP95
}

// ProjectMetrics is one monthly snapshot, keyed by (ProjectID, Month).
type ProjectMetrics struct {
	ProjectID string      `json:"projectId" yaml:"projectId"`
	Month     Month       `json:"month" yaml:"month"`
	Perf      PerfMetrics `json:"perf" yaml:"perf"`
	Flow      FlowMetrics `json:"flow" yaml:"flow"`
}

// Key returns the storage key of the snapshot.
func (m ProjectMetrics) Key() MetricsKey {
	return MetricsKey{ProjectID: m.ProjectID, Month: m.Month}
}

// Clone returns a deep copy so callers never alias repository state.
func (m ProjectMetrics) Clone() ProjectMetrics {
	if m.Perf.CoreWebVitalsDevice != nil {
		d := *m.Perf.CoreWebVitalsDevice
		m.Perf.CoreWebVitalsDevice = &d
	}
	m.Flow.WIPCount = cloneInt(m.Flow.WIPCount)
	m.Flow.ThroughputCount = cloneInt(m.Flow.ThroughputCount)
	m.Flow.TotalItemsCount = cloneInt(m.Flow.TotalItemsCount)
	m.Flow.QualityIssuesCount = cloneInt(m.Flow.QualityIssuesCount)
	m.Flow.QualityWindowStart = cloneTime(m.Flow.QualityWindowStart)
	m.Flow.QualityWindowEnd = cloneTime(m.Flow.QualityWindowEnd)
	return m
}

// MetricsKey identifies a snapshot.
type MetricsKey struct {
	ProjectID string
	Month     Month
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// IntOr dereferences p or returns def.
func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IncidentStatus is the lifecycle state of a quality incident.
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
)

// QualityIncident is a production defect attributed to a project.
type QualityIncident struct {
	ProjectID  string         `json:"projectId" yaml:"projectId"`
	Key        string         `json:"key" yaml:"key"`
	Category   string         `json:"category" yaml:"category"`
	Status     IncidentStatus `json:"status" yaml:"status"`
	DetectedAt time.Time      `json:"detectedAt" yaml:"detectedAt"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty" yaml:"resolvedAt,omitempty"`
}
