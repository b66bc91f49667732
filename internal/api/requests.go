package api

import (
	"github.com/p-blackswan/pulse/internal/models"
)

type projectRequest struct {
	ID          string   `json:"id" validate:"required,max=64,excludesall=/"`
	Name        string   `json:"name" validate:"required,max=200"`
	URL         string   `json:"url" validate:"omitempty,url"`
	Description string   `json:"description" validate:"max=2000"`
	Tags        []string `json:"tags" validate:"max=32,dive,max=64"`
	JiraKey     string   `json:"jiraKey" validate:"omitempty,alphanum,max=32"`
}

func (r projectRequest) model() models.Project {
	return models.Project{
		ID:          r.ID,
		Name:        r.Name,
		URL:         r.URL,
		Description: r.Description,
		Tags:        r.Tags,
		JiraKey:     r.JiraKey,
	}
}

type projectPatchRequest struct {
	Name        *string   `json:"name" validate:"omitempty,min=1,max=200"`
	URL         *string   `json:"url" validate:"omitempty,url"`
	Description *string   `json:"description" validate:"omitempty,max=2000"`
	Tags        *[]string `json:"tags" validate:"omitempty,max=32,dive,max=64"`
	JiraKey     *string   `json:"jiraKey" validate:"omitempty,alphanum,max=32"`
}

func (r projectPatchRequest) model() models.ProjectPatch {
	return models.ProjectPatch{
		Name:        r.Name,
		URL:         r.URL,
		Description: r.Description,
		Tags:        r.Tags,
		JiraKey:     r.JiraKey,
	}
}

type vitalsRequest struct {
	LCP float64 `json:"lcp" validate:"gte=0"`
	CLS float64 `json:"cls" validate:"gte=0"`
	INP float64 `json:"inp" validate:"gte=0"`
}

func (v vitalsRequest) model() models.CoreWebVitals {
	return models.CoreWebVitals{LCP: v.LCP, CLS: v.CLS, INP: v.INP}
}

type deviceVitalsRequest struct {
	Desktop vitalsRequest `json:"desktop"`
	Mobile  vitalsRequest `json:"mobile"`
}

type perfRequest struct {
	CoreWebVitals       vitalsRequest        `json:"coreWebVitals"`
	Accessibility       float64              `json:"accessibility" validate:"gte=0,lte=1"`
	BestPractices       float64              `json:"bestPractices" validate:"gte=0,lte=1"`
	SEO                 float64              `json:"seo" validate:"gte=0,lte=1"`
	CoreWebVitalsDevice *deviceVitalsRequest `json:"coreWebVitalsDevice"`
}

type flowRequest struct {
	ThroughputRatio float64 `json:"throughputRatio" validate:"gte=0,lte=1"`
	WIPRatio        float64 `json:"wipRatio" validate:"gte=0,lte=1"`
	QualitySpecial  float64 `json:"qualitySpecial" validate:"gte=0,lte=1"`
	CycleTimeP50    float64 `json:"cycleTimeP50" validate:"gte=0"`
	CycleTimeP85    float64 `json:"cycleTimeP85" validate:"gte=0"`
	CycleTimeP95    float64 `json:"cycleTimeP95" validate:"gte=0"`
	WIPCount        *int    `json:"wipCount" validate:"omitempty,gte=0"`
	ThroughputCount *int    `json:"throughputCount" validate:"omitempty,gte=0"`
	TotalItemsCount *int    `json:"totalItemsCount" validate:"omitempty,gte=0"`
}

// metricsRequest is a snapshot upload. The project comes from the path; the
// month format is checked by the repository so malformed months map to
// malformed_month.
type metricsRequest struct {
	Month string      `json:"month" validate:"required"`
	Perf  perfRequest `json:"perf"`
	Flow  flowRequest `json:"flow"`
}

func (r metricsRequest) model(projectID string) models.ProjectMetrics {
	m := models.ProjectMetrics{
		ProjectID: projectID,
		Month:     models.Month(r.Month),
		Perf: models.PerfMetrics{
			CoreWebVitals: r.Perf.CoreWebVitals.model(),
			Accessibility: r.Perf.Accessibility,
			BestPractices: r.Perf.BestPractices,
			SEO:           r.Perf.SEO,
		},
		Flow: models.FlowMetrics{
			ThroughputRatio: r.Flow.ThroughputRatio,
			WIPRatio:        r.Flow.WIPRatio,
			QualitySpecial:  r.Flow.QualitySpecial,
			CycleTimeP50:    r.Flow.CycleTimeP50,
			CycleTimeP85:    r.Flow.CycleTimeP85,
			CycleTimeP95:    r.Flow.CycleTimeP95,
			WIPCount:        r.Flow.WIPCount,
			ThroughputCount: r.Flow.ThroughputCount,
			TotalItemsCount: r.Flow.TotalItemsCount,
		},
	}
	if d := r.Perf.CoreWebVitalsDevice; d != nil {
		m.Perf.CoreWebVitalsDevice = &models.DeviceVitals{Desktop: d.Desktop.model(), Mobile: d.Mobile.model()}
	}
	return m
}

type suggestionUpdateRequest struct {
	SuggestionID  string `json:"suggestionId" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=new done irrelevant"`
	CompletedText string `json:"completedText" validate:"max=2000"`
}

type jiraRefreshRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
	Month     string `json:"month"`
}

type cacheRefreshRequest struct {
	ProjectID string `json:"projectId"`
	All       bool   `json:"all"`
}
