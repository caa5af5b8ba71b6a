package dto

import (
	"time"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
)

// ServiceEntryDTO mirrors one work-order line item.
type ServiceEntryDTO struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity,omitempty"`
}

// SiteDTO mirrors the customer site descriptor.
type SiteDTO struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address,omitempty"`
}

// WorkOrderDTO is the scraped work order as submitted by the caller.
type WorkOrderDTO struct {
	WorkOrderID       string            `json:"work_order_id,omitempty"`
	VisitID           string            `json:"visit_id,omitempty"`
	Services          []ServiceEntryDTO `json:"services"`
	Site              SiteDTO           `json:"site" binding:"required"`
	CategoryOverrides map[int][]string  `json:"category_overrides,omitempty"`
}

// PreferencesDTO carries optional per-job user options. Nil booleans take
// the service defaults (notifications on, headless on).
type PreferencesDTO struct {
	Headless         *bool `json:"headless,omitempty"`
	NotifyOnComplete *bool `json:"notify_on_complete,omitempty"`
	NotifyOnFailure  *bool `json:"notify_on_failure,omitempty"`
}

// CredentialsDTO authenticates the automation run against the portal.
type CredentialsDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateJobRequest is the body of POST /api/v1/automation/jobs.
type CreateJobRequest struct {
	UserID      string          `json:"user_id" binding:"required"`
	WorkOrder   WorkOrderDTO    `json:"work_order" binding:"required"`
	Preferences *PreferencesDTO `json:"preferences,omitempty"`
	Credentials CredentialsDTO  `json:"credentials" binding:"required"`
}

// ToWorkOrder converts the DTO into the domain input record.
func (r *CreateJobRequest) ToWorkOrder() *domain.WorkOrderRecord {
	services := make([]domain.ServiceEntry, len(r.WorkOrder.Services))
	for i, svc := range r.WorkOrder.Services {
		services[i] = domain.ServiceEntry{
			Type:        svc.Type,
			Description: svc.Description,
			Quantity:    svc.Quantity,
		}
	}

	return &domain.WorkOrderRecord{
		WorkOrderID: r.WorkOrder.WorkOrderID,
		VisitID:     r.WorkOrder.VisitID,
		Services:    services,
		Site: domain.SiteDescriptor{
			Name:    r.WorkOrder.Site.Name,
			Address: r.WorkOrder.Site.Address,
		},
		CategoryOverrides: r.WorkOrder.CategoryOverrides,
	}
}

// ToPreferences applies defaults for unset options.
func (r *CreateJobRequest) ToPreferences() domain.Preferences {
	prefs := domain.Preferences{
		Headless:         true,
		NotifyOnComplete: true,
		NotifyOnFailure:  true,
	}
	if r.Preferences == nil {
		return prefs
	}
	if r.Preferences.Headless != nil {
		prefs.Headless = *r.Preferences.Headless
	}
	if r.Preferences.NotifyOnComplete != nil {
		prefs.NotifyOnComplete = *r.Preferences.NotifyOnComplete
	}
	if r.Preferences.NotifyOnFailure != nil {
		prefs.NotifyOnFailure = *r.Preferences.NotifyOnFailure
	}
	return prefs
}

// ToCredentials converts the credential DTO.
func (r *CreateJobRequest) ToCredentials() domain.Credentials {
	return domain.Credentials{
		Username: r.Credentials.Username,
		Password: r.Credentials.Password,
	}
}

// JobResponse is the job representation returned on creation.
type JobResponse struct {
	JobID         string    `json:"job_id"`
	VisitID       string    `json:"visit_id,omitempty"`
	WorkOrderID   string    `json:"work_order_id,omitempty"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	SiteName      string    `json:"site_name"`
	ProcedureCode string    `json:"procedure_code"`
	Template      string    `json:"template"`
	UnitCount     int       `json:"unit_count"`
	TotalSteps    int       `json:"total_steps"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewJobResponse builds a JobResponse from a job record.
func NewJobResponse(job *domain.AutomationJob) JobResponse {
	return JobResponse{
		JobID:         job.JobID,
		VisitID:       job.VisitID,
		WorkOrderID:   job.WorkOrderID,
		UserID:        job.UserID,
		Status:        job.Status,
		SiteName:      job.Site.Name,
		ProcedureCode: string(job.Strategy.ProcedureCode),
		Template:      string(job.Strategy.Template),
		UnitCount:     job.Strategy.UnitCount(),
		TotalSteps:    job.Strategy.TotalSteps,
		CreatedAt:     job.CreatedAt,
	}
}

// ListJobsRequest binds the list endpoint's query parameters.
type ListJobsRequest struct {
	UserID string `form:"user_id" binding:"required"`
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}

// ListJobsResponse wraps the user-scoped job summaries.
type ListJobsResponse struct {
	Jobs []domain.JobSummary `json:"jobs"`
}

// CancelJobResponse acknowledges a cancellation.
type CancelJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
