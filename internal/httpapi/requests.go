package httpapi

import "github.com/google/uuid"

// SubmitValidationRequest asks the coordinator to queue a validation run.
// All fields are optional; zero values fall back to pool defaults.
type SubmitValidationRequest struct {
	Limit      int    `json:"limit"`
	BatchSize  int    `json:"batch_size"`
	Status     string `json:"status"`
	Protocol   string `json:"protocol"`
	Country    string `json:"country"`
	AgeMinutes int    `json:"age_minutes"`
}

// SubmitValidationResponse reports the jobs created for a run.
type SubmitValidationResponse struct {
	JobIDs      []uuid.UUID `json:"job_ids"`
	JobsCreated int         `json:"jobs_created"`
	ProxyCount  int         `json:"proxy_count"`
}
