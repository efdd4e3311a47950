package api

import (
	"backtest-lab/internal/domain"
)

// startRunResponse is returned by POST /runs.
type startRunResponse struct {
	RunID         string           `json:"run_id"`
	Status        domain.RunStatus `json:"status"`
	QueuePosition int              `json:"queue_position,omitempty"`
}

// runResponse is the JSON view of a run record.
type runResponse struct {
	ID            string             `json:"id"`
	Mode          string             `json:"mode"`
	Status        domain.RunStatus   `json:"status"`
	Config        domain.RunConfig   `json:"config"`
	Checkpoint    *domain.Checkpoint `json:"checkpoint,omitempty"`
	QueuePosition int                `json:"queue_position,omitempty"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
	CreatedAt     int64              `json:"created_at"`
	StartedAt     int64              `json:"started_at,omitempty"`
	EndedAt       int64              `json:"ended_at,omitempty"`
}

func toRunResponse(r *domain.Run) runResponse {
	return runResponse{
		ID:            r.ID,
		Mode:          r.Mode,
		Status:        r.Status,
		Config:        r.Config,
		Checkpoint:    r.Checkpoint,
		QueuePosition: r.QueuePosition,
		ErrorMessage:  r.ErrorMessage,
		Warnings:      r.Warnings,
		CreatedAt:     r.CreatedAt,
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
	}
}

type errorResponse struct {
	Error  string           `json:"error"`
	Status domain.RunStatus `json:"status,omitempty"`
}
