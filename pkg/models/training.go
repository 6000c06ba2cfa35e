package models

import "time"

type TrainingStatus string

const (
	TrainingSuccess TrainingStatus = "success"
	TrainingSkipped TrainingStatus = "skipped"
	TrainingError   TrainingStatus = "error"
)

type AlgorithmFailure struct {
	Algorithm Algorithm `json:"algorithm"`
	Error     string    `json:"error"`
}

// TrainingResult reports the outcome of one training run.
type TrainingResult struct {
	Status            TrainingStatus     `json:"status"`
	Reason            string             `json:"reason,omitempty"`
	Error             string             `json:"error,omitempty"`
	TrainingTime      time.Time          `json:"training_time"`
	LastTrainingTime  *time.Time         `json:"last_training_time,omitempty"`
	InteractionsCount int                `json:"interactions_count"`
	ProductsCount     int                `json:"products_count"`
	ModelsTrained     []Algorithm        `json:"models_trained"`
	Failures          []AlgorithmFailure `json:"failures,omitempty"`
	DurationSeconds   float64            `json:"duration_seconds"`
	ModelVersion      int64              `json:"model_version"`
}

type TrainRequest struct {
	Force bool `json:"force"`
}

// TrainingEvent is published after every completed training run.
type TrainingEvent struct {
	Status        TrainingStatus `json:"status"`
	ModelVersion  int64          `json:"model_version"`
	ModelsTrained []Algorithm    `json:"models_trained"`
	Duration      float64        `json:"duration_seconds"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ModelStatus summarises the published models for health and admin endpoints.
type ModelStatus struct {
	State                ModelState `json:"state"`
	Version              int64      `json:"version"`
	LastTrainingTime     *time.Time `json:"last_training_time,omitempty"`
	CollaborativeTrained bool       `json:"collaborative_trained"`
	ContentTrained       bool       `json:"content_trained"`
}
