package models

import (
	"time"
)

type Algorithm string

const (
	AlgorithmCollaborative Algorithm = "collaborative_filtering"
	AlgorithmContent       Algorithm = "content_based_filtering"
	AlgorithmHybrid        Algorithm = "hybrid"
	AlgorithmPopularity    Algorithm = "popularity"
	AlgorithmCategory      Algorithm = "category"
)

// AlgorithmFilter restricts which sources a recommendation request draws from.
// The empty filter means hybrid.
type AlgorithmFilter string

const (
	FilterHybrid        AlgorithmFilter = ""
	FilterCollaborative AlgorithmFilter = "collaborative"
	FilterContent       AlgorithmFilter = "content"
)

func (f AlgorithmFilter) Valid() bool {
	switch f {
	case FilterHybrid, FilterCollaborative, FilterContent:
		return true
	}
	return false
}

// Reasons attached to recommendations, keyed by the producing algorithm.
var AlgorithmReasons = map[Algorithm]string{
	AlgorithmCollaborative: "Users with similar preferences also liked this",
	AlgorithmContent:       "Based on products you have viewed",
	AlgorithmHybrid:        "Recommended by multiple algorithms",
	AlgorithmPopularity:    "Popular among all users",
	AlgorithmCategory:      "Popular in this category",
}

type ScoredItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type Recommendation struct {
	ProductID              string      `json:"product_id"`
	Score                  float64     `json:"score"`
	Algorithm              Algorithm   `json:"algorithm"`
	Reason                 string      `json:"reason"`
	ContributingAlgorithms []Algorithm `json:"contributing_algorithms,omitempty"`
	Name                   string      `json:"name"`
	Price                  float64     `json:"price"`
	Category               string      `json:"category"`
	Images                 []string    `json:"images"`
}

// ModelState describes the freshness of the models that served a response.
type ModelState string

const (
	ModelStateUntrained ModelState = "untrained"
	ModelStateTrained   ModelState = "trained"
	ModelStateStale     ModelState = "stale"
)

type RecommendationResponse struct {
	UserID          string           `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	Algorithm       string           `json:"algorithm"`
	ModelState      ModelState       `json:"model_state"`
	ModelVersion    int64            `json:"model_version"`
	ModelTrainedAt  *time.Time       `json:"model_trained_at,omitempty"`
	CacheHit        bool             `json:"cache_hit"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

type SimilarProductsResponse struct {
	ProductID string           `json:"product_id"`
	Similar   []Recommendation `json:"similar_products"`
}

type SimilarUsersResponse struct {
	UserID string       `json:"user_id"`
	Users  []ScoredItem `json:"similar_users"`
}
