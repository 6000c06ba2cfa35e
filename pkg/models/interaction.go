package models

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

type InteractionType string

const (
	InteractionView     InteractionType = "view"
	InteractionCartAdd  InteractionType = "cart_add"
	InteractionPurchase InteractionType = "purchase"
)

// InteractionWeights maps each known interaction type to its implicit feedback strength.
var InteractionWeights = map[InteractionType]float64{
	InteractionView:     1.0,
	InteractionCartAdd:  2.0,
	InteractionPurchase: 3.0,
}

func (t InteractionType) Valid() bool {
	_, ok := InteractionWeights[t]
	return ok
}

// Weight returns the feedback weight of t, or 1.0 for types the engine does not know.
func (t InteractionType) Weight() float64 {
	if w, ok := InteractionWeights[t]; ok {
		return w
	}
	return 1.0
}

// InteractionRecord is one aggregated (user, product) pair.
type InteractionRecord struct {
	UserID           string                      `json:"user_id" db:"user_id"`
	ProductID        string                      `json:"product_id" db:"product_id"`
	InteractionCount int                         `json:"interaction_count" db:"interaction_count"`
	Types            mapset.Set[InteractionType] `json:"-" db:"interaction_types"`
	LastInteraction  time.Time                   `json:"last_interaction" db:"last_interaction"`
}

// Score sums the weights of the distinct known types on the record. A record
// without any recorded types scores its raw interaction count.
func (r InteractionRecord) Score() float64 {
	if r.Types == nil || r.Types.Cardinality() == 0 {
		return float64(r.InteractionCount)
	}

	score := 0.0
	r.Types.Each(func(t InteractionType) bool {
		if w, ok := InteractionWeights[t]; ok {
			score += w
		}
		return false
	})
	return score
}

type UserInteraction struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	ProductID       string          `json:"product_id" db:"product_id"`
	InteractionType InteractionType `json:"interaction_type" db:"interaction_type"`
	SessionID       *string         `json:"session_id,omitempty" db:"session_id"`
	Timestamp       time.Time       `json:"timestamp" db:"timestamp"`
}

type TrackInteractionRequest struct {
	UserID          string  `json:"user_id" validate:"required,max=255"`
	ProductID       string  `json:"product_id" validate:"required,max=255"`
	InteractionType string  `json:"interaction_type" validate:"required,oneof=view cart_add purchase"`
	SessionID       *string `json:"session_id,omitempty" validate:"omitempty,max=255"`
}

type TrackInteractionResponse struct {
	InteractionID uuid.UUID `json:"interaction_id"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// InteractionStats holds per-type event counts plus a "total" entry.
type InteractionStats map[string]int64

// InteractionEvent is the message published for every tracked interaction.
type InteractionEvent struct {
	EventID         uuid.UUID       `json:"event_id"`
	UserID          string          `json:"user_id"`
	ProductID       string          `json:"product_id"`
	InteractionType InteractionType `json:"interaction_type"`
	SessionID       *string         `json:"session_id,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}
