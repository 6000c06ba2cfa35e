package ml

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/shopwise/pkg/models"
)

const CollaborativeSnapshotName = "collaborative_filtering"

type CollaborativeConfig struct {
	NComponents     int
	MinInteractions float64
	Neighbours      int
}

func DefaultCollaborativeConfig() CollaborativeConfig {
	return CollaborativeConfig{
		NComponents:     50,
		MinInteractions: 5,
		Neighbours:      10,
	}
}

// ScoredInteraction is one (user, product) pair with its weighted score.
type ScoredInteraction struct {
	UserID    string
	ProductID string
	Score     float64
}

// UserItemMatrix is the dense pivot of scored interactions. Users and Items
// hold the ids in row and column order.
type UserItemMatrix struct {
	Matrix    *mat.Dense
	Users     []string
	Items     []string
	UserIndex map[string]int
	ItemIndex map[string]int
}

func (m *UserItemMatrix) Empty() bool {
	return m == nil || m.Matrix == nil || len(m.Users) == 0 || len(m.Items) == 0
}

type collaborativeState struct {
	*UserItemMatrix
	similarity *mat.Dense
	trainedAt  time.Time
}

// CollaborativeFilter is a user-based collaborative filter. The trained state
// is published through an atomic pointer so readers always see one complete model.
type CollaborativeFilter struct {
	config CollaborativeConfig
	logger *logrus.Logger
	state  atomic.Pointer[collaborativeState]
}

func NewCollaborativeFilter(cfg CollaborativeConfig, logger *logrus.Logger) *CollaborativeFilter {
	if cfg.Neighbours <= 0 {
		cfg.Neighbours = 10
	}
	return &CollaborativeFilter{
		config: cfg,
		logger: logger,
	}
}

func (f *CollaborativeFilter) IsTrained() bool {
	return f.state.Load() != nil
}

// TrainedAt returns the time the current model was trained, zero when untrained.
func (f *CollaborativeFilter) TrainedAt() time.Time {
	if s := f.state.Load(); s != nil {
		return s.trainedAt
	}
	return time.Time{}
}

// PrepareData scores every record and keeps only pairs whose user and
// product both reach MinInteractions in total score.
func (f *CollaborativeFilter) PrepareData(records []models.InteractionRecord) []ScoredInteraction {
	if len(records) == 0 {
		f.logger.Warn("No interaction data available")
		return nil
	}

	rows := make([]ScoredInteraction, 0, len(records))
	userTotals := make(map[string]float64)
	itemTotals := make(map[string]float64)
	for _, r := range records {
		score := r.Score()
		rows = append(rows, ScoredInteraction{UserID: r.UserID, ProductID: r.ProductID, Score: score})
		userTotals[r.UserID] += score
		itemTotals[r.ProductID] += score
	}

	filtered := rows[:0]
	validUsers, validItems := 0, 0
	for _, total := range userTotals {
		if total >= f.config.MinInteractions {
			validUsers++
		}
	}
	for _, total := range itemTotals {
		if total >= f.config.MinInteractions {
			validItems++
		}
	}
	for _, row := range rows {
		if userTotals[row.UserID] >= f.config.MinInteractions && itemTotals[row.ProductID] >= f.config.MinInteractions {
			filtered = append(filtered, row)
		}
	}

	f.logger.WithFields(logrus.Fields{
		"interactions": len(filtered),
		"users":        validUsers,
		"items":        validItems,
	}).Info("Filtered interaction data")

	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

// BuildUserItemMatrix pivots rows into a dense user x item matrix. Users and
// items are ordered by id. Duplicate pairs are averaged. Empty input yields an
// empty matrix, not an error.
func (f *CollaborativeFilter) BuildUserItemMatrix(rows []ScoredInteraction) *UserItemMatrix {
	if len(rows) == 0 {
		return &UserItemMatrix{}
	}

	userSet := make(map[string]struct{})
	itemSet := make(map[string]struct{})
	for _, r := range rows {
		userSet[r.UserID] = struct{}{}
		itemSet[r.ProductID] = struct{}{}
	}

	m := &UserItemMatrix{
		Users: sortedKeys(userSet),
		Items: sortedKeys(itemSet),
	}
	m.UserIndex = indexOf(m.Users)
	m.ItemIndex = indexOf(m.Items)

	sums := mat.NewDense(len(m.Users), len(m.Items), nil)
	counts := make(map[[2]int]int)
	for _, r := range rows {
		i, j := m.UserIndex[r.UserID], m.ItemIndex[r.ProductID]
		sums.Set(i, j, sums.At(i, j)+r.Score)
		counts[[2]int{i, j}]++
	}
	for k, c := range counts {
		if c > 1 {
			sums.Set(k[0], k[1], sums.At(k[0], k[1])/float64(c))
		}
	}
	m.Matrix = sums

	f.logger.WithFields(logrus.Fields{
		"users": len(m.Users),
		"items": len(m.Items),
	}).Info("Created user-item matrix")
	return m
}

// Train rebuilds the model from records. Nothing to train on leaves the
// filter untrained without an error. A failure keeps the previous model.
func (f *CollaborativeFilter) Train(records []models.InteractionRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TrainingError{Algorithm: models.AlgorithmCollaborative, Stage: "matrix construction", Err: fmt.Errorf("%v", r)}
		}
	}()

	f.logger.Info("Training collaborative filtering model")

	matrix := f.BuildUserItemMatrix(f.PrepareData(records))
	if matrix.Empty() {
		f.logger.Warn("No data available for collaborative filtering training")
		f.state.Store(nil)
		return nil
	}

	reduced := matrix.Matrix
	if len(matrix.Items) > f.config.NComponents {
		reduced, err = reduceDimensions(matrix.Matrix, f.config.NComponents)
		if err != nil {
			return &TrainingError{Algorithm: models.AlgorithmCollaborative, Stage: "dimensionality reduction", Err: err}
		}
	}

	f.state.Store(&collaborativeState{
		UserItemMatrix: matrix,
		similarity:     pairwiseSimilarity(reduced),
		trainedAt:      time.Now().UTC(),
	})

	f.logger.WithFields(logrus.Fields{
		"users": len(matrix.Users),
		"items": len(matrix.Items),
	}).Info("Collaborative filtering model trained")
	return nil
}

// UserRecommendations scores items from the user's most similar neighbours.
// Items the user already interacted with are never returned.
func (f *CollaborativeFilter) UserRecommendations(userID string, n int) ([]models.ScoredItem, error) {
	s, userIdx, err := f.lookupUser(userID)
	if err != nil {
		return nil, err
	}

	sims := s.similarity.RawRowView(userIdx)
	ranked := rankIndices(sims, userIdx)

	// position 0 is taken to be the user itself
	neighbours := ranked[1:min(len(ranked), max(f.config.Neighbours, 0)+1)]

	_, items := s.Matrix.Dims()
	scores := make([]float64, items)
	for _, v := range neighbours {
		sim := sims[v]
		if sim <= 0 {
			continue
		}
		for j, score := range s.Matrix.RawRowView(v) {
			scores[j] += sim * score
		}
	}
	for j, own := range s.Matrix.RawRowView(userIdx) {
		if own > 0 {
			scores[j] = 0
		}
	}

	recs := topPositive(scores, s.Items, n)
	f.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"count":   len(recs),
	}).Debug("Generated collaborative recommendations")
	return recs, nil
}

// SimilarUsers returns the n users closest to userID.
func (f *CollaborativeFilter) SimilarUsers(userID string, n int) ([]models.ScoredItem, error) {
	s, userIdx, err := f.lookupUser(userID)
	if err != nil {
		return nil, err
	}

	sims := s.similarity.RawRowView(userIdx)
	ranked := rankIndices(sims, userIdx)
	end := min(len(ranked), n+1)
	if end <= 1 {
		return []models.ScoredItem{}, nil
	}

	out := make([]models.ScoredItem, 0, end-1)
	for _, idx := range ranked[1:end] {
		out = append(out, models.ScoredItem{ID: s.Users[idx], Score: sims[idx]})
	}
	return out, nil
}

// SimilarityEdges lists each user's top k neighbours with positive similarity.
func (f *CollaborativeFilter) SimilarityEdges(k int) []SimilarityEdge {
	s := f.state.Load()
	if s == nil {
		return nil
	}
	return similarityEdges(s.similarity, s.Users, k)
}

func (f *CollaborativeFilter) lookupUser(userID string) (*collaborativeState, int, error) {
	s := f.state.Load()
	if s == nil {
		f.logger.Warn("Collaborative model not trained, returning empty recommendations")
		return nil, 0, ErrNotTrained
	}
	idx, ok := s.UserIndex[userID]
	if !ok {
		f.logger.WithField("user_id", userID).Warn("User not found in collaborative training data")
		return nil, 0, ErrUnknownEntity
	}
	return s, idx, nil
}

// CollaborativeSnapshot is the persisted form of a trained collaborative model.
type CollaborativeSnapshot struct {
	Users      []string
	Items      []string
	UserItem   MatrixData
	Similarity MatrixData
	TrainedAt  time.Time
}

// SaveSnapshot persists the current model. An untrained filter returns ErrNotTrained.
func (f *CollaborativeFilter) SaveSnapshot(ctx context.Context, store SnapshotStore) error {
	s := f.state.Load()
	if s == nil {
		return ErrNotTrained
	}
	snap := CollaborativeSnapshot{
		Users:      s.Users,
		Items:      s.Items,
		UserItem:   toMatrixData(s.Matrix),
		Similarity: toMatrixData(s.similarity),
		TrainedAt:  s.trainedAt,
	}
	return store.Save(ctx, CollaborativeSnapshotName, &snap, SnapshotMeta{
		TrainedAt: s.trainedAt,
		Rows:      len(s.Users),
		Cols:      len(s.Items),
	})
}

// LoadSnapshot restores a persisted model. A missing snapshot returns
// ErrSnapshotNotFound and leaves the filter unchanged.
func (f *CollaborativeFilter) LoadSnapshot(ctx context.Context, store SnapshotStore) error {
	var snap CollaborativeSnapshot
	if _, err := store.Load(ctx, CollaborativeSnapshotName, &snap); err != nil {
		return err
	}

	userItem, err := snap.UserItem.dense()
	if err != nil {
		return fmt.Errorf("restore user-item matrix: %w", err)
	}
	sim, err := snap.Similarity.dense()
	if err != nil {
		return fmt.Errorf("restore user similarity: %w", err)
	}
	if r, c := userItem.Dims(); r != len(snap.Users) || c != len(snap.Items) {
		return errors.New("user-item matrix does not match its index")
	}
	if r, c := sim.Dims(); r != len(snap.Users) || c != len(snap.Users) {
		return errors.New("user similarity does not match its index")
	}

	f.state.Store(&collaborativeState{
		UserItemMatrix: &UserItemMatrix{
			Matrix:    userItem,
			Users:     snap.Users,
			Items:     snap.Items,
			UserIndex: indexOf(snap.Users),
			ItemIndex: indexOf(snap.Items),
		},
		similarity: sim,
		trainedAt:  snap.TrainedAt,
	})
	f.logger.WithField("users", len(snap.Users)).Info("Loaded collaborative filtering model")
	return nil
}

// topPositive returns up to n ids with a positive score, best first. Equal
// scores keep their index order.
func topPositive(scores []float64, ids []string, n int) []models.ScoredItem {
	if n <= 0 {
		return []models.ScoredItem{}
	}
	out := make([]models.ScoredItem, 0, min(n, len(ids)))
	for _, idx := range rankIndices(scores, -1) {
		if len(out) >= n || scores[idx] <= 0 {
			break
		}
		out = append(out, models.ScoredItem{ID: ids[idx], Score: scores[idx]})
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func indexOf(ids []string) map[string]int {
	m := make(map[string]int, len(ids))
	for i, id := range ids {
		m[id] = i
	}
	return m
}
