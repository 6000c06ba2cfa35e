package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/temcen/shopwise/pkg/models"
)

const (
	ContentSnapshotName = "content_based_filtering"
	defaultCategory     = "uncategorized"
)

type ContentConfig struct {
	MaxFeatures int
}

func DefaultContentConfig() ContentConfig {
	return ContentConfig{MaxFeatures: 1000}
}

// PreparedProduct is a catalog entry with normalised fields and derived text.
type PreparedProduct struct {
	ID           string
	Name         string
	Description  string
	Category     string
	Price        float64
	Tags         string
	CombinedText string
	PriceBand    string
}

// PriceBand buckets a price into one of five fixed bands.
func PriceBand(price float64) string {
	switch {
	case price < 25:
		return "budget"
	case price < 50:
		return "low"
	case price < 100:
		return "medium"
	case price < 250:
		return "high"
	default:
		return "premium"
	}
}

type contentState struct {
	ids        []string
	index      map[string]int
	categories []string
	features   *mat.Dense
	unit       *mat.Dense
	similarity *mat.Dense
	trainedAt  time.Time
}

// ContentFilter recommends products with similar text, price and category
// features. Like CollaborativeFilter, a trained model is swapped in whole.
type ContentFilter struct {
	config ContentConfig
	logger *logrus.Logger
	state  atomic.Pointer[contentState]
}

func NewContentFilter(cfg ContentConfig, logger *logrus.Logger) *ContentFilter {
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = DefaultContentConfig().MaxFeatures
	}
	return &ContentFilter{
		config: cfg,
		logger: logger,
	}
}

func (f *ContentFilter) IsTrained() bool {
	return f.state.Load() != nil
}

func (f *ContentFilter) TrainedAt() time.Time {
	if s := f.state.Load(); s != nil {
		return s.trainedAt
	}
	return time.Time{}
}

// PrepareProductData fills missing fields and derives the combined text and
// price band for every product. Products repeating an earlier id are dropped.
func (f *ContentFilter) PrepareProductData(products []models.Product) []PreparedProduct {
	if len(products) == 0 {
		f.logger.Warn("No product data available")
		return nil
	}

	seen := make(map[string]struct{}, len(products))
	out := make([]PreparedProduct, 0, len(products))
	for _, p := range products {
		if _, dup := seen[p.ID]; dup {
			f.logger.WithField("product_id", p.ID).Warn("Duplicate product id skipped")
			continue
		}
		seen[p.ID] = struct{}{}

		category := strings.TrimSpace(p.Category)
		if category == "" {
			category = defaultCategory
		}
		price := p.Price
		if math.IsNaN(price) || math.IsInf(price, 0) {
			price = 0
		}
		tags := strings.Join(p.Tags, " ")

		out = append(out, PreparedProduct{
			ID:           p.ID,
			Name:         p.Name,
			Description:  p.Description,
			Category:     category,
			Price:        price,
			Tags:         tags,
			CombinedText: strings.ToLower(p.Name + " " + p.Description + " " + category + " " + tags),
			PriceBand:    PriceBand(price),
		})
	}

	f.logger.WithField("products", len(out)).Info("Prepared products for content-based filtering")
	return out
}

// ExtractFeatures concatenates TF-IDF text features, the standardised price
// and one-hot category and price band columns. Empty input yields nil.
func (f *ContentFilter) ExtractFeatures(products []PreparedProduct) *mat.Dense {
	if len(products) == 0 {
		return nil
	}

	docs := make([]string, len(products))
	prices := make([]float64, len(products))
	categories := make([]string, len(products))
	bands := make([]string, len(products))
	for i, p := range products {
		docs[i] = p.CombinedText
		prices[i] = p.Price
		categories[i] = p.Category
		bands[i] = p.PriceBand
	}

	text := NewTFIDFVectorizer(f.config.MaxFeatures).FitTransform(docs)
	textCols := 0
	if text != nil {
		_, textCols = text.Dims()
	}

	scaled := standardize(prices)
	catLevels := levels(categories)
	bandLevels := levels(bands)

	cols := textCols + 1 + len(catLevels) + len(bandLevels)
	out := mat.NewDense(len(products), cols, nil)
	for i := range products {
		if text != nil {
			for j := 0; j < textCols; j++ {
				out.Set(i, j, text.At(i, j))
			}
		}
		out.Set(i, textCols, scaled[i])
		out.Set(i, textCols+1+catLevels[categories[i]], 1)
		out.Set(i, textCols+1+len(catLevels)+bandLevels[bands[i]], 1)
	}

	f.logger.WithFields(logrus.Fields{
		"products": len(products),
		"features": cols,
		"terms":    textCols,
	}).Info("Extracted product features")
	return out
}

// Train rebuilds the model from the catalog. An empty catalog leaves the
// filter untrained without an error. A failure keeps the previous model.
func (f *ContentFilter) Train(products []models.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TrainingError{Algorithm: models.AlgorithmContent, Stage: "feature extraction", Err: fmt.Errorf("%v", r)}
		}
	}()

	f.logger.Info("Training content-based filtering model")

	prepared := f.PrepareProductData(products)
	if len(prepared) == 0 {
		f.logger.Warn("No product data available for content-based training")
		f.state.Store(nil)
		return nil
	}

	ids := make([]string, len(prepared))
	categories := make([]string, len(prepared))
	for i, p := range prepared {
		ids[i] = p.ID
		categories[i] = p.Category
	}

	features := f.ExtractFeatures(prepared)
	if features == nil {
		f.logger.Warn("No product features extracted")
		f.state.Store(nil)
		return nil
	}

	unit, _ := normalizeRows(features)
	f.state.Store(&contentState{
		ids:        ids,
		index:      indexOf(ids),
		categories: categories,
		features:   features,
		unit:       unit,
		similarity: pairwiseSimilarity(features),
		trainedAt:  time.Now().UTC(),
	})

	f.logger.WithField("products", len(ids)).Info("Content-based filtering model trained")
	return nil
}

// SimilarProducts returns the n products closest to productID, never the product itself.
func (f *ContentFilter) SimilarProducts(productID string, n int) ([]models.ScoredItem, error) {
	s := f.state.Load()
	if s == nil {
		f.logger.Warn("Content model not trained, returning empty recommendations")
		return nil, ErrNotTrained
	}
	idx, ok := s.index[productID]
	if !ok {
		f.logger.WithField("product_id", productID).Warn("Product not found in content training data")
		return nil, ErrUnknownEntity
	}

	sims := s.similarity.RawRowView(idx)
	ranked := rankIndices(sims, idx)
	end := min(len(ranked), n+1)
	if end <= 1 {
		return []models.ScoredItem{}, nil
	}

	out := make([]models.ScoredItem, 0, end-1)
	for _, j := range ranked[1:end] {
		out = append(out, models.ScoredItem{ID: s.ids[j], Score: sims[j]})
	}
	return out, nil
}

// UserContentRecommendations builds a weighted profile from the products in
// interactions and returns the n products closest to it that the user has
// not interacted with.
func (f *ContentFilter) UserContentRecommendations(interactions []models.UserInteraction, n int) ([]models.ScoredItem, error) {
	s := f.state.Load()
	if s == nil {
		f.logger.Warn("Content model not trained, returning empty recommendations")
		return nil, ErrNotTrained
	}
	if len(interactions) == 0 {
		return nil, ErrEmptyInput
	}

	_, cols := s.features.Dims()
	profile := make([]float64, cols)
	totalWeight := 0.0
	interacted := make(map[int]struct{})
	for _, in := range interactions {
		idx, ok := s.index[in.ProductID]
		if !ok {
			continue
		}
		w := in.InteractionType.Weight()
		floats.AddScaled(profile, w, s.features.RawRowView(idx))
		totalWeight += w
		interacted[idx] = struct{}{}
	}
	if totalWeight == 0 {
		return nil, ErrUnknownEntity
	}
	floats.Scale(1/totalWeight, profile)

	scores := cosineAgainstRows(profile, s.unit)
	for idx := range interacted {
		scores[idx] = 0
	}

	recs := topPositive(scores, s.ids, n)
	f.logger.WithField("count", len(recs)).Debug("Generated content-based recommendations")
	return recs, nil
}

// CategoryRecommendations is a placeholder ranking: up to n products in
// category in catalog order with a flat score of 1, not ranked by popularity.
// An empty category matches every product.
func (f *ContentFilter) CategoryRecommendations(category string, n int) ([]models.ScoredItem, error) {
	s := f.state.Load()
	if s == nil {
		return nil, ErrNotTrained
	}
	if n <= 0 {
		return []models.ScoredItem{}, nil
	}

	category = strings.TrimSpace(category)
	out := make([]models.ScoredItem, 0, min(n, len(s.ids)))
	for i, id := range s.ids {
		if len(out) >= n {
			break
		}
		if category != "" && !strings.EqualFold(s.categories[i], category) {
			continue
		}
		out = append(out, models.ScoredItem{ID: id, Score: 1.0})
	}
	return out, nil
}

func (f *ContentFilter) SimilarityEdges(k int) []SimilarityEdge {
	s := f.state.Load()
	if s == nil {
		return nil
	}
	return similarityEdges(s.similarity, s.ids, k)
}

// ContentSnapshot is the persisted form of a trained content model.
type ContentSnapshot struct {
	IDs        []string
	Categories []string
	Features   MatrixData
	Similarity MatrixData
	TrainedAt  time.Time
}

func (f *ContentFilter) SaveSnapshot(ctx context.Context, store SnapshotStore) error {
	s := f.state.Load()
	if s == nil {
		return ErrNotTrained
	}
	_, cols := s.features.Dims()
	snap := ContentSnapshot{
		IDs:        s.ids,
		Categories: s.categories,
		Features:   toMatrixData(s.features),
		Similarity: toMatrixData(s.similarity),
		TrainedAt:  s.trainedAt,
	}
	return store.Save(ctx, ContentSnapshotName, &snap, SnapshotMeta{
		TrainedAt: s.trainedAt,
		Rows:      len(s.ids),
		Cols:      cols,
	})
}

func (f *ContentFilter) LoadSnapshot(ctx context.Context, store SnapshotStore) error {
	var snap ContentSnapshot
	if _, err := store.Load(ctx, ContentSnapshotName, &snap); err != nil {
		return err
	}

	features, err := snap.Features.dense()
	if err != nil {
		return fmt.Errorf("restore product features: %w", err)
	}
	sim, err := snap.Similarity.dense()
	if err != nil {
		return fmt.Errorf("restore product similarity: %w", err)
	}
	if r, _ := features.Dims(); r != len(snap.IDs) || len(snap.Categories) != len(snap.IDs) {
		return errors.New("product features do not match their index")
	}
	if r, c := sim.Dims(); r != len(snap.IDs) || c != len(snap.IDs) {
		return errors.New("product similarity does not match its index")
	}

	unit, _ := normalizeRows(features)
	f.state.Store(&contentState{
		ids:        snap.IDs,
		index:      indexOf(snap.IDs),
		categories: snap.Categories,
		features:   features,
		unit:       unit,
		similarity: sim,
		trainedAt:  snap.TrainedAt,
	})
	f.logger.WithField("products", len(snap.IDs)).Info("Loaded content-based filtering model")
	return nil
}

// standardize scales values to zero mean and unit population variance.
// A constant column becomes all zeros.
func standardize(values []float64) []float64 {
	mean, variance := stat.PopMeanVariance(values, nil)
	std := math.Sqrt(variance)
	if std == 0 {
		std = 1
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}

// levels maps each distinct value to its position in sorted order.
func levels(values []string) map[string]int {
	set := make(map[string]struct{})
	for _, v := range values {
		set[v] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return indexOf(keys)
}
