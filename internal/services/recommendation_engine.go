package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/temcen/shopwise/internal/ml"
	"github.com/temcen/shopwise/pkg/models"
)

// TrainingMetadataSnapshotName is the snapshot holding the training clock and model version.
const TrainingMetadataSnapshotName = "training_metadata"

// ErrInvalidAlgorithm rejects an algorithm filter other than collaborative or content.
var ErrInvalidAlgorithm = errors.New("invalid algorithm: must be collaborative or content")

// EngineConfig holds the retraining policy and request limits of the engine.
type EngineConfig struct {
	RetrainInterval    time.Duration
	MinNewInteractions int64
	InlineRetrain      bool
	DefaultLimit       int
	MaxLimit           int
	GraphEdgesPerNode  int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RetrainInterval:    24 * time.Hour,
		MinNewInteractions: 100,
		DefaultLimit:       10,
		MaxLimit:           100,
		GraphEdgesPerNode:  10,
	}
}

// TrainingMetadata is persisted next to the model snapshots.
type TrainingMetadata struct {
	LastTrainingTime time.Time
	ModelVersion     int64
}

// RecommendationEngine blends collaborative and content-based candidates,
// falls back to popularity, and owns the retraining policy.
type RecommendationEngine struct {
	interactions  InteractionSource
	catalog       CatalogSource
	collaborative CollaborativeModel
	content       ContentModel
	snapshots     ml.SnapshotStore
	cache         RecommendationCache
	exporter      SimilarityExporter
	publisher     EventPublisher
	metrics       *MetricsCollector
	config        EngineConfig
	logger        *logrus.Logger

	meta           atomic.Pointer[TrainingMetadata]
	training       singleflight.Group
	trainMutex     sync.Mutex
	retrainTrigger atomic.Pointer[func()]
	now            func() time.Time
}

// EngineDeps groups the engine's collaborators. Snapshots, Cache, Exporter,
// Publisher and Metrics are optional.
type EngineDeps struct {
	Interactions  InteractionSource
	Catalog       CatalogSource
	Collaborative CollaborativeModel
	Content       ContentModel
	Snapshots     ml.SnapshotStore
	Cache         RecommendationCache
	Exporter      SimilarityExporter
	Publisher     EventPublisher
	Metrics       *MetricsCollector
}

func NewRecommendationEngine(deps EngineDeps, cfg EngineConfig, logger *logrus.Logger) *RecommendationEngine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	return &RecommendationEngine{
		interactions:  deps.Interactions,
		catalog:       deps.Catalog,
		collaborative: deps.Collaborative,
		content:       deps.Content,
		snapshots:     deps.Snapshots,
		cache:         deps.Cache,
		exporter:      deps.Exporter,
		publisher:     deps.Publisher,
		metrics:       deps.Metrics,
		config:        cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// SetRetrainTrigger registers the callback used to request a background
// retrain when a request observes stale models.
func (e *RecommendationEngine) SetRetrainTrigger(trigger func()) {
	e.retrainTrigger.Store(&trigger)
}

// LoadModels restores the persisted models and training metadata. Missing
// snapshots are normal on first start.
func (e *RecommendationEngine) LoadModels(ctx context.Context) {
	if e.snapshots == nil {
		return
	}

	load := func(name string, fn func() error) {
		err := fn()
		switch {
		case err == nil:
		case errors.Is(err, ml.ErrSnapshotNotFound):
			e.logger.WithField("model", name).Info("No persisted model found")
		default:
			e.logger.WithError(err).WithField("model", name).Warn("Failed to load persisted model")
		}
	}

	load(ml.CollaborativeSnapshotName, func() error { return e.collaborative.LoadSnapshot(ctx, e.snapshots) })
	load(ml.ContentSnapshotName, func() error { return e.content.LoadSnapshot(ctx, e.snapshots) })
	load(TrainingMetadataSnapshotName, func() error {
		var meta TrainingMetadata
		if _, err := e.snapshots.Load(ctx, TrainingMetadataSnapshotName, &meta); err != nil {
			return err
		}
		e.meta.Store(&meta)
		e.logger.WithFields(logrus.Fields{
			"last_training_time": meta.LastTrainingTime,
			"model_version":      meta.ModelVersion,
		}).Info("Loaded training metadata")
		return nil
	})
}

func (e *RecommendationEngine) metadata() TrainingMetadata {
	if m := e.meta.Load(); m != nil {
		return *m
	}
	return TrainingMetadata{}
}

// shouldRetrain applies the retraining policy: never trained always retrains,
// otherwise both the interval and the new-interaction threshold must be met.
func (e *RecommendationEngine) shouldRetrain(ctx context.Context) (bool, string) {
	meta := e.metadata()
	if meta.LastTrainingTime.IsZero() {
		return true, "models have never been trained"
	}

	if e.now().Sub(meta.LastTrainingTime) < e.config.RetrainInterval {
		return false, "retrain interval not reached"
	}

	count, err := e.interactions.CountInteractionsSince(ctx, meta.LastTrainingTime)
	if err != nil {
		e.logger.WithError(err).Error("Failed to check retrain condition")
		return false, "failed to count new interactions"
	}
	if count < e.config.MinNewInteractions {
		return false, fmt.Sprintf("only %d new interactions since last training, need %d", count, e.config.MinNewInteractions)
	}

	return true, ""
}

// ModelStatus reports the freshness of the published models.
func (e *RecommendationEngine) ModelStatus(ctx context.Context) models.ModelStatus {
	meta := e.metadata()
	status := models.ModelStatus{
		State:                models.ModelStateTrained,
		Version:              meta.ModelVersion,
		CollaborativeTrained: e.collaborative.IsTrained(),
		ContentTrained:       e.content.IsTrained(),
	}

	if meta.LastTrainingTime.IsZero() {
		if !status.CollaborativeTrained && !status.ContentTrained {
			status.State = models.ModelStateUntrained
		} else {
			status.State = models.ModelStateStale
		}
		return status
	}

	t := meta.LastTrainingTime
	status.LastTrainingTime = &t
	if stale, _ := e.shouldRetrain(ctx); stale {
		status.State = models.ModelStateStale
	}
	return status
}

// GetRecommendations returns up to limit enriched recommendations for userID.
// Algorithm failures never surface as errors: the result degrades to the
// popularity ranking or an empty list.
func (e *RecommendationEngine) GetRecommendations(ctx context.Context, userID string, limit int, filter models.AlgorithmFilter) (resp *models.RecommendationResponse, err error) {
	if !filter.Valid() {
		return nil, ErrInvalidAlgorithm
	}
	limit = e.clampLimit(limit)
	start := e.now()

	resp = &models.RecommendationResponse{
		UserID:          userID,
		Recommendations: []models.Recommendation{},
		Algorithm:       requestedAlgorithm(filter),
		GeneratedAt:     start.UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"user_id": userID,
				"panic":   r,
			}).Error("Recovered from panic while generating recommendations")
			resp.Recommendations = []models.Recommendation{}
			err = nil
		}
	}()

	status := e.ModelStatus(ctx)
	if status.State == models.ModelStateStale || status.State == models.ModelStateUntrained {
		if e.config.InlineRetrain {
			e.logger.WithField("user_id", userID).Info("Auto-training models before generating recommendations")
			e.TrainModels(ctx, false)
			status = e.ModelStatus(ctx)
		} else if trigger := e.retrainTrigger.Load(); trigger != nil {
			(*trigger)()
		}
	}

	resp.ModelState = status.State
	resp.ModelVersion = status.Version
	resp.ModelTrainedAt = status.LastTrainingTime

	cacheKey := recommendationCacheKey(userID, limit, filter, status.Version)
	if e.cache != nil {
		cached, cerr := e.cache.Get(ctx, cacheKey)
		if cerr != nil {
			e.logger.WithError(cerr).Debug("Recommendation cache lookup failed")
		}
		e.metrics.RecordCacheLookup(cached != nil)
		if cached != nil {
			cached.CacheHit = true
			return cached, nil
		}
	}

	recs := e.personalizedCandidates(ctx, userID, limit, filter)

	if len(recs) == 0 {
		recs = e.popularCandidates(ctx, limit)
		if len(recs) > 0 {
			e.metrics.RecordPopularityFallback()
		}
	}

	recs = e.enrich(ctx, recs)
	if len(recs) > limit {
		recs = recs[:limit]
	}
	resp.Recommendations = recs

	if e.cache != nil && len(recs) > 0 {
		if cerr := e.cache.Set(ctx, cacheKey, resp); cerr != nil {
			e.logger.WithError(cerr).Warn("Failed to cache recommendations")
		}
	}

	e.metrics.RecordRecommendation(filter, recs, e.now().Sub(start))
	e.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"count":   len(recs),
		"filter":  resp.Algorithm,
	}).Info("Generated recommendations")

	return resp, nil
}

func (e *RecommendationEngine) personalizedCandidates(ctx context.Context, userID string, limit int, filter models.AlgorithmFilter) []models.Recommendation {
	var candidates []models.Recommendation

	if filter == models.FilterCollaborative || filter == models.FilterHybrid {
		if e.collaborative.IsTrained() {
			items, err := e.collaborative.UserRecommendations(userID, limit)
			if err != nil {
				e.logger.WithError(err).WithField("user_id", userID).Debug("No collaborative candidates")
			}
			candidates = append(candidates, tagged(items, models.AlgorithmCollaborative)...)
		}
	}

	if filter == models.FilterContent || filter == models.FilterHybrid {
		if e.content.IsTrained() {
			history, err := e.interactions.FetchUserInteractions(ctx, userID)
			if err != nil {
				e.logger.WithError(err).WithField("user_id", userID).Warn("Failed to fetch user interactions")
			}
			if len(history) > 0 {
				items, err := e.content.UserContentRecommendations(history, limit)
				if err != nil {
					e.logger.WithError(err).WithField("user_id", userID).Debug("No content candidates")
				}
				candidates = append(candidates, tagged(items, models.AlgorithmContent)...)
			}
		}
	}

	if filter == models.FilterHybrid && len(candidates) > 0 {
		return blend(candidates)
	}
	return candidates
}

// blend merges candidates proposed for the same product by summing their
// scores. Products keep the order of their first proposal on score ties.
func blend(candidates []models.Recommendation) []models.Recommendation {
	index := make(map[string]int, len(candidates))
	blended := make([]models.Recommendation, 0, len(candidates))

	for _, c := range candidates {
		i, ok := index[c.ProductID]
		if !ok {
			index[c.ProductID] = len(blended)
			blended = append(blended, models.Recommendation{
				ProductID: c.ProductID,
				Algorithm: models.AlgorithmHybrid,
				Reason:    models.AlgorithmReasons[models.AlgorithmHybrid],
			})
			i = len(blended) - 1
		}
		blended[i].Score += c.Score
		blended[i].ContributingAlgorithms = append(blended[i].ContributingAlgorithms, c.Algorithm)
	}

	sort.SliceStable(blended, func(a, b int) bool {
		return blended[a].Score > blended[b].Score
	})
	return blended
}

func (e *RecommendationEngine) popularCandidates(ctx context.Context, limit int) []models.Recommendation {
	popular, err := e.interactions.PopularProducts(ctx, limit)
	if err != nil {
		e.logger.WithError(err).Error("Failed to get popular products")
		return nil
	}
	return tagged(popular, models.AlgorithmPopularity)
}

// enrich attaches live catalog details and drops products that no longer exist.
// When the catalog is unavailable the candidates are returned as they are.
func (e *RecommendationEngine) enrich(ctx context.Context, recs []models.Recommendation) []models.Recommendation {
	if len(recs) == 0 {
		return []models.Recommendation{}
	}

	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ProductID
	}

	details, err := e.catalog.FetchProductsByIDs(ctx, ids)
	if err != nil {
		e.logger.WithError(err).Error("Failed to enrich recommendations")
		return recs
	}

	enriched := make([]models.Recommendation, 0, len(recs))
	for _, r := range recs {
		d, ok := details[r.ProductID]
		if !ok {
			continue
		}
		r.Name = d.Name
		r.Price = d.Price
		r.Category = d.Category
		r.Images = d.Images
		enriched = append(enriched, r)
	}
	return enriched
}

// TrainModels runs a training pass unless the retraining policy says the
// models are fresh. Concurrent callers with the same force flag share one run
// and runs never overlap. The run is detached from the caller's cancellation
// so one departing caller cannot fail the others sharing it.
func (e *RecommendationEngine) TrainModels(ctx context.Context, force bool) *models.TrainingResult {
	key := "auto"
	if force {
		key = "force"
	}

	runCtx := context.WithoutCancel(ctx)
	v, _, shared := e.training.Do(key, func() (any, error) {
		e.trainMutex.Lock()
		defer e.trainMutex.Unlock()
		return e.train(runCtx, force), nil
	})
	if shared {
		e.logger.WithField("force", force).Debug("Joined in-flight training run")
	}
	return v.(*models.TrainingResult)
}

// RetrainModels forces a training run.
func (e *RecommendationEngine) RetrainModels(ctx context.Context) *models.TrainingResult {
	return e.TrainModels(ctx, true)
}

func (e *RecommendationEngine) train(ctx context.Context, force bool) (result *models.TrainingResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("panic", r).Error("Recovered from panic during training")
			result = &models.TrainingResult{
				Status:       models.TrainingError,
				Error:        fmt.Sprint(r),
				TrainingTime: e.now().UTC(),
			}
		}
		e.metrics.RecordTraining(result)
	}()

	if !force {
		if ok, reason := e.shouldRetrain(ctx); !ok {
			e.logger.WithField("reason", reason).Info("Skipping training - conditions not met")
			result := &models.TrainingResult{
				Status:       models.TrainingSkipped,
				Reason:       reason,
				TrainingTime: e.now().UTC(),
				ModelVersion: e.metadata().ModelVersion,
			}
			if last := e.metadata().LastTrainingTime; !last.IsZero() {
				result.LastTrainingTime = &last
			}
			return result
		}
	}

	e.logger.WithField("force", force).Info("Starting model training")
	start := e.now()
	result = &models.TrainingResult{
		Status:        models.TrainingSuccess,
		TrainingTime:  start.UTC(),
		ModelsTrained: []models.Algorithm{},
	}

	var (
		records     []models.InteractionRecord
		products    []models.Product
		recordsErr  error
		productsErr error
	)

	// Load both datasets concurrently. A failed load skips its algorithm only.
	var load errgroup.Group
	load.Go(func() error {
		records, recordsErr = e.interactions.FetchAggregatedInteractions(ctx)
		return nil
	})
	load.Go(func() error {
		products, productsErr = e.catalog.FetchAllProducts(ctx)
		return nil
	})
	_ = load.Wait()

	result.InteractionsCount = len(records)
	result.ProductsCount = len(products)

	var mu sync.Mutex
	attempted := 0
	fail := func(algorithm models.Algorithm, err error) {
		mu.Lock()
		defer mu.Unlock()
		e.logger.WithError(err).WithField("algorithm", algorithm).Error("Failed to train model")
		result.Failures = append(result.Failures, models.AlgorithmFailure{Algorithm: algorithm, Error: err.Error()})
	}
	trained := func(algorithm models.Algorithm) {
		mu.Lock()
		defer mu.Unlock()
		result.ModelsTrained = append(result.ModelsTrained, algorithm)
	}

	var g errgroup.Group

	switch {
	case recordsErr != nil:
		attempted++
		fail(models.AlgorithmCollaborative, fmt.Errorf("load interactions: %w", recordsErr))
	case len(records) > 0:
		attempted++
		g.Go(func() error {
			if err := e.collaborative.Train(records); err != nil {
				fail(models.AlgorithmCollaborative, err)
				return nil
			}
			if e.collaborative.IsTrained() {
				trained(models.AlgorithmCollaborative)
			}
			return nil
		})
	}

	switch {
	case productsErr != nil:
		attempted++
		fail(models.AlgorithmContent, fmt.Errorf("load products: %w", productsErr))
	case len(products) > 0:
		attempted++
		g.Go(func() error {
			if err := e.content.Train(products); err != nil {
				fail(models.AlgorithmContent, err)
				return nil
			}
			if e.content.IsTrained() {
				trained(models.AlgorithmContent)
			}
			return nil
		})
	}

	_ = g.Wait()

	// Keep a stable order in the report regardless of which goroutine finished first.
	sort.Slice(result.ModelsTrained, func(a, b int) bool {
		return result.ModelsTrained[a] < result.ModelsTrained[b]
	})

	result.DurationSeconds = e.now().Sub(start).Seconds()

	if attempted > 0 && len(result.Failures) == attempted {
		result.Status = models.TrainingError
		messages := make([]string, len(result.Failures))
		for i, f := range result.Failures {
			messages[i] = f.Error
		}
		result.Error = strings.Join(messages, "; ")
		result.ModelVersion = e.metadata().ModelVersion
		e.logger.WithField("error", result.Error).Error("Model training failed")
		return result
	}

	meta := TrainingMetadata{
		LastTrainingTime: start,
		ModelVersion:     e.metadata().ModelVersion + 1,
	}
	e.meta.Store(&meta)
	result.ModelVersion = meta.ModelVersion

	e.persist(ctx, meta)
	e.exportSimilarities(ctx, meta.ModelVersion)
	e.publishTraining(ctx, result)

	e.logger.WithFields(logrus.Fields{
		"duration_seconds": result.DurationSeconds,
		"models_trained":   result.ModelsTrained,
		"model_version":    result.ModelVersion,
	}).Info("Model training completed")

	return result
}

func (e *RecommendationEngine) persist(ctx context.Context, meta TrainingMetadata) {
	if e.snapshots == nil {
		return
	}

	if e.collaborative.IsTrained() {
		if err := e.collaborative.SaveSnapshot(ctx, e.snapshots); err != nil {
			e.logger.WithError(err).Error("Failed to save collaborative filtering model")
		}
	}
	if e.content.IsTrained() {
		if err := e.content.SaveSnapshot(ctx, e.snapshots); err != nil {
			e.logger.WithError(err).Error("Failed to save content-based filtering model")
		}
	}
	if err := e.snapshots.Save(ctx, TrainingMetadataSnapshotName, &meta, ml.SnapshotMeta{TrainedAt: meta.LastTrainingTime}); err != nil {
		e.logger.WithError(err).Error("Failed to save training metadata")
	}
}

func (e *RecommendationEngine) exportSimilarities(ctx context.Context, version int64) {
	if e.exporter == nil {
		return
	}

	if e.collaborative.IsTrained() {
		edges := e.collaborative.SimilarityEdges(e.config.GraphEdgesPerNode)
		if err := e.exporter.ExportUserSimilarities(ctx, edges, version); err != nil {
			e.logger.WithError(err).Warn("Failed to export user similarities")
		}
	}
	if e.content.IsTrained() {
		edges := e.content.SimilarityEdges(e.config.GraphEdgesPerNode)
		if err := e.exporter.ExportProductSimilarities(ctx, edges, version); err != nil {
			e.logger.WithError(err).Warn("Failed to export product similarities")
		}
	}
}

func (e *RecommendationEngine) publishTraining(ctx context.Context, result *models.TrainingResult) {
	if e.publisher == nil {
		return
	}

	event := models.TrainingEvent{
		Status:        result.Status,
		ModelVersion:  result.ModelVersion,
		ModelsTrained: result.ModelsTrained,
		Duration:      result.DurationSeconds,
		Timestamp:     e.now().UTC(),
	}
	if err := e.publisher.PublishTraining(ctx, event); err != nil {
		e.logger.WithError(err).Warn("Failed to publish training event")
	}
}

// GetSimilarProducts returns enriched content neighbours of productID.
func (e *RecommendationEngine) GetSimilarProducts(ctx context.Context, productID string, limit int) (recs []models.Recommendation) {
	limit = e.clampLimit(limit)
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{"product_id": productID, "panic": r}).Error("Recovered from panic while finding similar products")
			recs = []models.Recommendation{}
		}
	}()

	items, err := e.content.SimilarProducts(productID, limit)
	if err != nil {
		e.logger.WithError(err).WithField("product_id", productID).Debug("No similar products")
	}

	recs = tagged(items, models.AlgorithmContent)
	for i := range recs {
		recs[i].Reason = "Similar to this product"
	}
	return e.enrich(ctx, recs)
}

// GetSimilarUsers returns the collaborative neighbours of userID.
func (e *RecommendationEngine) GetSimilarUsers(ctx context.Context, userID string, limit int) (users []models.ScoredItem) {
	limit = e.clampLimit(limit)
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{"user_id": userID, "panic": r}).Error("Recovered from panic while finding similar users")
			users = []models.ScoredItem{}
		}
	}()

	users, err := e.collaborative.SimilarUsers(userID, limit)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Debug("No similar users")
	}
	if users == nil {
		users = []models.ScoredItem{}
	}
	return users
}

// GetCategoryRecommendations returns enriched products of one category.
func (e *RecommendationEngine) GetCategoryRecommendations(ctx context.Context, category string, limit int) (recs []models.Recommendation) {
	limit = e.clampLimit(limit)
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{"category": category, "panic": r}).Error("Recovered from panic while ranking category")
			recs = []models.Recommendation{}
		}
	}()

	items, err := e.content.CategoryRecommendations(category, limit)
	if err != nil {
		e.logger.WithError(err).WithField("category", category).Debug("No category recommendations")
	}
	return e.enrich(ctx, tagged(items, models.AlgorithmCategory))
}

func (e *RecommendationEngine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.config.DefaultLimit
	}
	if limit > e.config.MaxLimit {
		return e.config.MaxLimit
	}
	return limit
}

func tagged(items []models.ScoredItem, algorithm models.Algorithm) []models.Recommendation {
	recs := make([]models.Recommendation, 0, len(items))
	for _, item := range items {
		recs = append(recs, models.Recommendation{
			ProductID: item.ID,
			Score:     item.Score,
			Algorithm: algorithm,
			Reason:    models.AlgorithmReasons[algorithm],
		})
	}
	return recs
}

func requestedAlgorithm(filter models.AlgorithmFilter) string {
	if filter == models.FilterHybrid {
		return string(models.AlgorithmHybrid)
	}
	return string(filter)
}

func recommendationCacheKey(userID string, limit int, filter models.AlgorithmFilter, version int64) string {
	return fmt.Sprintf("recommendations:v%d:%s:%d:%s", version, userID, limit, requestedAlgorithm(filter))
}
