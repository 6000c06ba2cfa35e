package ml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/shopwise/pkg/models"
)

func catalog() []models.Product {
	return []models.Product{
		{ID: "laptop", Name: "Gaming Laptop", Description: "Fast laptop with a dedicated graphics card", Category: "electronics", Price: 1299, Tags: []string{"gaming", "computer"}},
		{ID: "mouse", Name: "Gaming Mouse", Description: "Wireless mouse for gaming", Category: "electronics", Price: 49, Tags: []string{"gaming", "accessory"}},
		{ID: "keyboard", Name: "Mechanical Keyboard", Description: "Gaming keyboard with rgb lighting", Category: "electronics", Price: 89, Tags: []string{"gaming", "accessory"}},
		{ID: "novel", Name: "Mystery Novel", Description: "A gripping detective story", Category: "books", Price: 15, Tags: []string{"fiction"}},
		{ID: "cookbook", Name: "Italian Cookbook", Description: "Classic pasta recipes", Category: "books", Price: 30, Tags: []string{"cooking"}},
	}
}

func TestPriceBand(t *testing.T) {
	tests := []struct {
		price float64
		want  string
	}{
		{0, "budget"},
		{24.99, "budget"},
		{25, "low"},
		{49.99, "low"},
		{50, "medium"},
		{100, "high"},
		{249.99, "high"},
		{250, "premium"},
		{10000, "premium"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PriceBand(tt.price), "price %v", tt.price)
	}
}

func TestContentFilter_PrepareProductData(t *testing.T) {
	f := NewContentFilter(DefaultContentConfig(), testLogger())

	prepared := f.PrepareProductData([]models.Product{
		{ID: "a", Name: "Desk Lamp", Tags: []string{"Home", "Light"}, Price: 30},
		{ID: "b"},
		{ID: "a", Name: "duplicate"},
	})

	require.Len(t, prepared, 2)
	assert.Equal(t, "uncategorized", prepared[0].Category)
	assert.Equal(t, "Home Light", prepared[0].Tags)
	assert.Equal(t, "desk lamp  uncategorized home light", prepared[0].CombinedText)
	assert.Equal(t, "low", prepared[0].PriceBand)
	assert.Equal(t, 0.0, prepared[1].Price)
	assert.Equal(t, "budget", prepared[1].PriceBand)

	assert.Empty(t, f.PrepareProductData(nil))
}

func TestContentFilter_ExtractFeatures(t *testing.T) {
	f := NewContentFilter(ContentConfig{MaxFeatures: 5}, testLogger())
	assert.Nil(t, f.ExtractFeatures(nil))

	prepared := f.PrepareProductData(catalog())
	features := f.ExtractFeatures(prepared)
	require.NotNil(t, features)

	rows, cols := features.Dims()
	assert.Equal(t, len(prepared), rows)
	// 5 terms + price + 2 categories + 4 price bands (premium, low, medium, budget)
	assert.Equal(t, 5+1+2+4, cols)

	priceSum := 0.0
	for i := 0; i < rows; i++ {
		priceSum += features.At(i, 5)
	}
	assert.InDelta(t, 0.0, priceSum, 1e-9)
}

func TestContentFilter_SimilarProducts(t *testing.T) {
	t.Run("two products", func(t *testing.T) {
		f := NewContentFilter(DefaultContentConfig(), testLogger())
		require.NoError(t, f.Train([]models.Product{
			{ID: "p1", Name: "Smartphone", Description: "Flagship phone", Category: "electronics", Price: 999},
			{ID: "p2", Name: "Phone Case", Description: "Protective case", Category: "electronics", Price: 29},
		}))

		similar, err := f.SimilarProducts("p1", 1)
		require.NoError(t, err)
		require.Len(t, similar, 1)
		assert.Equal(t, "p2", similar[0].ID)
		assert.GreaterOrEqual(t, similar[0].Score, 0.0)
		assert.LessOrEqual(t, similar[0].Score, 1.0)
	})

	t.Run("never returns the product itself", func(t *testing.T) {
		f := NewContentFilter(DefaultContentConfig(), testLogger())
		require.NoError(t, f.Train(catalog()))

		for _, p := range catalog() {
			similar, err := f.SimilarProducts(p.ID, 10)
			require.NoError(t, err)
			assert.Len(t, similar, len(catalog())-1)
			assert.NotContains(t, ids(similar), p.ID)
			for i := 1; i < len(similar); i++ {
				assert.GreaterOrEqual(t, similar[i-1].Score, similar[i].Score)
			}
		}

		similar, err := f.SimilarProducts("mouse", 1)
		require.NoError(t, err)
		assert.Equal(t, "keyboard", similar[0].ID)
	})

	t.Run("unknown and untrained", func(t *testing.T) {
		f := NewContentFilter(DefaultContentConfig(), testLogger())
		_, err := f.SimilarProducts("p1", 3)
		assert.ErrorIs(t, err, ErrNotTrained)

		require.NoError(t, f.Train(catalog()))
		similar, err := f.SimilarProducts("missing", 3)
		assert.ErrorIs(t, err, ErrUnknownEntity)
		assert.Empty(t, similar)
	})
}

func TestContentFilter_UserContentRecommendations(t *testing.T) {
	f := NewContentFilter(DefaultContentConfig(), testLogger())

	history := []models.UserInteraction{
		{UserID: "u1", ProductID: "mouse", InteractionType: models.InteractionPurchase},
		{UserID: "u1", ProductID: "mouse", InteractionType: models.InteractionView},
		{UserID: "u1", ProductID: "gone", InteractionType: models.InteractionView},
	}

	_, err := f.UserContentRecommendations(history, 3)
	assert.ErrorIs(t, err, ErrNotTrained)

	require.NoError(t, f.Train(catalog()))

	recs, err := f.UserContentRecommendations(history, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.NotContains(t, ids(recs), "mouse")
	assert.Equal(t, "keyboard", recs[0].ID)
	for _, r := range recs {
		assert.Greater(t, r.Score, 0.0)
	}

	limited, err := f.UserContentRecommendations(history, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = f.UserContentRecommendations(nil, 3)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = f.UserContentRecommendations([]models.UserInteraction{{ProductID: "gone"}}, 3)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestContentFilter_CategoryRecommendations(t *testing.T) {
	f := NewContentFilter(DefaultContentConfig(), testLogger())

	recs, err := f.CategoryRecommendations("books", 5)
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.Empty(t, recs)

	require.NoError(t, f.Train(catalog()))

	recs, err = f.CategoryRecommendations("Books", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"novel", "cookbook"}, ids(recs))
	for _, r := range recs {
		assert.Equal(t, 1.0, r.Score)
	}

	recs, err = f.CategoryRecommendations("", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"laptop", "mouse"}, ids(recs))

	for _, n := range []int{0, -1} {
		recs, err = f.CategoryRecommendations("books", n)
		require.NoError(t, err)
		assert.Empty(t, recs, "n=%d", n)

		history := []models.UserInteraction{{ProductID: "novel", InteractionType: models.InteractionView}}
		recs, err = f.UserContentRecommendations(history, n)
		require.NoError(t, err)
		assert.Empty(t, recs, "n=%d", n)

		recs, err = f.SimilarProducts("laptop", n)
		require.NoError(t, err)
		assert.Empty(t, recs, "n=%d", n)
	}
}

func TestContentFilter_Snapshot(t *testing.T) {
	registry, err := NewModelRegistry(t.TempDir(), testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	trained := NewContentFilter(DefaultContentConfig(), testLogger())
	require.NoError(t, trained.Train(catalog()))
	require.NoError(t, trained.SaveSnapshot(ctx, registry))

	restored := NewContentFilter(DefaultContentConfig(), testLogger())
	require.NoError(t, restored.LoadSnapshot(ctx, registry))

	want, err := trained.SimilarProducts("laptop", 3)
	require.NoError(t, err)
	got, err := restored.SimilarProducts("laptop", 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	history := []models.UserInteraction{{ProductID: "novel", InteractionType: models.InteractionView}}
	wantRecs, _ := trained.UserContentRecommendations(history, 3)
	gotRecs, _ := restored.UserContentRecommendations(history, 3)
	assert.Equal(t, wantRecs, gotRecs)
}

func TestContentFilter_FailedTrainingKeepsModel(t *testing.T) {
	f := NewContentFilter(DefaultContentConfig(), testLogger())
	require.NoError(t, f.Train(catalog()))
	published := f.state.Load()
	before, err := f.SimilarProducts("laptop", 3)
	require.NoError(t, err)
	require.Len(t, before, 3)

	pairwiseSimilarity = func(*mat.Dense) *mat.Dense { panic("matrix dimension mismatch") }
	t.Cleanup(func() { pairwiseSimilarity = cosineSimilarityMatrix })

	err = f.Train(catalog()[:2])
	var trainingErr *TrainingError
	require.ErrorAs(t, err, &trainingErr)
	assert.Equal(t, models.AlgorithmContent, trainingErr.Algorithm)
	assert.Equal(t, "feature extraction", trainingErr.Stage)

	assert.True(t, f.IsTrained())
	assert.Same(t, published, f.state.Load())
	after, err := f.SimilarProducts("laptop", 3)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
