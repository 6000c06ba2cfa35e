package ml

import (
	"context"
	"errors"
	"fmt"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/shopwise/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func record(user, product string, count int, types ...models.InteractionType) models.InteractionRecord {
	return models.InteractionRecord{
		UserID:           user,
		ProductID:        product,
		InteractionCount: count,
		Types:            mapset.NewSet(types...),
	}
}

var allTypes = []models.InteractionType{models.InteractionView, models.InteractionCartAdd, models.InteractionPurchase}

func scenarioRecords() []models.InteractionRecord {
	return []models.InteractionRecord{
		record("u1", "p1", 5, allTypes...),
		record("u2", "p1", 4, models.InteractionView, models.InteractionPurchase),
		record("u3", "p2", 6, allTypes...),
	}
}

func ids(items []models.ScoredItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestCollaborativeFilter_PrepareData(t *testing.T) {
	t.Run("scores are additive over types", func(t *testing.T) {
		f := NewCollaborativeFilter(CollaborativeConfig{NComponents: 50, MinInteractions: 2}, testLogger())
		rows := f.PrepareData(scenarioRecords())

		require.Len(t, rows, 3)
		assert.Equal(t, 6.0, rows[0].Score)
		assert.Equal(t, 4.0, rows[1].Score)
		assert.Equal(t, 6.0, rows[2].Score)
	})

	t.Run("falls back to interaction count without types", func(t *testing.T) {
		f := NewCollaborativeFilter(CollaborativeConfig{NComponents: 50, MinInteractions: 1}, testLogger())
		rows := f.PrepareData([]models.InteractionRecord{{UserID: "u1", ProductID: "p1", InteractionCount: 7}})

		require.Len(t, rows, 1)
		assert.Equal(t, 7.0, rows[0].Score)
	})

	t.Run("everything below threshold is dropped", func(t *testing.T) {
		f := NewCollaborativeFilter(DefaultCollaborativeConfig(), testLogger())
		rows := f.PrepareData([]models.InteractionRecord{
			record("u1", "p1", 1, models.InteractionView),
			record("u2", "p2", 1, models.InteractionCartAdd),
		})
		assert.Empty(t, rows)

		require.NoError(t, f.Train([]models.InteractionRecord{
			record("u1", "p1", 1, models.InteractionView),
		}))
		assert.False(t, f.IsTrained())
	})

	t.Run("empty input", func(t *testing.T) {
		f := NewCollaborativeFilter(DefaultCollaborativeConfig(), testLogger())
		assert.Empty(t, f.PrepareData(nil))
	})
}

func TestCollaborativeFilter_BuildUserItemMatrix(t *testing.T) {
	f := NewCollaborativeFilter(DefaultCollaborativeConfig(), testLogger())

	t.Run("empty rows give the empty sentinel", func(t *testing.T) {
		m := f.BuildUserItemMatrix(nil)
		require.NotNil(t, m)
		assert.True(t, m.Empty())
	})

	t.Run("pivot with sorted indexes", func(t *testing.T) {
		m := f.BuildUserItemMatrix([]ScoredInteraction{
			{UserID: "b", ProductID: "y", Score: 2},
			{UserID: "a", ProductID: "x", Score: 1},
			{UserID: "a", ProductID: "y", Score: 3},
		})

		assert.Equal(t, []string{"a", "b"}, m.Users)
		assert.Equal(t, []string{"x", "y"}, m.Items)
		assert.Equal(t, 1, m.UserIndex["b"])
		assert.Equal(t, 0, m.ItemIndex["x"])
		assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{1, 3, 0, 2}), m.Matrix))
	})
}

func TestCollaborativeFilter_Scenario(t *testing.T) {
	f := NewCollaborativeFilter(CollaborativeConfig{NComponents: 50, MinInteractions: 2}, testLogger())
	require.NoError(t, f.Train(scenarioRecords()))
	require.True(t, f.IsTrained())

	recs, err := f.UserRecommendations("u1", 10)
	require.NoError(t, err)
	assert.NotContains(t, ids(recs), "p1")

	similar, err := f.SimilarUsers("u1", 2)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, "u2", similar[0].ID)
	assert.InDelta(t, 1.0, similar[0].Score, 1e-9)
	assert.NotContains(t, ids(similar), "u1")
}

func TestCollaborativeFilter_Untrained(t *testing.T) {
	f := NewCollaborativeFilter(DefaultCollaborativeConfig(), testLogger())
	require.NoError(t, f.Train(nil))
	assert.False(t, f.IsTrained())

	recs, err := f.UserRecommendations("anyone", 5)
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.Empty(t, recs)

	users, err := f.SimilarUsers("anyone", 5)
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.Empty(t, users)
}

// neighbourhood has three users sharing tastes and a fourth with distinct items.
func neighbourhood() []models.InteractionRecord {
	return []models.InteractionRecord{
		record("alice", "p1", 3, allTypes...),
		record("alice", "p2", 1, models.InteractionView),
		record("bob", "p1", 2, models.InteractionView, models.InteractionPurchase),
		record("bob", "p3", 2, models.InteractionCartAdd, models.InteractionPurchase),
		record("carol", "p2", 1, models.InteractionView),
		record("carol", "p3", 1, models.InteractionPurchase),
		record("carol", "p4", 1, models.InteractionCartAdd),
		record("dave", "p5", 3, allTypes...),
	}
}

func TestCollaborativeFilter_UserRecommendations(t *testing.T) {
	f := NewCollaborativeFilter(CollaborativeConfig{NComponents: 50, MinInteractions: 1}, testLogger())
	require.NoError(t, f.Train(neighbourhood()))

	t.Run("never returns interacted items", func(t *testing.T) {
		for _, user := range []string{"alice", "bob", "carol", "dave"} {
			recs, err := f.UserRecommendations(user, 10)
			require.NoError(t, err)
			for _, r := range recs {
				for _, rec := range neighbourhood() {
					if rec.UserID == user {
						assert.NotEqual(t, rec.ProductID, r.ID, "user %s", user)
					}
				}
				assert.Greater(t, r.Score, 0.0)
			}
		}
	})

	t.Run("scores descend and respect n", func(t *testing.T) {
		recs, err := f.UserRecommendations("alice", 1)
		require.NoError(t, err)
		require.Len(t, recs, 1)

		all, err := f.UserRecommendations("alice", 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"p3", "p4"}, ids(all))
		for i := 1; i < len(all); i++ {
			assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
		}
		assert.Equal(t, all[0], recs[0])
	})

	t.Run("isolated user gets nothing", func(t *testing.T) {
		recs, err := f.UserRecommendations("dave", 10)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("non-positive n", func(t *testing.T) {
		for _, n := range []int{0, -3} {
			recs, err := f.UserRecommendations("alice", n)
			require.NoError(t, err)
			assert.Empty(t, recs, "n=%d", n)

			users, err := f.SimilarUsers("alice", n)
			require.NoError(t, err)
			assert.Empty(t, users, "n=%d", n)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		recs, err := f.UserRecommendations("erin", 10)
		assert.ErrorIs(t, err, ErrUnknownEntity)
		assert.Empty(t, recs)
	})
}

func TestCollaborativeFilter_TruncatedSVD(t *testing.T) {
	var records []models.InteractionRecord
	for u := 0; u < 8; u++ {
		for p := 0; p < 12; p++ {
			if (u+p)%3 == 0 {
				records = append(records, record(fmt.Sprintf("u%d", u), fmt.Sprintf("p%02d", p), 1, models.InteractionView))
			}
		}
	}
	f := NewCollaborativeFilter(CollaborativeConfig{NComponents: 4, MinInteractions: 1}, testLogger())
	require.NoError(t, f.Train(records))

	first := f.state.Load().similarity
	n, _ := first.Dims()
	for i := 0; i < n; i++ {
		assert.InDelta(t, 1.0, first.At(i, i), 1e-9)
		for j := 0; j < n; j++ {
			assert.InDelta(t, first.At(i, j), first.At(j, i), 1e-9)
		}
	}

	require.NoError(t, f.Train(records))
	second := f.state.Load().similarity
	assert.True(t, mat.EqualApprox(first, second, 1e-9))
}

func TestCollaborativeFilter_FailedTrainingKeepsModel(t *testing.T) {
	// Five items over four components so training goes through the reduction step.
	f := NewCollaborativeFilter(CollaborativeConfig{NComponents: 4, MinInteractions: 1}, testLogger())
	require.NoError(t, f.Train(neighbourhood()))
	published := f.state.Load()
	before, err := f.UserRecommendations("alice", 10)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	t.Run("reduction error", func(t *testing.T) {
		reduceDimensions = func(*mat.Dense, int) (*mat.Dense, error) {
			return nil, errors.New("svd factorization did not converge")
		}
		t.Cleanup(func() { reduceDimensions = truncatedSVD })

		err := f.Train(neighbourhood())
		var trainingErr *TrainingError
		require.ErrorAs(t, err, &trainingErr)
		assert.Equal(t, "dimensionality reduction", trainingErr.Stage)
		assert.ErrorIs(t, err, ErrTrainingFailed)
	})

	t.Run("panic during construction", func(t *testing.T) {
		pairwiseSimilarity = func(*mat.Dense) *mat.Dense { panic("matrix dimension mismatch") }
		t.Cleanup(func() { pairwiseSimilarity = cosineSimilarityMatrix })

		err := f.Train(neighbourhood())
		var trainingErr *TrainingError
		require.ErrorAs(t, err, &trainingErr)
		assert.Equal(t, "matrix construction", trainingErr.Stage)
		assert.ErrorContains(t, err, "matrix dimension mismatch")
	})

	assert.True(t, f.IsTrained())
	assert.Same(t, published, f.state.Load())
	after, err := f.UserRecommendations("alice", 10)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCollaborativeFilter_Snapshot(t *testing.T) {
	registry, err := NewModelRegistry(t.TempDir(), testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	untrained := NewCollaborativeFilter(DefaultCollaborativeConfig(), testLogger())
	assert.ErrorIs(t, untrained.SaveSnapshot(ctx, registry), ErrNotTrained)
	assert.ErrorIs(t, untrained.LoadSnapshot(ctx, registry), ErrSnapshotNotFound)

	trained := NewCollaborativeFilter(CollaborativeConfig{NComponents: 50, MinInteractions: 1}, testLogger())
	require.NoError(t, trained.Train(neighbourhood()))
	require.NoError(t, trained.SaveSnapshot(ctx, registry))

	restored := NewCollaborativeFilter(CollaborativeConfig{NComponents: 50, MinInteractions: 1}, testLogger())
	require.NoError(t, restored.LoadSnapshot(ctx, registry))
	require.True(t, restored.IsTrained())

	want, err := trained.UserRecommendations("alice", 10)
	require.NoError(t, err)
	got, err := restored.UserRecommendations("alice", 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, trained.TrainedAt().Equal(restored.TrainedAt()))
}

func TestCollaborativeFilter_SimilarityEdges(t *testing.T) {
	f := NewCollaborativeFilter(CollaborativeConfig{NComponents: 50, MinInteractions: 1}, testLogger())
	assert.Nil(t, f.SimilarityEdges(3))

	require.NoError(t, f.Train(neighbourhood()))
	edges := f.SimilarityEdges(3)
	require.NotEmpty(t, edges)
	for _, e := range edges {
		assert.NotEqual(t, e.From, e.To)
		assert.Less(t, e.From, e.To)
		assert.Greater(t, e.Score, 0.0)
		assert.NotEqual(t, "dave", e.From)
		assert.NotEqual(t, "dave", e.To)
	}
}
