package services

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/internal/ml"
	"github.com/temcen/shopwise/pkg/models"
)

// Neo4jSimilarityGraph mirrors the trained similarity neighbourhoods into
// Neo4j as SIMILAR_TO relationships between User and Product nodes.
type Neo4jSimilarityGraph struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewNeo4jSimilarityGraph(driver neo4j.DriverWithContext, logger *logrus.Logger) *Neo4jSimilarityGraph {
	return &Neo4jSimilarityGraph{
		driver: driver,
		logger: logger,
	}
}

func (g *Neo4jSimilarityGraph) ExportUserSimilarities(ctx context.Context, edges []ml.SimilarityEdge, version int64) error {
	return g.export(ctx, "User", models.AlgorithmCollaborative, edges, version)
}

func (g *Neo4jSimilarityGraph) ExportProductSimilarities(ctx context.Context, edges []ml.SimilarityEdge, version int64) error {
	return g.export(ctx, "Product", models.AlgorithmContent, edges, version)
}

// export upserts the edges for one model version and then removes the
// relationships left over from earlier versions.
func (g *Neo4jSimilarityGraph) export(ctx context.Context, label string, basis models.Algorithm, edges []ml.SimilarityEdge, version int64) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	upsert := `
		UNWIND $edges AS edge
		MERGE (a:` + label + ` {id: edge.from})
		MERGE (b:` + label + ` {id: edge.to})
		MERGE (a)-[s:SIMILAR_TO]-(b)
		SET s.score = edge.score,
			s.basis = $basis,
			s.model_version = $version,
			s.computed_at = datetime()`

	prune := `
		MATCH (:` + label + `)-[s:SIMILAR_TO]-(:` + label + `)
		WHERE s.model_version < $version
		DELETE s`

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		if len(edges) > 0 {
			result, err := tx.Run(ctx, upsert, map[string]interface{}{
				"edges":   edgeParams(edges),
				"basis":   string(basis),
				"version": version,
			})
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}

		result, err := tx.Run(ctx, prune, map[string]interface{}{"version": version})
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters(), nil
	})
	if err != nil {
		return fmt.Errorf("failed to export %s similarities: %w", label, err)
	}

	g.logger.WithFields(logrus.Fields{
		"label":         label,
		"edges":         len(edges),
		"model_version": version,
	}).Info("Exported similarity graph")
	return nil
}

func edgeParams(edges []ml.SimilarityEdge) []map[string]interface{} {
	params := make([]map[string]interface{}, len(edges))
	for i, e := range edges {
		params[i] = map[string]interface{}{
			"from":  e.From,
			"to":    e.To,
			"score": e.Score,
		}
	}
	return params
}
