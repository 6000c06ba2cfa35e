package ml

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// normalizeRows returns m with each row scaled to unit length and the original
// row norms. Zero rows stay zero.
func normalizeRows(m *mat.Dense) (*mat.Dense, []float64) {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	norms := make([]float64, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, m)
		n := floats.Norm(row, 2)
		norms[i] = n
		if n > 0 {
			floats.Scale(1/n, row)
		}
		out.SetRow(i, row)
	}
	return out, norms
}

// Training steps that tests replace to force failures.
var (
	reduceDimensions   = truncatedSVD
	pairwiseSimilarity = cosineSimilarityMatrix
)

// cosineSimilarityMatrix computes pairwise row cosine similarity. The result
// is symmetric, bounded to [-1, 1], and has an exact 1 on the diagonal for
// every non-zero row. Zero rows are similar to nothing, themselves included.
func cosineSimilarityMatrix(m *mat.Dense) *mat.Dense {
	unit, norms := normalizeRows(m)
	r, _ := unit.Dims()

	var sym mat.SymDense
	sym.SymOuterK(1, unit)

	sim := mat.NewDense(r, r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			v := clampUnit(sym.At(i, j))
			if i == j {
				v = 0
				if norms[i] > 0 {
					v = 1
				}
			}
			sim.Set(i, j, v)
			sim.Set(j, i, v)
		}
	}
	return sim
}

// cosineAgainstRows scores vector v against each row of a row-normalized matrix.
func cosineAgainstRows(v []float64, unitRows *mat.Dense) []float64 {
	r, _ := unitRows.Dims()
	scores := make([]float64, r)
	n := floats.Norm(v, 2)
	if n == 0 {
		return scores
	}
	q := make([]float64, len(v))
	floats.ScaleTo(q, 1/n, v)

	var out mat.VecDense
	out.MulVec(unitRows, mat.NewVecDense(len(q), q))
	for i := 0; i < r; i++ {
		scores[i] = clampUnit(out.AtVec(i))
	}
	return scores
}

// truncatedSVD projects the rows of m onto its top k singular directions
// (U_k * S_k). k is capped at the number of available singular values.
func truncatedSVD(m *mat.Dense, k int) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, errors.New("svd factorization did not converge")
	}

	values := svd.Values(nil)
	var u mat.Dense
	svd.UTo(&u)

	if k > len(values) {
		k = len(values)
	}
	rows, _ := u.Dims()
	reduced := mat.NewDense(rows, k, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < k; j++ {
			reduced.Set(i, j, u.At(i, j)*values[j])
		}
	}
	return reduced, nil
}

// rankIndices orders indices by descending score. Equal scores keep ascending
// index order, except pinned (when >= 0) which sorts ahead of its ties.
func rankIndices(scores []float64, pinned int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		sa, sb := scores[ia], scores[ib]
		if sa != sb {
			return sa > sb
		}
		return ia == pinned
	})
	return idx
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

type MatrixData struct {
	Rows int
	Cols int
	Data []float64
}

func toMatrixData(m *mat.Dense) MatrixData {
	if m == nil {
		return MatrixData{}
	}
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return MatrixData{Rows: r, Cols: c, Data: data}
}

func (d MatrixData) dense() (*mat.Dense, error) {
	if d.Rows <= 0 || d.Cols <= 0 {
		return nil, errors.New("matrix has no rows or columns")
	}
	if len(d.Data) != d.Rows*d.Cols {
		return nil, errors.New("matrix data does not match its shape")
	}
	return mat.NewDense(d.Rows, d.Cols, append([]float64(nil), d.Data...)), nil
}

// SimilarityEdge links two entities of the same kind with their similarity.
type SimilarityEdge struct {
	From  string
	To    string
	Score float64
}

// similarityEdges keeps, for every row, the k most similar other entries with
// a positive score. Each unordered pair is emitted once.
func similarityEdges(sim *mat.Dense, ids []string, k int) []SimilarityEdge {
	if sim == nil || k <= 0 {
		return nil
	}
	seen := make(map[[2]int]struct{})
	var edges []SimilarityEdge
	for i := range ids {
		row := sim.RawRowView(i)
		taken := 0
		for _, j := range rankIndices(row, i) {
			if taken >= k || row[j] <= 0 {
				break
			}
			if j == i {
				continue
			}
			taken++
			key := [2]int{min(i, j), max(i, j)}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			edges = append(edges, SimilarityEdge{From: ids[key[0]], To: ids[key[1]], Score: row[j]})
		}
	}
	return edges
}
