package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"cytodx/errdefs"
)

type TreeParams struct {
	MaxDepth       int `json:"max_depth"`
	MinSamplesLeaf int `json:"min_samples_leaf"`
	// MaxFeatures is the number of candidate features per split; 0 means all.
	MaxFeatures int `json:"max_features"`
}

// DecisionTree is a CART classifier stored as a flat node array. Children always come
// after their parent, which Load-time validation relies on.
type DecisionTree struct {
	Nodes    []TreeNode `json:"nodes"`
	Features int        `json:"features"`

	params TreeParams
	rng    *rand.Rand
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	// Probability is the malignant fraction of the training samples at this node.
	Probability float64 `json:"probability"`
	Samples     int     `json:"samples"`
	IsLeaf      bool    `json:"is_leaf"`
}

func NewDecisionTree(params TreeParams, seed int64) *DecisionTree {
	return newDecisionTree(params, rand.New(rand.NewSource(seed)))
}

func newDecisionTree(params TreeParams, rng *rand.Rand) *DecisionTree {
	if params.MinSamplesLeaf <= 0 {
		params.MinSamplesLeaf = 1
	}
	return &DecisionTree{params: params, rng: rng}
}

func (dt *DecisionTree) Fit(features [][]float64, labels []int) error {
	if _, err := checkTrainingSet(features, labels); err != nil {
		return err
	}
	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	return dt.fitIndices(features, labels, indices)
}

// fitIndices trains on the rows named by indices; repeats are allowed for bootstrap samples.
func (dt *DecisionTree) fitIndices(features [][]float64, labels []int, indices []int) error {
	if len(indices) == 0 {
		return errors.New("no samples to fit")
	}
	dt.Nodes = nil
	dt.Features = len(features[0])
	dt.buildNode(features, labels, indices, 0)
	return nil
}

func (dt *DecisionTree) PredictProba(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) != dt.Features {
		return 0, fmt.Errorf("%w: tree expects %d features, got %d", errdefs.ErrInvalidInput, dt.Features, len(features))
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Probability, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) validate() error {
	if len(dt.Nodes) == 0 {
		return fmt.Errorf("%w: tree has no nodes", errdefs.ErrArtifactCorrupt)
	}
	if dt.Features <= 0 {
		return fmt.Errorf("%w: tree has no features", errdefs.ErrArtifactCorrupt)
	}
	for i, node := range dt.Nodes {
		if node.Probability < 0 || node.Probability > 1 || math.IsNaN(node.Probability) {
			return fmt.Errorf("%w: node %d probability %v", errdefs.ErrArtifactCorrupt, i, node.Probability)
		}
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= dt.Features {
			return fmt.Errorf("%w: node %d splits on feature %d", errdefs.ErrArtifactCorrupt, i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(dt.Nodes) || node.RightChild <= i || node.RightChild >= len(dt.Nodes) {
			return fmt.Errorf("%w: node %d has children out of range", errdefs.ErrArtifactCorrupt, i)
		}
	}
	return nil
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, indices []int, depth int) int {
	positives := 0
	for _, i := range indices {
		positives += labels[i]
	}
	nodeIdx := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, TreeNode{
		FeatureIdx:  -1,
		LeftChild:   -1,
		RightChild:  -1,
		Probability: float64(positives) / float64(len(indices)),
		Samples:     len(indices),
		IsLeaf:      true,
	})

	if (dt.params.MaxDepth > 0 && depth >= dt.params.MaxDepth) ||
		positives == 0 || positives == len(indices) ||
		len(indices) < 2*dt.params.MinSamplesLeaf {
		return nodeIdx
	}

	featureIdx, threshold, ok := dt.findBestSplit(features, labels, indices)
	if !ok {
		return nodeIdx
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return nodeIdx
	}

	leftIdx := dt.buildNode(features, labels, left, depth+1)
	rightIdx := dt.buildNode(features, labels, right, depth+1)

	node := &dt.Nodes[nodeIdx]
	node.FeatureIdx = featureIdx
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	return nodeIdx
}

// findBestSplit sweeps each candidate feature in sorted order and keeps the midpoint
// threshold with the lowest weighted Gini impurity.
func (dt *DecisionTree) findBestSplit(features [][]float64, labels []int, indices []int) (int, float64, bool) {
	width := len(features[0])
	candidates := make([]int, width)
	for i := range candidates {
		candidates[i] = i
	}
	if dt.params.MaxFeatures > 0 && dt.params.MaxFeatures < width && dt.rng != nil {
		candidates = dt.rng.Perm(width)[:dt.params.MaxFeatures]
	}

	n := len(indices)
	totalPos := 0
	for _, i := range indices {
		totalPos += labels[i]
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64
	sorted := make([]int, n)

	for _, featureIdx := range candidates {
		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, b int) bool {
			return features[sorted[a]][featureIdx] < features[sorted[b]][featureIdx]
		})

		leftPos := 0
		for k := 1; k < n; k++ {
			leftPos += labels[sorted[k-1]]
			lo := features[sorted[k-1]][featureIdx]
			hi := features[sorted[k]][featureIdx]
			if lo == hi {
				continue
			}
			if k < dt.params.MinSamplesLeaf || n-k < dt.params.MinSamplesLeaf {
				continue
			}
			impurity := weightedGini(k, leftPos, n-k, totalPos-leftPos)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = midpoint(lo, hi)
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func midpoint(lo, hi float64) float64 {
	t := lo + (hi-lo)/2
	if t >= hi {
		return lo
	}
	return t
}

func weightedGini(leftN, leftPos, rightN, rightPos int) float64 {
	total := float64(leftN + rightN)
	return float64(leftN)/total*gini(leftN, leftPos) + float64(rightN)/total*gini(rightN, rightPos)
}

func gini(n, positives int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(positives) / float64(n)
	return 1 - p*p - (1-p)*(1-p)
}
