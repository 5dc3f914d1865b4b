package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"cytodx/errdefs"
)

type EnsembleParams struct {
	Trees          int `json:"trees" yaml:"trees"`
	MaxDepth       int `json:"max_depth" yaml:"max_depth"`
	MinSamplesLeaf int `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	// MaxFeatures per split; 0 means sqrt of the feature count.
	MaxFeatures int `json:"max_features" yaml:"max_features"`
}

func DefaultEnsembleParams() EnsembleParams {
	return EnsembleParams{Trees: 100, MaxDepth: 8, MinSamplesLeaf: 1}
}

// RandomForest averages the leaf probabilities of bootstrap-trained trees.
type RandomForest struct {
	Trees    []*DecisionTree `json:"trees"`
	Features int             `json:"features"`
	Params   EnsembleParams  `json:"params"`
	Seed     int64           `json:"seed"`
}

func NewRandomForest(params EnsembleParams, seed int64) *RandomForest {
	defaults := DefaultEnsembleParams()
	if params.Trees <= 0 {
		params.Trees = defaults.Trees
	}
	if params.MinSamplesLeaf <= 0 {
		params.MinSamplesLeaf = defaults.MinSamplesLeaf
	}
	return &RandomForest{Params: params, Seed: seed}
}

func (rf *RandomForest) Algorithm() Algorithm { return AlgorithmEnsemble }

func (rf *RandomForest) FeatureCount() int { return rf.Features }

// Fit trains the trees one after another. Tree i draws from its own source seeded with
// Seed+i, so results do not depend on scheduling.
func (rf *RandomForest) Fit(features [][]float64, labels []int) error {
	width, err := checkTrainingSet(features, labels)
	if err != nil {
		return err
	}
	maxFeatures := rf.Params.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > width {
		maxFeatures = int(math.Max(1, math.Round(math.Sqrt(float64(width)))))
	}
	treeParams := TreeParams{
		MaxDepth:       rf.Params.MaxDepth,
		MinSamplesLeaf: rf.Params.MinSamplesLeaf,
		MaxFeatures:    maxFeatures,
	}

	n := len(features)
	trees := make([]*DecisionTree, rf.Params.Trees)
	sample := make([]int, n)
	for t := range trees {
		rng := rand.New(rand.NewSource(rf.Seed + int64(t)))
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		tree := newDecisionTree(treeParams, rng)
		if err := tree.fitIndices(features, labels, sample); err != nil {
			return fmt.Errorf("tree %d: %w", t, err)
		}
		trees[t] = tree
	}
	rf.Trees = trees
	rf.Features = width
	return nil
}

func (rf *RandomForest) PredictProba(features []float64) (float64, error) {
	if len(rf.Trees) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) != rf.Features {
		return 0, fmt.Errorf("%w: model expects %d features, got %d", errdefs.ErrInvalidInput, rf.Features, len(features))
	}
	sum := 0.0
	for _, tree := range rf.Trees {
		p, err := tree.PredictProba(features)
		if err != nil {
			return 0, err
		}
		sum += p
	}
	return sum / float64(len(rf.Trees)), nil
}

func (rf *RandomForest) validate() error {
	if len(rf.Trees) == 0 {
		return fmt.Errorf("%w: forest has no trees", errdefs.ErrArtifactCorrupt)
	}
	for i, tree := range rf.Trees {
		if tree == nil {
			return fmt.Errorf("%w: tree %d is empty", errdefs.ErrArtifactCorrupt, i)
		}
		if tree.Features != rf.Features {
			return fmt.Errorf("%w: tree %d has %d features, forest has %d", errdefs.ErrArtifactCorrupt, i, tree.Features, rf.Features)
		}
		if err := tree.validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
