package tuning

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"cytodx/dataset"
	"cytodx/errdefs"
	"cytodx/ml"
)

type Method string

const (
	MethodGrid   Method = "grid"
	MethodRandom Method = "random"
)

func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodGrid, MethodRandom:
		return Method(s), nil
	default:
		return "", fmt.Errorf("%w: unknown search method %q", errdefs.ErrInvalidConfig, s)
	}
}

// Grid lists candidate values per hyperparameter. An empty list keeps the base value.
// Only the dimensions of the base algorithm are used; the algorithm itself is never varied.
type Grid struct {
	LearningRates  []float64 `yaml:"learning_rates"`
	Epochs         []int     `yaml:"epochs"`
	L2             []float64 `yaml:"l2"`
	Trees          []int     `yaml:"trees"`
	MaxDepths      []int     `yaml:"max_depths"`
	MinSamplesLeaf []int     `yaml:"min_samples_leaf"`
}

// DefaultGrid spans the parameters of both algorithms around their defaults.
func DefaultGrid() Grid {
	return Grid{
		LearningRates:  []float64{0.05, 0.1, 0.3},
		L2:             []float64{0, 0.01, 0.1},
		Trees:          []int{25, 50},
		MaxDepths:      []int{4, 8},
		MinSamplesLeaf: []int{1, 3},
	}
}

type SearchConfig struct {
	Method Method
	Metric Metric
	Folds  int
	// MaxIterations caps the number of candidates tried; 0 tries all of them.
	MaxIterations int
	Seed          int64
	// Workers evaluating candidates concurrently; 0 means GOMAXPROCS.
	Workers int
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{Method: MethodGrid, Metric: MetricAccuracy, Folds: 5, Seed: 42}
}

// Trial is one evaluated candidate. Err is set when a fold failed to train.
type Trial struct {
	ID       int            `json:"id"`
	Config   ml.TrainConfig `json:"config"`
	Score    Score          `json:"score"`
	Duration time.Duration  `json:"duration"`
	Err      string         `json:"error,omitempty"`
}

type Result struct {
	Best     Trial         `json:"best"`
	Trials   []Trial       `json:"trials"`
	Duration time.Duration `json:"duration"`
}

// Search expands grid over base, evaluates every candidate with CrossValidate and returns
// the trials ranked best first. All candidates share the same fold assignment. Nothing is
// trained for publication.
func Search(ctx context.Context, ds *dataset.Dataset, base ml.TrainConfig, grid Grid, cfg SearchConfig, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("%w: nothing to tune on", errdefs.ErrEmptyDataset)
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricAccuracy
	}
	candidates := expand(base, grid)

	switch cfg.Method {
	case MethodGrid:
		if cfg.MaxIterations > 0 && len(candidates) > cfg.MaxIterations {
			candidates = candidates[:cfg.MaxIterations]
		}
	case MethodRandom:
		rng := rand.New(rand.NewSource(cfg.Seed))
		rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		if cfg.MaxIterations > 0 && len(candidates) > cfg.MaxIterations {
			candidates = candidates[:cfg.MaxIterations]
		}
	default:
		return nil, fmt.Errorf("%w: unsupported search method %q", errdefs.ErrInvalidConfig, cfg.Method)
	}
	// A dataset too small for the folds fails the whole search.
	if _, err := ml.KFold(ds.Len(), cfg.Folds, cfg.Seed); err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger.Info("hyperparameter search started",
		zap.String("method", string(cfg.Method)),
		zap.String("metric", string(cfg.Metric)),
		zap.Int("candidates", len(candidates)),
		zap.Int("folds", cfg.Folds),
		zap.Int("workers", workers))

	start := time.Now()
	trials := make([]Trial, len(candidates))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				trials[i] = runTrial(ctx, ds, i+1, candidates[i], cfg)
				logger.Debug("trial finished",
					zap.Int("trial", i+1),
					zap.String("algorithm", string(candidates[i].Algorithm)),
					zap.Float64("score", trials[i].Score.Mean),
					zap.String("error", trials[i].Err))
			}
		}()
	}
feed:
	for i := range candidates {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rank(trials)
	if trials[0].Err != "" {
		return nil, fmt.Errorf("every candidate failed, first error: %s", trials[0].Err)
	}
	res := &Result{Best: trials[0], Trials: trials, Duration: time.Since(start)}
	logger.Info("hyperparameter search finished",
		zap.Float64("best_score", res.Best.Score.Mean),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}

func runTrial(ctx context.Context, ds *dataset.Dataset, id int, candidate ml.TrainConfig, cfg SearchConfig) Trial {
	start := time.Now()
	t := Trial{ID: id, Config: candidate}
	score, err := CrossValidate(ctx, ds, candidate, cfg.Folds, cfg.Seed, cfg.Metric)
	if err != nil {
		t.Err = err.Error()
	}
	t.Score = score
	t.Duration = time.Since(start)
	return t
}

// rank orders successful trials by mean score, then by lower spread, then by id.
func rank(trials []Trial) {
	sort.SliceStable(trials, func(i, j int) bool {
		a, b := trials[i], trials[j]
		if (a.Err == "") != (b.Err == "") {
			return a.Err == ""
		}
		if a.Score.Mean != b.Score.Mean {
			return a.Score.Mean > b.Score.Mean
		}
		if a.Score.StdErr != b.Score.StdErr {
			return a.Score.StdErr < b.Score.StdErr
		}
		return a.ID < b.ID
	})
}

// expand builds the cartesian product of the base algorithm's grid dimensions over base.
func expand(base ml.TrainConfig, grid Grid) []ml.TrainConfig {
	var out []ml.TrainConfig
	c := base
	if base.Algorithm == ml.AlgorithmLinear {
		for _, lr := range floats(grid.LearningRates, base.Linear.LearningRate) {
			for _, epochs := range ints(grid.Epochs, base.Linear.Epochs) {
				for _, l2 := range floats(grid.L2, base.Linear.L2) {
					c.Linear = ml.LinearParams{LearningRate: lr, Epochs: epochs, L2: l2}
					out = append(out, c)
				}
			}
		}
		return out
	}
	for _, trees := range ints(grid.Trees, base.Ensemble.Trees) {
		for _, depth := range ints(grid.MaxDepths, base.Ensemble.MaxDepth) {
			for _, leaf := range ints(grid.MinSamplesLeaf, base.Ensemble.MinSamplesLeaf) {
				c.Ensemble = base.Ensemble
				c.Ensemble.Trees, c.Ensemble.MaxDepth, c.Ensemble.MinSamplesLeaf = trees, depth, leaf
				out = append(out, c)
			}
		}
	}
	return out
}

func floats(values []float64, fallback float64) []float64 {
	if len(values) == 0 {
		return []float64{fallback}
	}
	return values
}

func ints(values []int, fallback int) []int {
	if len(values) == 0 {
		return []int{fallback}
	}
	return values
}
