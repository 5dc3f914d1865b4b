// Package pipeline runs training jobs end to end: load the data file, train, publish the
// artifact pair and record the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cytodx/dataset"
	"cytodx/db"
	"cytodx/ml"
	"cytodx/monitoring"
	"cytodx/store"
)

// ErrBusy is returned by TryRun while another job holds the runner.
var ErrBusy = errors.New("training already in progress")

type Job struct {
	DataPath string
	Load     []dataset.LoadOption
	Train    ml.TrainConfig
}

type Result struct {
	Version    string        `json:"version"`
	Algorithm  ml.Algorithm  `json:"algorithm"`
	Metrics    ml.Metrics    `json:"metrics"`
	DataPoints int           `json:"data_points"`
	Duration   time.Duration `json:"duration"`
}

type Option func(*Runner)

func WithRunLog(runs *db.RunLog) Option {
	return func(r *Runner) { r.runs = runs }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner executes one job at a time.
type Runner struct {
	store   *store.Store
	runs    *db.RunLog
	metrics *monitoring.Metrics
	logger  *zap.Logger
	now     func() time.Time

	sem chan struct{}
}

func NewRunner(st *store.Store, opts ...Option) *Runner {
	r := &Runner{store: st, logger: zap.NewNop(), now: time.Now, sem: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run waits for any job in progress and then runs job.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.sem }()
	return r.run(ctx, job)
}

// TryRun runs job only if the runner is idle.
func (r *Runner) TryRun(ctx context.Context, job Job) (*Result, error) {
	select {
	case r.sem <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	defer func() { <-r.sem }()
	return r.run(ctx, job)
}

func (r *Runner) run(ctx context.Context, job Job) (res *Result, err error) {
	start := r.now()
	log := r.logger.With(zap.String("source", job.DataPath), zap.String("algorithm", string(job.Train.Algorithm)))
	defer func() {
		r.metrics.ObserveTrainingRun(err == nil)
		if err != nil {
			log.Error("training run failed", zap.Error(err))
		}
	}()

	ds, err := dataset.Load(job.DataPath, append(job.Load, dataset.WithLogger(r.logger))...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", job.DataPath, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trained, err := ml.Train(ds, job.Train)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	version, err := r.store.Save(trained.Model, trained.Scaler, store.Metadata{
		Seed:          job.Train.Seed,
		SplitFraction: job.Train.SplitFraction,
		Source:        job.DataPath,
		DataPoints:    ds.Len(),
		Metrics:       trained.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	res = &Result{
		Version:    version,
		Algorithm:  trained.Model.Algorithm(),
		Metrics:    trained.Metrics,
		DataPoints: ds.Len(),
		Duration:   r.now().Sub(start),
	}
	if r.runs != nil {
		_, err := r.runs.Record(ctx, db.TrainingRun{
			Version:            version,
			Algorithm:          string(res.Algorithm),
			Seed:               job.Train.Seed,
			SplitFraction:      job.Train.SplitFraction,
			Accuracy:           res.Metrics.Accuracy,
			MalignantPrecision: res.Metrics.Malignant.Precision,
			MalignantRecall:    res.Metrics.Malignant.Recall,
			MalignantF1:        res.Metrics.Malignant.F1,
			TrainSize:          res.Metrics.TrainSize,
			TestSize:           res.Metrics.TestSize,
			DataPoints:         res.DataPoints,
			Source:             job.DataPath,
			TrainedAt:          start,
		})
		if err != nil {
			// the pair is published either way
			log.Warn("record training run", zap.String("version", version), zap.Error(err))
		}
	}

	log.Info("training run finished",
		zap.String("version", version),
		zap.Int("data_points", res.DataPoints),
		zap.Float64("accuracy", res.Metrics.Accuracy),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}
