package pipeline

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler retrains on a cron schedule. A tick that fires while the previous job is still
// running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	job    Job
	after  func(*Result)
	logger *zap.Logger
}

// NewScheduler parses spec (standard five-field cron or a descriptor such as "@daily").
// after, if set, is called with every successful result.
func NewScheduler(runner *Runner, spec string, job Job, after func(*Result), logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner: runner,
		job:    job,
		after:  after,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, entry := range s.cron.Entries() {
		s.logger.Info("retraining scheduled", zap.Time("next", entry.Next))
	}
}

// Stop halts the schedule; the returned context is done once a running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runOnce() {
	res, err := s.runner.Run(context.Background(), s.job)
	if err != nil {
		// already logged by the runner
		return
	}
	if s.after != nil {
		s.after(res)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
