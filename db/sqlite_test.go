package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *RunLog {
	t.Helper()
	log, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestRecordAndList(t *testing.T) {
	log := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := log.Record(ctx, TrainingRun{
			Version:            fmt.Sprintf("v%d", i),
			Algorithm:          "linear",
			Seed:               42,
			SplitFraction:      0.2,
			Accuracy:           0.9 + float64(i)/100,
			MalignantPrecision: 0.95,
			MalignantRecall:    0.9,
			MalignantF1:        0.92,
			TrainSize:          455,
			TestSize:           114,
			DataPoints:         569,
			Source:             "data.csv",
			TrainedAt:          base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	runs, err := log.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "v2", runs[0].Version)
	assert.Equal(t, "v0", runs[2].Version)
	assert.InDelta(t, 0.92, runs[0].Accuracy, 1e-12)
	assert.Equal(t, 569, runs[0].DataPoints)
	assert.Equal(t, "data.csv", runs[0].Source)
	assert.True(t, runs[0].TrainedAt.Equal(base.Add(2*time.Hour)), "got %v", runs[0].TrainedAt)

	limited, err := log.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecordRejectsDuplicateVersion(t *testing.T) {
	log := openTemp(t)
	ctx := context.Background()
	_, err := log.Record(ctx, TrainingRun{Version: "same", Algorithm: "linear"})
	require.NoError(t, err)
	_, err = log.Record(ctx, TrainingRun{Version: "same", Algorithm: "linear"})
	require.Error(t, err)

	_, err = log.Record(ctx, TrainingRun{Algorithm: "linear"})
	require.Error(t, err)
}

func TestListEmpty(t *testing.T) {
	runs, err := openTemp(t).List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
