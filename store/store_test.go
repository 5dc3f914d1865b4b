package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cytodx/errdefs"
	"cytodx/ml"
	"cytodx/store"
	"cytodx/testutil"
)

func trainPair(t *testing.T, alg ml.Algorithm) *ml.TrainResult {
	t.Helper()
	cfg := ml.DefaultTrainConfig()
	cfg.Algorithm = alg
	cfg.Ensemble.Trees = 5
	result, err := ml.Train(testutil.SyntheticDataset(60, 1), cfg)
	require.NoError(t, err)
	return result
}

func save(t *testing.T, s *store.Store, result *ml.TrainResult) string {
	t.Helper()
	version, err := s.Save(result.Model, result.Scaler, store.Metadata{
		Seed:          42,
		SplitFraction: 0.2,
		Source:        "data.csv",
		DataPoints:    60,
		Metrics:       result.Metrics,
	})
	require.NoError(t, err)
	return version
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, alg := range []ml.Algorithm{ml.AlgorithmLinear, ml.AlgorithmEnsemble} {
		t.Run(string(alg), func(t *testing.T) {
			dir := t.TempDir()
			s := store.New(dir)
			result := trainPair(t, alg)
			version := save(t, s, result)

			current, err := s.Current()
			require.NoError(t, err)
			assert.Equal(t, version, current)

			pair, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, version, pair.Version)
			assert.Equal(t, alg, pair.Metadata.Algorithm)
			assert.Equal(t, 60, pair.Metadata.DataPoints)
			assert.Equal(t, result.Metrics, pair.Metadata.Metrics)
			assert.Equal(t, result.Scaler.Mean(), pair.Scaler.Mean())
			assert.Equal(t, result.Scaler.Std(), pair.Scaler.Std())

			probe := testutil.Constant(0.5)
			want, err := result.Model.PredictProba(probe)
			require.NoError(t, err)
			got, err := pair.Model.PredictProba(probe)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadEmptyStore(t *testing.T) {
	s := store.New(t.TempDir())
	_, err := s.Load()
	require.ErrorIs(t, err, errdefs.ErrArtifactNotFound)

	versions, err := s.Versions()
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestLoadMissingHalf(t *testing.T) {
	for _, name := range []string{"scaler.json", "model.json"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			s := store.New(dir)
			version := save(t, s, trainPair(t, ml.AlgorithmLinear))
			require.NoError(t, os.Remove(filepath.Join(dir, "versions", version, name)))

			_, err := s.Load()
			require.ErrorIs(t, err, errdefs.ErrArtifactNotFound)
		})
	}
}

func TestLoadMissingVersion(t *testing.T) {
	dir := t.TempDir()
	s := store.New(dir)
	version := save(t, s, trainPair(t, ml.AlgorithmLinear))
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "versions", version)))

	_, err := s.Load()
	require.ErrorIs(t, err, errdefs.ErrArtifactNotFound)

	_, err = s.LoadVersion("../escape")
	require.ErrorIs(t, err, errdefs.ErrArtifactNotFound)
}

func TestLoadVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	s := store.New(dir)
	result := trainPair(t, ml.AlgorithmLinear)
	first := save(t, s, result)
	second := save(t, s, result)

	data, err := os.ReadFile(filepath.Join(dir, "versions", first, "scaler.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "versions", second, "scaler.json"), data, 0o644))

	_, err = s.Load()
	require.ErrorIs(t, err, errdefs.ErrArtifactCorrupt)

	_, err = s.LoadVersion(first)
	require.NoError(t, err)
}

func TestLoadCorruptEnvelope(t *testing.T) {
	cases := []struct {
		name   string
		file   string
		mutate func(map[string]any)
		raw    string
	}{
		{name: "bad json", file: "model.json", raw: "{not json"},
		{name: "wrong format", file: "model.json", mutate: func(m map[string]any) { m["format"] = "cytodx/scaler" }},
		{name: "schema version", file: "scaler.json", mutate: func(m map[string]any) { m["schema_version"] = 2 }},
		{name: "unknown kind", file: "model.json", mutate: func(m map[string]any) { m["kind"] = "svm" }},
		{name: "feature count", file: "scaler.json", mutate: func(m map[string]any) { m["feature_count"] = 29 }},
		{name: "empty payload", file: "model.json", mutate: func(m map[string]any) { delete(m, "payload") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			s := store.New(dir)
			version := save(t, s, trainPair(t, ml.AlgorithmLinear))
			path := filepath.Join(dir, "versions", version, tc.file)

			content := []byte(tc.raw)
			if tc.mutate != nil {
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				var m map[string]any
				require.NoError(t, json.Unmarshal(data, &m))
				tc.mutate(m)
				content, err = json.Marshal(m)
				require.NoError(t, err)
			}
			require.NoError(t, os.WriteFile(path, content, 0o644))

			_, err := s.Load()
			require.ErrorIs(t, err, errdefs.ErrArtifactCorrupt)
		})
	}
}

func TestSaveRejectsMismatchedPair(t *testing.T) {
	result := trainPair(t, ml.AlgorithmLinear)
	scaler, err := ml.FitScaler([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = store.New(dir).Save(result.Model, scaler, store.Metadata{})
	require.ErrorIs(t, err, errdefs.ErrInvalidInput)
	_, err = os.Stat(filepath.Join(dir, "CURRENT"))
	assert.True(t, os.IsNotExist(err))
}

func TestVersionsOrderedAndCurrentIsLatest(t *testing.T) {
	s := store.New(t.TempDir())
	result := trainPair(t, ml.AlgorithmLinear)
	var saved []string
	for i := 0; i < 3; i++ {
		saved = append(saved, save(t, s, result))
	}
	versions, err := s.Versions()
	require.NoError(t, err)
	assert.Equal(t, saved, versions)

	current, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, saved[2], current)

	info, err := os.Stat(filepath.Join(s.Dir(), "CURRENT"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestConcurrentSavesPublishCompletePairs(t *testing.T) {
	dir := t.TempDir()
	s := store.New(dir)
	result := trainPair(t, ml.AlgorithmLinear)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Save(result.Model, result.Scaler, store.Metadata{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	versions, err := s.Versions()
	require.NoError(t, err)
	assert.Len(t, versions, 8)
	for _, v := range versions {
		_, err := s.LoadVersion(v)
		require.NoError(t, err)
	}
	_, err = s.Load()
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "versions"))
	require.NoError(t, err)
	assert.Len(t, entries, 8, "no staging leftovers")
}

func TestSaveRetainsNewestVersions(t *testing.T) {
	s := store.New(t.TempDir(), store.WithRetain(2))
	result := trainPair(t, ml.AlgorithmLinear)
	var saved []string
	for i := 0; i < 4; i++ {
		saved = append(saved, save(t, s, result))
	}

	versions, err := s.Versions()
	require.NoError(t, err)
	assert.Equal(t, saved[2:], versions)
	_, err = s.LoadVersion(saved[0])
	require.ErrorIs(t, err, errdefs.ErrArtifactNotFound)

	pair, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, saved[3], pair.Version)
}

func TestPruneKeepsCurrentVersion(t *testing.T) {
	dir := t.TempDir()
	s := store.New(dir)
	result := trainPair(t, ml.AlgorithmLinear)
	var saved []string
	for i := 0; i < 3; i++ {
		saved = append(saved, save(t, s, result))
	}
	testutil.WriteFile(t, dir, "CURRENT", saved[0]+"\n")

	removed, err := s.Prune(1)
	require.NoError(t, err)
	assert.Equal(t, saved[1:], removed)

	versions, err := s.Versions()
	require.NoError(t, err)
	assert.Equal(t, saved[:1], versions)

	_, err = s.Prune(0)
	require.ErrorIs(t, err, errdefs.ErrInvalidInput)
}
