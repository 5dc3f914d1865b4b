package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cytodx/dataset"
	"cytodx/serving"
	"cytodx/testutil"
)

type env struct {
	config string
	ds     *dataset.Dataset
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	ds := testutil.SyntheticDataset(90, 21)
	data := testutil.WriteDataset(t, dir, ds)
	cfg := fmt.Sprintf(`data:
  path: %q
model:
  dir: %q
database:
  path: %q
log:
  level: error
`, data, filepath.Join(dir, "model"), filepath.Join(dir, "runs.db"))
	return env{config: testutil.WriteFile(t, dir, "config.yaml", cfg), ds: ds}
}

func (e env) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Execute(append(args, "--config", e.config), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func joinFeatures(values []float64) string {
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(fields, ",")
}

func TestTrainInspectPredictRuns(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := e.run("train", "--algorithm", "ensemble", "--seed", "5")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "algorithm: ensemble")
	assert.Contains(t, out, "malignant")
	assert.Contains(t, out, "records:   90")

	code, out, errOut = e.run("inspect")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "algorithm:  ensemble")
	assert.Contains(t, out, "seed:       5")
	assert.Contains(t, out, "* ")

	code, out, errOut = e.run("predict", "--features", joinFeatures(e.ds.Records[0].Features))
	require.Equal(t, 0, code, errOut)
	var pred serving.Prediction
	require.NoError(t, json.Unmarshal([]byte(out), &pred))
	assert.InDelta(t, 1.0, pred.PBenign+pred.PMalignant, 1e-9)

	code, out, errOut = e.run("runs", "--limit", "5")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, pred.Version)
	assert.Contains(t, out, "ensemble")
}

func TestPredictNamedFile(t *testing.T) {
	e := newEnv(t)
	code, _, errOut := e.run("train")
	require.Equal(t, 0, code, errOut)

	named := make(map[string]float64)
	for i, name := range dataset.DefaultSchema().FeatureNames() {
		named[name] = e.ds.Records[1].Features[i]
	}
	raw, err := json.Marshal(named)
	require.NoError(t, err)
	path := testutil.WriteFile(t, t.TempDir(), "record.json", string(raw))

	code, out, errOut := e.run("predict", "--named", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"label"`)
}

func TestCommandErrors(t *testing.T) {
	e := newEnv(t)

	code, _, errOut := e.run("train", "--algorithm", "svm")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "unknown algorithm")

	code, _, _ = e.run("predict", "--features", "1,2,3")
	assert.Equal(t, 1, code, "no model published yet")

	code, _, errOut = e.run("train")
	require.Equal(t, 0, code, errOut)

	code, _, errOut = e.run("predict", "--features", joinFeatures(make([]float64, dataset.FeatureCount-1)))
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "invalid input")

	code, _, _ = e.run("predict", "--features", "1,x")
	assert.Equal(t, 2, code)

	code, _, _ = e.run("predict")
	assert.NotEqual(t, 0, code)

	var stdout, stderr bytes.Buffer
	code = Execute([]string{"runs", "--config", filepath.Join(t.TempDir(), "missing.yaml")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
}

func TestRunsEmpty(t *testing.T) {
	e := newEnv(t)
	code, out, errOut := e.run("runs")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "no training runs recorded")
}

func TestParseFeatures(t *testing.T) {
	got, err := parseFeatures(" 1.5, 2 ,3e2")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2, 300}, got)

	_, err = parseFeatures("")
	assert.Error(t, err)
}

func TestTuneWithGridFile(t *testing.T) {
	e := newEnv(t)
	grid := testutil.WriteFile(t, t.TempDir(), "grid.yaml", `learning_rates: [0.1, 0.3]
epochs: [200]
`)
	code, out, errOut := e.run("tune", "--grid", grid, "--folds", "3", "--workers", "1")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "best of 2 candidates")
	assert.Contains(t, out, "algorithm: linear")
	assert.Contains(t, out, "epochs: 200")
	assert.Contains(t, out, "nothing published")
	_, err := os.Stat(filepath.Join(filepath.Dir(e.config), "model"))
	assert.True(t, os.IsNotExist(err), "tune must not create a model")

	code, out, _ = e.run("tune", "--help")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Report only")

	bad := testutil.WriteFile(t, t.TempDir(), "bad.yaml", "depths: [1]\n")
	code, _, _ = e.run("tune", "--grid", bad)
	assert.Equal(t, 2, code)

	code, _, _ = e.run("tune", "--method", "annealing")
	assert.Equal(t, 2, code)
}

func TestFetch(t *testing.T) {
	e := newEnv(t)
	var buf bytes.Buffer
	require.NoError(t, dataset.Write(&buf, testutil.SyntheticDataset(9, 2)))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "wdbc.data")
	code, stdout, errOut := e.run("fetch", "--url", srv.URL, "--out", out)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, stdout, "9 records (6 benign, 3 malignant)")
}
