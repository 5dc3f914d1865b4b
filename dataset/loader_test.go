package dataset_test

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cytodx/dataset"
	"cytodx/errdefs"
	"cytodx/testutil"
)

func TestLoadMapsLabelsAndDropsID(t *testing.T) {
	f1 := testutil.Constant(1.5)
	f2 := testutil.Constant(2.5)
	content := testutil.Row(1, "M", f1) + "\n" + testutil.Row(2, "B", f2) + "\n"
	path := testutil.WriteFile(t, t.TempDir(), "data.csv", content)

	ds, err := dataset.Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, []int{1, 0}, ds.Labels())
	assert.Equal(t, f1, ds.Records[0].Features)
	assert.Equal(t, f2, ds.Records[1].Features)
	assert.Len(t, ds.Records[0].Features, dataset.FeatureCount)
	assert.NotContains(t, ds.Schema.FeatureNames(), "id")
}

func TestLoadDropsTrailingEmptyColumn(t *testing.T) {
	content := testutil.Row(842302, "M", testutil.Constant(3)) + ",\n"
	ds, err := dataset.Read(strings.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, dataset.Malignant, ds.Records[0].Label)
}

func TestLoadStripsByteOrderMark(t *testing.T) {
	content := "\ufeff" + testutil.Row(1, "B", testutil.Constant(4)) + "\n"
	ds, err := dataset.Read(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ds.Labels())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := dataset.Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestReadRejectsBadRows(t *testing.T) {
	good := testutil.Constant(1)
	short := testutil.Row(1, "M", good[:29])
	nonNumeric := strings.Replace(testutil.Row(1, "M", good), ",1,", ",abc,", 1)
	nan := strings.Replace(testutil.Row(1, "B", good), ",1,", ",NaN,", 1)

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "unknown label", content: testutil.Row(1, "X", good), wantErr: errdefs.ErrSchema},
		{name: "empty label", content: testutil.Row(1, "", good), wantErr: errdefs.ErrSchema},
		{name: "too few columns", content: short, wantErr: errdefs.ErrSchema},
		{name: "too many columns", content: testutil.Row(1, "M", good) + ",7,8", wantErr: errdefs.ErrSchema},
		{name: "non numeric feature", content: nonNumeric, wantErr: errdefs.ErrParse},
		{name: "non finite feature", content: nan, wantErr: errdefs.ErrParse},
		{name: "bare quote", content: testutil.Row(1, "M", good) + "\n2,\"M,1", wantErr: errdefs.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dataset.Read(strings.NewReader(tt.content))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadBadRowFailsWholeLoad(t *testing.T) {
	good := testutil.Row(1, "M", testutil.Constant(1))
	bad := testutil.Row(2, "?", testutil.Constant(1))
	ds, err := dataset.Read(strings.NewReader(good + "\n" + bad + "\n"))
	require.Error(t, err)
	assert.Nil(t, ds)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadSchemaWithoutLabel(t *testing.T) {
	schema := dataset.DefaultSchema()
	schema.Columns[1].Role = dataset.RoleFeature
	_, err := dataset.Read(strings.NewReader(""), dataset.WithSchema(schema))
	require.ErrorIs(t, err, errdefs.ErrSchema)
}

func TestReadWithHeader(t *testing.T) {
	schema := dataset.DefaultSchema()
	names := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		names = append(names, strings.ReplaceAll(col.Name, "_", " "))
	}
	content := strings.Join(names, ",") + "\n" + testutil.Row(1, "B", testutil.Constant(2)) + "\n"

	ds, err := dataset.Read(strings.NewReader(content), dataset.WithHeader())
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())

	_, err = dataset.Read(strings.NewReader(content))
	require.Error(t, err, "header row read as data must fail")
}

func TestReadSemicolonDelimiter(t *testing.T) {
	row := strings.ReplaceAll(testutil.Row(1, "M", testutil.Constant(0.25)), ",", ";")
	ds, err := dataset.Read(strings.NewReader(row), dataset.WithDelimiter(';'))
	require.NoError(t, err)
	assert.Equal(t, 0.25, ds.Records[0].Features[29])
}

func TestWriteReadRoundTrip(t *testing.T) {
	original := testutil.SyntheticDataset(50, 7)
	original.Records[3].Features[0] = math.Pi
	original.Records[4].Features[1] = 1e-300

	var buf bytes.Buffer
	require.NoError(t, dataset.Write(&buf, original))

	reloaded, err := dataset.Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, original.Records, reloaded.Records)

	var again bytes.Buffer
	require.NoError(t, dataset.Write(&again, reloaded))
	assert.Equal(t, buf.String(), again.String())
}

func TestWriteRejectsInvalidRecord(t *testing.T) {
	ds := &dataset.Dataset{
		Schema:  dataset.DefaultSchema(),
		Records: []dataset.Record{{Label: 2, Features: testutil.Constant(1)}},
	}
	var buf bytes.Buffer
	require.ErrorIs(t, dataset.Write(&buf, ds), errdefs.ErrSchema)
}
