package dataset_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cytodx/dataset"
	"cytodx/errdefs"
	"cytodx/testutil"
)

func TestFetchWritesValidData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, dataset.Write(&buf, testutil.SyntheticDataset(12, 1)))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "data", "wdbc.data")
	ds, err := dataset.NewFetcher(srv.Client(), nil).Fetch(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, 12, ds.Len())
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	loaded, err := dataset.Load(dest)
	require.NoError(t, err)
	assert.Equal(t, ds, loaded)
}

func TestFetchKeepsExistingFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	dest := testutil.WriteFile(t, dir, "wdbc.data", "previous")

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }, nil},
		{"malformed", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("1,M,abc\n")) }, errdefs.ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := dataset.NewFetcher(srv.Client(), nil).Fetch(context.Background(), srv.URL, dest)
			require.Error(t, err)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
			data, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, "previous", string(data))
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
