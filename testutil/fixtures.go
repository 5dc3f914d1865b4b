// Package testutil provides deterministic datasets and files for package tests.
package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cytodx/dataset"
)

// SyntheticDataset builds n records where every third one is malignant and malignant
// measurements sit about half a base value above benign ones.
func SyntheticDataset(n int, seed int64) *dataset.Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &dataset.Dataset{Schema: dataset.DefaultSchema()}
	for i := 0; i < n; i++ {
		label := dataset.Benign
		if i%3 == 0 {
			label = dataset.Malignant
		}
		features := make([]float64, dataset.FeatureCount)
		for j := range features {
			base := float64(j + 1)
			shift := 0.0
			if label == dataset.Malignant {
				shift = base * 0.5
			}
			features[j] = base + shift + rng.NormFloat64()*base*0.1
		}
		ds.Records = append(ds.Records, dataset.Record{Label: label, Features: features})
	}
	return ds
}

// Constant returns a feature vector with every value set to v.
func Constant(v float64) []float64 {
	features := make([]float64, dataset.FeatureCount)
	for i := range features {
		features[i] = v
	}
	return features
}

// Row formats one headerless input line.
func Row(id int, label string, features []float64) string {
	fields := make([]string, 0, len(features)+2)
	fields = append(fields, strconv.Itoa(id), label)
	for _, v := range features {
		fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return strings.Join(fields, ",")
}

// WriteFile writes content under dir and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WriteDataset serializes ds as a headerless CSV under dir.
func WriteDataset(t testing.TB, dir string, ds *dataset.Dataset) string {
	t.Helper()
	path := filepath.Join(dir, "data.csv")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, dataset.Write(file, ds))
	return path
}
