// Package store persists trained model and scaler pairs as versioned directories and
// publishes them through an atomically replaced CURRENT pointer.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cytodx/errdefs"
	"cytodx/ml"
)

const (
	currentFile = "CURRENT"
	versionsDir = "versions"
	modelFile   = "model.json"
	scalerFile  = "scaler.json"

	stagingPrefix = ".staging-"
)

// Metadata describes how a pair was trained.
type Metadata struct {
	Algorithm     ml.Algorithm `json:"algorithm"`
	Seed          int64        `json:"seed"`
	SplitFraction float64      `json:"split_fraction"`
	Source        string       `json:"source,omitempty"`
	DataPoints    int          `json:"data_points"`
	Metrics       ml.Metrics   `json:"metrics"`
}

// Pair is a model and the scaler it was trained behind. Both halves share Version.
type Pair struct {
	Version   string
	CreatedAt time.Time
	Model     ml.Classifier
	Scaler    *ml.Scaler
	Metadata  Metadata
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRetain keeps at most n published versions after every Save, always including the
// current one. Zero keeps every version.
func WithRetain(n int) Option {
	return func(s *Store) { s.retain = n }
}

type Store struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
	retain int

	mu sync.Mutex
}

func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Dir() string { return s.dir }

// Save writes both halves into a staging directory, moves it under versions/ and then
// swaps CURRENT. Readers observe either the previous pair or the new one.
func (s *Store) Save(model ml.Classifier, scaler *ml.Scaler, meta Metadata) (string, error) {
	if model == nil || scaler == nil {
		return "", errors.New("save: model and scaler are required")
	}
	if model.FeatureCount() != scaler.FeatureCount() {
		return "", fmt.Errorf("%w: model has %d features, scaler has %d", errdefs.ErrInvalidInput, model.FeatureCount(), scaler.FeatureCount())
	}
	meta.Algorithm = model.Algorithm()

	s.mu.Lock()
	defer s.mu.Unlock()

	version := newVersion()
	createdAt := s.now().UTC()
	modelData, err := encodeModel(version, createdAt, model, meta)
	if err != nil {
		return "", err
	}
	scalerData, err := encodeScaler(version, createdAt, scaler)
	if err != nil {
		return "", err
	}

	root := filepath.Join(s.dir, versionsDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create store: %w", err)
	}
	staging, err := os.MkdirTemp(root, stagingPrefix)
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	published := false
	defer func() {
		if !published {
			os.RemoveAll(staging)
		}
	}()

	if err := writeFileSync(filepath.Join(staging, modelFile), modelData); err != nil {
		return "", err
	}
	if err := writeFileSync(filepath.Join(staging, scalerFile), scalerData); err != nil {
		return "", err
	}
	if err := os.Chmod(staging, 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(staging, filepath.Join(root, version)); err != nil {
		return "", fmt.Errorf("publish version dir: %w", err)
	}
	published = true
	syncDir(root)

	if err := s.setCurrent(version); err != nil {
		return "", err
	}
	s.logger.Info("artifact pair published",
		zap.String("version", version),
		zap.String("algorithm", string(meta.Algorithm)),
		zap.Float64("accuracy", meta.Metrics.Accuracy),
		zap.String("dir", s.dir))

	if s.retain > 0 {
		if _, err := s.prune(s.retain); err != nil {
			s.logger.Warn("pruning old versions failed", zap.Error(err))
		}
	}
	return version, nil
}

// Prune removes the oldest versions until at most keep remain. The current version is
// never removed. It returns the removed versions, oldest first.
func (s *Store) Prune(keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("%w: keep must be at least 1, got %d", errdefs.ErrInvalidInput, keep)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prune(keep)
}

func (s *Store) prune(keep int) ([]string, error) {
	versions, err := s.Versions()
	if err != nil {
		return nil, err
	}
	current, err := s.Current()
	if err != nil {
		return nil, err
	}

	var removed []string
	excess := len(versions) - keep
	for _, version := range versions {
		if excess <= 0 {
			break
		}
		if version == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, versionsDir, version)); err != nil {
			return removed, fmt.Errorf("remove version %s: %w", version, err)
		}
		removed = append(removed, version)
		excess--
	}
	if len(removed) > 0 {
		syncDir(filepath.Join(s.dir, versionsDir))
		s.logger.Info("old versions pruned", zap.Strings("versions", removed), zap.Int("kept", keep))
	}
	return removed, nil
}

func (s *Store) setCurrent(version string) error {
	tmp, err := os.CreateTemp(s.dir, "."+currentFile+"-")
	if err != nil {
		return fmt.Errorf("write %s: %w", currentFile, err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", currentFile, err)
	}
	if _, err := tmp.WriteString(version + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", currentFile, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", currentFile, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, currentFile)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("swap %s: %w", currentFile, err)
	}
	syncDir(s.dir)
	return nil
}

// Current returns the published version id.
func (s *Store) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: no published pair in %s", errdefs.ErrArtifactNotFound, s.dir)
		}
		return "", fmt.Errorf("read %s: %w", currentFile, err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", fmt.Errorf("%w: %s is empty", errdefs.ErrArtifactCorrupt, currentFile)
	}
	return version, nil
}

// Load returns the pair CURRENT points at.
func (s *Store) Load() (*Pair, error) {
	version, err := s.Current()
	if err != nil {
		return nil, err
	}
	return s.LoadVersion(version)
}

// LoadVersion reads both halves of version. Either half missing is ErrArtifactNotFound;
// any inconsistency between them is ErrArtifactCorrupt.
func (s *Store) LoadVersion(version string) (*Pair, error) {
	if _, err := uuid.Parse(version); err != nil {
		return nil, fmt.Errorf("%w: invalid version %q", errdefs.ErrArtifactNotFound, version)
	}
	dir := filepath.Join(s.dir, versionsDir, version)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: version %s", errdefs.ErrArtifactNotFound, version)
		}
		return nil, err
	}

	modelEnv, err := readEnvelope(filepath.Join(dir, modelFile), modelFormat, version)
	if err != nil {
		return nil, err
	}
	scalerEnv, err := readEnvelope(filepath.Join(dir, scalerFile), scalerFormat, version)
	if err != nil {
		return nil, err
	}
	if modelEnv.FeatureCount != scalerEnv.FeatureCount {
		return nil, fmt.Errorf("%w: model has %d features, scaler has %d", errdefs.ErrArtifactCorrupt, modelEnv.FeatureCount, scalerEnv.FeatureCount)
	}

	model, err := decodeModel(modelEnv)
	if err != nil {
		return nil, err
	}
	scaler, err := decodeScaler(scalerEnv)
	if err != nil {
		return nil, err
	}

	pair := &Pair{
		Version:   version,
		CreatedAt: modelEnv.CreatedAt,
		Model:     model,
		Scaler:    scaler,
	}
	if modelEnv.Metadata != nil {
		pair.Metadata = *modelEnv.Metadata
	}
	pair.Metadata.Algorithm = model.Algorithm()
	return pair, nil
}

// Versions lists published versions, oldest first.
func (s *Store) Versions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, versionsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var versions []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), stagingPrefix) {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}
		versions = append(versions, entry.Name())
	}
	// v7 ids sort by creation time
	sort.Strings(versions)
	return versions, nil
}

func newVersion() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func writeFileSync(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
