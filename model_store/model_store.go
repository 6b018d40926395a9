package modelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	CurrentFileName   = "CURRENT"
	WeightsFileName   = "weights.json"
	TokenizerFileName = "tokenizer.json"
	VersionFileName   = "VERSION"

	versionPrefix = "v-"
	tmpPrefix     = ".tmp-"
)

var ErrNotFound = errors.New("no model version has been published")

type Version uint64

func (v Version) String() string {
	return fmt.Sprintf("%s%06d", versionPrefix, uint64(v))
}

// Artifact is one published model: regression weights plus the tokenizer
// state they were trained against.
type Artifact struct {
	Version   Version
	CreatedAt time.Time
	Weights   []byte
	Tokenizer []byte
}

type marker struct {
	Version   Version   `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps exactly one current artifact version under a directory.
// Publish writes the new version beside the old one and swaps the CURRENT
// pointer, so Load never observes a partially written artifact.
type Store struct {
	options Options
	dir     string
	mtx     sync.RWMutex
	// staging holds this store's in-flight temp dirs so prune skips them
	staging  map[string]struct{}
	stageMtx sync.Mutex
}

func (s *Store) Dir() string {
	return s.dir
}

// Load returns the current artifact or ErrNotFound.
func (s *Store) Load(ctx context.Context) (Artifact, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	name, err := s.current()
	if err != nil {
		return Artifact{}, err
	}

	versionDir := filepath.Join(s.dir, name)

	markerData, err := os.ReadFile(filepath.Join(versionDir, VersionFileName))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to read version marker of %s: %w", name, err)
	}

	var m marker
	if err := json.Unmarshal(markerData, &m); err != nil {
		return Artifact{}, fmt.Errorf("failed to decode version marker of %s: %w", name, err)
	}

	if m.Version.String() != name {
		return Artifact{}, fmt.Errorf("version marker %s does not match %s", m.Version, name)
	}

	weights, err := os.ReadFile(filepath.Join(versionDir, WeightsFileName))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to read weights of %s: %w", name, err)
	}

	tokenizer, err := os.ReadFile(filepath.Join(versionDir, TokenizerFileName))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to read tokenizer of %s: %w", name, err)
	}

	return Artifact{
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		Weights:   weights,
		Tokenizer: tokenizer,
	}, nil
}

// Current returns the published version without reading the artifact.
func (s *Store) Current(ctx context.Context) (Version, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	name, err := s.current()
	if err != nil {
		return 0, err
	}

	return parseVersion(name)
}

// Publish writes weights and tokenizer as a new version and makes it
// current. Earlier versions are removed once the swap has succeeded.
func (s *Store) Publish(ctx context.Context, weights, tokenizer []byte) (Version, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create model directory: %w", err)
	}

	// staging happens outside the lock; only the swap excludes readers
	tmpDir, err := s.stage()
	if err != nil {
		return 0, fmt.Errorf("failed to create staging directory: %w", err)
	}

	published := false
	defer func() {
		s.unstage(tmpDir)
		if !published {
			os.RemoveAll(tmpDir)
		}
	}()

	if err := writeFileSync(filepath.Join(tmpDir, WeightsFileName), weights); err != nil {
		return 0, err
	}

	if err := writeFileSync(filepath.Join(tmpDir, TokenizerFileName), tokenizer); err != nil {
		return 0, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	version, err := s.next()
	if err != nil {
		return 0, err
	}

	markerData, err := json.Marshal(marker{Version: version, CreatedAt: s.options.Clock().UTC()})
	if err != nil {
		return 0, err
	}

	if err := writeFileSync(filepath.Join(tmpDir, VersionFileName), markerData); err != nil {
		return 0, err
	}

	if err := syncDir(tmpDir); err != nil {
		return 0, err
	}

	name := version.String()
	final := filepath.Join(s.dir, name)

	if err := os.Rename(tmpDir, final); err != nil {
		return 0, fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	published = true

	if err := syncDir(s.dir); err != nil {
		return 0, err
	}

	currentTmp := filepath.Join(s.dir, CurrentFileName+".tmp")
	if err := writeFileSync(currentTmp, []byte(name)); err != nil {
		os.RemoveAll(final)
		return 0, err
	}

	if err := os.Rename(currentTmp, filepath.Join(s.dir, CurrentFileName)); err != nil {
		os.Remove(currentTmp)
		os.RemoveAll(final)
		return 0, fmt.Errorf("failed to swap %s: %w", CurrentFileName, err)
	}

	if err := syncDir(s.dir); err != nil {
		return 0, err
	}

	s.prune(ctx, name)

	slog.InfoContext(ctx, "published model version", "version", name, "dir", s.dir)

	return version, nil
}

func (s *Store) current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, CurrentFileName))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", CurrentFileName, err)
	}

	name := strings.TrimSpace(string(data))
	if _, err := parseVersion(name); err != nil {
		return "", err
	}

	return name, nil
}

// next is one past the highest version present on disk, including any
// orphan left by a publication that died before swapping CURRENT.
func (s *Store) next() (Version, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list model directory: %w", err)
	}

	var highest Version
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := parseVersion(entry.Name())
		if err != nil {
			continue
		}
		highest = max(highest, v)
	}

	return highest + 1, nil
}

func (s *Store) stage() (string, error) {
	s.stageMtx.Lock()
	defer s.stageMtx.Unlock()

	tmpDir, err := os.MkdirTemp(s.dir, tmpPrefix)
	if err != nil {
		return "", err
	}

	s.staging[filepath.Base(tmpDir)] = struct{}{}

	return tmpDir, nil
}

func (s *Store) unstage(tmpDir string) {
	s.stageMtx.Lock()
	defer s.stageMtx.Unlock()
	delete(s.staging, filepath.Base(tmpDir))
}

// prune removes every version other than keep, and every staging dir not
// owned by an in-flight Publish, i.e. leftovers from a crashed process.
func (s *Store) prune(ctx context.Context, keep string) {
	s.stageMtx.Lock()
	defer s.stageMtx.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.WarnContext(ctx, "failed to list model directory for pruning", "error", err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || name == keep {
			continue
		}
		switch {
		case strings.HasPrefix(name, versionPrefix):
		case strings.HasPrefix(name, tmpPrefix):
			if _, inflight := s.staging[name]; inflight {
				continue
			}
		default:
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			slog.WarnContext(ctx, "failed to remove stale model directory", "name", name, "error", err)
		}
	}
}

func parseVersion(name string) (Version, error) {
	if !strings.HasPrefix(name, versionPrefix) {
		return 0, fmt.Errorf("malformed model version %q", name)
	}

	n, err := strconv.ParseUint(strings.TrimPrefix(name, versionPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed model version %q: %w", name, err)
	}

	return Version(n), nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func NewStore(dir string, opts ...Option) *Store {
	options := NewOptions(opts...)

	return &Store{
		options: options,
		dir:     dir,
		staging: map[string]struct{}{},
	}
}
