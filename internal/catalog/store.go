package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/aocs/blobstore"
)

const (
	// ManifestPrefix starts every manifest blob name.
	ManifestPrefix = "MANIFEST"
	// CurrentFileName names the latest published manifest.
	CurrentFileName = "CURRENT"
)

// ManifestName returns the blob name of version id.
func ManifestName(id uint64) string {
	return fmt.Sprintf("%s-%06d.bin", ManifestPrefix, id)
}

// Store reads and writes catalog versions.
type Store struct {
	store blobstore.BlobStore
	mu    sync.Mutex
}

// NewStore creates a catalog store on top of a blob store.
func NewStore(store blobstore.BlobStore) *Store {
	return &Store{store: store}
}

// Load loads the version CURRENT points to.
func (s *Store) Load(ctx context.Context) (*Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := blobstore.ReadAll(ctx, s.store, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.loadNamed(ctx, strings.TrimSpace(string(name)))
}

// LoadNamed loads a manifest by blob name.
func (s *Store) LoadNamed(ctx context.Context, name string) (*Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadNamed(ctx, name)
}

// LoadVersion loads version id.
func (s *Store) LoadVersion(ctx context.Context, id uint64) (*Relation, error) {
	return s.LoadNamed(ctx, ManifestName(id))
}

func (s *Store) loadNamed(ctx context.Context, name string) (*Relation, error) {
	data, err := blobstore.ReadAll(ctx, s.store, name)
	if err != nil {
		return nil, fmt.Errorf("catalog: open manifest %s: %w", name, err)
	}
	rel, err := ReadBinary(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("catalog: read manifest %s: %w", name, err)
	}
	return rel, nil
}

// Write stores rel as the next version without publishing it. It assigns
// rel.ID and returns the manifest name.
func (s *Store) Write(ctx context.Context, rel *Relation) (string, error) {
	if err := rel.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rel.Version = CurrentVersion
	rel.ID++
	rel.CreatedAt = time.Now()

	var buf bytes.Buffer
	if err := rel.WriteBinary(&buf); err != nil {
		rel.ID--
		return "", err
	}
	name := ManifestName(rel.ID)
	if err := s.store.Put(ctx, name, buf.Bytes()); err != nil {
		rel.ID--
		return "", err
	}
	return name, nil
}

// Publish points CURRENT at manifest name.
func (s *Store) Publish(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Put(ctx, CurrentFileName, []byte(name))
}

// Save writes and publishes rel.
func (s *Store) Save(ctx context.Context, rel *Relation) error {
	name, err := s.Write(ctx, rel)
	if err != nil {
		return err
	}
	return s.Publish(ctx, name)
}

// ListVersions returns the readable versions in ascending order. Unreadable
// manifests are skipped.
func (s *Store) ListVersions(ctx context.Context) ([]*Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.store.List(ctx, ManifestPrefix)
	if err != nil {
		return nil, err
	}
	var out []*Relation
	for _, name := range names {
		if !strings.HasSuffix(name, ".bin") {
			continue
		}
		rel, err := s.loadNamed(ctx, name)
		if err != nil {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// DeleteVersion deletes the manifest of version id.
func (s *Store) DeleteVersion(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, ManifestName(id))
}
