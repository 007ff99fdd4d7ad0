package auxstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// NumSequences is the number of row numbers reserved per allocation.
const NumSequences = 100

// ErrClosed is returned when the store has been closed.
var ErrClosed = errors.New("auxstore: closed")

// Options configures a Store.
type Options struct {
	// FS overrides the file system, e.g. vfs.NewMem() in tests.
	FS     vfs.FS
	Logger *slog.Logger
}

// Store owns the pebble database holding a table's auxiliary tables.
type Store struct {
	db     *pebble.DB
	logger *slog.Logger

	seqMu  sync.Mutex
	closed bool
}

// Open opens or creates the store in dir.
func Open(dir string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	popts := &pebble.Options{}
	if opts.FS != nil {
		popts.FS = opts.FS
	}
	db, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, fmt.Errorf("auxstore: open %s: %w", dir, err)
	}
	logger.Debug("aux store opened", "dir", dir)
	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory opens a store backed by an in-memory file system.
func OpenInMemory() (*Store, error) {
	return Open("", Options{FS: vfs.NewMem()})
}

// NewView returns a view over the current committed state.
func (s *Store) NewView() *View {
	return newView(s.db)
}

// AllocateSequences reserves n row numbers for segment segno and returns the
// first. The reservation is durable before it is returned, independent of
// any view.
func (s *Store) AllocateSequences(segno int32, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("auxstore: invalid sequence count %d", n)
	}
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	last, err := s.lastSequenceLocked(segno)
	if err != nil {
		return 0, err
	}
	next := last + n
	if err := s.db.Set(sequenceKey(segno), binary.BigEndian.AppendUint64(nil, uint64(next)), pebble.Sync); err != nil {
		return 0, fmt.Errorf("auxstore: allocate sequences for segment %d: %w", segno, err)
	}
	return last + 1, nil
}

// LastSequence returns the highest row number ever handed out for segno, or
// zero.
func (s *Store) LastSequence(segno int32) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.lastSequenceLocked(segno)
}

func (s *Store) lastSequenceLocked(segno int32) (int64, error) {
	v, closer, err := s.db.Get(sequenceKey(segno))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(v) != 8 {
		return 0, fmt.Errorf("auxstore: malformed sequence value for segment %d", segno)
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

// Close closes the database. Open views must be closed first.
func (s *Store) Close() error {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
