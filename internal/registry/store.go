package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound means no live record exists for the code.
	ErrNotFound = errors.New("code not found")
	// ErrAlreadyConsumed means the record exists but its single use is spent.
	ErrAlreadyConsumed = errors.New("content already consumed")
	// ErrCodeSpaceExhausted is returned when every generated candidate collided.
	ErrCodeSpaceExhausted = errors.New("could not allocate an unused code")
)

// DefaultRecordTTL applies to records inserted without an expiry.
const DefaultRecordTTL = time.Hour

// Store is the process-local metadata store keyed by code. A single mutex
// serialises every operation; records handed out are copies.
type Store struct {
	mu      sync.Mutex
	records map[string]*ContentRecord
	now     func() time.Time
	onEvict func(ContentRecord)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvictHook registers fn to be called, outside the lock, for every
// expired record dropped by Get or replaced by InsertUnique.
func WithEvictHook(fn func(ContentRecord)) StoreOption {
	return func(s *Store) {
		s.onEvict = fn
	}
}

// NewStore returns an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		records: make(map[string]*ContentRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEvictHook replaces the lazy-eviction callback after construction.
func (s *Store) SetEvictHook(fn func(ContentRecord)) {
	s.mu.Lock()
	s.onEvict = fn
	s.mu.Unlock()
}

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Insert stores or overwrites the record under its code. A zero ExpiresAt
// becomes one hour from now.
func (s *Store) Insert(rec ContentRecord) error {
	rec.Code = NormalizeCode(rec.Code)
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(rec)
	return nil
}

func (s *Store) insertLocked(rec ContentRecord) {
	now := s.now()
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = now.Add(DefaultRecordTTL)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	s.records[rec.Code] = &rec
}

// InsertUnique assigns a code from gen that is not held by any live
// record, inserts the record and returns it as stored.
func (s *Store) InsertUnique(rec ContentRecord, gen *Generator, attempts int) (ContentRecord, error) {
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		code, err := gen.Generate()
		if err != nil {
			return ContentRecord{}, err
		}
		rec.Code = code
		if err := rec.Validate(); err != nil {
			return ContentRecord{}, err
		}

		s.mu.Lock()
		var (
			evicted  ContentRecord
			replaced bool
		)
		if existing, ok := s.records[code]; ok {
			if !existing.Expired(s.now()) {
				s.mu.Unlock()
				continue
			}
			// An expired holder is evicted like on Get so its blob goes too.
			evicted, replaced = *existing, true
		}
		s.insertLocked(rec)
		stored := *s.records[code]
		hook := s.onEvict
		s.mu.Unlock()

		if replaced && hook != nil {
			hook(evicted)
		}
		return stored, nil
	}
	return ContentRecord{}, fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, attempts)
}

// Get returns the record for code. Expired records are deleted on the spot
// and reported as absent. Consumption is not checked.
func (s *Store) Get(code string) (ContentRecord, bool) {
	code = NormalizeCode(code)

	s.mu.Lock()
	rec, ok := s.records[code]
	if !ok {
		s.mu.Unlock()
		return ContentRecord{}, false
	}
	if rec.Expired(s.now()) {
		delete(s.records, code)
		evicted := *rec
		hook := s.onEvict
		s.mu.Unlock()
		if hook != nil {
			hook(evicted)
		}
		return ContentRecord{}, false
	}
	out := *rec
	s.mu.Unlock()
	return out, true
}

// MarkConsumed flags the record as consumed. Absent codes are ignored.
// It reports whether this call performed the transition.
func (s *Store) MarkConsumed(code string) bool {
	code = NormalizeCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[code]
	if !ok || rec.Consumed {
		return false
	}
	rec.Consumed = true
	return true
}

// Remove deletes the record if present, expired or not, and returns it.
func (s *Store) Remove(code string) (ContentRecord, bool) {
	code = NormalizeCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[code]
	if !ok {
		return ContentRecord{}, false
	}
	delete(s.records, code)
	return *rec, true
}

// Exists reports whether a non-expired record is present.
func (s *Store) Exists(code string) bool {
	code = NormalizeCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[code]
	return ok && !rec.Expired(s.now())
}

// SweepExpired removes every record whose expiry is before now and
// returns the removed records.
func (s *Store) SweepExpired(now time.Time) []ContentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []ContentRecord
	for code, rec := range s.records {
		if rec.ExpiresAt.Before(now) {
			removed = append(removed, *rec)
			delete(s.records, code)
		}
	}
	return removed
}

// Len returns the number of records held, including expired ones not yet purged.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
