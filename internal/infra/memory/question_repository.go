package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-room-service/internal/domain"
)

// QuestionLoader fetches question content from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// QuestionRepository keeps question sets in process memory for a bounded
// time. Sets are immutable once published, so a stale read is harmless; the
// TTL only bounds how long a republished set takes to show up. Concurrent
// misses for the same set collapse into a single backing load.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	group  singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	set     domain.QuestionSet
	staleAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]entry),
	}
}

func (r *QuestionRepository) GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := r.lookup(setID); ok {
		return set, nil
	}
	v, err, _ := r.group.Do(setID, func() (interface{}, error) {
		// Another caller may have filled the entry while this one queued.
		if set, ok := r.lookup(setID); ok {
			return set, nil
		}
		set, err := r.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return nil, err
		}
		r.store(setID, set)
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return v.(domain.QuestionSet), nil
}

func (r *QuestionRepository) lookup(setID string) (domain.QuestionSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[setID]
	if !ok || !r.clock().Before(e.staleAt) {
		return domain.QuestionSet{}, false
	}
	return e.set, true
}

func (r *QuestionRepository) store(setID string, set domain.QuestionSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[setID] = entry{set: set, staleAt: r.clock().Add(r.jittered())}
}

// jittered pads the TTL by up to 10% so entries filled together do not all
// expire together.
func (r *QuestionRepository) jittered() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	return r.ttl + time.Duration(rand.Float64()*0.1*float64(r.ttl))
}

// StaticQuestionLoader serves sets from a fixed map (demo content and tests).
type StaticQuestionLoader struct {
	sets map[string]domain.QuestionSet
}

func NewStaticQuestionLoader(sets map[string]domain.QuestionSet) *StaticQuestionLoader {
	return &StaticQuestionLoader{sets: sets}
}

func (l *StaticQuestionLoader) LoadQuestionSet(_ context.Context, setID string) (domain.QuestionSet, error) {
	if set, ok := l.sets[setID]; ok {
		return set, nil
	}
	return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
}
