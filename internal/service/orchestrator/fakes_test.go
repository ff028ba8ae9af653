package orchestrator

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"face-registry/internal/models"
	"face-registry/internal/repository"
	"face-registry/internal/service/extractor"

	"github.com/stretchr/testify/mock"
)

// MockExtractor - мок экстрактора
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, p extractor.Params) extractor.Result {
	args := m.Called(ctx, p)
	return args.Get(0).(extractor.Result)
}

func faces(descriptors ...models.Descriptor) extractor.Result {
	return extractor.Result{Kind: extractor.Descriptors, Descriptors: descriptors}
}

// memIdentities - хранилище дескрипторов в памяти с инъекцией ошибок
type memIdentities struct {
	mu      sync.Mutex
	rows    map[int64][]models.Descriptor
	results []models.Candidate

	findErr   error
	insertErr error
	deleteErr error
	flushErr  error
	searchErr error

	inserts int
	deletes int
	flushes int
	// onFind вызывается внутри FindByIdentity до чтения
	onFind func()
}

func newMemIdentities() *memIdentities {
	return &memIdentities{rows: make(map[int64][]models.Descriptor)}
}

func (s *memIdentities) FindByIdentity(ctx context.Context, personID int64) (*repository.IdentityRecord, error) {
	if s.onFind != nil {
		s.onFind()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	rows := s.rows[personID]
	if len(rows) == 0 {
		return nil, nil
	}
	return &repository.IdentityRecord{PersonID: personID, Rows: len(rows)}, nil
}

func (s *memIdentities) Insert(ctx context.Context, descriptor models.Descriptor, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return s.insertErr
	}
	s.rows[personID] = append(s.rows[personID], descriptor)
	return nil
}

func (s *memIdentities) DeleteByIdentity(ctx context.Context, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.rows, personID)
	return nil
}

// SearchNearest отдает заранее заданные результаты или считает L2 по сохраненным строкам
func (s *memIdentities) SearchNearest(ctx context.Context, descriptor models.Descriptor, k int) ([]models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if s.results != nil {
		return s.results, nil
	}

	var out []models.Candidate
	for id, rows := range s.rows {
		for _, row := range rows {
			out = append(out, models.Candidate{PersonID: id, Distance: l2(row, descriptor)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *memIdentities) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.flushErr
}

func (s *memIdentities) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rows := range s.rows {
		n += len(rows)
	}
	return n, nil
}

func (s *memIdentities) rowsFor(personID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[personID])
}

func l2(a, b models.Descriptor) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// memMetadata - хранилище метаданных в памяти
type memMetadata struct {
	mu        sync.Mutex
	people    map[int64]models.Person
	insertErr error
	deleteErr error
	getErr    error
	// insertPanic имитирует сломанный драйвер
	insertPanic bool
}

func newMemMetadata() *memMetadata {
	return &memMetadata{people: make(map[int64]models.Person)}
}

func (s *memMetadata) InsertPerson(ctx context.Context, person models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertPanic {
		panic("driver: bad connection state")
	}
	if s.insertErr != nil {
		return s.insertErr
	}
	s.people[person.ID] = person
	return nil
}

func (s *memMetadata) GetPerson(ctx context.Context, personID int64) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, ok := s.people[personID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *memMetadata) DeletePerson(ctx context.Context, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.people, personID)
	return nil
}

func (s *memMetadata) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.people), nil
}

// memCache - кэш в памяти
type memCache struct {
	mu       sync.Mutex
	entries  map[int64]models.Person
	ttls     map[int64]time.Duration
	putErr   error
	putPanic bool
	// block задерживает PutPerson, пока канал не закрыт
	block chan struct{}
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[int64]models.Person), ttls: make(map[int64]time.Duration)}
}

func (c *memCache) PutPerson(ctx context.Context, person models.Person, ttl time.Duration) error {
	if c.block != nil {
		<-c.block
	}
	if c.putPanic {
		panic("redis: pool closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	c.entries[person.ID] = person
	c.ttls[person.ID] = ttl
	return nil
}

func (c *memCache) GetPerson(ctx context.Context, personID int64) (*models.Person, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[personID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *memCache) InvalidatePerson(ctx context.Context, personID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, personID)
	return nil
}

func (c *memCache) has(personID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[personID]
	return ok
}

// recordedEvents запоминает опубликованные события
type recordedEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordedEvents) Publish(event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordedEvents) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
