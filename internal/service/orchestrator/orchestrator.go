package orchestrator

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"face-registry/internal/logger"
	"face-registry/internal/models"
	"face-registry/internal/observability"
	"face-registry/internal/repository"
	"face-registry/internal/service/extractor"

	log "github.com/sirupsen/logrus"
)

// Имена событий, которые уходят подписчикам WebSocket
const (
	EventPersonRegistered   = "person_registered"
	EventPersonUnregistered = "person_unregistered"
	EventPersonRecognized   = "person_recognized"
)

// Имена шагов для логов и метрик
const (
	stepVectorInsert   = "vector_insert"
	stepFlush          = "flush"
	stepMetadataInsert = "metadata_insert"
	stepVectorDelete   = "vector_delete"
	stepMetadataDelete = "metadata_delete"
	stepCacheEvict     = "cache_invalidate"
)

// DescriptorExtractor получает дескрипторы лиц из изображения
type DescriptorExtractor interface {
	Extract(ctx context.Context, p extractor.Params) extractor.Result
}

// PersonCache - кэш метаданных персон
type PersonCache interface {
	PutPerson(ctx context.Context, person models.Person, ttl time.Duration) error
	GetPerson(ctx context.Context, personID int64) (*models.Person, error)
	InvalidatePerson(ctx context.Context, personID int64) error
}

// EventPublisher рассылает события о персонах
type EventPublisher interface {
	Publish(event string, payload interface{})
}

// Options - параметры оркестратора, не зависящие от запроса
type Options struct {
	FaceAreaFraction       float64
	FaceCountThreshold     int
	SearchTopK             int
	MatchDistanceThreshold float64
	CacheTTL               time.Duration
	CacheTimeout           time.Duration
	IdentityLock           bool
}

// DefaultOptions повторяют значения конфигурации по умолчанию
func DefaultOptions() Options {
	return Options{
		FaceAreaFraction:       0.10,
		FaceCountThreshold:     1,
		SearchTopK:             3,
		MatchDistanceThreshold: 0.1,
		CacheTTL:               time.Hour,
		CacheTimeout:           2 * time.Second,
		IdentityLock:           true,
	}
}

// Orchestrator согласует хранилище дескрипторов, метаданные и кэш.
// Каждая операция возвращает ровно один Outcome и не паникует наружу.
type Orchestrator struct {
	extractor  DescriptorExtractor
	identities repository.IdentityStore
	metadata   repository.MetadataStore
	cache      PersonCache
	events     EventPublisher
	opts       Options
	locks      *KeyLock
	log        *log.Entry

	background sync.WaitGroup
	evictions  generations
}

// New создает оркестратор. cache и events могут быть nil.
func New(ext DescriptorExtractor, identities repository.IdentityStore, metadata repository.MetadataStore,
	cache PersonCache, events EventPublisher, opts Options) *Orchestrator {
	o := &Orchestrator{
		extractor:  ext,
		identities: identities,
		metadata:   metadata,
		cache:      cache,
		events:     events,
		opts:       opts,
		log:        logger.Component("orchestrator"),
	}
	if opts.IdentityLock {
		o.locks = NewKeyLock()
	}
	if o.opts.SearchTopK <= 0 {
		o.opts.SearchTopK = 3
	}
	if o.opts.CacheTimeout <= 0 {
		o.opts.CacheTimeout = 2 * time.Second
	}
	return o
}

// Wait дожидается фоновых записей в кэш
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// finish превращает панику в Outcome и считает метрику операции
func (o *Orchestrator) finish(operation string, out *models.Outcome) {
	if r := recover(); r != nil {
		o.log.WithFields(log.Fields{
			"operation": operation,
			"panic":     r,
		}).Errorf("❌ Паника в операции: %s", debug.Stack())
		*out = models.Failed("internal error")
	}
	observability.Operations.WithLabelValues(operation, string(out.Kind)).Inc()
}

// lock держит блокировку по идентификатору, если она включена
func (o *Orchestrator) lock(ctx context.Context, personID int64) (func(), error) {
	if o.locks == nil {
		return func() {}, nil
	}
	return o.locks.Lock(ctx, personID)
}

// extract выполняет шаг извлечения. ok=false означает, что Outcome уже готов.
func (o *Orchestrator) extract(ctx context.Context, modelName, imagePath string, threshold float64) (models.Descriptor, models.Outcome, bool) {
	started := time.Now()
	res := o.extractor.Extract(ctx, extractor.Params{
		ImagePath:          imagePath,
		ModelName:          modelName,
		DetectionThreshold: threshold,
		FaceAreaFraction:   o.opts.FaceAreaFraction,
		FaceCountThreshold: o.opts.FaceCountThreshold,
	})
	observability.StepDuration.WithLabelValues("extract").Observe(time.Since(started).Seconds())

	switch res.Kind {
	case extractor.NoFaceDetected:
		return nil, models.Rejected(msgNoFaces), false
	case extractor.ExtractionError:
		o.log.WithField("code", res.Code).Warnf("⚠️  Ошибка извлечения признаков: %s", res.Detail)
		return nil, models.Failed(res.Detail).WithCode(res.Code), false
	}

	if len(res.Descriptors) > 1 {
		o.log.Debugf("Найдено %d лиц, используется первое", len(res.Descriptors))
	}
	return res.Descriptors[0], models.Outcome{}, true
}

// cachePerson пишет метаданные в кэш в фоне, не задерживая ответ
func (o *Orchestrator) cachePerson(person models.Person) {
	if o.cache == nil {
		return
	}
	generation := o.evictions.current(person.ID)
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		defer func() {
			if r := recover(); r != nil {
				o.log.WithField("panic", r).Warnf("⚠️  Паника при записи персоны %d в кэш", person.ID)
				observability.BestEffortFailures.WithLabelValues("cache_put").Inc()
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.CacheTimeout)
		defer cancel()
		if err := o.cache.PutPerson(ctx, person, o.opts.CacheTTL); err != nil {
			o.log.WithError(err).Warnf("⚠️  Не удалось закэшировать персону %d", person.ID)
			observability.BestEffortFailures.WithLabelValues("cache_put").Inc()
			return
		}
		// персону удалили, пока запись была в полете
		if o.evictions.current(person.ID) != generation {
			if err := o.cache.InvalidatePerson(ctx, person.ID); err != nil {
				o.log.WithError(err).Warnf("⚠️  Не удалось убрать устаревшую запись персоны %d", person.ID)
			}
		}
	}()
}

func (o *Orchestrator) publish(event string, payload interface{}) {
	if o.events != nil {
		o.events.Publish(event, payload)
	}
}

// generations считает удаления по идентификатору.
// Фоновая запись в кэш сверяет поколение и не воскрешает удаленную персону.
type generations struct {
	mu   sync.Mutex
	seen map[int64]uint64
}

func (g *generations) current(personID int64) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[personID]
}

func (g *generations) bump(personID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = make(map[int64]uint64)
	}
	g.seen[personID]++
}
