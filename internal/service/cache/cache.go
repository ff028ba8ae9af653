package cache

import (
	"context"
	"face-registry/internal/models"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service управляет кэшированием метаданных персон через Redis.
// Кэш - только подсказка для чтения, источник истины - БД.
type Service struct {
	client *redis.Client
	prefix string
}

// NewService создает новый cache service и проверяет подключение
func NewService(ctx context.Context, addr, password string, db int, prefix string) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	return NewWithClient(client, prefix), nil
}

// NewWithClient оборачивает готовый клиент (используется в тестах)
func NewWithClient(client *redis.Client, prefix string) *Service {
	return &Service{client: client, prefix: prefix}
}

// Close закрывает соединение с Redis
func (s *Service) Close() error {
	return s.client.Close()
}

// PersonKey возвращает ключ персоны: <table>_<id>
func (s *Service) PersonKey(id int64) string {
	return fmt.Sprintf("%s_%d", s.prefix, id)
}

// Put записывает hash с полями и ставит срок жизни
func (s *Service) Put(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]interface{}, 0, 2*len(names))
	for _, name := range names {
		values = append(values, name, fields[name])
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// PutPerson кэширует метаданные персоны
func (s *Service) PutPerson(ctx context.Context, person models.Person, ttl time.Duration) error {
	return s.Put(ctx, s.PersonKey(person.ID), person.CacheFields(), ttl)
}

// GetPerson получает персону из кэша. nil, nil - в кэше нет.
func (s *Service) GetPerson(ctx context.Context, id int64) (*models.Person, error) {
	fields, err := s.client.HGetAll(ctx, s.PersonKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return models.PersonFromCache(fields)
}

// InvalidatePerson удаляет персону из кэша
func (s *Service) InvalidatePerson(ctx context.Context, id int64) error {
	return s.client.Del(ctx, s.PersonKey(id)).Err()
}
