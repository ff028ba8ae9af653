package repository

import (
	"context"
	"errors"

	"face-registry/internal/models"
)

var (
	// ErrNotFound - запись с таким идентификатором отсутствует
	ErrNotFound = errors.New("record not found")
	// ErrIdentityExists - хранилище держит не больше одного узла на персону
	ErrIdentityExists = errors.New("identity already indexed")
	// ErrDimensionMismatch - размерность дескриптора не совпадает с индексом
	ErrDimensionMismatch = errors.New("descriptor dimension mismatch")
)

// IdentityRecord - что хранилище знает о персоне
type IdentityRecord struct {
	PersonID int64 `db:"person_id"`
	Rows     int   `db:"row_count"`
}

// IdentityStore хранит дескрипторы лиц с привязкой к персоне.
// Уникальность персоны обеспечивает оркестратор, а не хранилище.
type IdentityStore interface {
	// FindByIdentity - точный поиск по идентификатору, nil если записи нет
	FindByIdentity(ctx context.Context, personID int64) (*IdentityRecord, error)
	Insert(ctx context.Context, descriptor models.Descriptor, personID int64) error
	// DeleteByIdentity идемпотентен: удаление несуществующей персоны - не ошибка
	DeleteByIdentity(ctx context.Context, personID int64) error
	// SearchNearest возвращает до k кандидатов по возрастанию дистанции
	SearchNearest(ctx context.Context, descriptor models.Descriptor, k int) ([]models.Candidate, error)
	Flush(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// MetadataStore хранит метаданные персон
type MetadataStore interface {
	// InsertPerson - одна атомарная вставка, при ошибке ничего не фиксируется
	InsertPerson(ctx context.Context, person models.Person) error
	GetPerson(ctx context.Context, personID int64) (*models.Person, error)
	DeletePerson(ctx context.Context, personID int64) error
	Count(ctx context.Context) (int, error)
}

// Проверяем что реализации соответствуют интерфейсам
var (
	_ IdentityStore = (*PGVectorStore)(nil)
	_ IdentityStore = (*HNSWStore)(nil)
	_ MetadataStore = (*MetadataRepository)(nil)
)
