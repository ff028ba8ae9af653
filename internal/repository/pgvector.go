package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"face-registry/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
)

// PGVectorStore - хранилище дескрипторов в PostgreSQL с расширением pgvector
type PGVectorStore struct {
	db       *sqlx.DB
	table    string
	operator string // <-> для L2, <=> для косинусной дистанции
	opClass  string
}

// NewPGVectorStore создает хранилище. metric: L2 или COSINE.
func NewPGVectorStore(db *sqlx.DB, table, metric string) *PGVectorStore {
	s := &PGVectorStore{db: db, table: table, operator: "<->", opClass: "vector_l2_ops"}
	if metric == "COSINE" {
		s.operator = "<=>"
		s.opClass = "vector_cosine_ops"
	}
	return s
}

// EnsureSchema создает расширение, таблицу и индексы (IVF_FLAT аналог - ivfflat)
func (s *PGVectorStore) EnsureSchema(ctx context.Context, dim int) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			person_id BIGINT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_person_id_idx ON %s (person_id)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding %s) WITH (lists = 100)`,
			s.table, s.table, s.opClass),
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema %s: %w", s.table, err)
		}
	}
	return nil
}

// FindByIdentity ищет строки персоны по person_id (не по сходству)
func (s *PGVectorStore) FindByIdentity(ctx context.Context, personID int64) (*IdentityRecord, error) {
	var rec IdentityRecord
	err := s.db.GetContext(ctx, &rec, fmt.Sprintf(`
		SELECT person_id, COUNT(*) AS row_count
		FROM %s
		WHERE person_id = $1
		GROUP BY person_id
	`, s.table), personID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find identity %d: %w", personID, err)
	}
	return &rec, nil
}

// Insert добавляет одну строку дескриптора
func (s *PGVectorStore) Insert(ctx context.Context, descriptor models.Descriptor, personID int64) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (person_id, embedding) VALUES ($1, $2)`, s.table),
		personID, pgvector.NewVector(descriptor),
	)
	if err != nil {
		return fmt.Errorf("insert descriptor for %d: %w", personID, err)
	}
	return nil
}

// DeleteByIdentity удаляет все строки персоны
func (s *PGVectorStore) DeleteByIdentity(ctx context.Context, personID int64) error {
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE person_id = $1`, s.table), personID); err != nil {
		return fmt.Errorf("delete identity %d: %w", personID, err)
	}
	return nil
}

// SearchNearest ищет k ближайших дескрипторов
func (s *PGVectorStore) SearchNearest(ctx context.Context, descriptor models.Descriptor, k int) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := s.db.SelectContext(ctx, &candidates, fmt.Sprintf(`
		SELECT person_id, embedding %[2]s $1 AS distance
		FROM %[1]s
		ORDER BY embedding %[2]s $1
		LIMIT $2
	`, s.table, s.operator), pgvector.NewVector(descriptor), k)
	if err != nil {
		return nil, fmt.Errorf("search nearest: %w", err)
	}
	return candidates, nil
}

// Flush для PostgreSQL ничего не делает: строка надежно записана после коммита
func (s *PGVectorStore) Flush(ctx context.Context) error {
	return nil
}

// Count возвращает количество сохраненных дескрипторов
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)); err != nil {
		return 0, fmt.Errorf("count descriptors: %w", err)
	}
	return count, nil
}
