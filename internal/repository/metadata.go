package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"face-registry/internal/models"

	"github.com/jmoiron/sqlx"
)

// MetadataRepository инкапсулирует работу с таблицей персон (PostgreSQL или MySQL)
type MetadataRepository struct {
	db    *sqlx.DB
	table string
}

// NewMetadataRepository создает новый репозиторий метаданных
func NewMetadataRepository(db *sqlx.DB, table string) *MetadataRepository {
	return &MetadataRepository{db: db, table: table}
}

// personRow - строка таблицы с nullable колонками
type personRow struct {
	ID        int64          `db:"id"`
	Name      string         `db:"name"`
	Birthdate sql.NullTime   `db:"birthdate"`
	Country   sql.NullString `db:"country"`
	City      sql.NullString `db:"city"`
	Title     sql.NullString `db:"title"`
	Org       sql.NullString `db:"org"`
}

func (r personRow) toModel() *models.Person {
	return &models.Person{
		ID:        r.ID,
		Name:      r.Name,
		Birthdate: r.Birthdate.Time,
		Country:   r.Country.String,
		City:      r.City.String,
		Title:     r.Title.String,
		Org:       r.Org.String,
	}
}

// EnsureSchema создает таблицу персон. DDL одинаково подходит для PostgreSQL и MySQL.
func (r *MetadataRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			birthdate DATE NULL,
			country VARCHAR(128) NULL,
			city VARCHAR(128) NULL,
			title VARCHAR(128) NULL,
			org VARCHAR(255) NULL
		)
	`, r.table))
	if err != nil {
		return fmt.Errorf("schema %s: %w", r.table, err)
	}
	return nil
}

// InsertPerson вставляет персону одним параметризованным запросом в транзакции
func (r *MetadataRepository) InsertPerson(ctx context.Context, person models.Person) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert person %d: %w", person.ID, err)
	}
	defer tx.Rollback()

	var birthdate sql.NullTime
	if !person.Birthdate.IsZero() {
		birthdate = sql.NullTime{Time: person.Birthdate, Valid: true}
	}

	query := r.db.Rebind(fmt.Sprintf(`
		INSERT INTO %s (id, name, birthdate, country, city, title, org)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.table))
	if _, err := tx.ExecContext(ctx, query,
		person.ID, person.Name, birthdate,
		person.Country, person.City, person.Title, person.Org,
	); err != nil {
		return fmt.Errorf("insert person %d: %w", person.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit person %d: %w", person.ID, err)
	}
	return nil
}

// GetPerson получает персону по ID. ErrNotFound если строки нет.
func (r *MetadataRepository) GetPerson(ctx context.Context, personID int64) (*models.Person, error) {
	var row personRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(fmt.Sprintf(`
		SELECT id, name, birthdate, country, city, title, org
		FROM %s
		WHERE id = ?
	`, r.table)), personID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person %d: %w", personID, err)
	}
	return row.toModel(), nil
}

// DeletePerson удаляет персону. Отсутствие строки - не ошибка.
func (r *MetadataRepository) DeletePerson(ctx context.Context, personID int64) error {
	if _, err := r.db.ExecContext(ctx,
		r.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.table)), personID); err != nil {
		return fmt.Errorf("delete person %d: %w", personID, err)
	}
	return nil
}

// Count возвращает количество персон
func (r *MetadataRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)); err != nil {
		return 0, fmt.Errorf("count persons: %w", err)
	}
	return count, nil
}
