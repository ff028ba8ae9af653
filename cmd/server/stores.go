package main

import (
	"context"
	"fmt"

	"face-registry/internal/config"
	"face-registry/internal/repository"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// stores - открытые хранилища дескрипторов и метаданных
type stores struct {
	metadataDB *sqlx.DB
	vectorDB   *sqlx.DB

	metadata   *repository.MetadataRepository
	identities repository.IdentityStore
	pgvector   *repository.PGVectorStore
	hnsw       *repository.HNSWStore
}

// openStores подключается к БД метаданных и выбранному хранилищу дескрипторов
func openStores(cfg *config.Config) (*stores, error) {
	metadataDB, err := initDatabase(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("БД метаданных: %w", err)
	}
	log.Infof("✅ База данных метаданных подключена (%s)", cfg.Database.Driver)

	s := &stores{
		metadataDB: metadataDB,
		metadata:   repository.NewMetadataRepository(metadataDB, cfg.Database.PersonTable),
	}

	switch cfg.Vector.Backend {
	case "hnsw":
		s.hnsw = repository.NewHNSWStore(cfg.Vector.Dim, cfg.Vector.Metric, cfg.Vector.HNSWIndexPath)
		if err := s.hnsw.Load(); err != nil {
			s.Close()
			return nil, fmt.Errorf("HNSW индекс: %w", err)
		}
		count, _ := s.hnsw.Count(context.Background())
		log.Infof("✅ HNSW индекс загружен: %d дескрипторов (%s)", count, cfg.Vector.HNSWIndexPath)
		s.identities = s.hnsw

	default:
		vectorDB := metadataDB
		if cfg.Database.Driver != "postgres" || cfg.Vector.DSN != cfg.Database.GetDSN() {
			if vectorDB, err = initDatabase("postgres", cfg.Vector.DSN); err != nil {
				s.Close()
				return nil, fmt.Errorf("pgvector: %w", err)
			}
			s.vectorDB = vectorDB
		}
		s.pgvector = repository.NewPGVectorStore(vectorDB, cfg.Vector.Table, cfg.Vector.Metric)
		s.identities = s.pgvector
		log.Info("✅ pgvector подключен")
	}

	return s, nil
}

// migrate создает таблицы и индексы, если их нет
func (s *stores) migrate(ctx context.Context, dim int) error {
	if err := s.metadata.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("схема метаданных: %w", err)
	}
	if s.pgvector != nil {
		if err := s.pgvector.EnsureSchema(ctx, dim); err != nil {
			return fmt.Errorf("схема pgvector: %w", err)
		}
	}
	return nil
}

// Close сбрасывает HNSW индекс на диск и закрывает соединения
func (s *stores) Close() {
	if s.hnsw != nil {
		if err := s.hnsw.Flush(context.Background()); err != nil {
			log.WithError(err).Error("❌ Не удалось сохранить HNSW индекс")
		}
	}
	if s.vectorDB != nil {
		s.vectorDB.Close()
	}
	if s.metadataDB != nil {
		s.metadataDB.Close()
	}
}

// initDatabase инициализирует подключение к базе данных
func initDatabase(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}

	// Настраиваем connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}
