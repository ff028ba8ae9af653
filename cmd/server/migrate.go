package main

import (
	"face-registry/internal/config"
	"face-registry/internal/logger"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and indexes",
	Long: `Create the person metadata table and, for the pgvector backend,
the descriptor table with its nearest-neighbour index. Safe to run repeatedly.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger.Init(cfg.Log)
	if err := cfg.Validate(); err != nil {
		return err
	}

	s, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.migrate(cmd.Context(), cfg.Vector.Dim); err != nil {
		return err
	}

	log.Info("✅ Схема БД готова")
	return nil
}
