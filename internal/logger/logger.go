package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"face-registry/internal/config"

	log "github.com/sirupsen/logrus"
)

// Init настраивает глобальный логгер: уровень, формат и (опционально) файл
func Init(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("⚠️  Неверный уровень логирования %q, используем info: %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	writers := []io.Writer{os.Stdout}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0750); err != nil {
			log.Errorf("❌ Не удалось создать папку для логов %s: %v", cfg.File, err)
		} else if file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660); err != nil {
			log.Errorf("❌ Не удалось открыть файл логов %s: %v", cfg.File, err)
		} else {
			writers = append(writers, file)
		}
	}
	log.SetOutput(io.MultiWriter(writers...))
}

// Component возвращает логгер с полем component
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}
