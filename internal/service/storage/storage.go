package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxImageSize - предел размера загружаемого или скачиваемого изображения
const MaxImageSize = 20 << 20

const defaultExt = ".jpg"

var imageExts = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/bmp":  ".bmp",
	"image/webp": ".webp",
}

var (
	// ErrTooLarge - изображение больше MaxImageSize
	ErrTooLarge = errors.New("image exceeds size limit")
	// ErrNotImage - по ссылке лежит не изображение
	ErrNotImage = errors.New("url does not point to an image")
)

// Service хранит временные файлы изображений на время запроса
type Service struct {
	downloadDir string
	client      *http.Client
}

// NewService создает директорию для временных файлов
func NewService(downloadDir string, downloadTimeout time.Duration) (*Service, error) {
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать %s: %w", downloadDir, err)
	}

	return &Service{
		downloadDir: downloadDir,
		client:      &http.Client{Timeout: downloadTimeout},
	}, nil
}

// SaveUpload сохраняет загруженный файл под уникальным именем и возвращает путь
func (s *Service) SaveUpload(fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > MaxImageSize {
		return "", ErrTooLarge
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("не удалось открыть файл %s: %w", fileHeader.Filename, err)
	}
	defer file.Close()

	return s.write(file, extFromName(fileHeader.Filename))
}

// Download скачивает изображение по ссылке во временный файл
func (s *Service) Download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("некорректная ссылка: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ошибка скачивания: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("сервер вернул статус %d", resp.StatusCode)
	}

	ext := extFromName(req.URL.Path)
	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil && !strings.HasPrefix(mediaType, "image/") && mediaType != "application/octet-stream" {
			return "", ErrNotImage
		}
		if byType, ok := imageExts[mediaType]; ok && ext == defaultExt {
			ext = byType
		}
	}

	return s.write(resp.Body, ext)
}

// Remove удаляет временный файл. Отсутствие файла - не ошибка.
func (s *Service) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("не удалось удалить %s: %w", path, err)
	}
	return nil
}

// CleanupOlderThan удаляет файлы, оставшиеся после аварийно прерванных запросов
func (s *Service) CleanupOlderThan(age time.Duration) (int, error) {
	entries, err := os.ReadDir(s.downloadDir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < age {
			continue
		}
		if err := s.Remove(filepath.Join(s.downloadDir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (s *Service) write(src io.Reader, ext string) (string, error) {
	destPath := filepath.Join(s.downloadDir, uuid.New().String()+ext)

	destFile, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("не удалось создать файл %s: %w", destPath, err)
	}
	defer destFile.Close()

	n, err := io.Copy(destFile, io.LimitReader(src, MaxImageSize+1))
	if err == nil && n > MaxImageSize {
		err = ErrTooLarge
	}
	if err != nil {
		destFile.Close()
		os.Remove(destPath)
		return "", err
	}

	return destPath, nil
}

func extFromName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".bmp", ".webp":
		return ext
	}
	return defaultExt
}
