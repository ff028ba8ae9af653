package inference_client

import (
	"bytes"
	"context"
	"encoding/json"
	"face-registry/internal/models"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Request - параметры одного вызова модели
type Request struct {
	ImagePath          string
	ModelName          string
	DetectionThreshold float64
	FaceAreaFraction   float64
	FaceCountThreshold int
}

// Client для взаимодействия с сервером инференса (детекция + признаки лиц)
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создает новый клиент
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Infer отправляет изображение на детекцию лиц и извлечение признаков.
// Отрицательный status в ответе - не ошибка транспорта, его разбирает вызывающий.
func (c *Client) Infer(ctx context.Context, req Request) (*models.InferenceResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	file, err := os.Open(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть файл %s: %w", req.ImagePath, err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("image", filepath.Base(req.ImagePath))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("ошибка копирования файла: %w", err)
	}

	fields := map[string]string{
		"model_name":           req.ModelName,
		"face_det_thres":       strconv.FormatFloat(req.DetectionThreshold, 'f', -1, 64),
		"face_bbox_area_thres": strconv.FormatFloat(req.FaceAreaFraction, 'f', -1, 64),
		"face_count_thres":     strconv.Itoa(req.FaceCountThreshold),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("ошибка записи поля %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("ошибка закрытия writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", body)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ошибка HTTP запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("сервер инференса вернул ошибку %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result models.InferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	return &result, nil
}

// HealthCheck проверяет доступность сервера инференса
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("сервер инференса недоступен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("сервер инференса вернул статус %d", resp.StatusCode)
	}

	return nil
}
