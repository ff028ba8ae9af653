package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"face-registry/internal/logger"
	"face-registry/internal/models"
	"face-registry/internal/service/orchestrator"
	"face-registry/internal/service/storage"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	log "github.com/sirupsen/logrus"
)

// Registry - операции реестра лиц
type Registry interface {
	Register(ctx context.Context, req orchestrator.RegisterRequest) models.Outcome
	Recognize(ctx context.Context, req orchestrator.RecognizeRequest) models.Outcome
	Unregister(ctx context.Context, personID int64) models.Outcome
	GetRegistered(ctx context.Context, personID int64) models.Outcome
}

// ImageStore хранит изображение на время запроса
type ImageStore interface {
	SaveUpload(fileHeader *multipart.FileHeader) (string, error)
	Download(ctx context.Context, rawURL string) (string, error)
	Remove(path string) error
}

// Counter - хранилище, умеющее считать записи
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// HealthChecker - проверка доступности сервера инференса
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Defaults - параметры детекции, если клиент их не передал
type Defaults struct {
	ModelName              string
	DetectionThreshold     float64
	MatchDistanceThreshold float64
}

// Handler содержит все зависимости для обработки HTTP запросов
type Handler struct {
	registry   Registry
	images     ImageStore
	identities Counter
	metadata   Counter
	inference  HealthChecker
	defaults   Defaults
	log        *log.Entry
}

// NewHandler создает новый handler с зависимостями
func NewHandler(
	registry Registry,
	images ImageStore,
	identities Counter,
	metadata Counter,
	inference HealthChecker,
	defaults Defaults,
) *Handler {
	return &Handler{
		registry:   registry,
		images:     images,
		identities: identities,
		metadata:   metadata,
		inference:  inference,
		defaults:   defaults,
		log:        logger.Component("http"),
	}
}

// DetectionParams - необязательные параметры модели
type DetectionParams struct {
	ModelName string   `form:"model_name"`
	Threshold *float64 `form:"threshold" binding:"omitempty,gte=0,lte=1"`
}

type registerForm struct {
	models.Person
	DetectionParams
}

type registerURLForm struct {
	models.Person
	DetectionParams
	ImageURL string `form:"img_url" binding:"required,url"`
}

type recognizeForm struct {
	DetectionParams
	MatchDistanceThreshold *float64 `form:"face_dist_threshold" binding:"omitempty,gte=0"`
}

type recognizeURLForm struct {
	DetectionParams
	MatchDistanceThreshold *float64 `form:"face_dist_threshold" binding:"omitempty,gte=0"`
	ImageURL               string   `form:"img_url" binding:"required,url"`
}

// ============ REGISTER ============

// HandleRegisterFile регистрирует персону по загруженному изображению
func (h *Handler) HandleRegisterFile(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBindWith(&form, binding.FormMultipart); err != nil {
		h.badRequest(c, fmt.Sprintf("invalid person data: %v", err))
		return
	}

	path, ok := h.saveUpload(c)
	if !ok {
		return
	}
	defer h.removeFile(path)

	c.JSON(http.StatusOK, h.registry.Register(c.Request.Context(), h.registerRequest(form.Person, form.DetectionParams, path)))
}

// HandleRegisterURL регистрирует персону по изображению из ссылки
func (h *Handler) HandleRegisterURL(c *gin.Context) {
	var form registerURLForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		h.badRequest(c, fmt.Sprintf("invalid person data: %v", err))
		return
	}

	path, ok := h.download(c, form.ImageURL)
	if !ok {
		return
	}
	defer h.removeFile(path)

	c.JSON(http.StatusOK, h.registry.Register(c.Request.Context(), h.registerRequest(form.Person, form.DetectionParams, path)))
}

// ============ RECOGNIZE ============

// HandleRecognizeFile ищет персону по загруженному изображению
func (h *Handler) HandleRecognizeFile(c *gin.Context) {
	var form recognizeForm
	if err := c.ShouldBindWith(&form, binding.FormMultipart); err != nil {
		h.badRequest(c, fmt.Sprintf("invalid parameters: %v", err))
		return
	}

	path, ok := h.saveUpload(c)
	if !ok {
		return
	}
	defer h.removeFile(path)

	c.JSON(http.StatusOK, h.registry.Recognize(c.Request.Context(), h.recognizeRequest(form.DetectionParams, form.MatchDistanceThreshold, path)))
}

// HandleRecognizeURL ищет персону по изображению из ссылки
func (h *Handler) HandleRecognizeURL(c *gin.Context) {
	var form recognizeURLForm
	if err := c.ShouldBindWith(&form, binding.Form); err != nil {
		h.badRequest(c, fmt.Sprintf("invalid parameters: %v", err))
		return
	}

	path, ok := h.download(c, form.ImageURL)
	if !ok {
		return
	}
	defer h.removeFile(path)

	c.JSON(http.StatusOK, h.registry.Recognize(c.Request.Context(), h.recognizeRequest(form.DetectionParams, form.MatchDistanceThreshold, path)))
}

// ============ LIFECYCLE ============

// HandleUnregister удаляет персону
func (h *Handler) HandleUnregister(c *gin.Context) {
	id, ok := h.personID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.registry.Unregister(c.Request.Context(), id))
}

// HandleGetRegistered проверяет, зарегистрирована ли персона
func (h *Handler) HandleGetRegistered(c *gin.Context) {
	id, ok := h.personID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.registry.GetRegistered(c.Request.Context(), id))
}

// ============ SERVICE ============

// HandleGetStats возвращает число дескрипторов и персон
func (h *Handler) HandleGetStats(c *gin.Context) {
	ctx := c.Request.Context()

	vectors, err := h.identities.Count(ctx)
	if err != nil {
		h.log.WithError(err).Error("❌ Ошибка подсчета дескрипторов")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Ошибка получения статистики"})
		return
	}

	persons, err := h.metadata.Count(ctx)
	if err != nil {
		h.log.WithError(err).Error("❌ Ошибка подсчета персон")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Ошибка получения статистики"})
		return
	}

	c.JSON(http.StatusOK, models.Stats{Descriptors: vectors, Persons: persons})
}

// HandleHealth отвечает ok, пока жив процесс. Недоступный инференс - degraded.
func (h *Handler) HandleHealth(c *gin.Context) {
	inference := "ok"
	if h.inference != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.inference.HealthCheck(ctx); err != nil {
			inference = "unavailable"
		}
	}

	status := "ok"
	if inference != "ok" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"service":   "face-registry",
		"inference": inference,
	})
}

// ============ HELPERS ============

func (h *Handler) registerRequest(person models.Person, params DetectionParams, path string) orchestrator.RegisterRequest {
	return orchestrator.RegisterRequest{
		ModelName: h.modelName(params),
		ImagePath: path,
		Threshold: h.threshold(params),
		Person:    person,
	}
}

func (h *Handler) recognizeRequest(params DetectionParams, matchDistance *float64, path string) orchestrator.RecognizeRequest {
	distance := h.defaults.MatchDistanceThreshold
	if matchDistance != nil {
		distance = *matchDistance
	}
	return orchestrator.RecognizeRequest{
		ModelName:              h.modelName(params),
		ImagePath:              path,
		Threshold:              h.threshold(params),
		MatchDistanceThreshold: &distance,
	}
}

func (h *Handler) modelName(params DetectionParams) string {
	if params.ModelName != "" {
		return params.ModelName
	}
	return h.defaults.ModelName
}

func (h *Handler) threshold(params DetectionParams) float64 {
	if params.Threshold != nil {
		return *params.Threshold
	}
	return h.defaults.DetectionThreshold
}

func (h *Handler) saveUpload(c *gin.Context) (string, bool) {
	fileHeader, err := c.FormFile("img_file")
	if err != nil {
		h.badRequest(c, "img_file is required")
		return "", false
	}

	path, err := h.images.SaveUpload(fileHeader)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			h.badRequest(c, "image exceeds size limit")
			return "", false
		}
		h.log.WithError(err).Error("❌ Не удалось сохранить файл")
		c.JSON(http.StatusInternalServerError, models.Failed("failed to store uploaded image"))
		return "", false
	}
	return path, true
}

func (h *Handler) download(c *gin.Context, rawURL string) (string, bool) {
	path, err := h.images.Download(c.Request.Context(), rawURL)
	if err != nil {
		h.log.WithError(err).Warnf("⚠️  Не удалось скачать %s", rawURL)
		h.badRequest(c, fmt.Sprintf("couldn't download image from '%s'. Not a valid link.", rawURL))
		return "", false
	}
	return path, true
}

func (h *Handler) removeFile(path string) {
	if err := h.images.Remove(path); err != nil {
		h.log.WithError(err).Warn("⚠️  Не удалось удалить временный файл")
	}
}

func (h *Handler) personID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "person id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.Rejected(message))
}
