package extractor

import (
	"context"
	"fmt"

	"face-registry/internal/models"
	"face-registry/pkg/inference_client"
)

// Коды ошибок, которые адаптер выставляет сам (сервер инференса использует свои отрицательные коды)
const (
	CodeTransport         = -1
	CodeMissingFeatures   = -2
	CodeDimensionMismatch = -3
)

// Kind - вид результата извлечения
type Kind int

const (
	NoFaceDetected Kind = iota
	Descriptors
	ExtractionError
)

// Result - типизированный результат извлечения дескрипторов
type Result struct {
	Kind        Kind
	Descriptors []models.Descriptor
	Code        int
	Detail      string
}

// Params - параметры детекции для одного вызова
type Params struct {
	ImagePath          string
	ModelName          string
	DetectionThreshold float64
	FaceAreaFraction   float64
	FaceCountThreshold int
}

// Inferencer - сервер инференса
type Inferencer interface {
	Infer(ctx context.Context, req inference_client.Request) (*models.InferenceResponse, error)
}

// Extractor нормализует ответ сервера инференса
type Extractor struct {
	client Inferencer
	dim    int
}

// New создает адаптер. dim <= 0 отключает проверку размерности.
func New(client Inferencer, dim int) *Extractor {
	return &Extractor{client: client, dim: dim}
}

// Extract вызывает модель и приводит ответ к Result. Повторов нет.
func (e *Extractor) Extract(ctx context.Context, p Params) Result {
	resp, err := e.client.Infer(ctx, inference_client.Request{
		ImagePath:          p.ImagePath,
		ModelName:          p.ModelName,
		DetectionThreshold: p.DetectionThreshold,
		FaceAreaFraction:   p.FaceAreaFraction,
		FaceCountThreshold: p.FaceCountThreshold,
	})
	if err != nil {
		return failure(CodeTransport, err.Error())
	}

	if resp.Status < 0 {
		detail := resp.Message
		if detail == "" {
			detail = fmt.Sprintf("inference failed with status %d", resp.Status)
		}
		return failure(resp.Status, detail)
	}

	if len(resp.FaceDetections) == 0 {
		return Result{Kind: NoFaceDetected}
	}

	if len(resp.FaceFeats) == 0 {
		return failure(CodeMissingFeatures, "faces detected but no features returned")
	}

	descriptors := make([]models.Descriptor, 0, len(resp.FaceFeats))
	for i, feat := range resp.FaceFeats {
		if e.dim > 0 && len(feat) != e.dim {
			return failure(CodeDimensionMismatch,
				fmt.Sprintf("descriptor %d has %d dimensions, expected %d", i, len(feat), e.dim))
		}
		descriptors = append(descriptors, models.Descriptor(feat))
	}

	return Result{Kind: Descriptors, Descriptors: descriptors}
}

func failure(code int, detail string) Result {
	return Result{Kind: ExtractionError, Code: code, Detail: detail}
}
