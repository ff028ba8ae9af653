package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"face-registry/internal/models"
)

const (
	msgNoEntries    = "No saved face entries found in database"
	msgNoSimilar    = "No similar faces were found in the database"
	msgVectorSearch = "vector store search error"
)

// RecognizeRequest - входные данные распознавания.
// MatchDistanceThreshold == nil берет порог из Options.
type RecognizeRequest struct {
	ModelName              string
	ImagePath              string
	Threshold              float64
	MatchDistanceThreshold *float64
}

// Recognized - полезная нагрузка события распознавания
type Recognized struct {
	PersonID int64   `json:"person_id"`
	Distance float64 `json:"distance"`
}

// Recognize ищет ближайшую сохраненную персону. Отсутствие близкого лица - успешный поиск.
func (o *Orchestrator) Recognize(ctx context.Context, req RecognizeRequest) (out models.Outcome) {
	defer o.finish("recognize", &out)

	if ctx.Err() != nil {
		return models.Failed(msgCancelled)
	}

	descriptor, rejected, ok := o.extract(ctx, req.ModelName, req.ImagePath, req.Threshold)
	if !ok {
		return rejected
	}

	candidates, err := o.identities.SearchNearest(ctx, descriptor, o.opts.SearchTopK)
	if err != nil {
		o.log.WithError(err).Error("❌ Ошибка поиска ближайших лиц")
		return models.Failed(msgVectorSearch)
	}
	if len(candidates) == 0 {
		return models.Rejected(msgNoEntries)
	}

	threshold := o.opts.MatchDistanceThreshold
	if req.MatchDistanceThreshold != nil {
		threshold = *req.MatchDistanceThreshold
	}

	match := SelectMatch(candidates, threshold)
	if !match.Accepted {
		o.log.Debugf("Ближайшая персона %d на дистанции %.4f, порог %.4f", match.PersonID, match.Distance, threshold)
		return models.Success(msgNoSimilar)
	}

	o.log.Infof("🔍 Лицо совпало с персоной %d (дистанция %.4f)", match.PersonID, match.Distance)
	o.publish(EventPersonRecognized, Recognized{PersonID: match.PersonID, Distance: match.Distance})

	return models.Success(fmt.Sprintf("Detected face matches id %d", match.PersonID)).
		WithMatch(match.PersonID, match.Distance)
}

// SelectMatch берет ближайшего кандидата и сравнивает с порогом.
// Порядок от хранилища не доверяется, дистанция равная порогу совпадением не считается.
// candidates не должен быть пустым.
func SelectMatch(candidates []models.Candidate, threshold float64) models.MatchResult {
	sorted := make([]models.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance < sorted[j].Distance
	})

	best := sorted[0]
	return models.MatchResult{
		PersonID: best.PersonID,
		Distance: best.Distance,
		Accepted: best.Distance < threshold,
	}
}
