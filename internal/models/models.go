package models

import (
	"fmt"
	"strconv"
	"time"
)

// DateLayout - формат даты рождения во входных данных и в кэше
const DateLayout = "2006-01-02"

// Descriptor - вектор признаков одного лица. После извлечения не изменяется.
type Descriptor []float32

// Person - метаданные персоны, ключ - идентификатор, заданный клиентом
type Person struct {
	ID        int64     `db:"id" json:"id" form:"id" binding:"required,gt=0"`
	Name      string    `db:"name" json:"name" form:"name" binding:"required"`
	Birthdate time.Time `db:"birthdate" json:"birthdate" form:"birthdate" time_format:"2006-01-02" time_utc:"1"`
	Country   string    `db:"country" json:"country" form:"country"`
	City      string    `db:"city" json:"city" form:"city"`
	Title     string    `db:"title" json:"title" form:"title"`
	Org       string    `db:"org" json:"org" form:"org"`
}

// CacheFields превращает персону в плоский набор полей для HSET
func (p Person) CacheFields() map[string]interface{} {
	birthdate := ""
	if !p.Birthdate.IsZero() {
		birthdate = p.Birthdate.Format(DateLayout)
	}
	return map[string]interface{}{
		"id":        p.ID,
		"name":      p.Name,
		"birthdate": birthdate,
		"country":   p.Country,
		"city":      p.City,
		"title":     p.Title,
		"org":       p.Org,
	}
}

// PersonFromCache восстанавливает персону из результата HGETALL
func PersonFromCache(fields map[string]string) (*Person, error) {
	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("некорректный id в кэше: %w", err)
	}

	p := &Person{
		ID:      id,
		Name:    fields["name"],
		Country: fields["country"],
		City:    fields["city"],
		Title:   fields["title"],
		Org:     fields["org"],
	}
	if raw := fields["birthdate"]; raw != "" {
		if p.Birthdate, err = time.Parse(DateLayout, raw); err != nil {
			return nil, fmt.Errorf("некорректная дата рождения в кэше: %w", err)
		}
	}
	return p, nil
}

// Candidate - кандидат из поиска ближайших соседей
type Candidate struct {
	PersonID int64   `db:"person_id" json:"person_id"`
	Distance float64 `db:"distance" json:"distance"`
}

// MatchResult - результат сравнения ближайшего кандидата с порогом
type MatchResult struct {
	PersonID int64
	Distance float64
	Accepted bool
}

// Статусы Outcome, которые видят клиенты
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// OutcomeKind различает ожидаемый отказ и сбой инфраструктуры.
// Клиенту оба видны как status=failed.
type OutcomeKind string

const (
	KindSuccess  OutcomeKind = "success"
	KindRejected OutcomeKind = "rejected"
	KindFailed   OutcomeKind = "failed"
)

// Outcome - единый ответ любой операции оркестратора
type Outcome struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Code     *int        `json:"code,omitempty"`
	MatchID  *int64      `json:"match_id,omitempty"`
	Distance *float64    `json:"distance,omitempty"`
	Person   *Person     `json:"person,omitempty"`
	Kind     OutcomeKind `json:"-"`
}

// Success создает успешный Outcome
func Success(message string) Outcome {
	return Outcome{Status: StatusSuccess, Message: message, Kind: KindSuccess}
}

// Rejected создает Outcome ожидаемого отказа (без побочных эффектов)
func Rejected(message string) Outcome {
	return Outcome{Status: StatusFailed, Message: message, Kind: KindRejected}
}

// Failed создает Outcome сбоя коллаборатора
func Failed(message string) Outcome {
	return Outcome{Status: StatusFailed, Message: message, Kind: KindFailed}
}

// WithCode добавляет код ошибки экстрактора
func (o Outcome) WithCode(code int) Outcome {
	o.Code = &code
	return o
}

// WithMatch добавляет найденную персону и дистанцию
func (o Outcome) WithMatch(personID int64, distance float64) Outcome {
	o.MatchID = &personID
	o.Distance = &distance
	return o
}

// IsSuccess - удобная проверка для тестов и handlers
func (o Outcome) IsSuccess() bool {
	return o.Status == StatusSuccess
}

// InferenceResponse - ответ сервера инференса
type InferenceResponse struct {
	Status         int         `json:"status"`
	Message        string      `json:"message,omitempty"`
	FaceDetections [][]float64 `json:"face_detections"` // [x1, y1, x2, y2, conf]
	FaceFeats      [][]float32 `json:"face_feats"`
}

// Stats - размер реестра
type Stats struct {
	Descriptors int `json:"descriptors"`
	Persons     int `json:"persons"`
}

// ErrorResponse - ответ на некорректный запрос
type ErrorResponse struct {
	Error string `json:"error"`
}
