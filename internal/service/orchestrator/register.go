package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"face-registry/internal/models"
)

// Сообщения сохраняют формулировки, на которые уже завязаны клиенты
const (
	msgNoFaces         = "No faces were detected in the image"
	msgVectorInsert    = "vector store insertion error"
	msgMetadataInsert  = "metadata store insertion error"
	msgVectorLookup    = "vector store lookup error"
	msgCancelled       = "request cancelled"
	msgInvalidID       = "person id must be a positive integer"
	msgNameRequired    = "person name is required"
	msgLockUnavailable = "identity is busy, request cancelled"
)

// RegisterRequest - входные данные регистрации
type RegisterRequest struct {
	ModelName string
	ImagePath string
	Threshold float64
	Person    models.Person
}

// Register извлекает дескриптор и сохраняет его вместе с метаданными персоны.
// Если метаданные не записались, вставленный дескриптор удаляется.
func (o *Orchestrator) Register(ctx context.Context, req RegisterRequest) (out models.Outcome) {
	defer o.finish("register", &out)

	person := req.Person
	if person.ID <= 0 {
		return models.Rejected(msgInvalidID)
	}
	if strings.TrimSpace(person.Name) == "" {
		return models.Rejected(msgNameRequired)
	}
	if ctx.Err() != nil {
		return models.Failed(msgCancelled)
	}

	descriptor, rejected, ok := o.extract(ctx, req.ModelName, req.ImagePath, req.Threshold)
	if !ok {
		return rejected
	}

	unlock, err := o.lock(ctx, person.ID)
	if err != nil {
		return models.Failed(msgLockUnavailable)
	}
	defer unlock()

	existing, err := o.identities.FindByIdentity(ctx, person.ID)
	if err != nil {
		o.log.WithError(err).Errorf("❌ Не удалось проверить персону %d", person.ID)
		return models.Failed(msgVectorLookup)
	}
	if existing != nil {
		return models.Rejected(fmt.Sprintf("person with id %d already exists", person.ID))
	}

	// Последняя точка, где отмена безопасна: дальше только завершение или откат
	if ctx.Err() != nil {
		return models.Failed(msgCancelled)
	}
	wctx := context.WithoutCancel(ctx)

	saga := NewSaga(o.log.WithField("person_id", person.ID),
		Step{
			Name: stepVectorInsert,
			Action: func(ctx context.Context) error {
				return o.identities.Insert(ctx, descriptor, person.ID)
			},
			Compensate: func(ctx context.Context) error {
				return o.identities.DeleteByIdentity(ctx, person.ID)
			},
		},
		Step{
			Name:       stepFlush,
			Action:     o.identities.Flush,
			BestEffort: true,
		},
		Step{
			Name: stepMetadataInsert,
			Action: func(ctx context.Context) error {
				return o.metadata.InsertPerson(ctx, person)
			},
		},
	)

	if failed := saga.Run(wctx); failed != nil {
		if failed.Step == stepVectorInsert {
			return models.Failed(msgVectorInsert)
		}
		return models.Failed(msgMetadataInsert)
	}

	o.log.Infof("✅ Персона %s (id=%d) зарегистрирована", person.Name, person.ID)
	o.cachePerson(person)
	o.publish(EventPersonRegistered, person)

	return models.Success(fmt.Sprintf("Person %s successfully registered", person.Name))
}
