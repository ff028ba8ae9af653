package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"face-registry/internal/models"
	"face-registry/internal/repository"
)

// Unregister удаляет дескриптор персоны. Метаданные и кэш чистятся по возможности.
// Удаление неизвестной персоны успешно.
func (o *Orchestrator) Unregister(ctx context.Context, personID int64) (out models.Outcome) {
	defer o.finish("unregister", &out)

	if personID <= 0 {
		return models.Rejected(msgInvalidID)
	}
	if ctx.Err() != nil {
		return models.Failed(msgCancelled)
	}

	unlock, err := o.lock(ctx, personID)
	if err != nil {
		return models.Failed(msgLockUnavailable)
	}
	defer unlock()

	steps := []Step{
		{
			Name: stepVectorDelete,
			Action: func(ctx context.Context) error {
				return o.identities.DeleteByIdentity(ctx, personID)
			},
		},
		{Name: stepFlush, Action: o.identities.Flush, BestEffort: true},
		{
			Name: stepMetadataDelete,
			Action: func(ctx context.Context) error {
				return o.metadata.DeletePerson(ctx, personID)
			},
			BestEffort: true,
		},
	}
	if o.cache != nil {
		steps = append(steps, Step{
			Name: stepCacheEvict,
			Action: func(ctx context.Context) error {
				o.evictions.bump(personID)
				return o.cache.InvalidatePerson(ctx, personID)
			},
			BestEffort: true,
		})
	}

	if failed := NewSaga(o.log.WithField("person_id", personID), steps...).Run(context.WithoutCancel(ctx)); failed != nil {
		return models.Failed(fmt.Sprintf("Person with id %d couldn't be unregistered", personID))
	}

	o.log.Infof("🗑️  Персона %d удалена", personID)
	o.publish(EventPersonUnregistered, map[string]int64{"person_id": personID})

	return models.Success(fmt.Sprintf("Person with id %d unregistered", personID))
}

// GetRegistered проверяет наличие дескриптора персоны.
// Метаданные прикладываются, если нашлись, и на статус не влияют.
func (o *Orchestrator) GetRegistered(ctx context.Context, personID int64) (out models.Outcome) {
	defer o.finish("get_registered", &out)

	if personID <= 0 {
		return models.Rejected(msgInvalidID)
	}

	rec, err := o.identities.FindByIdentity(ctx, personID)
	if err != nil {
		o.log.WithError(err).Errorf("❌ Не удалось найти персону %d", personID)
		return models.Failed(msgVectorLookup)
	}
	if rec == nil {
		return models.Rejected(fmt.Sprintf("Person with id %d not found in database", personID))
	}

	out = models.Success(fmt.Sprintf("Person %d found", personID))
	out.Person = o.lookupPerson(ctx, personID)
	return out
}

// lookupPerson читает метаданные сначала из кэша, потом из БД
func (o *Orchestrator) lookupPerson(ctx context.Context, personID int64) *models.Person {
	if o.cache != nil {
		person, err := o.cache.GetPerson(ctx, personID)
		if err != nil {
			o.log.WithError(err).Warnf("⚠️  Кэш недоступен для персоны %d", personID)
		} else if person != nil {
			return person
		}
	}

	person, err := o.metadata.GetPerson(ctx, personID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			o.log.WithError(err).Warnf("⚠️  Не удалось прочитать метаданные персоны %d", personID)
		}
		return nil
	}

	o.cachePerson(*person)
	return person
}
