package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"face-registry/internal/observability"

	log "github.com/sirupsen/logrus"
)

// Step - шаг саги. Compensate откатывает уже выполненный Action.
// BestEffort-шаг при ошибке только логируется, сага идет дальше.
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
	BestEffort bool
}

// StepError - шаг, на котором сага остановилась
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Saga выполняет шаги по порядку и при сбое откатывает выполненные в обратном порядке
type Saga struct {
	steps []Step
	log   *log.Entry
}

// NewSaga создает сагу из упорядоченного списка шагов
func NewSaga(logger *log.Entry, steps ...Step) *Saga {
	return &Saga{steps: steps, log: logger}
}

// Run возвращает nil, если все обязательные шаги прошли.
// Ошибки компенсации логируются и не подменяют исходную ошибку.
func (s *Saga) Run(ctx context.Context) *StepError {
	var done []Step

	for _, step := range s.steps {
		started := time.Now()
		err := s.call(ctx, step.Name, step.Action)
		observability.StepDuration.WithLabelValues(step.Name).Observe(time.Since(started).Seconds())

		if err == nil {
			if step.Compensate != nil {
				done = append(done, step)
			}
			continue
		}

		if step.BestEffort {
			s.log.WithError(err).Warnf("⚠️  Шаг %s не выполнен, продолжаем", step.Name)
			observability.BestEffortFailures.WithLabelValues(step.Name).Inc()
			continue
		}

		s.log.WithError(err).Errorf("❌ Шаг %s не выполнен, откатываем %d шаг(ов)", step.Name, len(done))
		s.compensate(ctx, done)
		return &StepError{Step: step.Name, Err: err}
	}

	return nil
}

func (s *Saga) compensate(ctx context.Context, done []Step) {
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if err := s.call(ctx, step.Name, step.Compensate); err != nil {
			s.log.WithError(err).Errorf("❌ Компенсация шага %s не удалась", step.Name)
			observability.Compensations.WithLabelValues("failed").Inc()
			continue
		}
		s.log.Infof("↩️  Шаг %s откатан", step.Name)
		observability.Compensations.WithLabelValues("ok").Inc()
	}
}

// call превращает панику шага в ошибку, чтобы сага успела откатиться
func (s *Saga) call(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Errorf("❌ Паника в шаге %s: %s", name, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
