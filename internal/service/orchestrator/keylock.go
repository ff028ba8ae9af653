package orchestrator

import (
	"context"
	"sync"
)

// KeyLock - мьютекс на идентификатор персоны в пределах процесса.
// Закрывает гонку между проверкой дубликата и вставкой только для одного инстанса.
type KeyLock struct {
	mu      sync.Mutex
	entries map[int64]*keyEntry
}

type keyEntry struct {
	sem  chan struct{}
	refs int
}

// NewKeyLock создает пустой набор блокировок
func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[int64]*keyEntry)}
}

// Lock захватывает ключ или возвращает ошибку контекста, если ждать дальше нельзя
func (l *KeyLock) Lock(ctx context.Context, key int64) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

func (l *KeyLock) release(key int64, e *keyEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *KeyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
