package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"face-registry/internal/models"

	"github.com/coder/hnsw"
)

// HNSWStore - встраиваемый индекс дескрипторов в памяти процесса.
// Один узел графа на персону. Flush сохраняет граф и дескрипторы на диск.
type HNSWStore struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[int64]
	vectors  map[int64][]float32
	distance hnsw.DistanceFunc
	dim      int
	path     string
}

// NewHNSWStore создает пустой индекс. path может быть пустым - тогда Flush ничего не пишет.
func NewHNSWStore(dim int, metric, path string) *HNSWStore {
	distance := hnsw.EuclideanDistance
	if metric == "COSINE" {
		distance = hnsw.CosineDistance
	}
	s := &HNSWStore{
		vectors:  make(map[int64][]float32),
		distance: distance,
		dim:      dim,
		path:     path,
	}
	s.graph = s.newGraph()
	return s
}

func (s *HNSWStore) newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.Distance = s.distance
	return g
}

// Load восстанавливает индекс, сохраненный предыдущим Flush. Отсутствие файлов - не ошибка.
func (s *HNSWStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.vectorsPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read hnsw vectors: %w", err)
	}

	vectors := make(map[int64][]float32)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vectors); err != nil {
		return fmt.Errorf("decode hnsw vectors: %w", err)
	}

	graph := s.newGraph()
	if len(vectors) > 0 && !s.importGraph(graph) {
		// Граф потерян или поврежден - перестраиваем по дескрипторам
		graph = s.newGraph()
		for id, vec := range vectors {
			graph.Add(hnsw.MakeNode(id, vec))
		}
	}

	s.graph = graph
	s.vectors = vectors
	return nil
}

func (s *HNSWStore) importGraph(graph *hnsw.Graph[int64]) bool {
	f, err := os.Open(s.path)
	if err != nil {
		return false
	}
	defer f.Close()
	return graph.Import(bufio.NewReader(f)) == nil
}

// FindByIdentity проверяет наличие узла персоны
func (s *HNSWStore) FindByIdentity(ctx context.Context, personID int64) (*IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.vectors[personID]; !ok {
		return nil, nil
	}
	return &IdentityRecord{PersonID: personID, Rows: 1}, nil
}

// Insert добавляет узел. Повторная вставка той же персоны - ErrIdentityExists.
func (s *HNSWStore) Insert(ctx context.Context, descriptor models.Descriptor, personID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.dim > 0 && len(descriptor) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(descriptor), s.dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vectors[personID]; ok {
		return fmt.Errorf("insert %d: %w", personID, ErrIdentityExists)
	}

	vec := make([]float32, len(descriptor))
	copy(vec, descriptor)
	s.graph.Add(hnsw.MakeNode(personID, vec))
	s.vectors[personID] = vec
	return nil
}

// DeleteByIdentity удаляет узел персоны, если он есть
func (s *HNSWStore) DeleteByIdentity(ctx context.Context, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vectors[personID]; !ok {
		return nil
	}
	delete(s.vectors, personID)

	if len(s.vectors) == 0 {
		s.graph = s.newGraph()
		return nil
	}
	s.graph.Delete(personID)
	return nil
}

// SearchNearest ищет k ближайших узлов графа
func (s *HNSWStore) SearchNearest(ctx context.Context, descriptor models.Descriptor, k int) ([]models.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.dim > 0 && len(descriptor) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(descriptor), s.dim)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 {
		return nil, nil
	}

	query := []float32(descriptor)
	nodes := s.graph.Search(query, k)
	candidates := make([]models.Candidate, 0, len(nodes))
	for _, n := range nodes {
		candidates = append(candidates, models.Candidate{
			PersonID: n.Key,
			Distance: float64(s.distance(query, n.Value)),
		})
	}
	return candidates, nil
}

// Flush сохраняет граф и дескрипторы рядом: <path> и <path>.vectors
func (s *HNSWStore) Flush(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create hnsw dir: %w", err)
	}

	var vecBuf bytes.Buffer
	if err := gob.NewEncoder(&vecBuf).Encode(s.vectors); err != nil {
		return fmt.Errorf("encode hnsw vectors: %w", err)
	}
	if err := writeFileAtomic(s.vectorsPath(), vecBuf.Bytes()); err != nil {
		return err
	}

	if len(s.vectors) == 0 {
		_ = os.Remove(s.path)
		return nil
	}

	var graphBuf bytes.Buffer
	if err := s.graph.Export(&graphBuf); err != nil {
		return fmt.Errorf("export hnsw graph: %w", err)
	}
	return writeFileAtomic(s.path, graphBuf.Bytes())
}

// Count возвращает количество проиндексированных персон
func (s *HNSWStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

func (s *HNSWStore) vectorsPath() string {
	return s.path + ".vectors"
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
