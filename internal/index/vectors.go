package index

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// vectorStore holds chunk embeddings in an in-memory HNSW graph with
// string-keyed access, persisted to disk as a graph export plus a gob id map.
type vectorStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	idMap   map[string]uint64 // chunk id -> internal key
	keyMap  map[uint64]string // internal key -> chunk id
	nextKey uint64
}

// vectorMeta is the persisted id mapping.
type vectorMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Dims    int
}

// newVectorStore creates an empty store. dims may be zero; it is then fixed
// by the first added vector.
func newVectorStore(dims int) *vectorStore {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &vectorStore{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// add inserts vectors by chunk id. Existing ids are replaced via lazy
// deletion: the old graph node is orphaned rather than removed, which
// sidesteps graph corruption when the last node is deleted.
func (s *vectorStore) add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range vectors {
		if s.dims == 0 {
			s.dims = len(v)
		}
		if len(v) != s.dims {
			return DimensionMismatchError{Expected: s.dims, Got: len(v)}
		}
	}

	for i, id := range ids {
		if oldKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, oldKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// search returns up to k nearest chunk ids with similarity scores.
func (s *vectorStore) search(query []float32, k int) ([]string, []float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() == 0 {
		return nil, nil, nil
	}
	if s.dims != 0 && len(query) != s.dims {
		return nil, nil, DimensionMismatchError{Expected: s.dims, Got: len(query)}
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Over-fetch to compensate for orphaned nodes surviving lazy deletion.
	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(normalized, k+orphans)

	var ids []string
	var scores []float32
	for _, node := range nodes {
		id, live := s.keyMap[node.Key]
		if !live {
			continue
		}
		distance := s.graph.Distance(normalized, node.Value)
		ids = append(ids, id)
		scores = append(scores, 1.0-distance/2.0)
		if len(ids) == k {
			break
		}
	}
	return ids, scores, nil
}

// delete removes vectors by chunk id (lazy: graph nodes stay orphaned).
func (s *vectorStore) delete(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
}

// contains reports whether a chunk id has a live vector.
func (s *vectorStore) contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok
}

// count returns the number of live vectors.
func (s *vectorStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// save persists the graph and id map, each via temp file + atomic rename.
func (s *vectorStore) save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close vector file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename vector file: %w", err)
	}

	return s.saveMeta(path + ".meta")
}

func (s *vectorStore) saveMeta(path string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create vector meta file: %w", err)
	}

	meta := vectorMeta{IDMap: s.idMap, NextKey: s.nextKey, Dims: s.dims}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode vector meta: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close vector meta file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// load restores the graph and id map from disk.
func (s *vectorStore) load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open vector meta: %w", err)
	}
	defer func() { _ = metaFile.Close() }()

	var meta vectorMeta
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode vector meta: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.dims = meta.Dims
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}
	return nil
}

// normalizeInPlace scales a vector to unit length.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
