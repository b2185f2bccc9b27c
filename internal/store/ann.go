package store

import (
	"github.com/coder/hnsw"
)

// annIndex is an in-memory HNSW graph over the stored vectors. SQLite is
// the source of truth; the graph is rebuilt from the table on open and
// kept in sync on every upsert and delete.
//
// Deletions are lazy: the node stays in the graph but loses its ID
// mapping, so it can never surface in results. This avoids a coder/hnsw
// issue when removing the last node of a layer.
type annIndex struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

func newANNIndex() *annIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.EuclideanDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	return &annIndex{
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// add inserts or replaces a vector.
func (a *annIndex) add(id string, vector []float32) {
	if existingKey, exists := a.idMap[id]; exists {
		delete(a.keyMap, existingKey)
		delete(a.idMap, id)
	}

	key := a.nextKey
	a.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	a.graph.Add(hnsw.MakeNode(key, vec))

	a.idMap[id] = key
	a.keyMap[key] = id
}

// remove drops a vector by ID (lazy).
func (a *annIndex) remove(id string) {
	if key, exists := a.idMap[id]; exists {
		delete(a.keyMap, key)
		delete(a.idMap, id)
	}
}

// search returns up to k live IDs nearest to the query, with distances,
// ascending. Orphaned (lazily deleted) nodes are skipped.
func (a *annIndex) search(query []float32, k int) ([]string, []float64) {
	if a.graph.Len() == 0 || k <= 0 {
		return nil, nil
	}

	nodes := a.graph.Search(query, k)
	ids := make([]string, 0, len(nodes))
	distances := make([]float64, 0, len(nodes))
	for _, node := range nodes {
		id, exists := a.keyMap[node.Key]
		if !exists {
			continue
		}
		ids = append(ids, id)
		distances = append(distances, l2Distance(query, node.Value))
	}
	return ids, distances
}

// size returns the number of live vectors.
func (a *annIndex) size() int {
	return len(a.idMap)
}
