package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/karrolcia/hippocampus-go/internal/observe"
)

// defaultConsolidateThreshold and the range it is clamped to.
const (
	minConsolidateThreshold     = 0.5
	maxConsolidateThreshold     = 1.0
	defaultConsolidateThreshold = 0.8
)

// ConsolidateInput is a consolidation-candidate request. Consolidate never
// mutates the store; it only identifies clusters for a caller to act on via
// [Engine.Merge].
type ConsolidateInput struct {
	Entity    string
	Threshold float64
}

// ClusterMember is a single observation within a consolidation cluster.
type ClusterMember struct {
	ObservationID string
	EntityID      string
	Text          string
}

// Cluster is a group of near-duplicate observations, joined transitively by
// pairwise similarity at or above the requested threshold.
type Cluster struct {
	Members       []ClusterMember
	AvgSimilarity float64
}

// ConsolidateResult is the outcome of a [Engine.Consolidate] call.
type ConsolidateResult struct {
	Success          bool
	TotalObservations int
	Clusters         []Cluster
	Message          string
}

// Consolidate loads every stored embedding (optionally scoped to an
// entity), unions pairs whose cosine similarity meets threshold, and
// returns the resulting clusters — largest first — each annotated with its
// average within-cluster similarity rounded to three decimal places.
// Singleton groups are dropped. Read-only: it identifies candidates, it
// does not merge them.
func (e *Engine) Consolidate(ctx context.Context, in ConsolidateInput) (ConsolidateResult, error) {
	start := time.Now()
	outcome := observe.OutcomeOK
	defer func() {
		e.metrics.RecordOperation(ctx, observe.OpConsolidate, outcome, time.Since(start).Seconds())
	}()

	threshold := in.Threshold
	if threshold == 0 {
		threshold = defaultConsolidateThreshold
	}
	if threshold < minConsolidateThreshold {
		threshold = minConsolidateThreshold
	}
	if threshold > maxConsolidateThreshold {
		threshold = maxConsolidateThreshold
	}

	var entityID string
	if in.Entity != "" {
		ent, err := e.entities.GetByName(ctx, in.Entity)
		if err != nil {
			outcome = observe.OutcomeNotFound
			return ConsolidateResult{
				Success: false,
				Message: fmt.Sprintf("No entity named %q.", in.Entity),
			}, nil
		}
		entityID = ent.ID
	}

	vectors, err := e.index.ListVectors(ctx, entityID)
	if err != nil {
		outcome = observe.OutcomeError
		return ConsolidateResult{}, fmt.Errorf("engine: consolidate: list vectors: %w", err)
	}

	if len(vectors) < 2 {
		return ConsolidateResult{Success: true, TotalObservations: len(vectors)}, nil
	}

	uf := newUnionFind(len(vectors))
	sim := make(map[[2]int]float32)
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			s := dotProduct(vectors[i].Vector, vectors[j].Vector)
			if float64(s) >= threshold {
				uf.union(i, j)
				sim[[2]int{i, j}] = s
			}
		}
	}

	groups := make(map[int][]int)
	for i := range vectors {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	var clusters []Cluster
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}

		var total float64
		var pairs int
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				i, j := members[a], members[b]
				if i > j {
					i, j = j, i
				}
				if s, ok := sim[[2]int{i, j}]; ok {
					total += float64(s)
				} else {
					total += float64(dotProduct(vectors[i].Vector, vectors[j].Vector))
				}
				pairs++
			}
		}

		clusterMembers := make([]ClusterMember, len(members))
		for k, idx := range members {
			v := vectors[idx]
			clusterMembers[k] = ClusterMember{ObservationID: v.ObservationID, EntityID: v.EntityID, Text: v.Text}
		}

		avg := total / float64(pairs)
		clusters = append(clusters, Cluster{
			Members:       clusterMembers,
			AvgSimilarity: roundTo3(avg),
		})
	}

	sort.Slice(clusters, func(i, j int) bool { return len(clusters[i].Members) > len(clusters[j].Members) })

	return ConsolidateResult{
		Success:           true,
		TotalObservations: len(vectors),
		Clusters:          clusters,
	}, nil
}

func roundTo3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// unionFind is a standard union-find over a dense [0,n) index space, used
// to group observations into transitively-linked clusters.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n)}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
