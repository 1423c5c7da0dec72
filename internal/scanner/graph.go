// Package scanner enumerates candidate token cycles over a pool snapshot.
// Tokens become graph nodes identified by index, pool entries become directed
// edges labeled with their venue, and candidates are simple cycles rooted at
// the configured base tokens.
package scanner

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/poolcache"
)

// edge is one directed (venue, pair) hop between token indices.
type edge struct {
	to    int
	venue string
}

// graph is an index-based adjacency structure built fresh per scan from a
// snapshot. Pools without liquidity contribute no edges.
type graph struct {
	tokens []common.Address
	index  map[common.Address]int
	adj    [][]edge
}

func buildGraph(snap *poolcache.Snapshot) *graph {
	g := &graph{index: make(map[common.Address]int)}
	for _, p := range snap.Pools() {
		if !p.HasLiquidity() {
			continue
		}
		a := g.node(p.Pair.Token0)
		b := g.node(p.Pair.Token1)
		g.adj[a] = append(g.adj[a], edge{to: b, venue: p.Venue})
		g.adj[b] = append(g.adj[b], edge{to: a, venue: p.Venue})
	}
	return g
}

func (g *graph) node(t common.Address) int {
	if i, ok := g.index[t]; ok {
		return i
	}
	i := len(g.tokens)
	g.tokens = append(g.tokens, t)
	g.index[t] = i
	g.adj = append(g.adj, nil)
	return i
}

// lookup returns the node index for a token, or -1 if the token has no
// liquid pools in the snapshot.
func (g *graph) lookup(t common.Address) int {
	if i, ok := g.index[t]; ok {
		return i
	}
	return -1
}

func (g *graph) candidate(path []int, venues []string) domain.Candidate {
	tokens := make([]common.Address, len(path))
	for i, n := range path {
		tokens[i] = g.tokens[n]
	}
	vp := make([]string, len(venues))
	copy(vp, venues)
	return domain.Candidate{TokenPath: tokens, VenuePath: vp}
}
