package scanner

import (
	"iter"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/poolcache"
)

// Scanner enumerates candidate cycles rooted at the configured base tokens.
type Scanner struct {
	baseTokens []common.Address
	logger     *slog.Logger
}

// New creates a Scanner rooting cycles at the given funding tokens.
func New(baseTokens []common.Address, logger *slog.Logger) *Scanner {
	return &Scanner{
		baseTokens: baseTokens,
		logger:     logger.With(slog.String("component", "scanner")),
	}
}

// Scan returns a lazy, restartable sequence of every simple cycle of at most
// maxHops hops that starts and ends at a base token. Consumers may stop
// early; re-ranging the sequence restarts enumeration from the same
// snapshot, yielding the same candidate set.
func (s *Scanner) Scan(snap *poolcache.Snapshot, maxHops int) iter.Seq[domain.Candidate] {
	g := buildGraph(snap)

	return func(yield func(domain.Candidate) bool) {
		for rootIdx, base := range s.baseTokens {
			root := g.lookup(base)
			if root < 0 {
				continue
			}
			// Tokens that are earlier base roots are excluded from this
			// root's search so the same cycle is not emitted once per base
			// token it touches.
			blocked := make([]bool, len(g.tokens))
			for _, earlier := range s.baseTokens[:rootIdx] {
				if i := g.lookup(earlier); i >= 0 {
					blocked[i] = true
				}
			}
			if !dfs(g, root, root, blocked, []int{root}, nil, maxHops, yield) {
				return
			}
		}
	}
}

// dfs walks outward from current, emitting a candidate whenever an edge
// closes the cycle back to root. visited doubles as the block list; the root
// itself stays unmarked so closing edges are found, and intermediate tokens
// never repeat. Returns false once the consumer stops.
func dfs(g *graph, root, current int, visited []bool, path []int, venues []string, hopsLeft int, yield func(domain.Candidate) bool) bool {
	if hopsLeft == 0 {
		return true
	}
	visited[current] = true
	defer func() { visited[current] = false }()

	for _, e := range g.adj[current] {
		if e.to == root && len(path) >= 2 {
			cand := g.candidate(append(path, root), append(venues, e.venue))
			if !yield(cand) {
				return false
			}
			continue
		}
		if visited[e.to] || e.to == root {
			continue
		}
		if !dfs(g, root, e.to, visited, append(path, e.to), append(venues, e.venue), hopsLeft-1, yield) {
			return false
		}
	}
	return true
}

// Count drains a candidate sequence and reports its size. Intended for
// logging and tests, not for the hot path.
func Count(seq iter.Seq[domain.Candidate]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}
