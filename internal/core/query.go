package core

import (
	"context"
	"strings"

	"genecluster/internal/cluster"
)

// Result is the answer to a name lookup. Both lists are always non-nil.
// When MaxExceeded is set the partial list is empty: the caller should
// narrow the query.
type Result struct {
	FullMatchList    []*cluster.Cluster `json:"fullMatchList"`
	PartialMatchList []*cluster.Cluster `json:"partialMatchList"`
	MaxExceeded      bool               `json:"maxExceeded"`
}

func emptyResult() Result {
	return Result{FullMatchList: []*cluster.Cluster{}, PartialMatchList: []*cluster.Cluster{}}
}

// GetClusters looks query up by stable id or alias. Identifier-shaped
// queries only consult the stable id index. Other queries return exact
// alias hits as full matches and substring hits as partial matches, unless
// more than maxMatchEntries distinct partial clusters exist. A
// non-positive maxMatchEntries uses the configured default.
func (s *Service) GetClusters(ctx context.Context, query string, maxMatchEntries int) (Result, error) {
	res := emptyResult()
	err := s.run(ctx, opGetClusters, func(ctx context.Context) error {
		if err := s.Ready(ctx); err != nil {
			return err
		}
		res = s.lookup(query, maxMatchEntries)
		return nil
	}, "query", query)
	if err != nil {
		return emptyResult(), err
	}
	return res, nil
}

// GetClusterByID returns the cluster with id once the index is built.
func (s *Service) GetClusterByID(ctx context.Context, id string) (*cluster.Cluster, bool, error) {
	var (
		found *cluster.Cluster
		ok    bool
	)
	err := s.run(ctx, opGetClusterByID, func(ctx context.Context) error {
		if err := s.Ready(ctx); err != nil {
			return err
		}
		found, ok = s.clusters.Get(id)
		return nil
	}, "cluster_id", id)
	if err != nil {
		return nil, false, err
	}
	return found, ok, nil
}

func (s *Service) lookup(query string, maxMatchEntries int) Result {
	res := emptyResult()
	q := strings.TrimSpace(query)
	if q == "" {
		return res
	}
	if maxMatchEntries <= 0 {
		maxMatchEntries = s.maxMatch
	}
	if s.idPattern.MatchString(q) {
		res.FullMatchList = s.resolve(s.index.StableIDs(q))
		return res
	}

	key := strings.ToLower(q)
	full := s.index.Aliases(key)
	res.FullMatchList = s.resolve(full)

	exclude := make(map[string]struct{}, len(full))
	for _, id := range full {
		exclude[id] = struct{}{}
	}
	var partial []string
	exceeded := false
	s.index.Scan(func(alias string, ids []string) bool {
		if alias == key || !strings.Contains(alias, key) {
			return true
		}
		for _, id := range ids {
			if _, skip := exclude[id]; skip {
				continue
			}
			exclude[id] = struct{}{}
			partial = append(partial, id)
			if len(partial) > maxMatchEntries {
				exceeded = true
				return false
			}
		}
		return true
	})
	if exceeded {
		res.MaxExceeded = true
		return res
	}
	res.PartialMatchList = s.resolve(partial)
	return res
}

func (s *Service) resolve(ids []string) []*cluster.Cluster {
	out := make([]*cluster.Cluster, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.clusters.Get(id); ok {
			out = append(out, c)
		}
	}
	return out
}
