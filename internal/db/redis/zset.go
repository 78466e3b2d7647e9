package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/clearlane/htsnav/internal/db"
)

// ZAddMulti adds scored members to multiple sorted sets in one DoMulti
// round-trip. Used to maintain the sparse postings index: one set per sparse
// dimension, score = term weight.
func (s *Store) ZAddMulti(ctx context.Context, entries map[string][]db.ZSetMember) error {
	if len(entries) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, 0, len(entries))
	keys := make([]string, 0, len(entries))
	for key, members := range entries {
		if len(members) == 0 {
			continue
		}
		cmd := s.b().Zadd().Key(key).ScoreMember()
		for _, m := range members {
			cmd = cmd.ScoreMember(m.Score, m.Member)
		}
		cmds = append(cmds, cmd.Build())
		keys = append(keys, key)
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpZAdd, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
	}
	return nil
}

// ZRangeWithScoresMulti fetches all members with scores for multiple sorted
// sets in one DoMulti round-trip. Missing keys yield empty slices.
func (s *Store) ZRangeWithScoresMulti(ctx context.Context, keys []string) ([][]db.ZSetMember, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Zrange().Key(key).Min("0").Max("-1").Withscores().Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	out := make([][]db.ZSetMember, len(results))

	for i, res := range results {
		scores, err := res.AsZScores()
		if err != nil {
			return nil, &db.Error{Op: db.OpZRange, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
		members := make([]db.ZSetMember, len(scores))
		for j, sc := range scores {
			members[j] = db.ZSetMember{Member: sc.Member, Score: sc.Score}
		}
		out[i] = members
	}

	return out, nil
}
