package pg

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dotastats/ingest/internal/dota"
)

var (
	matchConflict       = []string{"match_id"}
	playerMatchConflict = []string{"match_id", "player_slot"}
)

// WriteMatch lands one match row plus its player rows in a single
// transaction: either the full set for this ingestion is durable
// afterwards or none of it is. An absent player collection is valid and
// writes zero child rows. Child statements are prepared concurrently;
// execution is serialized because *sql.Tx does not tolerate concurrent
// statements.
func (r *Repository) WriteMatch(ctx context.Context, match dota.Row, players []dota.Row) error {
	matchID, ok := dota.RowInt64(match, "match_id")
	if !ok {
		return fmt.Errorf("write match: missing match_id")
	}

	// Resolve schemas before the transaction so a cold cache never
	// introspects mid-transaction.
	matchCols, err := r.columnsFor(ctx, "matches")
	if err != nil {
		return err
	}
	var playerCols map[string]struct{}
	if len(players) > 0 {
		if playerCols, err = r.columnsFor(ctx, "player_matches"); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write match %d: begin: %w", matchID, err)
	}

	q, args, err := buildUpsert("matches", sanitizeRow(matchCols, match), matchConflict)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("write match %d: %w", matchID, err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("write match %d: %w", matchID, err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, pm := range players {
		pm := dota.CloneRow(pm)
		g.Go(func() error {
			pm["match_id"] = matchID
			q, args, err := buildUpsert("player_matches", sanitizeRow(playerCols, pm), playerMatchConflict)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			_, err = tx.ExecContext(gctx, q, args...)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("write match %d: players: %w", matchID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write match %d: commit: %w", matchID, err)
	}
	return nil
}
