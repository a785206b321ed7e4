// internal/database/season.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertSeasonPoints accumulates a competitor's season totals. key is the
// scoreboard's competitor identity (user id, or the joined pair for teams).
func UpsertSeasonPoints(ctx context.Context, seasonID uuid.UUID, key string, points, wins int) error {
	q := `
	INSERT INTO season_points (season_id, competitor, points, games_played, wins)
	VALUES ($1, $2, $3, 1, $4)
	ON CONFLICT (season_id, competitor)
	DO UPDATE SET points = season_points.points + $3,
	              games_played = season_points.games_played + 1,
	              wins = season_points.wins + $4
	`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, seasonID, key, points, wins)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert season points: %w", err)
	}
	return nil
}

// SeasonRow is one persisted standings line.
type SeasonRow struct {
	Competitor  string
	Points      int
	GamesPlayed int
	Wins        int
}

// LoadSeasonStandings returns every persisted standings line grouped by
// season, for rebuilding the scoreboard at cold start.
func LoadSeasonStandings(ctx context.Context) (map[uuid.UUID][]SeasonRow, error) {
	q := `
	SELECT season_id, competitor, points, games_played, wins
	FROM season_points
	ORDER BY points DESC, wins DESC
	`
	rows, err := DB.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query season standings: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]SeasonRow)
	for rows.Next() {
		var seasonID uuid.UUID
		var r SeasonRow
		if err := rows.Scan(&seasonID, &r.Competitor, &r.Points, &r.GamesPlayed, &r.Wins); err != nil {
			return nil, err
		}
		out[seasonID] = append(out[seasonID], r)
	}
	return out, rows.Err()
}
