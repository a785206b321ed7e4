// internal/database/game.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/endritv/murlan/internal/game"
)

// RecordGameResult persists a settled game and its per-player lines in one
// transaction. Settlement retries make this an upsert.
func RecordGameResult(ctx context.Context, res game.SettlementResult) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (id, season_id, mode, stake, pot, status, settled_at)
			VALUES ($1, $2, $3, $4, $5, 'settled', $6)
			ON CONFLICT (id) DO UPDATE SET status = 'settled', settled_at = $6
		`
		if _, e := tx.Exec(ctx, upsertGame,
			res.GameID, res.SeasonID, string(res.Mode), res.Stake, res.Pot, res.SettledAt,
		); e != nil {
			return e
		}

		q := `
			INSERT INTO game_players (game_id, user_id, seat, team, finish_rank, points, payout)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (game_id, user_id)
			DO UPDATE SET finish_rank=$5, points=$6, payout=$7
		`
		for _, pr := range res.Results {
			if _, e := tx.Exec(ctx, q,
				res.GameID, pr.UserID, pr.Seat, pr.Team, pr.Rank, pr.Points, pr.Payout,
			); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert game or players: %w", err)
	}
	return nil
}

// MarkGameAborted records an aborted session so refunded games remain
// visible in history.
func MarkGameAborted(ctx context.Context, res game.SettlementResult, reason string) error {
	q := `
		INSERT INTO games (id, season_id, mode, stake, pot, status, abort_reason)
		VALUES ($1, $2, $3, $4, $5, 'aborted', $6)
		ON CONFLICT (id) DO UPDATE SET status = 'aborted', abort_reason = $6
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, res.GameID, res.SeasonID, string(res.Mode), res.Stake, res.Pot, reason)
		return err
	})
}
