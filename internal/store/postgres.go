// Package store is the non-authoritative Postgres audit/cache layer:
// it records session lifecycle, bracket transitions, and betting
// state changes for querying and dashboards, but it is never the
// system of record — the ledger owns settlement truth (spec §3, §6).
package store

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool with the audit writes the rest of
// the core calls on lifecycle events. Every method is best-effort:
// callers log failures and continue, since losing an audit row must
// never affect a live match.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the pool and verifies connectivity.
func Connect(connStr string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("store: unable to connect: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}
	log.Println("store: connected to PostgreSQL audit database")
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema applies schema.sql relative to the working directory.
func (s *Store) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/store/schema.sql")
	if err != nil {
		return fmt.Errorf("store: failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(context.Background(), string(schemaBytes)); err != nil {
		return fmt.Errorf("store: failed to apply schema: %w", err)
	}
	log.Println("store: schema initialized")
	return nil
}

// RecordSessionStart audits the creation of a new live session.
func (s *Store) RecordSessionStart(ctx context.Context, sessionID, kind, variant string, seed int64, tier int) error {
	const sql = `
		INSERT INTO sessions (id, kind, variant, seed, tier, started_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, sql, sessionID, kind, variant, seed, tier)
	return err
}

// RecordSessionEnd audits session termination, including the final
// score/round/reason for post-match review.
func (s *Store) RecordSessionEnd(ctx context.Context, sessionID string, finalScore int64, finalRound int, reason string) error {
	const sql = `
		UPDATE sessions
		SET ended_at = NOW(), final_score = $2, final_round = $3, end_reason = $4
		WHERE id = $1;
	`
	_, err := s.pool.Exec(ctx, sql, sessionID, finalScore, finalRound, reason)
	return err
}

// RecordBracketCreated audits the construction of a new tournament bracket.
func (s *Store) RecordBracketCreated(ctx context.Context, tournamentID string, size int, participants []string) error {
	const sql = `
		INSERT INTO brackets (onchain_id, size, participants, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (onchain_id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, sql, tournamentID, size, participants)
	return err
}

// RecordBracketRound audits a round_start/advance boundary.
func (s *Store) RecordBracketRound(ctx context.Context, tournamentID string, round int, matchIDs []string) error {
	const sql = `
		INSERT INTO bracket_rounds (onchain_id, round, match_ids, started_at)
		VALUES ($1, $2, $3, NOW());
	`
	_, err := s.pool.Exec(ctx, sql, tournamentID, round, matchIDs)
	return err
}

// RecordBracketFinalized audits tournament completion or failure.
func (s *Store) RecordBracketFinalized(ctx context.Context, tournamentID, outcome, champion string) error {
	const sql = `
		UPDATE brackets
		SET finalized_at = NOW(), outcome = $2, champion = $3
		WHERE onchain_id = $1;
	`
	_, err := s.pool.Exec(ctx, sql, tournamentID, outcome, champion)
	return err
}

// RecordBetTransition audits one betting state-machine transition
// (opened, locked, settled) for a match.
func (s *Store) RecordBetTransition(ctx context.Context, matchID, transition string, totalPoolWei string) error {
	const sql = `
		INSERT INTO betting_transitions (match_id, transition, total_pool_wei, occurred_at)
		VALUES ($1, $2, $3, NOW());
	`
	_, err := s.pool.Exec(ctx, sql, matchID, transition, totalPoolWei)
	return err
}

// GetPool exposes the underlying pool for callers (e.g. migrations
// tooling) that need direct access.
func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}
