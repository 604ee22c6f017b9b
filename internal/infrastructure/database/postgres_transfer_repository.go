package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wallet-cluster-analyzer/internal/domain/entity"
	"wallet-cluster-analyzer/internal/domain/repository"
)

// PostgresTransferRepository implements repository.TransferRepository using PostgreSQL.
// Address ordering uses the C collation so ties break the same way as in Go.
type PostgresTransferRepository struct {
	pool *Pool
}

// NewPostgresTransferRepository creates a new PostgresTransferRepository.
func NewPostgresTransferRepository(pool *Pool) *PostgresTransferRepository {
	return &PostgresTransferRepository{pool: pool}
}

// Compile-time interface check.
var _ repository.TransferRepository = (*PostgresTransferRepository)(nil)

// InsertTransfers stores the events in one transaction, skipping (signature, event_index) pairs already present.
func (s *PostgresTransferRepository) InsertTransfers(ctx context.Context, events []*entity.TransferEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	for _, e := range events {
		if e == nil {
			return 0, repository.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO transfer_events (
			signature, event_index, slot, block_time, kind, from_address, to_address, mint, amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (signature, event_index) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query,
			e.Signature,
			e.EventIndex,
			int64(e.Slot),
			e.BlockTime.UTC(),
			string(e.Kind),
			e.From,
			e.To,
			e.Mint,
			e.Amount,
		)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range events {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("insert transfer event: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// GetSharedInboundSenders returns wallets that sent to both a and b since the given time.
func (s *PostgresTransferRepository) GetSharedInboundSenders(ctx context.Context, a, b string, since time.Time) ([]entity.SharedCounterparty, error) {
	query := `
		SELECT from_address,
			count(*) FILTER (WHERE to_address = $1) AS events_a,
			count(*) FILTER (WHERE to_address = $2) AS events_b
		FROM transfer_events
		WHERE to_address IN ($1, $2)
			AND from_address <> $1 AND from_address <> $2
			AND block_time >= $3
		GROUP BY from_address
		HAVING count(*) FILTER (WHERE to_address = $1) > 0
			AND count(*) FILTER (WHERE to_address = $2) > 0
		ORDER BY count(*) DESC, from_address COLLATE "C" ASC
	`

	rows, err := s.pool.Query(ctx, query, a, b, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("get shared inbound senders: %w", err)
	}
	defer rows.Close()

	var shared []entity.SharedCounterparty
	for rows.Next() {
		var sc entity.SharedCounterparty
		if err := rows.Scan(&sc.Address, &sc.EventsA, &sc.EventsB); err != nil {
			return nil, fmt.Errorf("scan shared sender: %w", err)
		}
		shared = append(shared, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared senders: %w", err)
	}
	return shared, nil
}

// GetTopCounterparties returns the most frequent send destinations of a wallet. limit <= 0 means no limit.
func (s *PostgresTransferRepository) GetTopCounterparties(ctx context.Context, wallet string, since time.Time, limit int) ([]entity.Counterparty, error) {
	query := `
		SELECT to_address, count(*) AS events
		FROM transfer_events
		WHERE from_address = $1 AND to_address <> $1 AND block_time >= $2
		GROUP BY to_address
		ORDER BY events DESC, to_address COLLATE "C" ASC
		LIMIT $3
	`

	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, query, wallet, since.UTC(), lim)
	if err != nil {
		return nil, fmt.Errorf("get top counterparties: %w", err)
	}
	defer rows.Close()

	result := make([]entity.Counterparty, 0)
	for rows.Next() {
		var cp entity.Counterparty
		if err := rows.Scan(&cp.Address, &cp.EventCount); err != nil {
			return nil, fmt.Errorf("scan counterparty: %w", err)
		}
		result = append(result, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counterparties: %w", err)
	}
	return result, nil
}

// GetBehavioralProfile summarises the wallet's transfers since the given time,
// skipping transfers with exclude.
func (s *PostgresTransferRepository) GetBehavioralProfile(ctx context.Context, wallet, exclude string, since time.Time) (*entity.BehavioralProfile, error) {
	summary := `
		SELECT count(*), coalesce(avg(amount), 0), min(block_time), max(block_time)
		FROM transfer_events
		WHERE (from_address = $1 OR to_address = $1) AND block_time >= $2
			AND ($3 = '' OR (from_address <> $3 AND to_address <> $3))
	`

	profile := &entity.BehavioralProfile{Address: wallet}
	var first, last *time.Time
	err := s.pool.QueryRow(ctx, summary, wallet, since.UTC(), exclude).Scan(&profile.TxCount, &profile.AvgAmount, &first, &last)
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get behavioral profile: %w", err)
	}
	if profile.TxCount == 0 || first == nil || last == nil {
		return nil, repository.ErrNotFound
	}
	profile.FirstActivity = first.UTC()
	profile.LastActivity = last.UTC()

	hoursQuery := `
		SELECT extract(hour FROM block_time AT TIME ZONE 'UTC')::int AS hour, count(*)
		FROM transfer_events
		WHERE (from_address = $1 OR to_address = $1) AND block_time >= $2
			AND ($3 = '' OR (from_address <> $3 AND to_address <> $3))
		GROUP BY hour
	`

	rows, err := s.pool.Query(ctx, hoursQuery, wallet, since.UTC(), exclude)
	if err != nil {
		return nil, fmt.Errorf("get hour histogram: %w", err)
	}
	defer rows.Close()

	var hours [24]float64
	for rows.Next() {
		var hour int
		var count int64
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("scan hour bucket: %w", err)
		}
		if hour >= 0 && hour < 24 {
			hours[hour] = float64(count)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hour buckets: %w", err)
	}

	profile.TxPerDay = entity.ActivityRate(profile.TxCount, profile.FirstActivity, profile.LastActivity)
	profile.HourHistogram = entity.NormalizeHistogram(hours)
	return profile, nil
}

// GetTemporalOverlap compares the active buckets and slots of two wallets,
// ignoring transfers between them.
func (s *PostgresTransferRepository) GetTemporalOverlap(ctx context.Context, a, b string, since time.Time, bucket time.Duration) (*entity.TemporalOverlap, error) {
	if bucket < time.Second {
		return nil, repository.ErrInvalidInput
	}

	query := `
		WITH pair_free AS (
			SELECT from_address, to_address, block_time, slot FROM transfer_events
			WHERE block_time >= $3
				AND NOT (from_address = $1 AND to_address = $2)
				AND NOT (from_address = $2 AND to_address = $1)
		),
		activity AS (
			SELECT from_address AS wallet, block_time, slot FROM pair_free
			WHERE from_address IN ($1, $2)
			UNION ALL
			SELECT to_address AS wallet, block_time, slot FROM pair_free
			WHERE to_address IN ($1, $2)
		),
		buckets AS (
			SELECT DISTINCT wallet, floor(extract(epoch FROM block_time) / $4)::bigint AS bucket
			FROM activity
		),
		slots AS (
			SELECT DISTINCT wallet, slot FROM activity
		)
		SELECT
			(SELECT count(*) FROM buckets WHERE wallet = $1),
			(SELECT count(*) FROM buckets WHERE wallet = $2),
			(SELECT count(*) FROM buckets x JOIN buckets y ON x.bucket = y.bucket WHERE x.wallet = $1 AND y.wallet = $2),
			(SELECT count(*) FROM slots x JOIN slots y ON x.slot = y.slot WHERE x.wallet = $1 AND y.wallet = $2)
	`

	overlap := &entity.TemporalOverlap{}
	err := s.pool.QueryRow(ctx, query, a, b, since.UTC(), int64(bucket/time.Second)).Scan(
		&overlap.ActiveBucketsA,
		&overlap.ActiveBucketsB,
		&overlap.SharedBuckets,
		&overlap.SameSlotCount,
	)
	if err != nil {
		return nil, fmt.Errorf("get temporal overlap: %w", err)
	}
	return overlap, nil
}

// Ping checks connectivity.
func (s *PostgresTransferRepository) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
