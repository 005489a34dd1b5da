package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"crypto-dashboard/internal/domain"
)

// PostgresWatchlistRepository stores watchlists in the watchlist_items table.
type PostgresWatchlistRepository struct {
	pool *pgxpool.Pool
}

var _ domain.WatchlistStore = (*PostgresWatchlistRepository)(nil)

func NewPostgresWatchlistRepository(pool *pgxpool.Pool) *PostgresWatchlistRepository {
	return &PostgresWatchlistRepository{pool: pool}
}

func (r *PostgresWatchlistRepository) Add(ctx context.Context, item domain.WatchlistItem) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	if item.ID != "" {
		if id, err = uuid.Parse(item.ID); err != nil {
			return fmt.Errorf("%w: watchlist id %q", domain.ErrInvalidParameter, item.ID)
		}
	}
	addedAt := item.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}

	_, err = r.pool.Exec(ctx, `
		insert into watchlist_items(id, user_id, coin_id, symbol, name, added_at)
		values ($1,$2,$3,$4,$5,$6)
		on conflict (user_id, coin_id) do nothing
	`, id, item.UserID, item.CoinID, item.Symbol, item.Name, addedAt)
	if err != nil {
		return fmt.Errorf("insert watchlist item: %w", err)
	}
	return nil
}

func (r *PostgresWatchlistRepository) List(ctx context.Context, userID string) ([]domain.WatchlistItem, error) {
	rows, err := r.pool.Query(ctx, `
		select id, user_id, coin_id, symbol, name, added_at
		from watchlist_items
		where user_id = $1
		order by added_at asc
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	items := []domain.WatchlistItem{}
	for rows.Next() {
		var (
			it domain.WatchlistItem
			id uuid.UUID
		)
		if err := rows.Scan(&id, &it.UserID, &it.CoinID, &it.Symbol, &it.Name, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("scan watchlist item: %w", err)
		}
		it.ID = id.String()
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	return items, nil
}

func (r *PostgresWatchlistRepository) Remove(ctx context.Context, userID, coinID string) error {
	tag, err := r.pool.Exec(ctx, `delete from watchlist_items where user_id = $1 and coin_id = $2`, userID, coinID)
	if err != nil {
		return fmt.Errorf("delete watchlist item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
