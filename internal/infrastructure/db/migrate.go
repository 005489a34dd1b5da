package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the tables the dashboard persists to.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists watchlist_items (
			id uuid primary key,
			user_id text not null,
			coin_id text not null,
			symbol text not null default '',
			name text not null default '',
			added_at timestamptz not null default now(),
			unique (user_id, coin_id)
		);`,
		`create index if not exists watchlist_items_user_added_idx on watchlist_items(user_id, added_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
