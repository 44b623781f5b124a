package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the two tables the store needs.  Statements are
// idempotent so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS departures (
		id              VARCHAR(64)  NOT NULL,
		capacity        INT UNSIGNED NOT NULL,
		confirmed_count INT UNSIGNED NOT NULL DEFAULT 0,
		created_at      DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		PRIMARY KEY (id),
		CONSTRAINT chk_departures_confirmed CHECK (confirmed_count <= capacity)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_holds (
		id           CHAR(36)     NOT NULL,
		departure_id VARCHAR(64)  NOT NULL,
		quantity     INT UNSIGNED NOT NULL,
		owner_ref    VARCHAR(128) NOT NULL,
		state        ENUM('pending','confirmed','released','expired') NOT NULL DEFAULT 'pending',
		created_at   DATETIME(6)  NOT NULL,
		expires_at   DATETIME(6)  NOT NULL,
		updated_at   DATETIME(6)  NOT NULL,
		PRIMARY KEY (id),
		KEY idx_holds_departure_state_expiry (departure_id, state, expires_at),
		KEY idx_holds_state_expiry (state, expires_at),
		CONSTRAINT fk_holds_departure FOREIGN KEY (departure_id) REFERENCES departures (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
