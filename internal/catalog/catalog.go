package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/wrauth/internal/model"
)

// Catalog wraps a pgx connection pool for user and server lookups. The auth
// service never writes rows except the displayname update; everything else
// is owned by the cluster's account tooling.
type Catalog struct {
	pool    *pgxpool.Pool
	servers *serverListCache
}

// New connects to PostgreSQL and returns a Catalog handle.
func New(ctx context.Context, dsn string) (*Catalog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	c := &Catalog{pool: pool}
	c.servers = newServerListCache(serverListTTL, c.queryActiveServers)
	return c, nil
}

// Close closes the connection pool.
func (c *Catalog) Close() {
	c.pool.Close()
}

// Pool returns the underlying pgx pool.
func (c *Catalog) Pool() *pgxpool.Pool {
	return c.pool
}

// HashPassword hashes a plain password with its per-user salt the way the
// launcher expects: lowercase hex of SHA-256(password || salt).
func HashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// LookupUser retrieves a user row by username.
// Returns nil, nil if the user does not exist.
func (c *Catalog) LookupUser(ctx context.Context, username string) (*model.UserRecord, error) {
	var u model.UserRecord
	err := c.pool.QueryRow(ctx,
		`SELECT id, username, displayname, password, salt, rights
		 FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.Displayname, &u.PasswordHash, &u.Salt, &u.Rights)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user %q: %w", username, err)
	}
	return &u, nil
}

// DisplaynameTaken reports whether any user already owns the displayname.
func (c *Catalog) DisplaynameTaken(ctx context.Context, displayname string) (bool, error) {
	var taken bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE displayname = $1)`, displayname,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("checking displayname %q: %w", displayname, err)
	}
	return taken, nil
}

// UpdateDisplayname persists a first-time nickname for the user.
func (c *Catalog) UpdateDisplayname(ctx context.Context, username, displayname string) error {
	_, err := c.pool.Exec(ctx,
		`UPDATE users SET displayname = $1 WHERE username = $2`,
		displayname, username,
	)
	if err != nil {
		return fmt.Errorf("updating displayname for %q: %w", username, err)
	}
	return nil
}

// ListActiveServers returns the registered active game servers. The result
// is served from a short TTL cache: a burst of node auth attempts costs one
// query instead of one per packet.
func (c *Catalog) ListActiveServers(ctx context.Context) ([]model.ServerRecord, error) {
	return c.servers.get(ctx)
}

const serverListTTL = 10 * time.Second

func (c *Catalog) queryActiveServers(ctx context.Context) ([]model.ServerRecord, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT server_id, address, port FROM servers WHERE active ORDER BY server_id`)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer rows.Close()

	var list []model.ServerRecord
	for rows.Next() {
		var s model.ServerRecord
		if err := rows.Scan(&s.ID, &s.Address, &s.Port); err != nil {
			return nil, fmt.Errorf("scanning server row: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating servers: %w", err)
	}
	return list, nil
}
