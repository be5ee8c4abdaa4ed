package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepo is the persistence collaborator. Every method is bounded by
// the caller's context; the server core never blocks indefinitely on it.
type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) GetPool() *pgxpool.Pool {
	return r.pool
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func wrapQueryError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", UnexpectedDatabaseError, err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	// "23505" is the PostgreSQL error code for unique_violation
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- accounts ---

func (r *PostgresRepo) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	acc := Account{Username: username}

	row := r.pool.QueryRow(ctx,
		"SELECT id, password_hash, coins FROM accounts WHERE username = $1", username)

	if err := row.Scan(&acc.ID, &acc.PasswordHash, &acc.Coins); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, wrapQueryError(err)
	}

	return acc, nil
}

func (r *PostgresRepo) CreateAccount(ctx context.Context, username, passwordHash string) (uint32, error) {
	row := r.pool.QueryRow(ctx,
		"INSERT INTO accounts(username, password_hash) VALUES($1, $2) RETURNING id",
		username, passwordHash)

	var id uint32
	if err := row.Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateName
		}
		return 0, wrapQueryError(err)
	}
	return id, nil
}

// --- characters ---

func (r *PostgresRepo) GetCharacterByAccount(ctx context.Context, accountID uint32) (Character, error) {
	ch := Character{AccountID: accountID}

	row := r.pool.QueryRow(ctx,
		"SELECT id, name, level FROM characters WHERE account_id = $1", accountID)

	if err := row.Scan(&ch.ID, &ch.Name, &ch.Level); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Character{}, ErrCharacterNotFound
		}
		return Character{}, wrapQueryError(err)
	}

	return ch, nil
}

func (r *PostgresRepo) CreateCharacter(ctx context.Context, accountID uint32, name string) (Character, error) {
	row := r.pool.QueryRow(ctx,
		"INSERT INTO characters(account_id, name, level) VALUES($1, $2, 1) RETURNING id",
		accountID, name)

	var id uint32
	if err := row.Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return Character{}, ErrDuplicateName
		}
		return Character{}, wrapQueryError(err)
	}
	return Character{ID: id, AccountID: accountID, Name: name, Level: 1}, nil
}

// --- garage / inventory ---

func (r *PostgresRepo) GetVehicles(ctx context.Context, accountID uint32) ([]Vehicle, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, template_id, level, paint, equipped FROM vehicles WHERE account_id = $1 ORDER BY id",
		accountID)
	if err != nil {
		return nil, wrapQueryError(err)
	}
	defer rows.Close()

	var vehicles []Vehicle
	for rows.Next() {
		v := Vehicle{AccountID: accountID}
		if err := rows.Scan(&v.ID, &v.TemplateID, &v.Level, &v.Paint, &v.Equipped); err != nil {
			return nil, wrapQueryError(err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (r *PostgresRepo) EquipVehicle(ctx context.Context, accountID, vehicleID uint32) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return wrapQueryError(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"UPDATE vehicles SET equipped = false WHERE account_id = $1", accountID); err != nil {
		return wrapQueryError(err)
	}
	tag, err := tx.Exec(ctx,
		"UPDATE vehicles SET equipped = true WHERE account_id = $1 AND id = $2",
		accountID, vehicleID)
	if err != nil {
		return wrapQueryError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVehicleNotFound
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepo) GetItems(ctx context.Context, accountID uint32) ([]Item, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, template_id, quantity, slot, equipped FROM items WHERE account_id = $1 ORDER BY id",
		accountID)
	if err != nil {
		return nil, wrapQueryError(err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it := Item{AccountID: accountID}
		if err := rows.Scan(&it.ID, &it.TemplateID, &it.Quantity, &it.Slot, &it.Equipped); err != nil {
			return nil, wrapQueryError(err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PostgresRepo) EquipItem(ctx context.Context, accountID, itemID uint32, slot uint8) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return wrapQueryError(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"UPDATE items SET equipped = false WHERE account_id = $1 AND slot = $2",
		accountID, slot); err != nil {
		return wrapQueryError(err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE items SET equipped = true, slot = $3 WHERE account_id = $1 AND id = $2",
		accountID, itemID, slot); err != nil {
		return wrapQueryError(err)
	}
	return tx.Commit(ctx)
}

// PurchaseItem deducts the price and grants the item in one transaction.
func (r *PostgresRepo) PurchaseItem(ctx context.Context, accountID, templateID uint32, price int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return wrapQueryError(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"UPDATE accounts SET coins = coins - $2 WHERE id = $1 AND coins >= $2",
		accountID, price)
	if err != nil {
		return wrapQueryError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO items(account_id, template_id, quantity)
		VALUES($1, $2, 1)
		ON CONFLICT (account_id, template_id) DO UPDATE SET quantity = items.quantity + 1`,
		accountID, templateID); err != nil {
		return wrapQueryError(err)
	}
	return tx.Commit(ctx)
}

// --- anti-cheat ---

func (r *PostgresRepo) InsertViolation(ctx context.Context, id string, accountID uint32, vtype, severity, details string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO violations(id, account_id, violation_type, severity, details)
		VALUES($1, $2, $3, $4, $5)`,
		id, accountID, vtype, severity, details)
	if err != nil {
		return wrapQueryError(err)
	}
	return nil
}

func (r *PostgresRepo) InsertAnomalousLap(ctx context.Context, accountID uint32, mapID uint32, lapTimeMs int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO anomalous_laps(account_id, map_id, lap_time_ms)
		VALUES($1, $2, $3)`,
		accountID, mapID, lapTimeMs)
	if err != nil {
		return wrapQueryError(err)
	}
	return nil
}

func (r *PostgresRepo) InsertBan(ctx context.Context, id string, accountID uint32, ip, reason string, until time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bans(id, account_id, ip, reason, expires_at)
		VALUES($1, $2, $3, $4, $5)`,
		id, accountID, ip, reason, until)
	if err != nil {
		return wrapQueryError(err)
	}
	return nil
}

func (r *PostgresRepo) IsAccountBanned(ctx context.Context, accountID uint32) (bool, error) {
	var banned bool
	row := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM bans WHERE account_id = $1 AND expires_at > now())",
		accountID)
	if err := row.Scan(&banned); err != nil {
		return false, wrapQueryError(err)
	}
	return banned, nil
}

func (r *PostgresRepo) IsIPBanned(ctx context.Context, ip string) (bool, error) {
	var banned bool
	row := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM bans WHERE ip = $1 AND expires_at > now())", ip)
	if err := row.Scan(&banned); err != nil {
		return false, wrapQueryError(err)
	}
	return banned, nil
}

// --- ghosts ---

func (r *PostgresRepo) SaveGhost(ctx context.Context, accountID, mapID uint32, lapTimeMs int64, data []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ghosts(account_id, map_id, lap_time_ms, data)
		VALUES($1, $2, $3, $4)`,
		accountID, mapID, lapTimeMs, data)
	if err != nil {
		return wrapQueryError(err)
	}
	return nil
}

func (r *PostgresRepo) BestGhost(ctx context.Context, mapID uint32) (Ghost, error) {
	g := Ghost{MapID: mapID}

	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, lap_time_ms, data FROM ghosts
		WHERE map_id = $1 ORDER BY lap_time_ms ASC LIMIT 1`, mapID)

	if err := row.Scan(&g.ID, &g.AccountID, &g.LapTimeMs, &g.Data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ghost{}, ErrGhostNotFound
		}
		return Ghost{}, wrapQueryError(err)
	}
	return g, nil
}

// --- license / missions ---

func (r *PostgresRepo) LicenseLevel(ctx context.Context, accountID uint32) (uint8, error) {
	var level uint8
	row := r.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(level), 0) FROM licenses WHERE account_id = $1", accountID)
	if err := row.Scan(&level); err != nil {
		return 0, wrapQueryError(err)
	}
	return level, nil
}

func (r *PostgresRepo) AdvanceLicense(ctx context.Context, accountID uint32, level uint8) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO licenses(account_id, level) VALUES($1, $2)
		ON CONFLICT (account_id, level) DO NOTHING`,
		accountID, level)
	if err != nil {
		return wrapQueryError(err)
	}
	return nil
}

func (r *PostgresRepo) CompleteMission(ctx context.Context, accountID, missionID uint32) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mission_progress(account_id, mission_id, completed_at)
		VALUES($1, $2, now())
		ON CONFLICT (account_id, mission_id) DO NOTHING`,
		accountID, missionID)
	if err != nil {
		return wrapQueryError(err)
	}
	return nil
}
