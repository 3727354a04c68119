package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/models"
)

// UpsertVault registers a vault root and returns its id. A new vault with
// no name is named after its directory; registering an existing root keeps
// the id and only replaces the name when a non-empty one is given.
func (db *DB) UpsertVault(ctx context.Context, rootPath, name string) (int64, error) {
	initial := name
	if initial == "" {
		initial = filepath.Base(rootPath)
	}
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO vaults (root_path, name) VALUES (?, ?)
		ON CONFLICT(root_path) DO UPDATE SET
			name = CASE WHEN ? = '' THEN vaults.name ELSE excluded.name END
		RETURNING id`, rootPath, initial, name).Scan(&id)
	if err != nil {
		return 0, apperr.Persist("upsert", "vault "+rootPath, err)
	}
	return id, nil
}

// GetVault returns the vault with the given id.
func (db *DB) GetVault(ctx context.Context, id int64) (*models.Vault, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT id, root_path, name, last_scanned_at FROM vaults WHERE id = ?`, id)
	return scanVault(row, vaultEntity(id))
}

// GetVaultByPath returns the vault registered for rootPath.
func (db *DB) GetVaultByPath(ctx context.Context, rootPath string) (*models.Vault, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT id, root_path, name, last_scanned_at FROM vaults WHERE root_path = ?`, rootPath)
	return scanVault(row, "vault "+rootPath)
}

// ListVaults returns all registered vaults ordered by id.
func (db *DB) ListVaults(ctx context.Context) ([]models.Vault, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, root_path, name, last_scanned_at FROM vaults ORDER BY id`)
	if err != nil {
		return nil, apperr.Persist("list", "vaults", err)
	}
	defer rows.Close()

	var out []models.Vault
	for rows.Next() {
		v, err := scanVault(rows, "vaults")
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, apperr.Persist("list", "vaults", rows.Err())
}

// TouchVault records the completion time of a scan.
func (db *DB) TouchVault(ctx context.Context, vaultID int64, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE vaults SET last_scanned_at = ? WHERE id = ?`, at.UTC(), vaultID)
	if err != nil {
		return apperr.Persist("touch", vaultEntity(vaultID), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", vaultEntity(vaultID), apperr.ErrVaultNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVault(row rowScanner, entity string) (*models.Vault, error) {
	var v models.Vault
	var scanned sql.NullTime
	if err := row.Scan(&v.ID, &v.RootPath, &v.Name, &scanned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", entity, apperr.ErrVaultNotFound)
		}
		return nil, apperr.Persist("get", entity, err)
	}
	if scanned.Valid {
		t := scanned.Time
		v.LastScannedAt = &t
	}
	return &v, nil
}
