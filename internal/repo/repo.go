package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"shiftledger/internal/config"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) EnsureFacility(ctx context.Context, tx *sql.Tx, id, name, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO facilities(id, name, created_at) VALUES (?,?,?)`, id, nullable(name), now)
	return err
}

func (r Repo) EnsureStaff(ctx context.Context, tx *sql.Tx, staffID, now string) error {
	if staffID == "" {
		return errors.New("staff_id required")
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO staff(id, created_at) VALUES (?,?)`, staffID, now)
	return err
}

func (r Repo) UpsertFacilityConfig(ctx context.Context, facilityID string, cfg *config.Config) error {
	return upsertFacilityConfig(ctx, r.DB, nil, facilityID, cfg)
}

func (r Repo) UpsertFacilityConfigTx(ctx context.Context, tx *sql.Tx, facilityID string, cfg *config.Config) error {
	return upsertFacilityConfig(ctx, nil, tx, facilityID, cfg)
}

func upsertFacilityConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, facilityID string, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config nil")
	}
	cfg.Facility.ID = facilityID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO facility_configs(facility_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(facility_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, facilityID, string(payload), now, now)
	return err
}

func (r Repo) GetFacilityConfig(ctx context.Context, facilityID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM facility_configs WHERE facility_id=?`, facilityID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Facility.ID == "" {
		cfg.Facility.ID = facilityID
	}
	return &cfg, cfg.Validate()
}

// SingleFacility returns the only facility id, or ErrNotFound.
func (r Repo) SingleFacility(ctx context.Context) (string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM facilities`)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ErrNotFound
	}
	if len(ids) > 1 {
		return "", errors.New("multiple facilities exist; specify --facility")
	}
	return ids[0], nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
