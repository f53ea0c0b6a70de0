// Package app resolves the working facility and its configuration before
// commands or the server touch the ledger.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shiftledger/internal/config"
	"shiftledger/internal/repo"
)

// ResolveFacilityAndConfig picks the active facility and ensures a facility
// row plus a stored config exist, seeding defaults when missing. Resolution
// order: explicit override, workspace shiftledger.yml, single facility in
// the database, then "default-facility". A workspace config file always
// wins over the stored copy and is written back to the database.
func ResolveFacilityAndConfig(ctx context.Context, workspace, facilityOverride, staffID string, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}

	facilityID := facilityOverride
	if facilityID == "" && fileCfg != nil {
		facilityID = fileCfg.Facility.ID
	}
	if facilityID == "" {
		if id, err := r.SingleFacility(ctx); err == nil {
			facilityID = id
		} else {
			facilityID = "default-facility"
		}
	}

	seedCfg := fileCfg
	if seedCfg == nil {
		seedCfg = config.Default(facilityID)
	}
	seedCfg.Facility.ID = facilityID

	if err := ensureFacility(ctx, r, facilityID, seedCfg, staffID); err != nil {
		return "", nil, err
	}

	if fileCfg != nil {
		if err := r.UpsertFacilityConfig(ctx, facilityID, fileCfg); err != nil {
			return "", nil, fmt.Errorf("store facility config: %w", err)
		}
		return facilityID, fileCfg, nil
	}

	cfg, err := r.GetFacilityConfig(ctx, facilityID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := r.UpsertFacilityConfig(ctx, facilityID, seedCfg); err != nil {
			return "", nil, fmt.Errorf("seed facility config: %w", err)
		}
		cfg = seedCfg
	}
	cfg.Facility.ID = facilityID
	return facilityID, cfg, nil
}

func ensureFacility(ctx context.Context, r repo.Repo, facilityID string, cfg *config.Config, staffID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	name := cfg.Facility.Name
	if name == "" {
		name = facilityID
	}
	if err := r.EnsureFacility(ctx, tx, facilityID, name, now); err != nil {
		return fmt.Errorf("ensure facility: %w", err)
	}
	if staffID == "" {
		staffID = "local-staff"
	}
	if err := r.EnsureStaff(ctx, tx, staffID, now); err != nil {
		return fmt.Errorf("ensure staff: %w", err)
	}
	return tx.Commit()
}
