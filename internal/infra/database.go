package infra

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bomcore/internal/model"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies idempotent SQL patches that GORM
// cannot express (partial indexes, append-only protection on the audit table).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true, // surface gorm.ErrDuplicatedKey on unique violations
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

// RunMigrations applies the schema. Shared with integration tests so they see
// the exact production schema.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Item{},
		&model.Customer{},
		&model.BOMEdge{},
		&model.DeductionLog{},
		&model.ProductionTransaction{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot fully handle.
// Each statement uses IF NOT EXISTS / guarded DO blocks so re-running on an
// already-patched DB is safe.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		// Partial index for the child-edge lookup the resolver does on every
		// traversal step: only active edges participate.
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_bom_edges_active_parent') THEN
		    CREATE INDEX idx_bom_edges_active_parent
		        ON bom_edges (parent_item_id, customer_id)
		        WHERE active = true;
		  END IF;
		END $$`,
		// deduction_logs is append-only: forbid UPDATE and DELETE at the DB
		// level so no code path can mutate the audit trail.
		`CREATE OR REPLACE FUNCTION deduction_logs_immutable() RETURNS trigger AS $$
		 BEGIN
		   RAISE EXCEPTION 'deduction_logs rows are immutable';
		 END;
		 $$ LANGUAGE plpgsql`,
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_deduction_logs_immutable') THEN
		    CREATE TRIGGER trg_deduction_logs_immutable
		        BEFORE UPDATE OR DELETE ON deduction_logs
		        FOR EACH ROW EXECUTE FUNCTION deduction_logs_immutable();
		  END IF;
		END $$`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}
