package formulation

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"go.uber.org/zap"
)

// Schema creates the formulations table.
const Schema = `
CREATE TABLE IF NOT EXISTS formulations (
	id                 TEXT PRIMARY KEY,
	formulation_key    TEXT NOT NULL,
	media              TEXT NOT NULL,
	media_brand        TEXT NOT NULL DEFAULT '',
	terpene            TEXT NOT NULL DEFAULT '',
	terpene_brand      TEXT NOT NULL DEFAULT '',
	target_viscosity   DOUBLE PRECISION NOT NULL,
	oil_mass           DOUBLE PRECISION NOT NULL,
	step1_amount       DOUBLE PRECISION NOT NULL,
	step1_viscosity    DOUBLE PRECISION NOT NULL,
	step1_terpene_pct  DOUBLE PRECISION NOT NULL,
	step2_amount       DOUBLE PRECISION NOT NULL,
	step2_viscosity    DOUBLE PRECISION NOT NULL,
	expected_viscosity DOUBLE PRECISION NOT NULL,
	total_terpene_mass DOUBLE PRECISION NOT NULL,
	total_terpene_pct  DOUBLE PRECISION NOT NULL,
	step1_potency      DOUBLE PRECISION NOT NULL,
	final_potency      DOUBLE PRECISION NOT NULL,
	d9_thc             DOUBLE PRECISION,
	d8_thc             DOUBLE PRECISION,
	method             TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS formulations_key_idx ON formulations (formulation_key, created_at);`

const columns = `id, media, media_brand, terpene, terpene_brand, target_viscosity, oil_mass,
	step1_amount, step1_viscosity, step1_terpene_pct, step2_amount, step2_viscosity,
	expected_viscosity, total_terpene_mass, total_terpene_pct, step1_potency, final_potency,
	d9_thc, d8_thc, method, created_at`

// PostgresStore keeps formulations in PostgreSQL.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database.
func NewPostgresStore(db *sqlx.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PostgresStore{db: db, logger: logger, now: time.Now}
}

// OpenPostgres connects to dsn and returns a store.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return NewPostgresStore(db, logger), nil
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate formulations: %w", err)
	}

	return nil
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Append(ctx context.Context, f *Formulation) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := stamp(f, s.now); err != nil {
		return err
	}

	const query = `
		INSERT INTO formulations (
			id, formulation_key, media, media_brand, terpene, terpene_brand,
			target_viscosity, oil_mass,
			step1_amount, step1_viscosity, step1_terpene_pct,
			step2_amount, step2_viscosity, expected_viscosity,
			total_terpene_mass, total_terpene_pct, step1_potency, final_potency,
			d9_thc, d8_thc, method, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)`

	_, err := s.db.ExecContext(ctx, query,
		f.ID, f.Key(), f.Media, f.MediaBrand, f.Terpene, f.TerpeneBrand,
		f.TargetViscosity, f.OilMass,
		f.Step1Amount, f.Step1Viscosity, f.Step1TerpenePct,
		f.Step2Amount, f.Step2Viscosity, f.ExpectedViscosity,
		f.TotalTerpeneMass, f.TotalTerpenePct, f.Step1Potency, f.FinalPotency,
		f.D9THC, f.D8THC, string(f.Method), f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert formulation: %w", err)
	}

	s.logger.Info("recorded formulation", zap.String("key", f.Key()), zap.String("id", f.ID))

	return nil
}

func (s *PostgresStore) List(ctx context.Context, key string) ([]Formulation, error) {
	var (
		out []Formulation
		err error
	)
	if key == "" {
		err = s.db.SelectContext(ctx, &out,
			`SELECT `+columns+` FROM formulations ORDER BY created_at, id`)
	} else {
		err = s.db.SelectContext(ctx, &out,
			`SELECT `+columns+` FROM formulations WHERE formulation_key = $1 ORDER BY created_at, id`, key)
	}
	if err != nil {
		return nil, fmt.Errorf("list formulations: %w", err)
	}

	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM formulations WHERE formulation_key = $1`, key)
	if err != nil {
		return 0, fmt.Errorf("delete formulations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.logger.Info("deleted formulations", zap.String("key", key), zap.Int64("removed", n))

	return int(n), nil
}
