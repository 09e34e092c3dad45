package formulation

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/errs"
)

var testTime = time.Date(2026, 6, 2, 10, 30, 0, 0, time.UTC)

func testFormulation(terpene string) *Formulation {
	f := &Formulation{
		Media:             "D9",
		MediaBrand:        "Acme",
		Terpene:           terpene,
		TerpeneBrand:      "Blendco",
		TargetViscosity:   500_000,
		OilMass:           100,
		Step1Amount:       1,
		Step1Viscosity:    2_000_000,
		Step2Amount:       1.5,
		Step2Viscosity:    520_000,
		ExpectedViscosity: 500_000,
		Method:            MethodDecay,
	}
	f.Complete()

	return f
}

func TestFormulation_Derived(t *testing.T) {
	f := testFormulation("Grape Ape")

	require.Equal(t, "D9_Acme_Grape Ape_Blendco", f.Key())
	require.InDelta(t, 0.01, f.Step1TerpenePct, 1e-12)
	require.InDelta(t, 2.5, f.TotalTerpeneMass, 1e-12)
	require.InDelta(t, 0.025, f.TotalTerpenePct, 1e-12)
	require.InDelta(t, 0.99, f.Step1Potency, 1e-12)
	require.InDelta(t, 0.975, f.FinalPotency, 1e-12)
	require.NoError(t, f.Validate())

	rows := f.Measurements()
	require.Len(t, rows, 2)
	require.Equal(t, "step1", rows[0].Stage)
	require.Equal(t, "step2", rows[1].Stage)
	for _, r := range rows {
		require.Equal(t, MeasurementTemperature, r.Temperature.V)
		require.Equal(t, "D9", r.Media)
		require.Equal(t, "Grape Ape", r.Terpene)
	}
	require.InDelta(t, 0.01, rows[0].TerpenePct.V, 1e-12)
	require.InDelta(t, 0.025, rows[1].TerpenePct.V, 1e-12)
	require.Equal(t, 2_000_000.0, rows[0].Viscosity.V)
	require.Equal(t, 520_000.0, rows[1].Viscosity.V)
}

func TestFormulation_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Formulation)
		want   error
	}{
		{"missing media", func(f *Formulation) { f.Media = " " }, errs.ErrInvalidInput},
		{"zero oil", func(f *Formulation) { f.OilMass = 0 }, errs.ErrInvalidInput},
		{"zero target", func(f *Formulation) { f.TargetViscosity = 0 }, errs.ErrInvalidTarget},
		{"zero step2 viscosity", func(f *Formulation) { f.Step2Viscosity = 0 }, errs.ErrInvalidInput},
		{"negative amount", func(f *Formulation) { f.Step2Amount = -1 }, errs.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFormulation("Grape Ape")
			tt.mutate(f)
			require.ErrorIs(t, f.Validate(), tt.want)
		})
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "db", "formulations.jsonl"), nil)

	a := testFormulation("Grape Ape")
	b := testFormulation("Tiger's Blood")
	c := testFormulation("Grape Ape")
	for _, f := range []*Formulation{a, b, c} {
		require.NoError(t, store.Append(ctx, f))
		require.NotEmpty(t, f.ID)
		require.False(t, f.CreatedAt.IsZero())
	}
	require.NotEqual(t, a.ID, c.ID)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	grape, err := store.List(ctx, a.Key())
	require.NoError(t, err)
	require.Len(t, grape, 2)
	require.Equal(t, a.ID, grape[0].ID)
	require.Equal(t, c.ID, grape[1].ID)
	require.InDelta(t, a.TotalTerpenePct, grape[0].TotalTerpenePct, 1e-15)

	removed, err := store.Delete(ctx, a.Key())
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	all, err = store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, b.ID, all[0].ID)

	removed, err = store.Delete(ctx, "missing")
	require.NoError(t, err)
	require.Zero(t, removed)

	require.ErrorIs(t, store.Append(ctx, &Formulation{}), errs.ErrInvalidInput)
}

func TestFileStore_EmptyList(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "none.jsonl"), nil)

	all, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, all)
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewPostgresStore(sqlx.NewDb(db, "postgres"), nil)
	store.now = func() time.Time { return testTime }

	return store, mock
}

func TestPostgresStore_Append(t *testing.T) {
	store, mock := newMockStore(t)

	f := testFormulation("Grape Ape")
	f.ID = "0190c0de-0000-7000-8000-000000000001"
	d9 := 0.8
	f.D9THC = &d9

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO formulations")).
		WithArgs(
			f.ID, f.Key(), "D9", "Acme", "Grape Ape", "Blendco",
			500_000.0, 100.0,
			1.0, 2_000_000.0, f.Step1TerpenePct,
			1.5, 520_000.0, 500_000.0,
			2.5, f.TotalTerpenePct, f.Step1Potency, f.FinalPotency,
			0.8, nil, "decay", testTime,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Append(context.Background(), f))
	require.Equal(t, testTime, f.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAndDelete(t *testing.T) {
	store, mock := newMockStore(t)
	key := Key("D9", "Acme", "Grape Ape_Blendco")

	rows := sqlmock.NewRows([]string{
		"id", "media", "media_brand", "terpene", "terpene_brand", "target_viscosity", "oil_mass",
		"step1_amount", "step1_viscosity", "step1_terpene_pct", "step2_amount", "step2_viscosity",
		"expected_viscosity", "total_terpene_mass", "total_terpene_pct", "step1_potency", "final_potency",
		"d9_thc", "d8_thc", "method", "created_at",
	}).AddRow(
		"id-1", "D9", "Acme", "Grape Ape", "Blendco", 500_000.0, 100.0,
		1.0, 2_000_000.0, 0.01, 1.5, 520_000.0,
		500_000.0, 2.5, 0.025, 0.99, 0.975,
		nil, nil, "model", testTime,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM formulations WHERE formulation_key = $1")).
		WithArgs(key).
		WillReturnRows(rows)

	list, err := store.List(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "id-1", list[0].ID)
	require.Equal(t, MethodModel, list[0].Method)
	require.Nil(t, list[0].D9THC)
	require.Equal(t, key, list[0].Key())

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM formulations WHERE formulation_key = $1")).
		WithArgs(key).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.Delete(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS formulations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_MirrorsMaster(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "master.csv")
	rec := NewRecorder(NewFileStore(filepath.Join(dir, "f.jsonl"), nil), master, nil)

	require.NoError(t, rec.Record(context.Background(), testFormulation("Grape Ape")))
	require.NoError(t, rec.Record(context.Background(), testFormulation("Tiger's Blood")))

	records, err := dataset.LoadCSV(master)
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.Equal(t, "step1", records[0].Stage)
	require.Equal(t, "step2", records[3].Stage)

	samples, report, err := dataset.Clean(records)
	require.NoError(t, err)
	require.Zero(t, report.RejectedRows())
	require.Len(t, samples, 4)
	require.Equal(t, "Grape Ape_Blendco", samples[0].Terpene)
	require.InDelta(t, 0.01, samples[0].TerpenePct, 1e-9)
	require.InDelta(t, 0.99, samples[0].Potency, 1e-9)

	stored, err := rec.Store().List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestRecorder_MirrorFailureKeepsRecord(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	master := filepath.Join(blocker, "master.csv")
	store := NewFileStore(filepath.Join(dir, "f.jsonl"), nil)
	rec := NewRecorder(store, master, nil)
	ctx := context.Background()

	f := testFormulation("Grape Ape")
	err := rec.Record(ctx, f)
	require.ErrorIs(t, err, ErrMirrorFailed)
	require.NotEmpty(t, f.ID)

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, rec.Mirror(ctx, f))

	stored, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	rows, err := dataset.LoadCSV(master)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
