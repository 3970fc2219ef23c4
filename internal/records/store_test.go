package records_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"depotdeck/internal/depot"
	"depotdeck/internal/records"
	"depotdeck/internal/testsupport"
)

func sampleTitle() records.InstalledTitle {
	return records.InstalledTitle{
		TargetKey:   "local",
		TitleID:     "10",
		TitleName:   "Counter-Strike",
		InstallRoot: "/home/deck/.local/share/Steam",
		InstallDir:  "Half-Life",
		SizeBytes:   1 << 30,
		Depots: []records.DepotVersion{
			{DepotID: "11", ManifestID: "100"},
			{DepotID: "12", ManifestID: "200"},
		},
		InstalledViaMarker: true,
	}
}

func TestUpsertAndGet(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.Upsert(ctx, sampleTitle()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	got, err := store.Get(ctx, "local", "10")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.TitleName != "Counter-Strike" || got.SizeBytes != 1<<30 || !got.InstalledViaMarker {
		t.Fatalf("unexpected record %#v", got)
	}
	if len(got.Depots) != 2 || got.Depots[1].ManifestID != "200" {
		t.Fatalf("unexpected depots %#v", got.Depots)
	}
	if got.InstalledAt.IsZero() {
		t.Fatal("expected installed timestamp")
	}

	missing, err := store.Get(ctx, "deck@steamdeck:22", "10")
	if err != nil || missing != nil {
		t.Fatalf("expected no record for other target, got %#v, %v", missing, err)
	}
}

func TestUpsertReplacesDepotsAndKeepsInstallTime(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := sampleTitle()
	first.InstalledAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	update := sampleTitle()
	update.InstalledAt = time.Time{}
	update.Depots = []records.DepotVersion{{DepotID: "11", ManifestID: "101"}}
	if err := store.Upsert(ctx, update); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	got, _ := store.Get(ctx, "local", "10")
	if len(got.Depots) != 1 || got.Depots[0].ManifestID != "101" {
		t.Fatalf("expected depots replaced, got %#v", got.Depots)
	}
	if !got.InstalledAt.Equal(first.InstalledAt) {
		t.Fatalf("install time changed to %v", got.InstalledAt)
	}
}

func TestListFiltersByTarget(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for _, rec := range []records.InstalledTitle{
		{TargetKey: "local", TitleID: "20", TitleName: "portal", InstallDir: "Portal"},
		{TargetKey: "local", TitleID: "10", TitleName: "Counter-Strike", InstallDir: "Half-Life"},
		{TargetKey: "deck@steamdeck:22", TitleID: "30", TitleName: "Dota", InstallDir: "dota"},
	} {
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	local, err := store.List(ctx, "local")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(local) != 2 || local[0].TitleID != "10" || local[1].TitleID != "20" {
		t.Fatalf("unexpected local listing %#v", local)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected all targets, got %d", len(all))
	}
}

func TestDeleteRemovesDepots(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if err := store.Upsert(ctx, sampleTitle()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	existed, err := store.Delete(ctx, "local", "10")
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v", existed, err)
	}
	if err := store.Upsert(ctx, records.InstalledTitle{TargetKey: "local", TitleID: "10", TitleName: "again"}); err != nil {
		t.Fatalf("re-insert failed: %v", err)
	}
	got, _ := store.Get(ctx, "local", "10")
	if len(got.Depots) != 0 {
		t.Fatalf("expected orphan depots removed, got %#v", got.Depots)
	}
	existed, err = store.Delete(ctx, "local", "missing")
	if err != nil || existed {
		t.Fatalf("deleting a missing record = %v, %v", existed, err)
	}
}

func TestUpsertRequiresKeys(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if err := store.Upsert(context.Background(), records.InstalledTitle{TitleID: "10"}); err == nil {
		t.Fatal("expected error without target key")
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Upsert(context.Background(), sampleTitle()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	store.Close()

	reopened := testsupport.MustOpenStore(t, cfg)
	got, err := reopened.Get(context.Background(), "local", "10")
	if err != nil || got == nil {
		t.Fatalf("expected record after reopen, got %#v, %v", got, err)
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	store.Close()

	db, err := sql.Open("sqlite", cfg.RecordsPath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump user_version: %v", err)
	}
	db.Close()

	if _, err := records.Open(cfg); !errors.Is(err, records.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOutdatedComparesManifests(t *testing.T) {
	title := sampleTitle()
	catalog := depot.Catalog{TitleID: "10", Entries: []depot.Entry{
		{DepotID: "11", ManifestID: "100", Key: "k"},
		{DepotID: "12", ManifestID: "201", Key: "k"},
	}}
	stale := title.OutdatedDepots(catalog)
	if len(stale) != 1 || stale[0].DepotID != "12" || stale[0].ManifestID != "201" {
		t.Fatalf("unexpected stale depots %#v", stale)
	}
	if !title.Outdated(catalog) {
		t.Fatal("expected outdated")
	}

	current := depot.Catalog{Entries: []depot.Entry{{DepotID: "11", ManifestID: "100"}}}
	if title.Outdated(current) {
		t.Fatal("depots missing from the catalog must not count as outdated")
	}
	if m, ok := title.Manifest("12"); !ok || m != "200" {
		t.Fatalf("Manifest(12) = %q, %v", m, ok)
	}
}
