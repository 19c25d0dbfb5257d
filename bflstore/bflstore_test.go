package bflstore

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/cliquot22/iqsmart"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen_MigratesSchema(t *testing.T) {
	store := openTestStore(t)

	version, dirty, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("SchemaVersion = %d, want 1", version)
	}
	if dirty {
		t.Error("SchemaVersion reported dirty state after clean migration")
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	set := &Set{
		LensSerial: "TW90-00077",
		Points:     []iqsmart.BFLPoint{{Step: 4000, Correction: 3}},
	}
	if err := store.SaveSet(set); err != nil {
		t.Fatalf("SaveSet failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopening runs migrations again; an up-to-date schema must be a no-op.
	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	got, err := store.LatestSet("TW90-00077")
	if err != nil {
		t.Fatalf("LatestSet after reopen failed: %v", err)
	}
	if len(got.Points) != 1 || got.Points[0].Step != 4000 {
		t.Errorf("reopened set points = %+v, want one point at step 4000", got.Points)
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := openTestStore(t)

	set := &Set{
		LensSerial: "TW90-00142",
		Model:      "TW90",
		Note:       "bench calibration",
		Points: []iqsmart.BFLPoint{
			{Step: 2000, Correction: 10},
			{Step: 5000, Correction: 4},
			{Step: 8000, Correction: -6},
		},
	}
	if err := store.SaveSet(set); err != nil {
		t.Fatalf("SaveSet failed: %v", err)
	}
	if set.SetID == "" {
		t.Error("expected set_id to be generated")
	}
	if set.CreatedAtNs == 0 {
		t.Error("expected created_at_ns to be set")
	}

	got, err := store.GetSet(set.SetID)
	if err != nil {
		t.Fatalf("GetSet failed: %v", err)
	}
	if got.LensSerial != set.LensSerial {
		t.Errorf("lens_serial = %q, want %q", got.LensSerial, set.LensSerial)
	}
	if got.Model != set.Model || got.Note != set.Note {
		t.Errorf("metadata = %q/%q, want %q/%q", got.Model, got.Note, set.Model, set.Note)
	}
	if len(got.Points) != 3 {
		t.Fatalf("got %d points, want 3", len(got.Points))
	}
	for i, p := range got.Points {
		if p != set.Points[i] {
			t.Errorf("point %d = %+v, want %+v", i, p, set.Points[i])
		}
	}
}

func TestStore_SaveRequiresSerial(t *testing.T) {
	store := openTestStore(t)
	err := store.SaveSet(&Set{Points: []iqsmart.BFLPoint{{Step: 100, Correction: 1}}})
	if err == nil || !strings.Contains(err.Error(), "serial") {
		t.Errorf("SaveSet without serial: error = %v, want serial complaint", err)
	}
}

func TestStore_LatestSet(t *testing.T) {
	store := openTestStore(t)

	old := &Set{
		LensSerial:  "TW90-00142",
		CreatedAtNs: 100,
		Points:      []iqsmart.BFLPoint{{Step: 3000, Correction: 2}},
	}
	newer := &Set{
		LensSerial:  "TW90-00142",
		CreatedAtNs: 200,
		Points:      []iqsmart.BFLPoint{{Step: 3000, Correction: 5}},
	}
	other := &Set{
		LensSerial:  "TW90-00977",
		CreatedAtNs: 300,
		Points:      []iqsmart.BFLPoint{{Step: 3000, Correction: -1}},
	}
	for _, set := range []*Set{old, newer, other} {
		if err := store.SaveSet(set); err != nil {
			t.Fatalf("SaveSet failed: %v", err)
		}
	}

	got, err := store.LatestSet("TW90-00142")
	if err != nil {
		t.Fatalf("LatestSet failed: %v", err)
	}
	if got.SetID != newer.SetID {
		t.Errorf("LatestSet = %s, want %s", got.SetID, newer.SetID)
	}
	if got.Points[0].Correction != 5 {
		t.Errorf("latest correction = %v, want 5", got.Points[0].Correction)
	}
}

func TestStore_LatestSetMissingSerial(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.LatestSet("nope"); err == nil {
		t.Error("expected error for unknown serial")
	}
}

func TestStore_ListSets(t *testing.T) {
	store := openTestStore(t)

	sets := []*Set{
		{LensSerial: "TW90-00142", CreatedAtNs: 100},
		{LensSerial: "TW90-00142", CreatedAtNs: 300},
		{LensSerial: "TW90-00977", CreatedAtNs: 200, Points: []iqsmart.BFLPoint{{Step: 1, Correction: 1}}},
	}
	for _, set := range sets {
		if err := store.SaveSet(set); err != nil {
			t.Fatalf("SaveSet failed: %v", err)
		}
	}

	all, err := store.ListSets("")
	if err != nil {
		t.Fatalf("ListSets(\"\") failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListSets(\"\") returned %d sets, want 3", len(all))
	}
	if all[0].CreatedAtNs != 300 || all[1].CreatedAtNs != 200 || all[2].CreatedAtNs != 100 {
		t.Errorf("sets not newest first: %d, %d, %d",
			all[0].CreatedAtNs, all[1].CreatedAtNs, all[2].CreatedAtNs)
	}

	one, err := store.ListSets("TW90-00977")
	if err != nil {
		t.Fatalf("ListSets(serial) failed: %v", err)
	}
	if len(one) != 1 {
		t.Fatalf("ListSets(serial) returned %d sets, want 1", len(one))
	}
	if len(one[0].Points) != 1 {
		t.Errorf("listed set has %d points, want 1", len(one[0].Points))
	}
}

func TestStore_DeleteSet(t *testing.T) {
	store := openTestStore(t)

	set := &Set{
		LensSerial: "TW90-00142",
		Points:     []iqsmart.BFLPoint{{Step: 4000, Correction: 3}},
	}
	if err := store.SaveSet(set); err != nil {
		t.Fatalf("SaveSet failed: %v", err)
	}

	if err := store.DeleteSet(set.SetID); err != nil {
		t.Fatalf("DeleteSet failed: %v", err)
	}
	if _, err := store.GetSet(set.SetID); err == nil {
		t.Error("expected error when getting deleted set")
	}
	if err := store.DeleteSet("non-existent"); err == nil {
		t.Error("expected error when deleting non-existent set")
	}
}

func TestSet_Curve(t *testing.T) {
	set := &Set{
		LensSerial: "TW90-00142",
		Points: []iqsmart.BFLPoint{
			{Step: 2000, Correction: 12},
			{Step: 8000, Correction: 12},
		},
	}
	curve := set.Curve()
	if got := curve.CorrectionAt(5000); got != 12 {
		t.Errorf("CorrectionAt(5000) = %v, want 12", got)
	}
}

func TestStore_RoundTripThroughCurve(t *testing.T) {
	store := openTestStore(t)

	curve := iqsmart.NewBFLCurve()
	curve.AddPoint(2000, 10)
	curve.AddPoint(5000, 4)
	curve.AddPoint(8000, -6)

	set := &Set{LensSerial: "TW90-00142", Points: curve.Points()}
	if err := store.SaveSet(set); err != nil {
		t.Fatalf("SaveSet failed: %v", err)
	}

	loaded, err := store.LatestSet("TW90-00142")
	if err != nil {
		t.Fatalf("LatestSet failed: %v", err)
	}
	rebuilt := loaded.Curve()
	for _, step := range []float64{2000, 3500, 5000, 6500, 8000} {
		if got, want := rebuilt.CorrectionAt(step), curve.CorrectionAt(step); got != want {
			t.Errorf("CorrectionAt(%v) = %v after round trip, want %v", step, got, want)
		}
	}
}
