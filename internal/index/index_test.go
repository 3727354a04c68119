package index

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "vaultlens-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() {
		os.Remove(f.Name())
		os.Remove(f.Name() + "-wal")
		os.Remove(f.Name() + "-shm")
	})

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testVault(t *testing.T, db *DB) int64 {
	t.Helper()
	id, err := db.UpsertVault(context.Background(), "/vaults/test", "test")
	if err != nil {
		t.Fatalf("UpsertVault: %v", err)
	}
	return id
}

func note(vaultID int64, path, hash string) models.Note {
	now := time.Now()
	return models.Note{
		VaultID:     vaultID,
		Path:        path,
		Title:       path,
		ContentHash: hash,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"vaults", "notes", "links", "tags", "note_tags", "graph_metrics", "note_clusters", "scans"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertVault_StableID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id1, err := db.UpsertVault(ctx, "/v", "first")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := db.UpsertVault(ctx, "/v", "renamed")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("ids differ: %d vs %d", id1, id2)
	}
	v, err := db.GetVaultByPath(ctx, "/v")
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "renamed" || v.LastScannedAt != nil {
		t.Errorf("vault = %+v", v)
	}
}

func TestGetVault_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetVault(context.Background(), 42)
	if !errors.Is(err, apperr.ErrVaultNotFound) {
		t.Fatalf("err = %v, want ErrVaultNotFound", err)
	}
}

func TestTouchVault(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := db.TouchVault(ctx, vid, at); err != nil {
		t.Fatal(err)
	}
	v, _ := db.GetVault(ctx, vid)
	if v.LastScannedAt == nil || !v.LastScannedAt.Equal(at) {
		t.Errorf("last_scanned_at = %v, want %v", v.LastScannedAt, at)
	}
	if err := db.TouchVault(ctx, 999, at); !errors.Is(err, apperr.ErrVaultNotFound) {
		t.Errorf("err = %v, want ErrVaultNotFound", err)
	}
}

func TestUpsertNote_StableIDAndHashes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)

	id1, err := db.UpsertNote(ctx, note(vid, "a.md", "h1"), nil, nil)
	if err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	id2, err := db.UpsertNote(ctx, note(vid, "a.md", "h2"), nil, nil)
	if err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	if id1 != id2 {
		t.Errorf("note id changed on update: %d -> %d", id1, id2)
	}
	hashes, err := db.NoteHashes(ctx, vid)
	if err != nil {
		t.Fatal(err)
	}
	if hashes["a.md"] != "h2" {
		t.Errorf("hash = %q, want h2", hashes["a.md"])
	}
}

func TestUpsertNote_ReplacesLinksAndTags(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)

	disp := "shown"
	links := []models.Link{
		{RawTarget: "B", DisplayText: &disp},
		{RawTarget: "B"},
		{RawTarget: "img.png", Embed: true},
	}
	id, err := db.UpsertNote(ctx, note(vid, "a.md", "h"), links, []string{"x", "y"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := db.FetchLinks(ctx, vid)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("links = %d, want 3 (every occurrence kept)", len(got))
	}
	if got[0].SourceNoteID != id || got[0].DisplayText == nil || *got[0].DisplayText != "shown" {
		t.Errorf("first link = %+v", got[0])
	}
	if got[1].DisplayText != nil || !got[2].Embed {
		t.Errorf("links = %+v", got)
	}

	if _, err := db.UpsertNote(ctx, note(vid, "a.md", "h2"), []models.Link{{RawTarget: "C"}}, []string{"x"}); err != nil {
		t.Fatal(err)
	}
	got, _ = db.FetchLinks(ctx, vid)
	if len(got) != 1 || got[0].RawTarget != "C" {
		t.Errorf("links after update = %+v", got)
	}
	var tagCount int
	db.conn.QueryRow(`SELECT count(*) FROM note_tags WHERE note_id = ?`, id).Scan(&tagCount)
	if tagCount != 1 {
		t.Errorf("tag attachments = %d, want 1", tagCount)
	}
}

func TestUpsertTag_Idempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id1, err := db.UpsertTag(ctx, "go")
	if err != nil {
		t.Fatal(err)
	}
	id2, _ := db.UpsertTag(ctx, "go")
	if id1 != id2 {
		t.Errorf("tag ids differ: %d vs %d", id1, id2)
	}

	vid := testVault(t, db)
	nid, _ := db.UpsertNote(ctx, note(vid, "a.md", "h"), nil, nil)
	if err := db.UpsertNoteTag(ctx, nid, "go"); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertNoteTag(ctx, nid, "go"); err != nil {
		t.Fatalf("second attach: %v", err)
	}
}

func TestUpsertLink_InsertThenUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)
	nid, _ := db.UpsertNote(ctx, note(vid, "a.md", "h"), nil, nil)

	lid, err := db.UpsertLink(ctx, models.Link{SourceNoteID: nid, RawTarget: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpsertLink(ctx, models.Link{ID: lid, SourceNoteID: nid, RawTarget: "a", ResolvedNoteID: &nid}); err != nil {
		t.Fatal(err)
	}
	links, _ := db.FetchLinks(ctx, vid)
	if len(links) != 1 || links[0].ResolvedNoteID == nil || *links[0].ResolvedNoteID != nid {
		t.Errorf("links = %+v", links)
	}
}

func TestDeleteNotesNotIn(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)

	aID, _ := db.UpsertNote(ctx, note(vid, "a.md", "1"), nil, nil)
	if _, err := db.UpsertNote(ctx, note(vid, "b.md", "2"), []models.Link{{RawTarget: "a"}}, []string{"t"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateLinkResolutions(ctx, vid, []models.Link{{ID: 1, ResolvedNoteID: &aID}}); err != nil {
		t.Fatal(err)
	}

	n, err := db.DeleteNotesNotIn(ctx, vid, []string{"b.md"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
	hashes, _ := db.NoteHashes(ctx, vid)
	if _, ok := hashes["a.md"]; ok {
		t.Error("a.md still present")
	}
	links, _ := db.FetchLinks(ctx, vid)
	if len(links) != 1 || links[0].ResolvedNoteID != nil || !links[0].Broken {
		t.Errorf("inbound link should be unresolved after target removal: %+v", links)
	}
}

func TestFetchNoteIndex_OrderedByID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)
	n := note(vid, "z.md", "1")
	n.Aliases = []string{"Zed"}
	db.UpsertNote(ctx, n, nil, nil)
	db.UpsertNote(ctx, note(vid, "a.md", "2"), nil, nil)

	idx, err := db.FetchNoteIndex(ctx, vid)
	if err != nil {
		t.Fatal(err)
	}
	if len(idx) != 2 || idx[0].Path != "z.md" || idx[1].Path != "a.md" {
		t.Fatalf("index = %+v", idx)
	}
	if len(idx[0].Aliases) != 1 || idx[0].Aliases[0] != "Zed" {
		t.Errorf("aliases = %v", idx[0].Aliases)
	}
}

func TestBrokenLinks(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)
	db.UpsertNote(ctx, note(vid, "a.md", "1"), []models.Link{{RawTarget: "Meeting"}}, nil)

	links, _ := db.FetchLinks(ctx, vid)
	links[0].Broken = true
	if err := db.UpdateLinkResolutions(ctx, vid, links); err != nil {
		t.Fatal(err)
	}
	broken, err := db.BrokenLinks(ctx, vid)
	if err != nil {
		t.Fatal(err)
	}
	if len(broken) != 1 || broken[0].SourcePath != "a.md" || broken[0].RawTarget != "Meeting" {
		t.Errorf("broken = %+v", broken)
	}
}

func TestReplaceGraphMetrics_ReplacesWholeSnapshot(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)
	a, _ := db.UpsertNote(ctx, note(vid, "a.md", "1"), nil, nil)
	b, _ := db.UpsertNote(ctx, note(vid, "b.md", "2"), nil, nil)

	first := models.Snapshot{
		RunID:      "run-1",
		ComputedAt: time.Now(),
		Metrics:    []models.GraphMetrics{{NoteID: a, PageRank: 0.5}, {NoteID: b, PageRank: 0.5}},
		Clusters:   []models.ClusterAssignment{{NoteID: a, ClusterID: 0}, {NoteID: b, ClusterID: 1}},
	}
	if err := db.ReplaceGraphMetrics(ctx, vid, first); err != nil {
		t.Fatal(err)
	}
	second := models.Snapshot{
		RunID:      "run-2",
		ComputedAt: time.Now(),
		Metrics:    []models.GraphMetrics{{NoteID: a, PageRank: 1, InDegree: 1}},
		Clusters:   []models.ClusterAssignment{{NoteID: a, ClusterID: 0}},
	}
	if err := db.ReplaceGraphMetrics(ctx, vid, second); err != nil {
		t.Fatal(err)
	}

	metrics, err := db.GraphMetrics(ctx, vid)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 || metrics[0].PageRank != 1 || metrics[0].InDegree != 1 {
		t.Errorf("metrics = %+v", metrics)
	}
	clusters, _ := db.Clusters(ctx, vid)
	if len(clusters) != 1 {
		t.Errorf("clusters = %+v", clusters)
	}
	ranked, _ := db.RankedNotes(ctx, vid)
	if len(ranked) != 1 || ranked[0].Path != "a.md" {
		t.Errorf("ranked = %+v", ranked)
	}
}

func TestReplaceGraphMetrics_FailureKeepsPrevious(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)
	a, _ := db.UpsertNote(ctx, note(vid, "a.md", "1"), nil, nil)

	good := models.Snapshot{RunID: "ok", ComputedAt: time.Now(), Metrics: []models.GraphMetrics{{NoteID: a, PageRank: 1}}}
	if err := db.ReplaceGraphMetrics(ctx, vid, good); err != nil {
		t.Fatal(err)
	}
	// Duplicate note ids violate the primary key half way through.
	bad := models.Snapshot{RunID: "bad", ComputedAt: time.Now(), Metrics: []models.GraphMetrics{{NoteID: a}, {NoteID: a}}}
	err := db.ReplaceGraphMetrics(ctx, vid, bad)
	var pe *apperr.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	metrics, _ := db.GraphMetrics(ctx, vid)
	if len(metrics) != 1 || metrics[0].PageRank != 1 {
		t.Errorf("previous snapshot not kept: %+v", metrics)
	}
}

func TestReplaceGraphMetrics_WritesLinkResolutionsAtomically(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)
	a, _ := db.UpsertNote(ctx, note(vid, "a.md", "1"), []models.Link{{RawTarget: "b"}}, nil)
	b, _ := db.UpsertNote(ctx, note(vid, "b.md", "2"), nil, nil)

	links, _ := db.FetchLinks(ctx, vid)
	links[0].Broken = true
	good := models.Snapshot{RunID: "ok", ComputedAt: time.Now(), Metrics: []models.GraphMetrics{{NoteID: a}, {NoteID: b}}, Links: links}
	if err := db.ReplaceGraphMetrics(ctx, vid, good); err != nil {
		t.Fatal(err)
	}
	if broken, _ := db.BrokenLinks(ctx, vid); len(broken) != 1 {
		t.Fatalf("broken = %+v, want 1", broken)
	}

	resolved := []models.Link{{ID: links[0].ID, ResolvedNoteID: &b}}
	bad := models.Snapshot{RunID: "bad", ComputedAt: time.Now(), Metrics: []models.GraphMetrics{{NoteID: a}, {NoteID: a}}, Links: resolved}
	if err := db.ReplaceGraphMetrics(ctx, vid, bad); err == nil {
		t.Fatal("expected error")
	}
	if broken, _ := db.BrokenLinks(ctx, vid); len(broken) != 1 {
		t.Errorf("link resolution leaked from failed snapshot: %+v", broken)
	}

	if err := db.ReplaceGraphMetrics(ctx, vid, models.Snapshot{RunID: "ok2", ComputedAt: time.Now(), Links: resolved}); err != nil {
		t.Fatal(err)
	}
	after, _ := db.FetchLinks(ctx, vid)
	if after[0].Broken || after[0].ResolvedNoteID == nil || *after[0].ResolvedNoteID != b {
		t.Errorf("link = %+v, want resolved to %d", after[0], b)
	}
}

func TestScanResults(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	vid := testVault(t, db)

	if _, err := db.LatestScan(ctx, vid); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	start := time.Now().Add(-time.Minute)
	for i, id := range []string{"r1", "r2"} {
		res := &models.ScanResult{
			RunID:        id,
			VaultID:      vid,
			StartedAt:    start.Add(time.Duration(i) * time.Second),
			NotesScanned: 3 + i,
			Errors:       []models.FileError{{Path: "bad.md", Message: "boom"}},
			Duration:     1500 * time.Millisecond,
		}
		if err := db.RecordScanResult(ctx, res); err != nil {
			t.Fatal(err)
		}
	}
	got, err := db.LatestScan(ctx, vid)
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "r2" || got.NotesScanned != 4 || got.Duration != 1500*time.Millisecond {
		t.Errorf("latest = %+v", got)
	}
	if len(got.Errors) != 1 || got.Errors[0].Path != "bad.md" {
		t.Errorf("errors = %+v", got.Errors)
	}
}
