package tilestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/quadview/quadview/pkg/chunk"
	"github.com/quadview/quadview/pkg/errors"
	"github.com/quadview/quadview/pkg/source"
)

func testImage(rows, cols int) source.Image {
	im := source.Image{Rows: rows, Cols: cols, Pix: make([]byte, rows*cols)}
	for i := range im.Pix {
		im.Pix[i] = byte(i % 251)
	}
	return im
}

func createTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pyramid.db")
	store, err := Create(path, [][2]int{{128, 128}, {64, 64}}, 64)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestStoreWriteReadRoundTrip(t *testing.T) {
	store, _ := createTestStore(t)

	im := testImage(128, 128)
	tile, err := im.Tile(1, 0, 64)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}

	loc := chunk.Loc{Level: 0, Row: 1, Col: 0}
	if err := store.WriteTile(loc, tile); err != nil {
		t.Fatalf("WriteTile: %v", err)
	}

	got, err := store.ReadTile(context.Background(), loc)
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	if got.Rows != tile.Rows || got.Cols != tile.Cols {
		t.Fatalf("shape = %dx%d, want %dx%d", got.Rows, got.Cols, tile.Rows, tile.Cols)
	}
	for i := range tile.Data {
		if got.Data[i] != tile.Data[i] {
			t.Fatalf("pixel %d = %d, want %d", i, got.Data[i], tile.Data[i])
		}
	}
}

func TestStoreMissingTile(t *testing.T) {
	store, _ := createTestStore(t)
	_, err := store.ReadTile(context.Background(), chunk.Loc{Level: 0, Row: 9, Col: 9})
	if errors.GetCode(err) != errors.ErrCodeTileNotFound {
		t.Fatalf("err = %v, want tile not found", err)
	}
}

func TestStoreReopenPreservesMetadata(t *testing.T) {
	store, path := createTestStore(t)
	im := testImage(128, 128)
	if _, err := WritePyramid(store, []source.Image{im, testImage(64, 64)}); err != nil {
		t.Fatalf("WritePyramid: %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	if reopened.TileSize() != 64 {
		t.Fatalf("TileSize() = %d, want 64", reopened.TileSize())
	}
	shapes := reopened.LevelShapes()
	if len(shapes) != 2 || shapes[0] != [2]int{128, 128} || shapes[1] != [2]int{64, 64} {
		t.Fatalf("LevelShapes() = %v", shapes)
	}

	// 2x2 grid at level 0 plus the root.
	n, err := reopened.NumTiles()
	if err != nil {
		t.Fatalf("NumTiles: %v", err)
	}
	if n != 5 {
		t.Fatalf("NumTiles() = %d, want 5", n)
	}

	tile, err := reopened.ReadTile(context.Background(), chunk.Loc{Level: 0, Row: 0, Col: 1})
	if err != nil {
		t.Fatalf("ReadTile after reopen: %v", err)
	}
	if tile.At(0, 0) != im.At(0, 64) {
		t.Fatal("tile content mismatch after reopen")
	}
}

func TestStoreClosed(t *testing.T) {
	store, _ := createTestStore(t)
	store.Close()

	if _, err := store.ReadTile(context.Background(), chunk.Loc{}); errors.GetCode(err) != errors.ErrCodeStoreClosed {
		t.Fatalf("read: err = %v, want store closed", err)
	}
	if err := store.WriteTile(chunk.Loc{}, chunk.NewTile(1, 1)); errors.GetCode(err) != errors.ErrCodeStoreClosed {
		t.Fatalf("write: err = %v, want store closed", err)
	}
	// Double close is a no-op.
	if err := store.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpenMissingMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	// open() creates the schema but Create was never called, so the meta
	// table is empty.
	s, err := open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Close()

	_, err = Open(path)
	if errors.GetCode(err) != errors.ErrCodeStoreCorrupt {
		t.Fatalf("err = %v, want store corrupt", err)
	}
}

func TestDiskSourceLoads(t *testing.T) {
	store, _ := createTestStore(t)
	base := testImage(128, 128)
	if _, err := WritePyramid(store, []source.Image{base, testImage(64, 64)}); err != nil {
		t.Fatalf("WritePyramid: %v", err)
	}

	id := uuid.New()
	src := NewSource(id, store)
	if src.ID() != id || src.TileSize() != 64 {
		t.Fatal("source metadata mismatch")
	}

	ref := src.Ref(chunk.Loc{Level: 0, Row: 1, Col: 1})
	if _, ok := ref.Resident(); ok {
		t.Fatal("disk tiles must never be resident")
	}
	payload, err := ref.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tile := payload.(*chunk.Tile)
	if tile.At(0, 0) != base.At(64, 64) {
		t.Fatal("loaded tile content mismatch")
	}
}

func TestDiskSourceDrivesLoader(t *testing.T) {
	store, _ := createTestStore(t)
	if _, err := WritePyramid(store, []source.Image{testImage(128, 128), testImage(64, 64)}); err != nil {
		t.Fatalf("WritePyramid: %v", err)
	}

	cfg := chunk.Config{CacheBytes: 1 << 20, NumWorkers: 2, TileSize: 64, AncestorLevels: 3}
	loader := chunk.NewLoader(cfg, nil)
	defer loader.Shutdown(context.Background())

	id := loader.Register("disk")
	src := NewSource(id, store)

	done := make(chan *chunk.Request, 1)
	loader.Notify(func(_ chunk.SourceID, req *chunk.Request) { done <- req })

	req := chunk.NewRequest(src.Ref(chunk.Loc{Level: 1, Row: 0, Col: 0}))
	status, _ := loader.Load(req)
	if status != chunk.StatusPending {
		t.Fatalf("status = %v, want pending (disk loads are async)", status)
	}

	got := <-done
	if got.Payload == nil || got.Payload.(*chunk.Tile).Rows != 64 {
		t.Fatalf("unexpected payload %v", got.Payload)
	}
}
