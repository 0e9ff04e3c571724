package octree

import (
	"testing"

	"github.com/quadview/quadview/pkg/errors"
)

// shapes256 is a 3-level pyramid for a 256x256 image with 64px tiles:
// grids of 4x4, 2x2, and the 1x1 root.
var shapes256 = [][2]int{{256, 256}, {128, 128}, {64, 64}}

// fakePayload is a payload whose value is its byte size.
type fakePayload int

func (p fakePayload) ByteSize() int { return int(p) }

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := NewTree(shapes256, 64, nil)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tree
}

func TestLocationParentChild(t *testing.T) {
	loc := Location{Level: 0, Row: 5, Col: 3}
	if p := loc.Parent(); p != (Location{Level: 1, Row: 2, Col: 1}) {
		t.Fatalf("Parent() = %v", p)
	}

	parent := Location{Level: 2, Row: 1, Col: 1}
	children := parent.ChildLocations()
	want := [4]Location{
		{Level: 1, Row: 2, Col: 2},
		{Level: 1, Row: 2, Col: 3},
		{Level: 1, Row: 3, Col: 2},
		{Level: 1, Row: 3, Col: 3},
	}
	if children != want {
		t.Fatalf("ChildLocations() = %v, want %v", children, want)
	}

	// Parent and child are inverses.
	for _, c := range children {
		if c.Parent() != parent {
			t.Fatalf("child %v does not map back to %v", c, parent)
		}
	}
}

func TestNewTreeValidation(t *testing.T) {
	tests := []struct {
		name     string
		shapes   [][2]int
		tileSize int
	}{
		{"no levels", nil, 64},
		{"zero tile size", shapes256, 0},
		{"empty level", [][2]int{{256, 0}, {128, 128}, {64, 64}}, 64},
		{"coarsest too large", [][2]int{{256, 256}, {128, 128}}, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTree(tt.shapes, tt.tileSize, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	// A single-level image that fits one tile is the degenerate valid tree.
	tree, err := NewTree([][2]int{{50, 50}}, 64, nil)
	if err != nil {
		t.Fatalf("single level: %v", err)
	}
	if tree.NumLevels() != 1 {
		t.Fatalf("NumLevels() = %d, want 1", tree.NumLevels())
	}
}

func TestTreeGridShapes(t *testing.T) {
	tree := newTestTree(t)

	wantGrids := [][2]int{{4, 4}, {2, 2}, {1, 1}}
	for i, w := range wantGrids {
		lv := tree.Level(i)
		if lv.GridRows != w[0] || lv.GridCols != w[1] {
			t.Fatalf("level %d grid = %dx%d, want %dx%d", i, lv.GridRows, lv.GridCols, w[0], w[1])
		}
		if lv.NumChunks() != 0 {
			t.Fatalf("level %d has %d chunks before any access, want 0", i, lv.NumChunks())
		}
	}
	if tree.Level(3) != nil || tree.Level(-1) != nil {
		t.Fatal("out-of-range levels must be nil")
	}
}

func TestGetChunkCreateSemantics(t *testing.T) {
	tree := newTestTree(t)
	loc := Location{Level: 0, Row: 2, Col: 3}

	if c := tree.GetChunk(loc, false); c != nil {
		t.Fatal("chunk should not exist before creation")
	}
	created := tree.GetChunk(loc, true)
	if created == nil {
		t.Fatal("create should materialize the chunk")
	}
	if got := tree.GetChunk(loc, false); got != created {
		t.Fatal("repeated access must return the same chunk")
	}
	if tree.Level(0).NumChunks() != 1 {
		t.Fatalf("NumChunks() = %d, want 1", tree.Level(0).NumChunks())
	}

	// Outside the grid, even create returns nil.
	if c := tree.GetChunk(Location{Level: 0, Row: 4, Col: 0}, true); c != nil {
		t.Fatal("out-of-bounds location must be nil")
	}
	if c := tree.GetChunk(Location{Level: 1, Row: -1, Col: 0}, true); c != nil {
		t.Fatal("negative location must be nil")
	}
}

func TestRootIsPermanentSingleton(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	if root == nil {
		t.Fatal("root must always exist")
	}
	if root.Loc() != (Location{Level: 2, Row: 0, Col: 0}) {
		t.Fatalf("root at %v, want coarsest 0/0", root.Loc())
	}
	if tree.Root() != root {
		t.Fatal("root must be stable across calls")
	}
}

func TestChildrenFiltering(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()

	// Nothing created yet and create=false: no children.
	if kids := tree.Children(root, false, false); len(kids) != 0 {
		t.Fatalf("got %d children, want 0", len(kids))
	}

	kids := tree.Children(root, true, false)
	if len(kids) != 4 {
		t.Fatalf("got %d children, want 4", len(kids))
	}

	// Mark one child in-memory; the residency filter keeps only it.
	kids[1].MarkLoading()
	kids[1].SetData(fakePayload(10))
	resident := tree.Children(root, false, true)
	if len(resident) != 1 || resident[0] != kids[1] {
		t.Fatalf("resident children = %v, want just the loaded one", resident)
	}

	// Level 0 chunks have no children.
	leaf := tree.GetChunk(Location{Level: 0}, true)
	if kids := tree.Children(leaf, true, false); kids != nil {
		t.Fatal("finest level must have no children")
	}
}

func TestChildrenClippedAtGridEdge(t *testing.T) {
	// 80x80 with 32px tiles: level 0 is 3x3, level 1 is 2x2, level 2 root.
	// The bottom-right level-1 chunk covers only one level-0 chunk.
	tree, err := NewTree([][2]int{{80, 80}, {40, 40}, {20, 20}}, 32, nil)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	c := tree.GetChunk(Location{Level: 1, Row: 1, Col: 1}, true)
	kids := tree.Children(c, true, false)
	if len(kids) != 1 {
		t.Fatalf("got %d children at the grid edge, want 1", len(kids))
	}
	if kids[0].Loc() != (Location{Level: 0, Row: 2, Col: 2}) {
		t.Fatalf("child at %v, want 0/2/2", kids[0].Loc())
	}
}

func TestAncestorsWalkUp(t *testing.T) {
	tree := newTestTree(t)
	leaf := tree.GetChunk(Location{Level: 0, Row: 3, Col: 2}, true)

	anc := tree.Ancestors(leaf, 3)
	if len(anc) != 2 {
		t.Fatalf("got %d ancestors, want 2 (tree only has 3 levels)", len(anc))
	}
	if anc[0].Loc() != (Location{Level: 1, Row: 1, Col: 1}) {
		t.Fatalf("first ancestor at %v, want 1/1/1", anc[0].Loc())
	}
	if anc[1] != tree.Root() {
		t.Fatal("second ancestor should be the root")
	}

	// Ancestors are created eagerly.
	if tree.Level(1).NumChunks() != 1 {
		t.Fatalf("level 1 chunks = %d, want 1", tree.Level(1).NumChunks())
	}

	if anc := tree.Ancestors(leaf, 1); len(anc) != 1 {
		t.Fatalf("maxLevels=1 gave %d ancestors, want 1", len(anc))
	}
	if anc := tree.Ancestors(tree.Root(), 3); len(anc) != 0 {
		t.Fatal("root has no ancestors")
	}
}

func TestChunkStateMachine(t *testing.T) {
	c := &Chunk{loc: Location{Level: 1}}
	if c.State() != NotLoaded || !c.NeedsLoad() || c.InMemory() {
		t.Fatal("fresh chunk should be not-loaded")
	}

	// Payload cannot arrive before a load was started.
	if c.SetData(fakePayload(1)) {
		t.Fatal("SetData must fail outside Loading")
	}

	if !c.MarkLoading() {
		t.Fatal("MarkLoading from NotLoaded should succeed")
	}
	if c.MarkLoading() {
		t.Fatal("double MarkLoading should fail")
	}
	if c.NeedsLoad() {
		t.Fatal("loading chunk must not need a load")
	}

	// Cancellation path: back to square one, retryable.
	c.ClearLoading()
	if c.State() != NotLoaded {
		t.Fatalf("state = %v after ClearLoading, want not-loaded", c.State())
	}

	c.MarkLoading()
	if c.SetData(nil) {
		t.Fatal("nil payload must be rejected")
	}
	if !c.SetData(fakePayload(10)) {
		t.Fatal("SetData from Loading should succeed")
	}
	if !c.InMemory() || c.Data().ByteSize() != 10 {
		t.Fatalf("state = %v data = %v", c.State(), c.Data())
	}

	// Loaded data is stable: neither re-marking nor clearing touches it.
	if c.MarkLoading() {
		t.Fatal("MarkLoading must fail once in memory")
	}
	c.ClearLoading()
	if !c.InMemory() {
		t.Fatal("ClearLoading must not affect loaded chunks")
	}
}

func TestStateString(t *testing.T) {
	if NotLoaded.String() != "not-loaded" || Loading.String() != "loading" || InMemory.String() != "in-memory" {
		t.Fatal("unexpected state names")
	}
}

func TestNewTreeErrorCodes(t *testing.T) {
	_, err := NewTree(nil, 64, nil)
	if errors.GetCode(err) != errors.ErrCodeInvalidLevel {
		t.Fatalf("err = %v, want invalid level", err)
	}
	_, err = NewTree(shapes256, -1, nil)
	if errors.GetCode(err) != errors.ErrCodeInvalidConfig {
		t.Fatalf("err = %v, want invalid config", err)
	}
}
