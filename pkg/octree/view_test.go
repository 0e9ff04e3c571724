package octree

import "testing"

func TestIdealLevelFromScale(t *testing.T) {
	tree := newTestTree(t) // 3 levels

	tests := []struct {
		scale float64
		want  int
	}{
		{0.5, 0}, // zoomed in past native resolution
		{1, 0},
		{1.9, 0},
		{2, 1},
		{3.9, 1},
		{4, 2},
		{64, 2}, // clamped to the coarsest level
	}
	for _, tt := range tests {
		v := View{Scale: tt.scale, AutoLevel: true}
		if got := tree.IdealLevel(v); got != tt.want {
			t.Errorf("IdealLevel(scale=%g) = %d, want %d", tt.scale, got, tt.want)
		}
	}
}

func TestIdealLevelExplicit(t *testing.T) {
	tree := newTestTree(t)

	if got := tree.IdealLevel(View{Level: 1}); got != 1 {
		t.Fatalf("explicit level = %d, want 1", got)
	}
	if got := tree.IdealLevel(View{Level: 99}); got != 2 {
		t.Fatalf("over-range level = %d, want clamp to 2", got)
	}
	if got := tree.IdealLevel(View{Level: -5}); got != 0 {
		t.Fatalf("negative level = %d, want clamp to 0", got)
	}
}

func TestIdealChunksIntersection(t *testing.T) {
	tree := newTestTree(t)

	// Level 0 is a 4x4 grid of 64px tiles. A 100x100 window at the origin
	// touches the top-left 2x2 block.
	v := View{TopLeft: [2]float64{0, 0}, BottomRight: [2]float64{100, 100}, Scale: 1, AutoLevel: true}
	chunks := tree.IdealChunks(v, true)
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}

	// Row-major, deterministic.
	want := []Location{
		{Level: 0, Row: 0, Col: 0},
		{Level: 0, Row: 0, Col: 1},
		{Level: 0, Row: 1, Col: 0},
		{Level: 0, Row: 1, Col: 1},
	}
	for i, w := range want {
		if chunks[i].Loc() != w {
			t.Fatalf("chunks[%d] at %v, want %v", i, chunks[i].Loc(), w)
		}
	}
}

func TestIdealChunksAtCoarserLevel(t *testing.T) {
	tree := newTestTree(t)

	// Same window zoomed out to scale 2: level 1 coordinates are halved,
	// so 0..200 base pixels span 0..100 at level 1, the full 2x2 grid.
	v := View{TopLeft: [2]float64{0, 0}, BottomRight: [2]float64{200, 200}, Scale: 2, AutoLevel: true}
	chunks := tree.IdealChunks(v, true)
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	for _, c := range chunks {
		if c.Loc().Level != 1 {
			t.Fatalf("chunk at level %d, want 1", c.Loc().Level)
		}
	}
}

func TestIdealChunksClampedToGrid(t *testing.T) {
	tree := newTestTree(t)

	// A viewport hanging off the image edge clamps to the existing tiles.
	v := View{TopLeft: [2]float64{-500, 200}, BottomRight: [2]float64{100, 9000}, Scale: 1, AutoLevel: true}
	chunks := tree.IdealChunks(v, true)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Loc() != (Location{Level: 0, Row: 0, Col: 3}) {
		t.Fatalf("chunks[0] at %v, want 0/0/3", chunks[0].Loc())
	}
}

func TestIdealChunksNoCreate(t *testing.T) {
	tree := newTestTree(t)
	v := View{TopLeft: [2]float64{0, 0}, BottomRight: [2]float64{100, 100}, Scale: 1, AutoLevel: true}

	if chunks := tree.IdealChunks(v, false); len(chunks) != 0 {
		t.Fatalf("got %d chunks without create, want 0", len(chunks))
	}
	tree.IdealChunks(v, true)
	if chunks := tree.IdealChunks(v, false); len(chunks) != 4 {
		t.Fatalf("got %d chunks after create, want 4", len(chunks))
	}
}
