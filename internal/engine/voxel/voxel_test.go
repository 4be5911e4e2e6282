package voxel

import "testing"

func TestFloorDivMod(t *testing.T) {
	tests := []struct {
		a, b    int
		div, md int
	}{
		{0, 16, 0, 0},
		{15, 16, 0, 15},
		{16, 16, 1, 0},
		{-1, 16, -1, 15},
		{-16, 16, -1, 0},
		{-17, 16, -2, 15},
	}

	for _, tt := range tests {
		if got := FloorDiv(tt.a, tt.b); got != tt.div {
			t.Errorf("FloorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.div)
		}
		if got := Mod(tt.a, tt.b); got != tt.md {
			t.Errorf("Mod(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.md)
		}
	}
}

func TestPosChunkAndLocal(t *testing.T) {
	p := Pos{X: -1, Y: 17, Z: 32}

	c := p.Chunk()
	if c != (ChunkCoord{X: -1, Y: 1, Z: 2}) {
		t.Errorf("unexpected chunk %v", c)
	}

	x, y, z := p.Local()
	if x != 15 || y != 1 || z != 0 {
		t.Errorf("unexpected local (%d,%d,%d)", x, y, z)
	}

	o := c.Origin()
	if o.Add(x, y, z) != p {
		t.Errorf("origin + local = %v, want %v", o.Add(x, y, z), p)
	}
}

func TestFaceOpposite(t *testing.T) {
	for _, f := range Faces {
		o := f.Opposite()
		if o.Opposite() != f {
			t.Errorf("opposite of opposite of %s is %s", f, o.Opposite())
		}
		n, m := f.Normal(), o.Normal()
		if n[0]+m[0] != 0 || n[1]+m[1] != 0 || n[2]+m[2] != 0 {
			t.Errorf("%s and %s normals do not cancel", f, o)
		}
		if f.Axis() != o.Axis() {
			t.Errorf("%s and %s are on different axes", f, o)
		}
	}
}

func TestRegionNormalize(t *testing.T) {
	r := Region{Min: Pos{X: 5, Y: -2, Z: 9}, Max: Pos{X: 1, Y: 3, Z: 0}}.Normalize()

	if r.Min != (Pos{X: 1, Y: -2, Z: 0}) || r.Max != (Pos{X: 5, Y: 3, Z: 9}) {
		t.Errorf("unexpected normalized region %+v", r)
	}
	if !r.Contains(Pos{X: 1, Y: 3, Z: 9}) {
		t.Error("region should contain its max corner")
	}
	if r.Contains(Pos{X: 6, Y: 0, Z: 0}) {
		t.Error("region should not contain a point outside x range")
	}
}
