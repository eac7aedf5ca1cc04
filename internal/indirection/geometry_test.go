package indirection

import (
	"errors"
	"testing"
)

func TestMipCount(t *testing.T) {
	tests := []struct {
		name       string
		w, h, page int
		want       int
		wantSlices int
	}{
		{"256 page 64", 256, 256, 64, 4, 22},
		{"single page", 64, 64, 64, 2, 2},
		{"2048 page 128", 2048, 2048, 128, 6, 256 + 64 + 16 + 4 + 1 + 1},
		{"non-square", 256, 128, 64, 4, 8 + 2 + 1 + 1},
		{"zero", 0, 64, 64, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MipCount(tt.w, tt.h, tt.page); got != tt.want {
				t.Errorf("MipCount = %d, want %d", got, tt.want)
			}
			if got := SliceCount(tt.w, tt.h, tt.page); got != tt.wantSlices {
				t.Errorf("SliceCount = %d, want %d", got, tt.wantSlices)
			}
		})
	}
}

func TestLastMipIsSubPage(t *testing.T) {
	for _, size := range []int{64, 128, 512, 4096} {
		n := MipCount(size, size, 64)
		if MipExtent(size, n-1) >= 64 {
			t.Errorf("size %d: last mip extent %d is not sub-page", size, MipExtent(size, n-1))
		}
		if MipExtent(size, n-2) < 64 {
			t.Errorf("size %d: second-to-last mip extent %d is sub-page", size, MipExtent(size, n-2))
		}
	}
}

func TestGeometryContains(t *testing.T) {
	g := Geometry{Width: 256, Height: 256, PageSize: 64}
	tests := []struct {
		mip, x, y int
		want      bool
	}{
		{0, 0, 0, true},
		{0, 3, 3, true},
		{0, 4, 0, false},
		{1, 1, 1, true},
		{1, 2, 0, false},
		{3, 0, 0, true},
		{4, 0, 0, false}, // mip == MipCount
		{-1, 0, 0, false},
		{0, -1, 0, false},
	}
	for _, tt := range tests {
		if got := g.Contains(tt.mip, tt.x, tt.y); got != tt.want {
			t.Errorf("Contains(%d,%d,%d) = %v, want %v", tt.mip, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestEntryIndexIsBijective(t *testing.T) {
	g := Geometry{Width: 256, Height: 128, PageSize: 64}
	seen := make(map[int]bool)
	for mip := range g.MipCount() {
		cols, rows := g.SliceGrid(mip)
		for y := range rows {
			for x := range cols {
				i, err := g.EntryIndex(mip, x, y)
				if err != nil {
					t.Fatalf("EntryIndex(%d,%d,%d): %v", mip, x, y, err)
				}
				if i < 0 || i >= g.SliceCount() {
					t.Fatalf("index %d outside region of %d", i, g.SliceCount())
				}
				if seen[i] {
					t.Fatalf("index %d assigned twice", i)
				}
				seen[i] = true
			}
		}
	}
	if len(seen) != g.SliceCount() {
		t.Errorf("covered %d entries, want %d", len(seen), g.SliceCount())
	}
}

func TestEntryIndexOrder(t *testing.T) {
	g := Geometry{Width: 256, Height: 256, PageSize: 64}
	tests := []struct {
		mip, x, y, want int
	}{
		{0, 0, 0, 0},
		{0, 1, 0, 1},
		{0, 0, 1, 4},
		{0, 3, 3, 15},
		{1, 0, 0, 16},
		{1, 1, 1, 19},
		{2, 0, 0, 20},
		{3, 0, 0, 21},
	}
	for _, tt := range tests {
		got, err := g.EntryIndex(tt.mip, tt.x, tt.y)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("EntryIndex(%d,%d,%d) = %d, want %d", tt.mip, tt.x, tt.y, got, tt.want)
		}
	}

	if _, err := g.EntryIndex(4, 0, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("EntryIndex(mip=MipCount) err = %v, want ErrOutOfRange", err)
	}
}
