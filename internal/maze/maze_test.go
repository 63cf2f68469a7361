package maze

import "testing"

func TestGetUnknownVariant(t *testing.T) {
	if _, err := Get("nonsense", 1); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestGetMemoizedIdentity(t *testing.T) {
	a, err := Get("random", 42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Get("random", 42)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected cache hit to return the identical object")
	}
}

func TestGenerationNeverFails(t *testing.T) {
	for _, seed := range []int64{0, 1, -1, 123456789, 999999} {
		if _, err := Get("random", seed); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
	}
}

func TestFixedVariantsAreDeterministic(t *testing.T) {
	for _, v := range []string{"classic", "labyrinth", "speedway", "fortress"} {
		a, err := Get(v, 7)
		if err != nil {
			t.Fatal(err)
		}
		b, err := Get(v, 7)
		if err != nil {
			t.Fatal(err)
		}
		if a.walls != b.walls {
			t.Fatalf("%s: wall layout not deterministic", v)
		}
	}
}

func TestOuterWallsExceptTunnel(t *testing.T) {
	m, err := Get("random", 5)
	if err != nil {
		t.Fatal(err)
	}
	for x := 0; x < Width; x++ {
		if !m.IsWall(x, 0) {
			t.Fatalf("top row must be wall at x=%d", x)
		}
	}
	if m.IsWall(0, tunnelRow) || m.IsWall(Width-1, tunnelRow) {
		t.Fatal("tunnel row ends must be open")
	}
	if !m.IsWall(-1, 0) {
		t.Fatal("out of range must be wall off the tunnel row")
	}
	if m.IsWall(-1, tunnelRow) {
		t.Fatal("out of range on tunnel row must be open (wrap)")
	}
}

func TestSymmetry(t *testing.T) {
	m, err := Get("random", 17)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < Height; y++ {
		for x := 0; x < Width/2; x++ {
			if m.walls[y][x] != m.walls[y][Width-1-x] {
				t.Fatalf("asymmetric wall at (%d,%d)", x, y)
			}
		}
	}
}

func TestConnectivityExcludingHouse(t *testing.T) {
	m, err := Get("random", 99)
	if err != nil {
		t.Fatal(err)
	}
	open := func(x, y int) bool {
		return inBounds(x, y) && !m.walls[y][x] && !m.ghostHouse[y][x]
	}
	visited := make([][]bool, Height)
	for y := range visited {
		visited[y] = make([]bool, Width)
	}
	start := m.pacSpawn
	comp := floodFill(start.X, start.Y, visited, open)

	total := 0
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if open(x, y) {
				total++
			}
		}
	}
	if len(comp) != total {
		t.Fatalf("maze not fully connected: reached %d of %d open cells", len(comp), total)
	}
}

func TestFourPowerPellets(t *testing.T) {
	m, err := Get("classic", 1)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(m.PowerPellets()); n != 4 {
		t.Fatalf("expected four power pellets, one near each corner, got %d", n)
	}
}
