package maze

import (
	"github.com/rawblock/pacmatch-engine/internal/rng"
)

// generate runs the full procedural pipeline described in spec §4.1:
// recursive-backtracker carve of the left half, mirror to the right
// half, density pass, reserved regions (ghost house / exit corridor /
// tunnel band), outer walls, Pac-Man spawn clearing, 4-connectivity
// repair, corner power pellets, and pellet placement.
func generate(variant string, seed int64) *Maze {
	src := rng.New(seed)

	m := &Maze{variant: variant, seed: seed}
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			m.walls[y][x] = true
		}
	}

	carveLeftHalf(m, src)
	mirrorToRightHalf(m)
	openDensityPass(m, src)
	reserveGhostHouse(m)
	carveTunnelBand(m)
	forceOuterWalls(m)
	carvePacmanSpawn(m)
	reconnectIsolatedComponents(m)
	placeGhostSpawns(m)
	placePowerPellets(m, src)
	placePellets(m)

	return m
}

func inBounds(x, y int) bool { return x >= 0 && x < Width && y >= 0 && y < Height }

// carveLeftHalf runs a randomized recursive backtracker over the
// odd-indexed cell lattice of the left half of the board (columns
// 0..Width/2-1), producing a perfect (single-component) maze there.
func carveLeftHalf(m *Maze, src *rng.Source) {
	halfW := Width / 2
	visited := make([][]bool, Height)
	for y := range visited {
		visited[y] = make([]bool, halfW)
	}

	type frame struct{ x, y int }
	startX, startY := 1, 1
	stack := []frame{{startX, startY}}
	visited[startY][startX] = true
	m.walls[startY][startX] = false

	dirs := [][2]int{{0, -2}, {0, 2}, {-2, 0}, {2, 0}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		// Collect unvisited neighbors two cells away, staying on odd lattice.
		var candidates [][2]int
		for _, d := range dirs {
			nx, ny := cur.x+d[0], cur.y+d[1]
			if nx < 1 || nx >= halfW-1 || ny < 1 || ny >= Height-1 {
				continue
			}
			if !visited[ny][nx] {
				candidates = append(candidates, [2]int{nx, ny})
			}
		}
		if len(candidates) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		next := candidates[src.Intn(len(candidates))]
		wallX, wallY := (cur.x+next[0])/2, (cur.y+next[1])/2
		m.walls[wallY][wallX] = false
		m.walls[next[1]][next[0]] = false
		visited[next[1]][next[0]] = true
		stack = append(stack, frame{next[0], next[1]})
	}
}

// mirrorToRightHalf guarantees left-right symmetry (spec §4.1).
func mirrorToRightHalf(m *Maze) {
	for y := 0; y < Height; y++ {
		for x := 0; x < Width/2; x++ {
			m.walls[y][Width-1-x] = m.walls[y][x]
		}
	}
}

// openDensityPass knocks through additional walls with probability
// 0.35 to raise pellet density, mirroring the change across halves so
// symmetry is preserved.
func openDensityPass(m *Maze, src *rng.Source) {
	for y := 1; y < Height-1; y++ {
		for x := 1; x < Width/2; x++ {
			if m.walls[y][x] && src.Float64() < 0.35 {
				m.walls[y][x] = false
				m.walls[y][Width-1-x] = false
			}
		}
	}
}

func reserveGhostHouse(m *Maze) {
	for y := houseRowStart; y <= houseRowEnd; y++ {
		for x := houseColStart; x <= houseColEnd; x++ {
			m.walls[y][x] = false
			m.ghostHouse[y][x] = true
		}
	}
	// House exit corridor: row 11 across the house's column span.
	for x := houseColStart; x <= houseColEnd; x++ {
		m.walls[houseExitRow][x] = false
	}
}

func carveTunnelBand(m *Maze) {
	for x := 0; x < Width; x++ {
		m.walls[tunnelRow][x] = false
	}
}

func forceOuterWalls(m *Maze) {
	for x := 0; x < Width; x++ {
		if x == 0 || x == Width-1 {
			continue // handled per-row below for the tunnel exits
		}
		m.walls[0][x] = true
		m.walls[Height-1][x] = true
	}
	for y := 0; y < Height; y++ {
		if y == tunnelRow {
			continue // tunnel ends stay open
		}
		m.walls[y][0] = true
		m.walls[y][Width-1] = true
	}
}

func carvePacmanSpawn(m *Maze) {
	for y := pacSpawnY - 1; y <= pacSpawnY+1; y++ {
		for x := pacSpawnX - 1; x <= pacSpawnX+1; x++ {
			if inBounds(x, y) {
				m.walls[y][x] = false
				m.walls[y][Width-1-x] = false
			}
		}
	}
	m.pacSpawn = Point{pacSpawnX, pacSpawnY}
}

// reconnectIsolatedComponents BFS-floods every open, non-house cell
// and knocks a straight corridor from each stranded component into the
// main one, per spec §4.1. The ghost house interior is excluded from
// the reachability requirement (spec §9, Open Question 3).
func reconnectIsolatedComponents(m *Maze) {
	open := func(x, y int) bool {
		return inBounds(x, y) && !m.walls[y][x] && !m.ghostHouse[y][x]
	}

	visited := make([][]bool, Height)
	for y := range visited {
		visited[y] = make([]bool, Width)
	}

	var components [][]Point
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if !open(x, y) || visited[y][x] {
				continue
			}
			comp := floodFill(x, y, visited, open)
			components = append(components, comp)
		}
	}
	if len(components) <= 1 {
		return
	}

	// Largest component is the "main" one; connect every other into it.
	mainIdx := 0
	for i, c := range components {
		if len(c) > len(components[mainIdx]) {
			mainIdx = i
		}
	}
	main := components[mainIdx]

	for i, comp := range components {
		if i == mainIdx {
			continue
		}
		connectComponents(m, main, comp)
	}
}

func floodFill(sx, sy int, visited [][]bool, open func(x, y int) bool) []Point {
	var comp []Point
	queue := []Point{{sx, sy}}
	visited[sy][sx] = true
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		comp = append(comp, p)
		for _, d := range [][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}} {
			nx, ny := p.X+d[0], p.Y+d[1]
			if inBounds(nx, ny) && open(nx, ny) && !visited[ny][nx] {
				visited[ny][nx] = true
				queue = append(queue, Point{nx, ny})
			}
		}
	}
	return comp
}

// connectComponents carves the shortest axis-aligned path between the
// closest pair of cells across the two components ("knocking through
// the shortest wall path", spec §4.1), and carves its mirror image too so
// the board stays left-right symmetric.
func connectComponents(m *Maze, a, b []Point) {
	best := struct {
		a, b Point
		dist int
	}{dist: 1 << 30}

	for _, pa := range a {
		for _, pb := range b {
			d := abs(pa.X-pb.X) + abs(pa.Y-pb.Y)
			if d < best.dist {
				best.dist = d
				best.a, best.b = pa, pb
			}
		}
	}

	x, y := best.a.X, best.a.Y
	for x != best.b.X {
		if x < best.b.X {
			x++
		} else {
			x--
		}
		if inBounds(x, y) {
			m.walls[y][x] = false
			m.walls[y][Width-1-x] = false
		}
	}
	for y != best.b.Y {
		if y < best.b.Y {
			y++
		} else {
			y--
		}
		if inBounds(x, y) {
			m.walls[y][x] = false
			m.walls[y][Width-1-x] = false
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func placeGhostSpawns(m *Maze) {
	m.ghostSpawns = [4]Point{
		{13, houseExitRow}, // blinky starts just outside the house
		{13, 14},
		{11, 14},
		{16, 14},
	}
}

// placePowerPellets finds the nearest open, non-house, non-tunnel cell
// within radius 3 of each board corner (spec §4.1).
func placePowerPellets(m *Maze, src *rng.Source) {
	corners := [4]Point{{1, 1}, {Width - 2, 1}, {1, Height - 2}, {Width - 2, Height - 2}}
	m.powerPellets = nil
	for _, corner := range corners {
		if p, ok := nearestOpenWithinRadius(m, corner, 3); ok {
			m.powerPellets = append(m.powerPellets, p)
		}
	}
}

func nearestOpenWithinRadius(m *Maze, center Point, radius int) (Point, bool) {
	best := Point{}
	bestDist := 1 << 30
	found := false
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			x, y := center.X+dx, center.Y+dy
			if !inBounds(x, y) || m.walls[y][x] || m.ghostHouse[y][x] || y == tunnelRow {
				continue
			}
			d := abs(dx) + abs(dy)
			if d <= radius && d < bestDist {
				bestDist = d
				best = Point{x, y}
				found = true
			}
		}
	}
	return best, found
}

func placePellets(m *Maze) {
	isPower := make(map[Point]bool, len(m.powerPellets))
	for _, p := range m.powerPellets {
		isPower[p] = true
	}
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if m.walls[y][x] || m.ghostHouse[y][x] || y == tunnelRow {
				continue
			}
			if x == m.pacSpawn.X && y == m.pacSpawn.Y {
				continue
			}
			if isPower[Point{x, y}] {
				continue
			}
			m.pellets[y][x] = true
		}
	}
}
