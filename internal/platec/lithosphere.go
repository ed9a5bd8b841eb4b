package platec

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Lithosphere is the built-in pure-Go plate simulator.
//
// Each cycle segments the map into Voronoi plates with random velocities.
// Every step a plate drifts by whole cells on a torus; where two plates land
// on the same cell the higher crust wins and folds part of the lower crust
// onto itself, gaps left behind are filled with fresh oceanic crust, and
// plates whose accumulated overlap passes the aggregation thresholds merge.
// Plates slow down through friction and collisions; a cycle ends when every
// plate is nearly stopped or MaxIterations is reached.
type Lithosphere struct {
	// MaxIterations caps the steps of a single cycle. Zero means 400.
	MaxIterations int
}

const (
	defaultMaxIterations = 400
	friction             = 0.99
	stopSpeed            = 0.05
	erosionRate          = 0.1
	noiseScale           = 64.0
	noiseOctaves         = 6
)

type plate struct {
	vx, vy float64
	ax, ay float64 // sub-cell drift accumulated since the last whole move
	dx, dy int     // whole-cell move of the current step
	area   int
	alive  bool
	hits   int // cells lost or won in collisions this step
}

type lithosphere struct {
	p        Params
	w, h     int
	rng      *rand.Rand
	height   []float32
	owner    []uint16
	plates   []plate
	overlap  map[[2]uint16]int
	iter     int
	maxIter  int
	cycle    int
	finished bool
	released bool

	nextH []float32
	nextO []int32
}

// Create validates p and seeds a new simulation.
func (l Lithosphere) Create(p Params) (Simulation, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("create lithosphere: %w", err)
	}
	maxIter := l.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	n := p.Width * p.Height
	s := &lithosphere{
		p:       p,
		w:       p.Width,
		h:       p.Height,
		rng:     rand.New(rand.NewPCG(uint64(p.Seed), 0x9e3779b97f4a7c15)),
		height:  make([]float32, n),
		owner:   make([]uint16, n),
		maxIter: maxIter,
		nextH:   make([]float32, n),
		nextO:   make([]int32, n),
	}
	s.initCrust()
	s.segment()
	return s, nil
}

// initCrust lays continental crust over the noise cells above the sea level
// quantile and oceanic crust elsewhere.
func (s *lithosphere) initCrust() {
	noise := opensimplex.NewNormalized(s.p.Seed)
	vals := make([]float64, len(s.height))
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			v, amp, freq, total := 0.0, 1.0, 1.0, 0.0
			for o := 0; o < noiseOctaves; o++ {
				v += noise.Eval2(float64(x)/noiseScale*freq, float64(y)/noiseScale*freq) * amp
				total += amp
				amp *= 0.5
				freq *= 2
			}
			vals[y*s.w+x] = v / total
		}
	}
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	idx := int(float64(len(sorted)) * float64(s.p.SeaLevel))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	thr := sorted[idx]
	for i, v := range vals {
		if v >= thr {
			s.height[i] = ContinentalBase + float32(v-thr)
		} else {
			s.height[i] = OceanicBase + float32(v)*0.5
		}
	}
}

// segment assigns every cell to the nearest of NumPlates random centres
// (toroidal distance) and gives each plate a fresh velocity.
func (s *lithosphere) segment() {
	n := s.p.NumPlates
	cx := make([]int, n)
	cy := make([]int, n)
	for i := 0; i < n; i++ {
		cx[i] = s.rng.IntN(s.w)
		cy[i] = s.rng.IntN(s.h)
	}
	s.plates = make([]plate, n)
	for i := range s.plates {
		angle := s.rng.Float64() * 2 * math.Pi
		speed := 0.5 + s.rng.Float64()*0.5
		s.plates[i] = plate{vx: math.Cos(angle) * speed, vy: math.Sin(angle) * speed, alive: true}
	}
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			best, bestD := 0, math.MaxInt
			for i := 0; i < n; i++ {
				d := s.torusDist2(x, y, cx[i], cy[i])
				if d < bestD {
					best, bestD = i, d
				}
			}
			s.owner[y*s.w+x] = uint16(best)
		}
	}
	s.overlap = make(map[[2]uint16]int)
	s.recountAreas()
}

func (s *lithosphere) torusDist2(x0, y0, x1, y1 int) int {
	dx := abs(x0 - x1)
	if s.w-dx < dx {
		dx = s.w - dx
	}
	dy := abs(y0 - y1)
	if s.h-dy < dy {
		dy = s.h - dy
	}
	return dx*dx + dy*dy
}

func (s *lithosphere) recountAreas() {
	for i := range s.plates {
		s.plates[i].area = 0
	}
	for _, o := range s.owner {
		s.plates[o].area++
	}
	for i := range s.plates {
		if s.plates[i].area == 0 {
			s.plates[i].alive = false
		}
	}
}

func (s *lithosphere) IsFinished() bool { return s.finished }

func (s *lithosphere) Step() error {
	if s.released {
		return ErrReleased
	}
	if s.finished {
		return nil
	}
	s.iter++
	s.move()
	s.fillGaps()
	s.height, s.nextH = s.nextH, s.height
	for i, o := range s.nextO {
		s.owner[i] = uint16(o)
	}
	s.recountAreas()
	s.slowDown()
	s.aggregate()
	if s.p.ErosionPeriod > 0 && s.iter%s.p.ErosionPeriod == 0 {
		s.erode()
	}
	if s.iter >= s.maxIter || s.stopped() {
		s.cycle++
		if s.cycle >= s.p.CycleCount {
			s.finished = true
			return nil
		}
		s.iter = 0
		s.segment()
	}
	return nil
}

// move shifts every plate by its whole-cell drift into nextH/nextO,
// resolving collisions as it goes.
func (s *lithosphere) move() {
	for i := range s.plates {
		pl := &s.plates[i]
		pl.hits = 0
		if !pl.alive {
			continue
		}
		pl.ax += pl.vx
		pl.ay += pl.vy
		pl.dx = int(pl.ax)
		pl.dy = int(pl.ay)
		pl.ax -= float64(pl.dx)
		pl.ay -= float64(pl.dy)
	}
	for i := range s.nextO {
		s.nextO[i] = -1
		s.nextH[i] = 0
	}
	fold := s.p.FoldingRatio
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			i := y*s.w + x
			p := s.owner[i]
			pl := &s.plates[p]
			nx := ((x+pl.dx)%s.w + s.w) % s.w
			ny := ((y+pl.dy)%s.h + s.h) % s.h
			d := ny*s.w + nx
			h := s.height[i]
			if s.nextO[d] < 0 {
				s.nextO[d] = int32(p)
				s.nextH[d] = h
				continue
			}
			q := uint16(s.nextO[d])
			other := s.nextH[d]
			hi, lo := h, other
			winner := p
			if other > h {
				hi, lo = other, h
				winner = q
			}
			if lo >= ContinentalBase {
				// Continent meets continent: the crust piles up.
				hi += lo * (0.1 + fold)
			} else {
				// Subduction: only the folded share survives.
				hi += lo * fold
			}
			s.nextO[d] = int32(winner)
			s.nextH[d] = hi
			pl.hits++
			s.plates[q].hits++
			key := [2]uint16{p, q}
			if q < p {
				key = [2]uint16{q, p}
			}
			s.overlap[key]++
		}
	}
}

// fillGaps gives cells nobody moved onto a neighbouring plate and fresh
// oceanic crust.
func (s *lithosphere) fillGaps() {
	for pass := 0; pass < 4; pass++ {
		open := false
		for y := 0; y < s.h; y++ {
			for x := 0; x < s.w; x++ {
				i := y*s.w + x
				if s.nextO[i] >= 0 {
					continue
				}
				if o := s.neighbourOwner(x, y); o >= 0 {
					s.nextO[i] = o
					s.nextH[i] = OceanicBase
				} else {
					open = true
				}
			}
		}
		if !open {
			return
		}
	}
	for i, o := range s.nextO {
		if o < 0 {
			s.nextO[i] = int32(s.owner[i])
			s.nextH[i] = OceanicBase
		}
	}
}

func (s *lithosphere) neighbourOwner(x, y int) int32 {
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		nx := (x + d[0] + s.w) % s.w
		ny := (y + d[1] + s.h) % s.h
		if o := s.nextO[ny*s.w+nx]; o >= 0 {
			return o
		}
	}
	return -1
}

func (s *lithosphere) slowDown() {
	for i := range s.plates {
		pl := &s.plates[i]
		if !pl.alive {
			continue
		}
		k := friction
		if pl.area > 0 && pl.hits > 0 {
			k -= math.Min(0.3, float64(pl.hits)/float64(pl.area))
		}
		pl.vx *= k
		pl.vy *= k
	}
}

func (s *lithosphere) stopped() bool {
	for _, pl := range s.plates {
		if pl.alive && math.Hypot(pl.vx, pl.vy) >= stopSpeed {
			return false
		}
	}
	return true
}

func (s *lithosphere) alivePlates() int {
	n := 0
	for _, pl := range s.plates {
		if pl.alive {
			n++
		}
	}
	return n
}

// aggregate merges at most one pair of plates per step: the smaller plate
// joins the larger once their accumulated overlap passes the absolute or the
// relative threshold.
func (s *lithosphere) aggregate() {
	floor := s.p.NumPlates / 2
	if floor < MinPlates {
		floor = MinPlates
	}
	if s.alivePlates() <= floor {
		return
	}
	keys := make([][2]uint16, 0, len(s.overlap))
	for k := range s.overlap {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b [2]uint16) int {
		if a[0] != b[0] {
			return int(a[0]) - int(b[0])
		}
		return int(a[1]) - int(b[1])
	})
	for _, k := range keys {
		a, b := &s.plates[k[0]], &s.plates[k[1]]
		if !a.alive || !b.alive {
			continue
		}
		c := s.overlap[k]
		small := min(a.area, b.area)
		if c <= s.p.AggrOverlapAbs && (small == 0 || float32(c)/float32(small) <= s.p.AggrOverlapRel) {
			continue
		}
		keep, drop := k[0], k[1]
		if b.area > a.area {
			keep, drop = k[1], k[0]
		}
		s.merge(keep, drop)
		return
	}
}

func (s *lithosphere) merge(keep, drop uint16) {
	k, d := &s.plates[keep], &s.plates[drop]
	total := float64(k.area + d.area)
	if total > 0 {
		k.vx = (k.vx*float64(k.area) + d.vx*float64(d.area)) / total
		k.vy = (k.vy*float64(k.area) + d.vy*float64(d.area)) / total
	}
	for i, o := range s.owner {
		if o == drop {
			s.owner[i] = keep
		}
	}
	k.area += d.area
	d.area = 0
	d.alive = false
	for key := range s.overlap {
		if key[0] == drop || key[1] == drop {
			delete(s.overlap, key)
		}
	}
}

// erode moves land cells a fraction of the way towards their neighbourhood
// mean.
func (s *lithosphere) erode() {
	out := s.nextH
	copy(out, s.height)
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			i := y*s.w + x
			h := s.height[i]
			if h < ContinentalBase {
				continue
			}
			var sum float32
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx := (x + d[0] + s.w) % s.w
				ny := (y + d[1] + s.h) % s.h
				sum += s.height[ny*s.w+nx]
			}
			mean := sum / 4
			if mean < h {
				out[i] = h - (h-mean)*erosionRate
			}
		}
	}
	s.height, s.nextH = out, s.height
}

func (s *lithosphere) Heightmap() []float32 {
	if s.released {
		return nil
	}
	return slices.Clone(s.height)
}

func (s *lithosphere) PlatesMap() []uint32 {
	if s.released {
		return nil
	}
	out := make([]uint32, len(s.owner))
	for i, o := range s.owner {
		out[i] = uint32(o)
	}
	return out
}

func (s *lithosphere) Release() {
	s.released = true
	s.height = nil
	s.owner = nil
	s.nextH = nil
	s.nextO = nil
	s.overlap = nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
