// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
)

// Grid dimensions of every pin-pad layout: 16 columns by 14 rows.
const (
	gridWidth  = 16
	gridHeight = 14
)

// Reward shaping constants. The distance terms guide the agent toward
// the next pad in the sequence; the completion bonus pays out once and
// starts the respawn countdown.
const (
	rewardToward     = 0.1
	penaltyAway      = 0.05
	penaltyWrongPad  = 0.1
	rewardCorrectPad = 1.0
	rewardComplete   = 10.0

	// respawnCountdown is how many steps the completion tint lasts
	// before the agent is respawned for another round.
	respawnCountdown = 10
)

var padColors = map[byte][3]byte{
	'1': {255, 0, 0},
	'2': {0, 255, 0},
	'3': {0, 0, 255},
	'4': {255, 255, 0},
	'5': {255, 0, 255},
	'6': {0, 255, 255},
	'7': {128, 0, 128},
	'8': {0, 128, 128},
}

// moves maps Action.Move to a (dx, dy) step.
var moves = [5][2]int{{0, 0}, {0, 1}, {0, -1}, {1, 0}, {-1, 0}}

// PinPad is a tile world where the agent must touch every colored pad
// in sorted order. Touching the full sequence pays a completion bonus
// and respawns the agent after a short countdown; episodes are
// truncated after a fixed number of steps. Each step also carries a
// dense shaping reward based on the distance to the next pad in the
// sequence.
//
// PinPad is not safe for concurrent use; behind a worker the dispatch
// loop serializes access.
type PinPad struct {
	layout [gridWidth][gridHeight]byte
	length int
	rng    *rand.Rand

	pads       map[byte]bool
	target     []byte
	spawns     [][2]int
	padCenters map[byte][2]float64

	player    [2]int
	sequence  []byte
	steps     int
	done      bool
	countdown int

	visits [gridWidth][gridHeight]int64
}

// NewPinPad creates a pin-pad environment. Task selects the layout
// variant ("three" through "eight", by pad count), length is the
// episode length in steps, and seed fixes the spawn randomness.
func NewPinPad(task string, length int, seed int64) (*PinPad, error) {
	if length <= 0 {
		return nil, fmt.Errorf("pinpad: episode length must be positive, got %d", length)
	}
	lines, ok := layouts[task]
	if !ok {
		return nil, fmt.Errorf("pinpad: unknown task %q", task)
	}

	p := &PinPad{
		length:     length,
		rng:        rand.New(rand.NewSource(seed)),
		pads:       make(map[byte]bool),
		padCenters: make(map[byte][2]float64),
		done:       true, // first Step spawns the agent
	}

	rows := strings.Split(lines, "\n")
	if len(rows) != gridHeight {
		return nil, fmt.Errorf("pinpad: layout %q has %d rows, want %d", task, len(rows), gridHeight)
	}
	padCells := make(map[byte][][2]int)
	for y, row := range rows {
		if len(row) != gridWidth {
			return nil, fmt.Errorf("pinpad: layout %q row %d has %d columns, want %d", task, y, len(row), gridWidth)
		}
		for x := 0; x < gridWidth; x++ {
			char := row[x]
			p.layout[x][y] = char
			if char != '#' {
				p.spawns = append(p.spawns, [2]int{x, y})
			}
			if char != '#' && char != ' ' {
				p.pads[char] = true
				padCells[char] = append(padCells[char], [2]int{x, y})
			}
		}
	}

	for pad := range p.pads {
		p.target = append(p.target, pad)
	}
	sort.Slice(p.target, func(i, j int) bool { return p.target[i] < p.target[j] })
	p.sequence = make([]byte, 0, len(p.target))

	for pad, cells := range padCells {
		var sumX, sumY float64
		for _, cell := range cells {
			sumX += float64(cell[0])
			sumY += float64(cell[1])
		}
		n := float64(len(cells))
		p.padCenters[pad] = [2]float64{sumX / n, sumY / n}
	}

	return p, nil
}

// Step advances the environment by one action. A Reset action (or a
// finished episode) spawns the agent at a random free tile and returns
// the first observation of a new episode.
func (p *PinPad) Step(action Action) Observation {
	if p.done || action.Reset {
		p.respawn()
		p.steps = 0
		p.done = false
		p.countdown = 0
		return p.observe(0, true, false)
	}

	if p.countdown > 0 {
		p.countdown--
		if p.countdown == 0 {
			p.respawn()
		}
	}

	old := p.player
	move := moves[action.Move]
	x := clamp(p.player[0]+move[0], 0, gridWidth-1)
	y := clamp(p.player[1]+move[1], 0, gridHeight-1)
	tile := p.layout[x][y]
	if tile != '#' {
		p.player = [2]int{x, y}
		p.visits[x][y]++
	}

	// Shaping is judged against the sequence as it stood before this
	// step's pad (if any) is recorded.
	reward := p.guidanceReward(old, p.player, tile)

	if p.pads[tile] && (len(p.sequence) == 0 || p.sequence[len(p.sequence)-1] != tile) {
		if len(p.sequence) == cap(p.sequence) {
			copy(p.sequence, p.sequence[1:])
			p.sequence = p.sequence[:len(p.sequence)-1]
		}
		p.sequence = append(p.sequence, tile)
	}

	if p.countdown == 0 && bytes.Equal(p.sequence, p.target) {
		reward += rewardComplete
		p.countdown = respawnCountdown
	}

	p.steps++
	if p.steps >= p.length {
		p.done = true
	}
	return p.observe(reward, false, p.done)
}

func (p *PinPad) respawn() {
	p.player = p.spawns[p.rng.Intn(len(p.spawns))]
	p.sequence = p.sequence[:0]
}

// progress is the longest suffix of the touch sequence that is a
// prefix of the target ordering; it doubles as the index of the next
// pad to touch.
func (p *PinPad) progress() int {
	for start := 0; start < len(p.sequence); start++ {
		suffix := p.sequence[start:]
		if len(suffix) <= len(p.target) && bytes.HasPrefix(p.target, suffix) {
			return len(suffix)
		}
	}
	return 0
}

func (p *PinPad) guidanceReward(old, now [2]int, tile byte) float64 {
	next := p.progress()
	if next >= len(p.target) {
		return 0
	}
	nextPad := p.target[next]
	center := p.padCenters[nextPad]
	oldDist := math.Hypot(float64(old[0])-center[0], float64(old[1])-center[1])
	newDist := math.Hypot(float64(now[0])-center[0], float64(now[1])-center[1])

	reward := 0.0
	if newDist < oldDist {
		reward += rewardToward
	} else if newDist > oldDist {
		reward -= penaltyAway
	}
	if p.pads[tile] && tile != nextPad {
		reward -= penaltyWrongPad
	}
	if tile == nextPad {
		reward += rewardCorrectPad
	}
	return reward
}

func (p *PinPad) observe(reward float64, isFirst, isLast bool) Observation {
	return Observation{
		Image:   p.Render(),
		Reward:  reward,
		IsFirst: isFirst,
		IsLast:  isLast,
	}
}

// Render draws the world as a 64x64 RGB image: the 16x14 grid plus a
// two-column sidebar showing the pads touched so far, upscaled 4x.
// During the post-completion countdown the background is tinted green.
func (p *PinPad) Render() Image {
	const side = gridWidth // the sidebar pads the grid out to 16x16

	var grid [side][side][3]byte
	background := [3]byte{255, 255, 255}
	if p.countdown > 0 {
		background = [3]byte{223, 255, 223}
	}
	for x := 0; x < side; x++ {
		for y := 0; y < side; y++ {
			grid[x][y] = background
		}
	}

	current := p.layout[p.player[0]][p.player[1]]
	for x := 0; x < gridWidth; x++ {
		for y := 0; y < gridHeight; y++ {
			char := p.layout[x][y]
			switch {
			case char == '#':
				grid[x][y] = [3]byte{192, 192, 192}
			case p.pads[char]:
				color := padColors[char]
				if char != current {
					color = dim(color)
				}
				grid[x][y] = color
			}
		}
	}
	grid[p.player[0]][p.player[1]] = [3]byte{0, 0, 0}

	for x := 0; x < side; x++ {
		grid[x][side-2] = [3]byte{192, 192, 192}
		grid[x][side-1] = [3]byte{192, 192, 192}
	}
	for i, char := range p.sequence {
		grid[2*i+1][side-2] = padColors[char]
	}

	return upscale(side, side, func(x, y int) [3]byte { return grid[x][y] })
}

// dim fades a pad color toward white; the pad the agent stands on is
// drawn at full saturation.
func dim(color [3]byte) [3]byte {
	var out [3]byte
	for i, c := range color {
		out[i] = byte((10*int(c) + 90*255) / 100)
	}
	return out
}

// Heatmap renders the visit counts as a 64x56 RGB image on a
// blue-to-red scale, normalized by the most visited tile. Walls are
// drawn gray.
func (p *PinPad) Heatmap() Image {
	var max int64
	for x := 0; x < gridWidth; x++ {
		for y := 0; y < gridHeight; y++ {
			if p.visits[x][y] > max {
				max = p.visits[x][y]
			}
		}
	}

	return upscale(gridWidth, gridHeight, func(x, y int) [3]byte {
		if p.layout[x][y] == '#' {
			return [3]byte{192, 192, 192}
		}
		var intensity float64
		if max > 0 {
			intensity = float64(p.visits[x][y]) / float64(max)
		}
		return heatColor(intensity)
	})
}

// heatColor maps a normalized visit intensity onto a four-band
// blue/cyan-green/yellow/red gradient.
func heatColor(intensity float64) [3]byte {
	switch {
	case intensity < 0.25:
		return [3]byte{0, byte(intensity * 4 * 255), 255}
	case intensity < 0.5:
		return [3]byte{0, 255, byte((0.5 - intensity) * 4 * 255)}
	case intensity < 0.75:
		return [3]byte{byte((intensity - 0.5) * 4 * 255), 255, 0}
	default:
		return [3]byte{255, byte((1.0 - intensity) * 4 * 255), 0}
	}
}

// upscale renders a column-major (x, y) grid into a row-major Image,
// scaling each cell to a 4x4 pixel block.
func upscale(width, height int, at func(x, y int) [3]byte) Image {
	const scale = 4
	outWidth, outHeight := width*scale, height*scale
	pixels := make([]byte, outWidth*outHeight*3)
	for row := 0; row < outHeight; row++ {
		for col := 0; col < outWidth; col++ {
			color := at(col/scale, row/scale)
			offset := (row*outWidth + col) * 3
			pixels[offset] = color[0]
			pixels[offset+1] = color[1]
			pixels[offset+2] = color[2]
		}
	}
	return Image{Width: outWidth, Height: outHeight, Pixels: pixels}
}

// Stats summarizes position-visit coverage for an episode run.
type Stats struct {
	TotalVisits    int64   `cbor:"total_visits"`
	Visited        int     `cbor:"visited"`
	ValidPositions int     `cbor:"valid_positions"`
	Coverage       float64 `cbor:"coverage"`
	MaxVisits      int64   `cbor:"max_visits"`
	MeanVisits     float64 `cbor:"mean_visits"`
}

// VisitStats reports how thoroughly the agent has covered the
// walkable tiles since the environment was created.
func (p *PinPad) VisitStats() Stats {
	var stats Stats
	var visitedSum int64
	for x := 0; x < gridWidth; x++ {
		for y := 0; y < gridHeight; y++ {
			if p.layout[x][y] == '#' {
				continue
			}
			stats.ValidPositions++
			count := p.visits[x][y]
			stats.TotalVisits += count
			if count > 0 {
				stats.Visited++
				visitedSum += count
			}
			if count > stats.MaxVisits {
				stats.MaxVisits = count
			}
		}
	}
	if stats.ValidPositions > 0 {
		stats.Coverage = float64(stats.Visited) / float64(stats.ValidPositions)
	}
	if stats.Visited > 0 {
		stats.MeanVisits = float64(visitedSum) / float64(stats.Visited)
	}
	return stats
}

// Len reports the batch width; PinPad is a scalar environment.
func (p *PinPad) Len() int { return 0 }

// Close releases nothing; PinPad holds no external resources.
func (p *PinPad) Close() error { return nil }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var layouts = map[string]string{
	"three": layoutThree,
	"four":  layoutFour,
	"five":  layoutFive,
	"six":   layoutSix,
	"seven": layoutSeven,
	"eight": layoutEight,
}

const layoutThree = `################
#1111      3333#
#1111      3333#
#1111      3333#
#1111      3333#
#              #
#              #
#              #
#              #
#     2222     #
#     2222     #
#     2222     #
#     2222     #
################`

const layoutFour = `################
#1111      4444#
#1111      4444#
#1111      4444#
#1111      4444#
#              #
#              #
#              #
#              #
#3333      2222#
#3333      2222#
#3333      2222#
#3333      2222#
################`

const layoutFive = `################
#          4444#
#111       4444#
#111       4444#
#111           #
#111        555#
#           555#
#           555#
#333        555#
#333           #
#333       2222#
#333       2222#
#          2222#
################`

const layoutSix = `################
#111        555#
#111        555#
#111        555#
#              #
#33          66#
#33          66#
#33          66#
#33          66#
#              #
#444        222#
#444        222#
#444        222#
################`

const layoutSeven = `################
#111        444#
#111        444#
#11          44#
#              #
#33          55#
#33          55#
#33          55#
#33          55#
#              #
#66          22#
#666  7777  222#
#666  7777  222#
################`

const layoutEight = `################
#111  8888  444#
#111  8888  444#
#11          44#
#              #
#33          55#
#33          55#
#33          55#
#33          55#
#              #
#66          22#
#666  7777  222#
#666  7777  222#
################`
