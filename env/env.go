// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package env

// NumMoves is the size of the discrete move space.
const NumMoves = 5

// Action is one agent input. Reset discards the episode and respawns;
// when it is set, Move is ignored.
type Action struct {
	// Move selects a direction: 0 stay, 1 down, 2 up, 3 right, 4 left.
	Move int `cbor:"move"`

	// Reset starts a new episode.
	Reset bool `cbor:"reset"`
}

// Observation is one step's output.
type Observation struct {
	Image      Image   `cbor:"image"`
	Reward     float64 `cbor:"reward"`
	IsFirst    bool    `cbor:"is_first"`
	IsLast     bool    `cbor:"is_last"`
	IsTerminal bool    `cbor:"is_terminal"`
}

// Image is a row-major RGB bitmap: Pixels holds Height rows of Width
// pixels, three bytes each.
type Image struct {
	Width  int    `cbor:"width"`
	Height int    `cbor:"height"`
	Pixels []byte `cbor:"pixels"`
}

// At returns the RGB triple at column x, row y.
func (i Image) At(x, y int) (r, g, b byte) {
	offset := (y*i.Width + x) * 3
	return i.Pixels[offset], i.Pixels[offset+1], i.Pixels[offset+2]
}

// Env is the stepping surface environments expose. All methods are
// reachable through a proxy: Len maps to the proxy's reserved length
// member and Close is invoked by the worker on shutdown.
type Env interface {
	Step(action Action) Observation
	Render() Image

	// Len reports the batch width; scalar environments return 0.
	Len() int

	Close() error
}
