// Package heatmap renders pitch occupancy from metric trajectories.
//
// It consumes finalized metric positions only; everything upstream
// (stabilisation, projection) has already happened by the time a
// trajectory reaches here.
package heatmap

import (
	"fmt"

	"github.com/fieldsight/pitchtrack/internal/geom"
)

// Pitch extent in metres of the calibrated segment, matching the default
// world quad.
const (
	DefaultWidthM  = 23.32
	DefaultHeightM = 68.0
)

// Grid is a rectangular occupancy histogram over the pitch segment. Cell
// (0,0) is the bottom-left corner in world coordinates.
type Grid struct {
	widthM, heightM float64
	cols, rows      int
	counts          []float64
	maxCount        float64
}

// NewGrid builds an empty occupancy grid. Cell size is roughly one metre
// with cols=23, rows=68.
func NewGrid(widthM, heightM float64, cols, rows int) (*Grid, error) {
	if widthM <= 0 || heightM <= 0 {
		return nil, fmt.Errorf("heatmap: pitch extent must be positive, got %gx%g", widthM, heightM)
	}
	if cols < 1 || rows < 1 {
		return nil, fmt.Errorf("heatmap: grid must have at least one cell, got %dx%d", cols, rows)
	}
	return &Grid{
		widthM:  widthM,
		heightM: heightM,
		cols:    cols,
		rows:    rows,
		counts:  make([]float64, cols*rows),
	}, nil
}

// NewDefaultGrid covers the default calibrated segment at ~1 m cells.
func NewDefaultGrid() *Grid {
	g, _ := NewGrid(DefaultWidthM, DefaultHeightM, 23, 68)
	return g
}

// Add accumulates one metric position. Positions outside the pitch
// extent are ignored; the projector already rejects out-of-quad points,
// so these only occur at the extreme boundary.
func (g *Grid) Add(p geom.Point) {
	if p.X < 0 || p.X >= g.widthM || p.Y < 0 || p.Y >= g.heightM {
		return
	}
	col := int(p.X / g.widthM * float64(g.cols))
	row := int(p.Y / g.heightM * float64(g.rows))
	i := row*g.cols + col
	g.counts[i]++
	if g.counts[i] > g.maxCount {
		g.maxCount = g.counts[i]
	}
}

// AddTrajectory accumulates a whole frame-indexed trajectory.
func (g *Grid) AddTrajectory(positions map[int]geom.Point) {
	for _, p := range positions {
		g.Add(p)
	}
}

// Count returns the occupancy of cell (col, row).
func (g *Grid) Count(col, row int) float64 {
	return g.counts[row*g.cols+col]
}

// Max returns the highest cell occupancy seen.
func (g *Grid) Max() float64 { return g.maxCount }

// Total returns the number of accumulated positions.
func (g *Grid) Total() float64 {
	var sum float64
	for _, c := range g.counts {
		sum += c
	}
	return sum
}

// Dims implements plotter.GridXYZ.
func (g *Grid) Dims() (int, int) { return g.cols, g.rows }

// Z implements plotter.GridXYZ.
func (g *Grid) Z(c, r int) float64 { return g.Count(c, r) }

// X implements plotter.GridXYZ: the cell centre in metres.
func (g *Grid) X(c int) float64 {
	return (float64(c) + 0.5) * g.widthM / float64(g.cols)
}

// Y implements plotter.GridXYZ: the cell centre in metres.
func (g *Grid) Y(r int) float64 {
	return (float64(r) + 0.5) * g.heightM / float64(g.rows)
}
