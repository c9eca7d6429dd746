/*
Copyright © 2019 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package footprint

import (
	"fmt"
	"io/ioutil"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/footprint/internal/hash"
)

const testTolerance = 1.e-9

// testConfig returns the default configuration with a fixed worker
// count and a discarded log so test output stays readable.
func testConfig() *Config {
	c := DefaultConfig()
	c.NumWorkers = 2
	log := logrus.New()
	log.Out = ioutil.Discard
	c.Log = log
	return c
}

// testGrid returns the grid most of the tests run on: a 10 x 10 grid
// of 0.1-degree cells with its southwest corner at the origin.
func testGrid() GridDef {
	return GridDef{Xmin: 0, Xmax: 1, Ymin: 0, Ymax: 1, Dx: 0.1, Dy: 0.1}
}

// synthEnsemble random-walks nTraj backward trajectories from
// (1.05, 1.05), recording a sample every half minute out to 30
// minutes. The walk steps are small enough that every sample stays
// within [0, 2.1] on both axes.
func synthEnsemble(nTraj int, seed int64) *Ensemble {
	rng := rand.New(rand.NewSource(seed))
	e := NewEnsemble()
	for id := 1; id <= nTraj; id++ {
		lon, lat := 1.05, 1.05
		for t := 0.; t >= -30; t -= 0.5 {
			e.Add(Particle{Trajectory: id, T: t, Lon: lon, Lat: lat, Foot: rng.Float64()})
			lon += (rng.Float64() - 0.5) * 0.02
			lat += (rng.Float64() - 0.5) * 0.02
		}
	}
	return e
}

// TestCalcTwoTrajectories computes the footprint of two trajectories
// sampled once each in the same grid cell. The field should peak in
// that cell, integrate to one (two trajectories of weight one,
// normalized by the trajectory count), and fall off around the peak
// with exactly the smoothing kernel for that time step.
func TestCalcTwoTrajectories(t *testing.T) {
	d := GridDef{Xmin: 0, Xmax: 2.1, Ymin: 0, Ymax: 2.1, Dx: 0.05, Dy: 0.05}
	e := NewEnsemble()
	e.Add(Particle{Trajectory: 1, T: 0, Lon: 1.01, Lat: 1.02, Foot: 1})
	e.Add(Particle{Trajectory: 2, T: 0, Lon: 1.04, Lat: 1.03, Foot: 1})

	c := testConfig()
	c.Calibration = 0.5 // inflate the kernel so the falloff spans several cells

	f, err := c.Calc(e, d, "")
	if err != nil {
		t.Fatal(err)
	}
	if f.Trajectories != 2 {
		t.Errorf("trajectory count: want 2 but have %d", f.Trajectories)
	}
	if different(f.Sum(), 1, testTolerance) {
		t.Errorf("total influence: want 1 but have %g", f.Sum())
	}

	const row, col = 20, 20 // the cell containing both samples
	if f.Max() != f.Data.Get(row, col) {
		t.Errorf("peak %g is not in the release cell (which holds %g)",
			f.Max(), f.Data.Get(row, col))
	}

	// Both samples collapse onto one occupied cell, so the field must
	// equal that time step's kernel translated to the cell.
	slices, err := c.preprocess(e, d)
	if err != nil {
		t.Fatal(err)
	}
	est := c.estimate(slices)
	k := gaussKernel(c.sigma(est[0].dist, est[0].lat, d), d)
	cy, cx := k.Shape[0]/2, k.Shape[1]/2
	for j := 0; j < k.Shape[0]; j++ {
		for i := 0; i < k.Shape[1]; i++ {
			have := f.Data.Get(row+j-cy, col+i-cx)
			if different(have, k.Get(j, i), 1.e-12) {
				t.Errorf("cell (%d,%d): want %g but have %g",
					row+j-cy, col+i-cx, k.Get(j, i), have)
			}
		}
	}
}

// TestCalcAllOutside runs an ensemble that never enters the grid: the
// result is a zero field with the grid's dimensions, not an error.
func TestCalcAllOutside(t *testing.T) {
	d := testGrid()
	e := NewEnsemble()
	for i, lon := range []float64{5, 6, 7} {
		e.Add(Particle{Trajectory: i + 1, T: 0, Lon: lon, Lat: 5, Foot: 1})
		e.Add(Particle{Trajectory: i + 1, T: -0.5, Lon: lon + 0.1, Lat: 5.1, Foot: 1})
	}
	f, err := testConfig().Calc(e, d, "")
	if err != nil {
		t.Fatal(err)
	}
	if f.Sum() != 0 {
		t.Errorf("want a zero field but total influence is %g", f.Sum())
	}
	if f.Data.Shape[0] != d.Ny() || f.Data.Shape[1] != d.Nx() {
		t.Errorf("want shape [%d %d] but have %v", d.Ny(), d.Nx(), f.Data.Shape)
	}
	if f.Trajectories != 3 {
		t.Errorf("trajectory count: want 3 but have %d", f.Trajectories)
	}
}

// TestCalcBoundaryInclusive puts samples exactly on the grid edges and
// just beyond them. All four edges are inclusive, and the trajectory
// count in the normalization comes from the ensemble as given, not
// from the samples that survive filtering.
func TestCalcBoundaryInclusive(t *testing.T) {
	d := testGrid()
	e := NewEnsemble()
	e.Add(Particle{Trajectory: 1, T: 0, Lon: 0, Lat: 0, Foot: 1})    // southwest corner
	e.Add(Particle{Trajectory: 2, T: -0.1, Lon: 1, Lat: 1, Foot: 1}) // northeast corner
	e.Add(Particle{Trajectory: 3, T: 0, Lon: 1.0000001, Lat: 0.5, Foot: 1})
	e.Add(Particle{Trajectory: 4, T: 0, Lon: 0.5, Lat: -0.0000001, Foot: 1})

	f, err := testConfig().Calc(e, d, "")
	if err != nil {
		t.Fatal(err)
	}
	// The corner samples land in the corner cells with single-cell
	// kernels, and trajectories 3 and 4 contribute nothing but still
	// count in the normalization: 1/4 in each corner.
	if different(f.Data.Get(0, 0), 0.25, testTolerance) {
		t.Errorf("southwest corner: want 0.25 but have %g", f.Data.Get(0, 0))
	}
	if different(f.Data.Get(9, 9), 0.25, testTolerance) {
		t.Errorf("northeast corner: want 0.25 but have %g", f.Data.Get(9, 9))
	}
	if different(f.Sum(), 0.5, testTolerance) {
		t.Errorf("total influence: want 0.5 but have %g", f.Sum())
	}
	if f.Data.Get(5, 9) != 0 || f.Data.Get(0, 5) != 0 {
		t.Errorf("excluded samples contributed to the field")
	}
}

// TestCalcResolutionDoubling checks that halving the cell size doubles
// the cell counts but leaves the total influence unchanged, since the
// field is an integral over the domain.
func TestCalcResolutionDoubling(t *testing.T) {
	coarse := GridDef{Xmin: 0, Xmax: 2.1, Ymin: 0, Ymax: 2.1, Dx: 0.1, Dy: 0.1}
	fine := coarse
	fine.Dx, fine.Dy = coarse.Dx/2, coarse.Dy/2

	rng := rand.New(rand.NewSource(99))
	e := NewEnsemble()
	var totalWeight float64
	for id := 1; id <= 6; id++ {
		lon, lat := 1.05, 1.05
		for _, tt := range []float64{0, -0.3, -0.7, -1.2} {
			w := 0.5 + rng.Float64()
			e.Add(Particle{Trajectory: id, T: tt, Lon: lon, Lat: lat, Foot: w})
			totalWeight += w
			lon += (rng.Float64() - 0.5) * 0.1
			lat += (rng.Float64() - 0.5) * 0.1
		}
	}

	c := testConfig()
	fc, err := c.Calc(e, coarse, "")
	if err != nil {
		t.Fatal(err)
	}
	ff, err := c.Calc(e, fine, "")
	if err != nil {
		t.Fatal(err)
	}
	if ff.Nx() != 2*fc.Nx() || ff.Ny() != 2*fc.Ny() {
		t.Errorf("want twice as many cells: %d x %d vs %d x %d",
			ff.Nx(), ff.Ny(), fc.Nx(), fc.Ny())
	}
	if different(fc.Sum(), ff.Sum(), testTolerance) {
		t.Errorf("total influence changed with resolution: %g vs %g",
			fc.Sum(), ff.Sum())
	}
	if want := totalWeight / 6; different(fc.Sum(), want, testTolerance) {
		t.Errorf("total influence: want %g but have %g", want, fc.Sum())
	}
}

// TestCalcDeterminism checks that repeated calculations with equal
// inputs, seeds, and worker counts give bit-identical fields, and that
// changing the worker count moves cell values only within floating
// point addition-order noise.
func TestCalcDeterminism(t *testing.T) {
	d := GridDef{Xmin: 0, Xmax: 2.1, Ymin: 0, Ymax: 2.1, Dx: 0.1, Dy: 0.1}
	e := synthEnsemble(15, 3)
	c := testConfig()
	c.NumWorkers = 4
	f1, err := c.Calc(e, d, "")
	if err != nil {
		t.Fatal(err)
	}
	f2, err := c.Calc(e, d, "")
	if err != nil {
		t.Fatal(err)
	}
	if hash.Hash(f1) != hash.Hash(f2) {
		t.Error("repeated calculations with equal inputs differ")
	}
	c.NumWorkers = 1
	f3, err := c.Calc(e, d, "")
	if err != nil {
		t.Fatal(err)
	}
	for i := range f1.Data.Elements {
		if different(f1.Data.Elements[i], f3.Data.Elements[i], 1.e-12) {
			t.Errorf("cell %d: 4 workers give %g, 1 worker gives %g",
				i, f1.Data.Elements[i], f3.Data.Elements[i])
		}
	}
}

// TestCalcInputErrors checks that malformed ensembles, grids, and
// configurations abort the calculation with an InputError instead of
// producing a silently wrong field.
func TestCalcInputErrors(t *testing.T) {
	good := testGrid()
	okEnsemble := func() *Ensemble {
		e := NewEnsemble()
		e.Add(Particle{Trajectory: 1, T: 0, Lon: 0.5, Lat: 0.5, Foot: 1})
		return e
	}
	withSample := func(p Particle) *Ensemble {
		e := okEnsemble()
		e.Add(p)
		return e
	}
	withConfig := func(mod func(*Config)) *Config {
		c := testConfig()
		mod(c)
		return c
	}
	tests := []struct {
		name string
		c    *Config
		e    *Ensemble
		d    GridDef
	}{
		{"empty ensemble", nil, NewEnsemble(), good},
		{"positive time offset", nil, withSample(Particle{Trajectory: 2, T: 0.1, Lon: 0.5, Lat: 0.5, Foot: 1}), good},
		{"NaN location", nil, withSample(Particle{Trajectory: 2, T: 0, Lon: math.NaN(), Lat: 0.5, Foot: 1}), good},
		{"NaN weight", nil, withSample(Particle{Trajectory: 2, T: 0, Lon: 0.5, Lat: 0.5, Foot: math.NaN()}), good},
		{"negative weight", nil, withSample(Particle{Trajectory: 2, T: 0, Lon: 0.5, Lat: 0.5, Foot: -1}), good},
		{"duplicate sample times", nil, withSample(Particle{Trajectory: 1, T: 0, Lon: 0.6, Lat: 0.6, Foot: 1}), good},
		{"zero resolution", nil, okEnsemble(), GridDef{Xmin: 0, Xmax: 1, Ymin: 0, Ymax: 1, Dx: 0, Dy: 0.1}},
		{"inverted bounds", nil, okEnsemble(), GridDef{Xmin: 1, Xmax: 0, Ymin: 0, Ymax: 1, Dx: 0.1, Dy: 0.1}},
		{"latitude overflow", nil, okEnsemble(), GridDef{Xmin: 0, Xmax: 1, Ymin: -100, Ymax: 100, Dx: 0.1, Dy: 0.1}},
		{"mismatched epochs", withConfig(func(c *Config) { c.TimeSteps = []float64{0.1} }), okEnsemble(), good},
		{"uneven time step", withConfig(func(c *Config) { c.TimeSteps = []float64{0.3, 0.2, 0.5} }), okEnsemble(), good},
		{"zero calibration", withConfig(func(c *Config) { c.Calibration = 0 }), okEnsemble(), good},
		{"bad bootstrap size", withConfig(func(c *Config) { c.BootstrapSize = 1 }), okEnsemble(), good},
	}
	for _, tt := range tests {
		c := tt.c
		if c == nil {
			c = testConfig()
		}
		_, err := c.Calc(tt.e, tt.d, "")
		if err == nil {
			t.Errorf("%s: want an error but have none", tt.name)
			continue
		}
		if _, ok := err.(InputError); !ok {
			t.Errorf("%s: error %q is not an InputError", tt.name, err)
		}
	}
}

func BenchmarkCalc(b *testing.B) {
	d := GridDef{Xmin: 0, Xmax: 2.1, Ymin: 0, Ymax: 2.1, Dx: 0.02, Dy: 0.02}
	e := synthEnsemble(50, 7)
	var timing []time.Duration
	var procs = []int{1, 2, 4, 8}
	var total float64
	for _, nprocs := range procs {
		c := testConfig()
		c.NumWorkers = nprocs
		start := time.Now()
		f, err := c.Calc(e, d, "")
		if err != nil {
			b.Fatal(err)
		}
		timing = append(timing, time.Since(start))
		if total == 0 {
			total = f.Sum()
		} else if different(total, f.Sum(), testTolerance) {
			b.Errorf("total influence for %v workers (%v) doesn't equal %v",
				nprocs, f.Sum(), total)
		}
	}
	for i, p := range procs {
		fmt.Printf("For %v procs\ttime = %v\tscale eff = %.3g\n",
			p, timing[i], timing[0].Seconds()/
				timing[i].Seconds()/float64(p))
	}
}

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func absDifferent(a, b float64) bool {
	if math.Abs(a-b) > testTolerance {
		return true
	}
	return false
}
