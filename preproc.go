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
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// timeSlice collects the resampled particle locations and influence
// weights sharing one canonical time step.
type timeSlice struct {
	t    float64   // time offset from release [min]
	lons []float64 // longitudes [degrees]
	lats []float64 // latitudes [degrees]
	foot []float64 // influence weights
}

// sample is one record of a trajectory after joining with the
// canonical time grid.
type sample struct {
	t, lon, lat, foot float64
}

// round1 rounds t to one decimal place, the resolution of the
// canonical time grid.
func round1(t float64) float64 {
	v := math.Round(t*10) / 10
	if v == 0 {
		return 0
	}
	return v
}

// timeGrid returns the canonical resampling times in descending order,
// from zero back to the negated last epoch break, stepping by each
// epoch's time step. Step positions are computed by integer
// multiplication so that repeated addition cannot drift off the
// one-decimal grid.
func (c *Config) timeGrid() []float64 {
	ts := []float64{0}
	prev := 0.
	for k, b := range c.EpochBreaks {
		step := c.TimeSteps[k]
		n := int(math.Round((b - prev) / step))
		for i := 1; i <= n; i++ {
			ts = append(ts, -round1(prev+float64(i)*step))
		}
		prev = b
	}
	return ts
}

// epoch returns the index of the mass-conservation epoch containing
// time magnitude m [min], or -1 if m is beyond the last epoch break.
// Epochs are half-open on the right except the last one, which is
// closed.
func (c *Config) epoch(m float64) int {
	for k, b := range c.EpochBreaks {
		if m < b {
			return k
		}
	}
	if m == c.EpochBreaks[len(c.EpochBreaks)-1] {
		return len(c.EpochBreaks) - 1
	}
	return -1
}

// preprocess filters ensemble e to the bounds of grid d and the
// configured time extent, resamples each trajectory onto the canonical
// time grid, and renormalizes the resampled influence weights so each
// epoch carries the same total mass as the filtered input. The
// returned slices are ordered by descending time offset and hold only
// positive weights.
func (c *Config) preprocess(e *Ensemble, d GridDef) ([]timeSlice, error) {
	log := c.logger()
	maxExtent := c.EpochBreaks[len(c.EpochBreaks)-1]

	byID := make(map[int][]Particle)
	var nDropped int
	for _, p := range e.particles {
		if -p.T > maxExtent || !d.covers(p.Lon, p.Lat) {
			nDropped++
			continue
		}
		byID[p.Trajectory] = append(byID[p.Trajectory], p)
	}
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	grid := c.timeGrid()
	rawSum := make([]float64, len(c.EpochBreaks))
	joinSum := make([]float64, len(c.EpochBreaks))
	bins := make(map[float64]*timeSlice)

	for _, id := range ids {
		pts := byID[id]
		sort.Slice(pts, func(i, j int) bool { return pts[i].T > pts[j].T })
		for i := 1; i < len(pts); i++ {
			if pts[i].T == pts[i-1].T {
				return nil, newInputErrorf("footprint: trajectory %d has two samples at time offset %g",
					id, pts[i].T)
			}
		}
		for _, p := range pts {
			if k := c.epoch(-p.T); k >= 0 {
				rawSum[k] += p.Foot
			}
		}
		seen := make(map[float64]struct{}, len(grid))
		for _, s := range mergeInterpolate(grid, pts) {
			t := round1(s.t)
			if _, ok := seen[t]; ok {
				// Rounding collapsed this sample onto an
				// already-kept one.
				continue
			}
			seen[t] = struct{}{}
			k := c.epoch(-t)
			if k < 0 {
				continue
			}
			joinSum[k] += s.foot
			bin, ok := bins[t]
			if !ok {
				bin = &timeSlice{t: t}
				bins[t] = bin
			}
			bin.lons = append(bin.lons, s.lon)
			bin.lats = append(bin.lats, s.lat)
			bin.foot = append(bin.foot, s.foot)
		}
	}

	// Resampling changes the number of samples per epoch, so the
	// resampled mass drifts from the recorded mass; rescaling each
	// epoch restores it exactly. An epoch with zero mass on either
	// side has nothing to conserve and is zeroed out.
	scale := make([]float64, len(c.EpochBreaks))
	for k := range scale {
		if rawSum[k] == 0 || joinSum[k] == 0 {
			scale[k] = 0
			if rawSum[k] != joinSum[k] {
				log.WithFields(logrus.Fields{
					"epoch":         k,
					"recordedMass":  rawSum[k],
					"resampledMass": joinSum[k],
				}).Debug("footprint: dropping degenerate epoch")
			}
		} else {
			scale[k] = rawSum[k] / joinSum[k]
		}
	}

	ts := make([]float64, 0, len(bins))
	for t := range bins {
		ts = append(ts, t)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ts)))

	out := make([]timeSlice, 0, len(ts))
	var nKept int
	for _, t := range ts {
		bin := bins[t]
		sc := scale[c.epoch(-t)]
		kept := timeSlice{t: t}
		for i, w := range bin.foot {
			if w*sc > 0 {
				kept.lons = append(kept.lons, bin.lons[i])
				kept.lats = append(kept.lats, bin.lats[i])
				kept.foot = append(kept.foot, w*sc)
			}
		}
		if len(kept.foot) > 0 {
			out = append(out, kept)
			nKept += len(kept.foot)
		}
	}
	if len(out) == 0 {
		log.Info("footprint: no samples remain after preprocessing; the influence field will be zero")
	} else {
		log.WithFields(logrus.Fields{
			"dropped":   nDropped,
			"resampled": nKept,
			"steps":     len(out),
		}).Info("footprint: preprocessed trajectory ensemble")
	}
	return out, nil
}

// mergeInterpolate performs a full outer join of a trajectory's
// samples pts with the canonical times grid, both sorted by descending
// time offset: raw samples pass through unchanged, and each canonical
// time within the trajectory's recorded span receives longitude,
// latitude, and weight interpolated linearly between its bracketing
// samples. A canonical time coinciding with a raw sample yields the
// raw sample once; canonical times outside the recorded span are
// dropped rather than extrapolated.
func mergeInterpolate(grid []float64, pts []Particle) []sample {
	if len(pts) == 0 {
		return nil
	}
	out := make([]sample, 0, len(grid)+len(pts))
	i := 0
	for _, t := range grid {
		for i < len(pts) && pts[i].T > t {
			out = append(out, sample{t: pts[i].T, lon: pts[i].Lon, lat: pts[i].Lat, foot: pts[i].Foot})
			i++
		}
		if i < len(pts) && pts[i].T == t {
			out = append(out, sample{t: pts[i].T, lon: pts[i].Lon, lat: pts[i].Lat, foot: pts[i].Foot})
			i++
			continue
		}
		if i == 0 || i == len(pts) {
			continue
		}
		a, b := pts[i-1], pts[i] // a.T > t > b.T
		f := (t - b.T) / (a.T - b.T)
		out = append(out, sample{
			t:    t,
			lon:  b.Lon + f*(a.Lon-b.Lon),
			lat:  b.Lat + f*(a.Lat-b.Lat),
			foot: b.Foot + f*(a.Foot-b.Foot),
		})
	}
	for ; i < len(pts); i++ {
		out = append(out, sample{t: pts[i].T, lon: pts[i].Lon, lat: pts[i].Lat, foot: pts[i].Foot})
	}
	return out
}
