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
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// dispersion describes the spatial spread of the particle cloud at one
// canonical time step.
type dispersion struct {
	t    float64 // time offset from release [min]
	dist float64 // mean pairwise distance between particles [degrees]
	lat  float64 // mean particle latitude [degrees]
}

// estimate derives a dispersion estimate for every time slice.
// The mean pairwise distance is bootstrapped: BootstrapDraws
// subsamples of size min(BootstrapSize, n) are drawn with replacement
// and the mean pairwise Euclidean distance of each subsample is
// averaged over the draws. A slice with fewer than two samples has an
// undefined pairwise distance and is reported as zero spread, leaving
// the kernel floor term to provide the smoothing radius. Estimation
// runs serially from one seeded source so that equal inputs and seeds
// give identical results.
func (c *Config) estimate(slices []timeSlice) []dispersion {
	log := c.logger()
	rng := rand.New(rand.NewSource(c.Seed))
	out := make([]dispersion, len(slices))
	for i, ts := range slices {
		if len(ts.lons) < 2 {
			log.WithFields(logrus.Fields{
				"time":    ts.t,
				"samples": len(ts.lons),
			}).Debug("footprint: too few samples to estimate dispersion; using the floor bandwidth")
		}
		out[i] = dispersion{
			t:    ts.t,
			dist: c.bootstrapDistance(rng, ts),
			lat:  stat.Mean(ts.lats, nil),
		}
	}
	return out
}

func (c *Config) bootstrapDistance(rng *rand.Rand, ts timeSlice) float64 {
	n := len(ts.lons)
	if n < 2 {
		return 0
	}
	size := c.BootstrapSize
	if n < size {
		size = n
	}
	idx := make([]int, size)
	var total float64
	for draw := 0; draw < c.BootstrapDraws; draw++ {
		for j := range idx {
			idx[j] = rng.Intn(n)
		}
		var sum float64
		for a := 0; a < size; a++ {
			for b := a + 1; b < size; b++ {
				dx := ts.lons[idx[a]] - ts.lons[idx[b]]
				dy := ts.lats[idx[a]] - ts.lats[idx[b]]
				sum += math.Sqrt(dx*dx + dy*dy)
			}
		}
		total += sum / float64(size*(size-1)/2)
	}
	return total / float64(c.BootstrapDraws)
}
