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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// sigma converts a dispersion estimate into a Gaussian kernel standard
// deviation [degrees]. The calibration constant is an empirical
// degrees-per-distance relation between pairwise particle spread and
// plume width, and the final term is a floor guaranteeing a smoothing
// radius of at least one-eighth of a grid cell even for zero spread.
func (c *Config) sigma(dist, lat float64, d GridDef) float64 {
	return dist/(c.Calibration*math.Cos(lat*math.Pi/180)) + math.Max(d.Dx, d.Dy)/8
}

// gaussKernel builds an isotropic two-dimensional Gaussian kernel with
// standard deviation sigma [degrees] on the cell spacing of grid d,
// truncated at three sigma and normalized to sum to one. Both
// dimensions are odd so that a center cell exists.
func gaussKernel(sigma float64, d GridDef) *sparse.DenseArray {
	nx := 1 + 2*int(3*sigma/d.Dx)
	ny := 1 + 2*int(3*sigma/d.Dy)
	k := sparse.ZerosDense(ny, nx)
	cy, cx := ny/2, nx/2
	for j := 0; j < ny; j++ {
		dy := float64(j-cy) * d.Dy
		for i := 0; i < nx; i++ {
			dx := float64(i-cx) * d.Dx
			k.Set(math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)), j, i)
		}
	}
	k.Scale(1 / k.Sum())
	return k
}

// haloSize returns the number of padding cells to add along each grid
// edge so that the largest kernel in the calculation fits without
// truncation. The largest kernel is taken to be the one built from the
// maximum estimated dispersion distance at the minimum mean latitude.
func (c *Config) haloSize(est []dispersion, d GridDef) (hx, hy int) {
	if len(est) == 0 {
		return 0, 0
	}
	dists := make([]float64, len(est))
	lats := make([]float64, len(est))
	for i, e := range est {
		dists[i] = e.dist
		lats[i] = e.lat
	}
	s := c.sigma(floats.Max(dists), floats.Min(lats), d)
	return int(3 * s / d.Dx), int(3 * s / d.Dy)
}
