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
	"sort"
	"sync"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// scatter applies each time step's smoothing kernel to the grid cells
// occupied at that time and accumulates the contributions onto the
// halo-extended form of grid d. Time steps are partitioned statically
// over the workers, each of which accumulates into its own private
// buffer; the buffers are then reduced in worker order, the only
// synchronization point. The static partition and ordered reduction
// make the result bit-reproducible for a fixed worker count, although
// changing the worker count may reorder floating-point additions
// within rounding error.
func (c *Config) scatter(slices []timeSlice, est []dispersion, d GridDef) (*sparse.DenseArray, *haloGrid) {
	hx, hy := c.haloSize(est, d)
	g := newHaloGrid(d, hx, hy)
	nx, ny := g.nxTotal(), g.nyTotal()

	nprocs := c.workers()
	if nprocs > len(slices) {
		nprocs = len(slices)
	}
	c.logger().WithFields(logrus.Fields{
		"steps":   len(slices),
		"halo":    []int{hx, hy},
		"workers": nprocs,
		"bufMB":   float64(8*nx*ny*(nprocs+1)) / 1.e6,
	}).Info("footprint: scattering kernel contributions")

	acc := make([]*sparse.DenseArray, nprocs)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for w := 0; w < nprocs; w++ {
		go func(w int) {
			defer wg.Done()
			buf := sparse.ZerosDense(ny, nx)
			for i := w; i < len(slices); i += nprocs {
				c.scatterSlice(buf, g, slices[i], est[i], d)
			}
			acc[w] = buf
		}(w)
	}
	wg.Wait()

	total := sparse.ZerosDense(ny, nx)
	for _, buf := range acc {
		floats.Add(total.Elements, buf.Elements)
	}
	return total, g
}

// scatterSlice adds one time step's contribution to accumulator buf.
// Samples sharing a grid cell are summed first, so the kernel is
// applied once per occupied cell rather than once per sample, and the
// application is clipped to the buffer bounds. Occupied cells are
// visited in index order to keep the addition order reproducible.
func (c *Config) scatterSlice(buf *sparse.DenseArray, g *haloGrid, ts timeSlice, e dispersion, d GridDef) {
	nx, ny := g.nxTotal(), g.nyTotal()
	occ := make(map[int]float64, len(ts.lons))
	for i, lon := range ts.lons {
		row, col, ok := g.cellIndex(lon, ts.lats[i])
		if !ok {
			continue
		}
		occ[row*nx+col] += ts.foot[i]
	}
	if len(occ) == 0 {
		return
	}
	cells := make([]int, 0, len(occ))
	for cell := range occ {
		cells = append(cells, cell)
	}
	sort.Ints(cells)

	k := gaussKernel(c.sigma(e.dist, e.lat, d), d)
	ky, kx := k.Shape[0], k.Shape[1]
	cy, cx := ky/2, kx/2
	for _, cell := range cells {
		w := occ[cell]
		row, col := cell/nx, cell%nx
		for j := 0; j < ky; j++ {
			r := row + j - cy
			if r < 0 || r >= ny {
				continue
			}
			for i := 0; i < kx; i++ {
				cc := col + i - cx
				if cc < 0 || cc >= nx {
					continue
				}
				buf.Elements[r*nx+cc] += w * k.Elements[j*kx+i]
			}
		}
	}
}
