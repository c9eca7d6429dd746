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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// longlatProj is the spatial reference of footprint grids.
const longlatProj = "+proj=longlat +datum=WGS84 +no_defs"

// wgs84WKT is the well-known-text form of longlatProj, written alongside
// shapefile output so GIS programs can georeference it.
const wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// GridDef defines the regular longitude-latitude grid that a footprint
// is computed on. Rows index latitude from south to north and columns
// index longitude from west to east, so cell (0, 0) is the southwest
// corner and cell centers lie at min + (i+0.5)·res on each axis.
type GridDef struct {
	Xmin, Xmax float64 // western and eastern domain edges [degrees]
	Ymin, Ymax float64 // southern and northern domain edges [degrees]
	Dx, Dy     float64 // cell size [degrees]
}

// Nx returns the number of grid cells in the longitude direction.
func (d GridDef) Nx() int { return cellCount(d.Xmin, d.Xmax, d.Dx) }

// Ny returns the number of grid cells in the latitude direction.
func (d GridDef) Ny() int { return cellCount(d.Ymin, d.Ymax, d.Dy) }

func cellCount(min, max, res float64) int {
	return int(math.Floor((max-min)/res + 1.e-10))
}

// Longitudes returns the cell center longitudes, west to east.
func (d GridDef) Longitudes() []float64 { return centers(d.Xmin, d.Dx, d.Nx()) }

// Latitudes returns the cell center latitudes, south to north.
func (d GridDef) Latitudes() []float64 { return centers(d.Ymin, d.Dy, d.Ny()) }

func centers(min, res float64, n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = min + (float64(i)+0.5)*res
	}
	return o
}

// XEdges returns the Nx()+1 cell edge longitudes.
func (d GridDef) XEdges() []float64 { return edges(d.Xmin, d.Dx, d.Nx(), 0) }

// YEdges returns the Ny()+1 cell edge latitudes.
func (d GridDef) YEdges() []float64 { return edges(d.Ymin, d.Dy, d.Ny(), 0) }

// edges returns n+2·halo+1 edge coordinates, starting halo cells
// before min.
func edges(min, res float64, n, halo int) []float64 {
	o := make([]float64, n+2*halo+1)
	for i := range o {
		o[i] = min + float64(i-halo)*res
	}
	return o
}

// SR returns the spatial reference of the grid.
func (d GridDef) SR() (*proj.SR, error) {
	return proj.Parse(longlatProj)
}

// covers reports whether the point lies within the grid bounds,
// inclusive on all four edges.
func (d GridDef) covers(lon, lat float64) bool {
	return lon >= d.Xmin && lon <= d.Xmax && lat >= d.Ymin && lat <= d.Ymax
}

// cell returns the polygon outline of cell (row, col).
func (d GridDef) cell(row, col int) geom.Polygon {
	x0 := d.Xmin + float64(col)*d.Dx
	y0 := d.Ymin + float64(row)*d.Dy
	return geom.Polygon{[]geom.Point{
		{X: x0, Y: y0},
		{X: x0 + d.Dx, Y: y0},
		{X: x0 + d.Dx, Y: y0 + d.Dy},
		{X: x0, Y: y0 + d.Dy},
		{X: x0, Y: y0},
	}}
}

func (d GridDef) check() error {
	if !(d.Dx > 0 && d.Dy > 0) {
		return newInputErrorf("footprint: grid resolution dx=%g dy=%g; resolutions must be positive", d.Dx, d.Dy)
	}
	if !(d.Xmax > d.Xmin && d.Ymax > d.Ymin) {
		return newInputErrorf("footprint: grid bounds x=[%g,%g] y=[%g,%g] are inverted or empty",
			d.Xmin, d.Xmax, d.Ymin, d.Ymax)
	}
	if d.Ymin < -90 || d.Ymax > 90 {
		return newInputErrorf("footprint: grid latitude bounds [%g,%g] extend beyond [-90,90]",
			d.Ymin, d.Ymax)
	}
	if d.Nx() < 1 || d.Ny() < 1 {
		return newInputErrorf("footprint: grid resolution dx=%g dy=%g is coarser than the domain extent",
			d.Dx, d.Dy)
	}
	return nil
}

// haloGrid is a GridDef extended by hx and hy cells on every side so
// that kernels applied near the domain edge stay inside the
// accumulation buffer.
type haloGrid struct {
	GridDef
	hx, hy int       // halo width [cells]
	nx, ny int       // interior cell counts
	xe, ye []float64 // cell edges including the halo
}

func newHaloGrid(d GridDef, hx, hy int) *haloGrid {
	return &haloGrid{
		GridDef: d,
		hx:      hx,
		hy:      hy,
		nx:      d.Nx(),
		ny:      d.Ny(),
		xe:      edges(d.Xmin, d.Dx, d.Nx(), hx),
		ye:      edges(d.Ymin, d.Dy, d.Ny(), hy),
	}
}

func (g *haloGrid) nxTotal() int { return g.nx + 2*g.hx }
func (g *haloGrid) nyTotal() int { return g.ny + 2*g.hy }

// cellIndex returns the halo-grid row and column containing the point.
// Cells own their lower edges; the eastern- and northernmost domain
// edges are inclusive, belonging to the last interior cells.
func (g *haloGrid) cellIndex(lon, lat float64) (row, col int, ok bool) {
	if lon < g.xe[0] || lon > g.xe[len(g.xe)-1] || lat < g.ye[0] || lat > g.ye[len(g.ye)-1] {
		return 0, 0, false
	}
	col = searchCell(g.xe, lon)
	row = searchCell(g.ye, lat)
	if lon == g.Xmax {
		col = g.hx + g.nx - 1
	}
	if lat == g.Ymax {
		row = g.hy + g.ny - 1
	}
	return row, col, true
}

// searchCell returns the index of the cell whose lower-edge-inclusive
// interval contains v, with v exactly on the final edge assigned to the
// last cell.
func searchCell(edges []float64, v float64) int {
	i := sort.Search(len(edges), func(j int) bool { return edges[j] > v }) - 1
	if i == len(edges)-1 {
		i--
	}
	return i
}
