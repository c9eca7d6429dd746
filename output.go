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
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/sparse"
	goshp "github.com/jonas-p/go-shp"
)

// FootprintDataVersion is the version of the footprint data file
// format. It needs to be incremented whenever a change is made to the
// way footprints are stored.
const FootprintDataVersion = "1.0.0"

// composite crops the halo-extended accumulator total back to the
// nominal extent of grid g and normalizes the field by the trajectory
// count nTraj, discarding the halo cells.
func composite(total *sparse.DenseArray, g *haloGrid, nTraj int) *Footprint {
	nx := g.GridDef.Nx()
	data := sparse.ZerosDense(g.GridDef.Ny(), nx)
	for j := 0; j < g.GridDef.Ny(); j++ {
		src := (j+g.hy)*g.nxTotal() + g.hx
		copy(data.Elements[j*nx:(j+1)*nx], total.Elements[src:src+nx])
	}
	data.Scale(1 / float64(nTraj))
	return &Footprint{
		GridDef:      g.GridDef,
		Data:         data,
		Trajectories: nTraj,
	}
}

// Write writes the footprint to path, choosing the format from the
// file extension: ".nc" or ".ncf" for a NetCDF file, ".shp" for an
// ESRI shapefile, and ".gob" for a gob-serialized snapshot.
func (fp *Footprint) Write(path string) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".nc", ".ncf":
		var w *os.File
		if w, err = os.Create(path); err == nil {
			err = fp.WriteNetCDF(w)
			if err2 := w.Close(); err == nil {
				err = err2
			}
		}
	case ".shp":
		err = fp.WriteShapefile(path)
	case ".gob":
		var w *os.File
		if w, err = os.Create(path); err == nil {
			err = fp.Save(w)
			if err2 := w.Close(); err == nil {
				err = err2
			}
		}
	default:
		err = fmt.Errorf("unsupported file extension %q", ext)
	}
	if err != nil {
		return SerializationError{Op: "writing", Path: path, Err: err}
	}
	return nil
}

// WriteNetCDF writes the footprint to NetCDF file w. Cell values and
// coordinates are stored at full precision, so a footprint read back
// from the file is identical to the one written.
func (fp *Footprint) WriteNetCDF(w *os.File) error {
	h := cdf.NewHeader([]string{"y", "x"}, []int{fp.Ny(), fp.Nx()})
	h.AddAttribute("", "comment", "footprint surface influence data file")
	h.AddAttribute("", "crs", longlatProj)

	h.AddAttribute("", "x0", []float64{fp.Xmin})
	h.AddAttribute("", "x1", []float64{fp.Xmax})
	h.AddAttribute("", "y0", []float64{fp.Ymin})
	h.AddAttribute("", "y1", []float64{fp.Ymax})
	h.AddAttribute("", "dx", []float64{fp.Dx})
	h.AddAttribute("", "dy", []float64{fp.Dy})
	h.AddAttribute("", "trajectories", []int32{int32(fp.Trajectories)})

	h.AddAttribute("", "data_version", FootprintDataVersion)

	h.AddVariable("foot", []string{"y", "x"}, []float64{0})
	h.AddAttribute("foot", "description", "time-integrated surface influence per trajectory")
	h.AddAttribute("foot", "units", "ppm (umol m-2 s-1)-1")
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddAttribute("x", "description", "cell center longitude")
	h.AddAttribute("x", "units", "degrees_east")
	h.AddVariable("y", []string{"y"}, []float64{0})
	h.AddAttribute("y", "description", "cell center latitude")
	h.AddAttribute("y", "units", "degrees_north")
	h.Define()
	for _, err := range h.Check() {
		return err
	}
	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	// Write the variables in a fixed order so the same footprint
	// always produces the same file.
	for _, v := range []struct {
		name string
		data []float64
	}{
		{"foot", fp.Data.Elements},
		{"x", fp.Longitudes()},
		{"y", fp.Latitudes()},
	} {
		if err := writeNCF(f, v.name, v.data); err != nil {
			return fmt.Errorf("writing variable %s to netcdf file: %v", v.name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

func writeNCF(f *cdf.File, Var string, data []float64) error {
	// Check that data matches dimensions.
	end := f.Header.Lengths(Var)
	n := 1
	for _, v := range end {
		n *= v
	}
	if len(data) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data))
	}
	start := make([]int, len(end))
	w := f.Writer(Var, start, end)
	_, err := w.Write(data)
	return err
}

// WriteShapefile writes the footprint to an ESRI shapefile at path,
// one polygon per grid cell with fields row, col, and foot, along
// with a .prj file describing the coordinate reference.
func (fp *Footprint) WriteShapefile(path string) error {
	fields := []goshp.Field{
		goshp.NumberField("row", 10),
		goshp.NumberField("col", 10),
		goshp.FloatField("foot", 14, 8),
	}
	fileBase := strings.TrimSuffix(path, filepath.Ext(path))
	path = fileBase + ".shp"
	shape, err := shp.NewEncoderFromFields(path, goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("error creating output shapefile: %v", err)
	}
	for j := 0; j < fp.Ny(); j++ {
		for i := 0; i < fp.Nx(); i++ {
			err = shape.EncodeFields(fp.cell(j, i), j, i, fp.Data.Get(j, i))
			if err != nil {
				return fmt.Errorf("error writing output shapefile: %v", err)
			}
		}
	}
	shape.Close()

	// Create .prj file
	f, err := os.Create(fileBase + ".prj")
	if err != nil {
		return fmt.Errorf("error creating output prj file: %v", err)
	}
	fmt.Fprint(f, wgs84WKT)
	f.Close()

	return nil
}

// DeleteShapefile deletes the named shapefile and its auxiliary
// files, ignoring any that do not exist.
func DeleteShapefile(fname string) error {
	fileBase := strings.TrimSuffix(fname, filepath.Ext(fname))
	for _, ext := range []string{".dbf", ".prj", ".shp", ".shx"} {
		if err := os.Remove(fileBase + ext); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
