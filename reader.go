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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ctessum/cdf"
	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
	"github.com/gonum/floats"
)

// Reader allows the interaction with a NetCDF-formatted footprint
// file.
type Reader struct {
	cdf.File
	d            GridDef
	trajectories int
}

// NewReader creates a new footprint reader from the NetCDF database
// specified by r.
func NewReader(r cdf.ReaderWriterAt) (*Reader, error) {
	cf, err := cdf.Open(r)
	if err != nil {
		return nil, err
	}
	fr := &Reader{File: *cf}
	if v, ok := fr.Header.GetAttribute("", "data_version").(string); !ok || v != FootprintDataVersion {
		return nil, fmt.Errorf("footprint: file data version %q is incompatible with the "+
			"version of this software (%s)", v, FootprintDataVersion)
	}
	var bounds [6]float64
	for i, a := range []string{"x0", "x1", "y0", "y1", "dx", "dy"} {
		v, ok := fr.Header.GetAttribute("", a).([]float64)
		if !ok || len(v) == 0 {
			return nil, fmt.Errorf("footprint: file is missing grid attribute %s", a)
		}
		bounds[i] = v[0]
	}
	fr.d = GridDef{
		Xmin: bounds[0], Xmax: bounds[1],
		Ymin: bounds[2], Ymax: bounds[3],
		Dx: bounds[4], Dy: bounds[5],
	}
	if err := fr.d.check(); err != nil {
		return nil, err
	}
	t, ok := fr.Header.GetAttribute("", "trajectories").([]int32)
	if !ok || len(t) == 0 {
		return nil, fmt.Errorf("footprint: file is missing the trajectories attribute")
	}
	fr.trajectories = int(t[0])
	return fr, nil
}

// Grid returns the grid definition of the stored footprint.
func (r *Reader) Grid() GridDef { return r.d }

// Trajectories returns the number of trajectories the stored field is
// normalized by.
func (r *Reader) Trajectories() int { return r.trajectories }

// Footprint reads the full influence field from the file.
func (r *Reader) Footprint() (*Footprint, error) {
	data, err := r.readFullVar64("foot")
	if err != nil {
		return nil, err
	}
	arr := sparse.ZerosDense(r.d.Ny(), r.d.Nx())
	if len(data) != len(arr.Elements) {
		return nil, fmt.Errorf("footprint: file stores %d cells for a %d x %d grid",
			len(data), r.d.Ny(), r.d.Nx())
	}
	copy(arr.Elements, data)
	return &Footprint{GridDef: r.d, Data: arr, Trajectories: r.trajectories}, nil
}

// readFullVar64 reads a full float64 variable and returns it as a
// []float64.
func (r *Reader) readFullVar64(varName string) ([]float64, error) {
	rr := r.File.Reader(varName, nil, nil)
	buf := rr.Zero(-1)
	if _, err := rr.Read(buf); err != nil {
		return nil, err
	}
	return buf.([]float64), nil
}

// ReadFile reads the footprint stored in the NetCDF file at path.
func ReadFile(path string) (*Footprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, SerializationError{Op: "reading", Path: path, Err: err}
	}
	defer f.Close()
	r, err := NewReader(f)
	if err != nil {
		return nil, SerializationError{Op: "reading", Path: path, Err: err}
	}
	fp, err := r.Footprint()
	if err != nil {
		return nil, SerializationError{Op: "reading", Path: path, Err: err}
	}
	return fp, nil
}

// Library provides cached access to a directory of stored footprint
// files, so repeated use of one receptor's footprint does not reread
// its file.
type Library struct {
	dir string

	// CacheSize specifies the number of footprints to be held in the
	// memory cache. Larger numbers lead to faster operation but
	// greater memory use. The default is 100. CacheSize can only be
	// changed before the Library has been used to read a footprint
	// for the first time.
	CacheSize int

	// cache is a cache for footprint fields.
	cache *requestcache.Cache
	// cacheInit is used to initialize cache.
	cacheInit sync.Once
}

// NewLibrary creates a Library that reads footprint files from
// directory dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir, CacheSize: 100}
}

// Footprint returns the footprint stored in the named file within the
// library directory. Results are cached and shared between callers;
// users desiring to make changes to the returned footprint should
// make a copy first to avoid inadvertently editing the cached result.
func (l *Library) Footprint(name string) (*Footprint, error) {
	l.cacheInit.Do(func() {
		l.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			return ReadFile(filepath.Join(l.dir, request.(string)))
		}, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(l.CacheSize))
	})
	req := l.cache.NewRequest(context.TODO(), name, name)
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	return result.(*Footprint), nil
}

// Mean returns the average of the footprints stored in the named
// files, which must share one grid definition. The Trajectories field
// of the result holds the total trajectory count of the inputs.
func (l *Library) Mean(names ...string) (*Footprint, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("footprint: averaging requires at least one file name")
	}
	var out *Footprint
	for _, name := range names {
		fp, err := l.Footprint(name)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = &Footprint{
				GridDef:      fp.GridDef,
				Data:         fp.Data.Copy(),
				Trajectories: fp.Trajectories,
			}
			continue
		}
		if fp.GridDef != out.GridDef {
			return nil, fmt.Errorf("footprint: grid mismatch between %s and %s", names[0], name)
		}
		floats.Add(out.Data.Elements, fp.Data.Elements)
		out.Trajectories += fp.Trajectories
	}
	out.Data.Scale(1 / float64(len(names)))
	return out, nil
}
