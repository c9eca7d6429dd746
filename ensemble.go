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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Particle is one recorded sample along a backward trajectory.
type Particle struct {
	Trajectory int     // trajectory identifier
	T          float64 // time offset from release; T <= 0 [min]
	Lon        float64 // longitude [degrees]
	Lat        float64 // latitude [degrees]
	Foot       float64 // influence weight [ppm (umol m-2 s-1)-1]
}

// Ensemble is the complete set of particle samples released from one
// receptor.
type Ensemble struct {
	particles    []Particle
	trajectories map[int]struct{}
}

// NewEnsemble creates a new empty Ensemble.
func NewEnsemble() *Ensemble {
	return &Ensemble{trajectories: make(map[int]struct{})}
}

// Add adds sample p to the ensemble.
func (e *Ensemble) Add(p Particle) {
	e.particles = append(e.particles, p)
	e.trajectories[p.Trajectory] = struct{}{}
}

// Len returns the number of samples in the ensemble.
func (e *Ensemble) Len() int { return len(e.particles) }

// Trajectories returns the number of distinct trajectories in the
// ensemble. This is the physical particle count that the finished
// footprint is normalized by, and it is fixed when the ensemble is
// built: samples that later fall outside the grid or the time extent
// still count toward it.
func (e *Ensemble) Trajectories() int { return len(e.trajectories) }

// Particles returns the samples in the ensemble.
func (e *Ensemble) Particles() []Particle { return e.particles }

func (e *Ensemble) check() error {
	if e == nil || len(e.particles) == 0 {
		return newInputErrorf("footprint: ensemble contains no samples")
	}
	for i, p := range e.particles {
		if math.IsNaN(p.T) || p.T > 0 {
			return newInputErrorf("footprint: ensemble sample %d: time offset %g is not <= 0", i, p.T)
		}
		if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) {
			return newInputErrorf("footprint: ensemble sample %d: location (%g, %g) is not valid", i, p.Lon, p.Lat)
		}
		if math.IsNaN(p.Foot) || p.Foot < 0 {
			return newInputErrorf("footprint: ensemble sample %d: influence weight %g is not >= 0", i, p.Foot)
		}
	}
	return nil
}

// ensembleColumns are the required columns of a tabular particle
// ensemble, in the naming used by trajectory model output.
var ensembleColumns = []string{"indx", "time", "long", "lati", "foot"}

// ReadEnsemble reads a particle ensemble from comma-delimited tabular
// text with a header row. The required columns are indx (trajectory
// identifier), time (offset from release [min]), long and lati
// (location [degrees]), and foot (influence weight); any additional
// columns are ignored. Column names are matched without regard to
// case.
func ReadEnsemble(r io.Reader) (*Ensemble, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("footprint: reading ensemble header: %v", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, c := range ensembleColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, newInputErrorf("footprint: ensemble is missing required column(s) %v; found %v",
			missing, header)
	}
	e := NewEnsemble()
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("footprint: reading ensemble line %d: %v", line, err)
		}
		var vals [5]float64
		for i, c := range ensembleColumns {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[c]]), 64)
			if err != nil {
				return nil, fmt.Errorf("footprint: parsing ensemble line %d column %s: %v", line, c, err)
			}
			vals[i] = v
		}
		e.Add(Particle{
			Trajectory: int(vals[0]),
			T:          vals[1],
			Lon:        vals[2],
			Lat:        vals[3],
			Foot:       vals[4],
		})
	}
	return e, nil
}
