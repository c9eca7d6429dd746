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

// Package footprint converts ensembles of backward atmospheric
// particle trajectories into gridded surface influence fields
// ("footprints") describing how strongly each grid cell affects the
// concentration measured at a receptor.
package footprint

import (
	"fmt"
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// InputError describes a structurally invalid ensemble, grid
// definition, or configuration. It aborts the computation immediately:
// absorbing it could only produce a silently wrong field.
type InputError struct {
	msg string
}

func (e InputError) Error() string { return e.msg }

func newInputErrorf(format string, a ...interface{}) InputError {
	return InputError{msg: fmt.Sprintf(format, a...)}
}

// SerializationError is a failure to write or read a footprint file.
type SerializationError struct {
	Op   string // "writing" or "reading"
	Path string // the file involved
	Err  error
}

func (e SerializationError) Error() string {
	return fmt.Sprintf("footprint: %s %s: %v", e.Op, e.Path, e.Err)
}

// Footprint is a computed influence field: the time-integrated,
// per-trajectory-normalized surface influence of each grid cell on one
// receptor. It is immutable once produced.
type Footprint struct {
	GridDef

	// Data holds the influence field with shape [Ny()][Nx()]
	// [ppm (umol m-2 s-1)-1].
	Data *sparse.DenseArray

	// Trajectories is the number of backward trajectories the field is
	// normalized by.
	Trajectories int
}

// Sum returns the total influence mass of the field.
func (f *Footprint) Sum() float64 { return f.Data.Sum() }

// Max returns the peak influence value of the field.
func (f *Footprint) Max() float64 { return f.Data.Max() }

// Calc computes the footprint for ensemble e on grid d using the
// default configuration. If output is non-empty, the result is also
// written there in the format implied by the file extension.
func Calc(e *Ensemble, d GridDef, output string) (*Footprint, error) {
	return DefaultConfig().Calc(e, d, output)
}

// Calc computes the footprint for ensemble e on grid d. It is a pure
// function of its inputs and the configuration: no state is shared
// between calls, and calls with equal inputs, seeds, and worker counts
// return bit-identical fields. If output is non-empty, the result is
// also written there in the format implied by the file extension.
func (c *Config) Calc(e *Ensemble, d GridDef, output string) (*Footprint, error) {
	begin := time.Now()
	if err := c.check(); err != nil {
		return nil, err
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := e.check(); err != nil {
		return nil, err
	}
	log := c.logger()
	log.WithFields(logrus.Fields{
		"samples":      e.Len(),
		"trajectories": e.Trajectories(),
		"nx":           d.Nx(),
		"ny":           d.Ny(),
	}).Info("footprint: computing influence field")

	samples, err := c.preprocess(e, d)
	if err != nil {
		return nil, err
	}
	est := c.estimate(samples)
	total, g := c.scatter(samples, est, d)
	f := composite(total, g, e.Trajectories())

	log.WithFields(logrus.Fields{
		"total":   f.Sum(),
		"seconds": time.Since(begin).Seconds(),
	}).Info("footprint: done")

	if output != "" {
		if err := f.Write(output); err != nil {
			return nil, err
		}
	}
	return f, nil
}
