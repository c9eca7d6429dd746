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
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// Config holds the empirical constants and runtime controls of the
// footprint calculation. The zero value is not usable; start from
// DefaultConfig or LoadConfig and change fields from there.
type Config struct {
	// EpochBreaks are the outer boundaries of the mass-conservation
	// epochs, expressed as time magnitudes before release [min].
	// They must be positive and strictly increasing, and the last
	// break is also the temporal extent of the canonical resampling
	// grid. The reference values are empirical; change them only
	// deliberately.
	EpochBreaks []float64

	// TimeSteps are the canonical resampling resolutions within each
	// epoch [min]. There must be one time step per epoch break, and
	// each must evenly step from the previous break to the next.
	TimeSteps []float64

	// Calibration relates bootstrap dispersion distance to kernel
	// standard deviation: σ = distance/(Calibration·cos(latitude))
	// plus a floor of 1/8 of a grid cell. The reference value is 40.
	Calibration float64

	// BootstrapDraws subsamples of size BootstrapSize, drawn with
	// replacement, estimate the mean pairwise particle distance at
	// each time step.
	BootstrapDraws int
	BootstrapSize  int

	// Seed seeds the bootstrap sampler. Calculations with equal
	// inputs and seeds produce bit-identical fields regardless of
	// worker count.
	Seed int64

	// NumWorkers is the number of parallel scatter workers. If it is
	// less than one, runtime.GOMAXPROCS(-1) workers are used.
	NumWorkers int

	// Log receives progress and diagnostic information. If it is nil,
	// the logrus standard logger is used.
	Log logrus.FieldLogger `toml:"-"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() *Config {
	return &Config{
		EpochBreaks:    []float64{10, 20, 100},
		TimeSteps:      []float64{0.1, 0.2, 0.5},
		Calibration:    40,
		BootstrapDraws: 4,
		BootstrapSize:  50,
		Seed:           1,
	}
}

// LoadConfig reads configuration overrides from the TOML file filename
// on top of the defaults.
func LoadConfig(filename string) (*Config, error) {
	bytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("the configuration file you have specified, %v, does not "+
			"appear to exist. Please check the file name and location and "+
			"try again", filename)
	}
	c := DefaultConfig()
	if _, err = toml.Decode(string(bytes), c); err != nil {
		return nil, fmt.Errorf(
			"there has been an error parsing the configuration file: %v", err)
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) check() error {
	if len(c.EpochBreaks) == 0 {
		return newInputErrorf("footprint: configuration has no epoch breaks")
	}
	if len(c.EpochBreaks) != len(c.TimeSteps) {
		return newInputErrorf("footprint: configuration has %d epoch breaks but %d time steps",
			len(c.EpochBreaks), len(c.TimeSteps))
	}
	prev := 0.
	for i, b := range c.EpochBreaks {
		if !(b > prev) {
			return newInputErrorf("footprint: epoch breaks %v must be positive and strictly increasing", c.EpochBreaks)
		}
		step := c.TimeSteps[i]
		if !(step > 0) {
			return newInputErrorf("footprint: time steps %v must be positive", c.TimeSteps)
		}
		// The canonical grid has one-decimal resolution, so breaks
		// and steps must land on it exactly.
		if round1(step) != step || round1(b) != b {
			return newInputErrorf("footprint: epoch breaks %v and time steps %v must be multiples of 0.1",
				c.EpochBreaks, c.TimeSteps)
		}
		if n := (b - prev) / step; math.Abs(n-math.Round(n)) > 1e-9 {
			return newInputErrorf("footprint: time step %g does not evenly divide epoch [%g,%g]",
				step, prev, b)
		}
		prev = b
	}
	if !(c.Calibration > 0) {
		return newInputErrorf("footprint: calibration constant %g must be positive", c.Calibration)
	}
	if c.BootstrapDraws < 1 || c.BootstrapSize < 2 {
		return newInputErrorf("footprint: invalid bootstrap settings: %d draws of size %d",
			c.BootstrapDraws, c.BootstrapSize)
	}
	return nil
}

func (c *Config) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

func (c *Config) workers() int {
	if c.NumWorkers > 0 {
		return c.NumWorkers
	}
	return runtime.GOMAXPROCS(-1)
}
