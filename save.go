package footprint

import (
	"encoding/gob"
	"fmt"
	"io"
)

// Save saves the footprint to w as a gob file (format description at
// https://golang.org/pkg/encoding/gob/).
func (fp *Footprint) Save(w io.Writer) error {
	e := gob.NewEncoder(w)

	if err := e.Encode(fp); err != nil {
		return fmt.Errorf("footprint.Footprint.Save: %v", err)
	}
	return nil
}

// Load loads a previously Saved footprint from r.
func Load(r io.Reader) (*Footprint, error) {
	dec := gob.NewDecoder(r)
	fp := new(Footprint)
	if err := dec.Decode(fp); err != nil {
		return nil, fmt.Errorf("footprint.Load: %v", err)
	}
	if fp.Data != nil {
		// gob does not carry the array's unexported index bookkeeping.
		fp.Data.Fix()
	}
	return fp, nil
}
