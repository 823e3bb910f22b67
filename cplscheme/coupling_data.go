// Package cplscheme holds the per-exchange coupling data buffers shared
// between the transfer layer and the solver-facing API.
package cplscheme

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/coupledsim/gocpl/mesh"
)

// CouplingData pairs one exchanged field with its coupling mesh and the
// iteration history needed for convergence checks. Values is never nil after
// construction. NewValues stages data arriving mid-window during
// sub-cycling; OldValues column 0 holds the previous iteration.
type CouplingData struct {
	Values    *mat.VecDense
	NewValues *mat.VecDense
	OldValues *mat.Dense

	Mesh *mesh.Mesh
	// Initialize marks fields whose starting values must be exchanged
	// before the first coupling window.
	Initialize bool
	// Dimension is the number of components per vertex, 1 for scalar
	// fields, the mesh dimension for vector fields.
	Dimension int
}

func NewCouplingData(values *mat.VecDense, m *mesh.Mesh, initialize bool, dimension int) (*CouplingData, error) {
	if values == nil {
		return nil, fmt.Errorf("coupling data requires a value buffer")
	}
	if m == nil {
		return nil, fmt.Errorf("coupling data requires a mesh")
	}
	if dimension < 1 {
		return nil, fmt.Errorf("mesh %q: coupling data dimension must be positive, have %d",
			m.Name, dimension)
	}
	return &CouplingData{
		Values:     values,
		Mesh:       m,
		Initialize: initialize,
		Dimension:  dimension,
	}, nil
}

// RequiresInitialization reports whether the field's starting values have to
// be exchanged before the first window.
func (d *CouplingData) RequiresInitialization() bool {
	return d.Initialize
}

// Size is the total number of stored components.
func (d *CouplingData) Size() int {
	return d.Values.Len()
}

// AllocateHistory sizes the iteration history to cols columns and the
// sub-cycling staging buffer to the current value count, both zeroed. Any
// existing history is discarded.
func (d *CouplingData) AllocateHistory(cols int) error {
	if cols < 1 {
		return fmt.Errorf("mesh %q: history needs at least one column, have %d",
			d.Mesh.Name, cols)
	}
	n := d.Values.Len()
	if n == 0 {
		d.NewValues = &mat.VecDense{}
		d.OldValues = &mat.Dense{}
		return nil
	}
	d.NewValues = mat.NewVecDense(n, nil)
	d.OldValues = mat.NewDense(n, cols, nil)
	return nil
}

// StoreIteration snapshots the current values into history column 0, the
// reference for the next convergence check.
func (d *CouplingData) StoreIteration() error {
	if d.OldValues == nil {
		return fmt.Errorf("mesh %q: iteration history was never allocated", d.Mesh.Name)
	}
	rows, _ := d.OldValues.Dims()
	if rows != d.Values.Len() {
		return fmt.Errorf("mesh %q: history holds %d rows for %d values",
			d.Mesh.Name, rows, d.Values.Len())
	}
	for i := 0; i < rows; i++ {
		d.OldValues.Set(i, 0, d.Values.AtVec(i))
	}
	return nil
}

// PreviousIteration is history column 0. Only valid between StoreIteration
// calls on an allocated history.
func (d *CouplingData) PreviousIteration() (mat.Vector, error) {
	if d.OldValues == nil {
		return nil, fmt.Errorf("mesh %q: iteration history was never allocated", d.Mesh.Name)
	}
	rows, _ := d.OldValues.Dims()
	if rows == 0 {
		return &mat.VecDense{}, nil
	}
	return d.OldValues.ColView(0), nil
}
