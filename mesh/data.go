package mesh

// dataCount hands out field IDs that are unique across all meshes of the
// process, mirroring the global data ID space of the coupling configuration.
var dataCount int

func newDataID() (id int) {
	id = dataCount
	dataCount++
	return
}

// ResetDataCount resets the global field ID counter. Intended for tests that
// need reproducible IDs.
func ResetDataCount() {
	dataCount = 0
}

// Data is a named per-vertex field attached to a mesh. Values is a flat
// buffer of length |vertices| * Dimension once AllocateDataValues has run.
type Data struct {
	Name      string
	ID        int
	Dimension int
	Values    []float64
}

func newData(name string, dimension int) *Data {
	return &Data{
		Name:      name,
		ID:        newDataID(),
		Dimension: dimension,
	}
}
