package testutil

// FixedUnitGenerator returns the same unit id every time.
//
// A Manager draws a new unit id after every Dispose; with this generator all
// units share one id, which keeps golden traces byte-identical.
//
// Thread-safety: FixedUnitGenerator is stateless and safe for concurrent use.
type FixedUnitGenerator struct {
	id string
}

// NewFixedUnitGenerator creates a generator for id.
// If id is empty, Generate returns "test-unit".
func NewFixedUnitGenerator(id string) *FixedUnitGenerator {
	if id == "" {
		id = "test-unit"
	}
	return &FixedUnitGenerator{id: id}
}

// Generate returns the fixed unit id.
func (g *FixedUnitGenerator) Generate() string {
	return g.id
}
