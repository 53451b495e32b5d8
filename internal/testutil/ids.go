package testutil

// FixedSessionID generates the same session ID every time.
//
// Golden history snapshots stay byte-identical across runs when every
// session in a test shares one ID.
//
// Thread-safety: FixedSessionID is stateless and safe for concurrent use.
type FixedSessionID struct {
	id string
}

// NewFixedSessionID creates a fixed session ID generator.
// If id is empty, Generate() returns "test-session".
func NewFixedSessionID(id string) FixedSessionID {
	if id == "" {
		id = "test-session"
	}
	return FixedSessionID{id: id}
}

// Generate returns the fixed ID.
func (g FixedSessionID) Generate() string {
	return g.id
}
