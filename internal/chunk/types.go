// Package chunk splits page texts into bounded overlapping chunks and
// assigns each chunk its deterministic identifier.
package chunk

// Chunk is a bounded slice of a page's text, the unit of indexing.
type Chunk struct {
	// Source is the canonical absolute path of the parent document.
	Source string
	// Page is the zero-based page number the chunk was cut from.
	Page int
	// Seq is the zero-based sequence index within the (source, page) pair.
	// Assigned by AssignIDs.
	Seq int
	// ID is the derived identifier "source:page:seq". Assigned by AssignIDs.
	ID string
	// Text is the chunk content.
	Text string
}
