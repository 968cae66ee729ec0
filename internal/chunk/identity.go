package chunk

import "fmt"

// AssignIDs derives the stable identifier for every chunk, in place, and
// returns the slice for convenience.
//
// Chunks must be presented grouped by source and ordered by page, exactly as
// produced by Splitter.Split: the sequence counter resets whenever the
// (source, page) pair changes and increments otherwise. Identical input
// order always yields identical ids, which is the basis for idempotent
// re-indexing.
func AssignIDs(chunks []Chunk) []Chunk {
	lastPageID := ""
	seq := 0
	for i := range chunks {
		pageID := fmt.Sprintf("%s:%d", chunks[i].Source, chunks[i].Page)
		if pageID == lastPageID {
			seq++
		} else {
			seq = 0
		}
		chunks[i].Seq = seq
		chunks[i].ID = fmt.Sprintf("%s:%d", pageID, seq)
		lastPageID = pageID
	}
	return chunks
}
