package csw

// searchResults holds the csw:SearchResults counters of one GetRecords answer.
type searchResults struct {
	Matched  int
	Returned int
	Next     int
}

// cursor tracks the 1-based startPosition of a GetRecords walk.
type cursor struct {
	start    int
	maxItems int
}

func newCursor(maxItems int) *cursor {
	return &cursor{start: 1, maxItems: maxItems}
}

// advance moves to the next start position. It returns false when the walk
// is over: no next record, a next record past the matched total, an empty
// page, a cursor that does not move forward, or enough records consumed to
// satisfy the max-items cap.
func (c *cursor) advance(r searchResults) bool {
	switch {
	case r.Next == 0:
		return false
	case r.Next > r.Matched:
		return false
	case r.Returned == 0:
		return false
	case r.Next <= c.start:
		return false
	case c.maxItems > 0 && r.Next-1 >= c.maxItems:
		return false
	}
	c.start = r.Next
	return true
}
