package leadgen

// Rotation is the (district, keyword) pair chosen for the next run.
type Rotation struct {
	DistrictIndex int
	KeywordIndex  int
}

// Rotate advances the cursor by one position on each axis. The district
// index is -1 iff districtCount is 0. keywordCount below 1 is treated as 1 so
// the keyword index is always usable. Stale indices from a longer list are
// folded back into range by the modulo.
func Rotate(cursor SearchCursor, districtCount, keywordCount int) Rotation {
	if keywordCount < 1 {
		keywordCount = 1
	}
	r := Rotation{
		DistrictIndex: -1,
		KeywordIndex:  nextIndex(cursor.LastKeywordIndex, keywordCount),
	}
	if districtCount > 0 {
		r.DistrictIndex = nextIndex(cursor.LastDistrictIndex, districtCount)
	}
	return r
}

// Advance returns the cursor recording rotation r as the last-used position.
func (c SearchCursor) Advance(r Rotation, districtCount int) SearchCursor {
	c.LastDistrictIndex = r.DistrictIndex
	c.LastKeywordIndex = r.KeywordIndex
	c.DistrictCount = districtCount
	return c
}

func nextIndex(last, count int) int {
	if last < -1 {
		last = -1
	}
	return (last + 1) % count
}

// KeywordOrder lists keyword indices starting at start and wrapping once.
func KeywordOrder(start, count int) []int {
	order := make([]int, 0, count)
	for i := 0; i < count; i++ {
		order = append(order, (start+i)%count)
	}
	return order
}
