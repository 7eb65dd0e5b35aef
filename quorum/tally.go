package quorum

// Tally counts votes from distinct replicas. It is not safe for concurrent use.
type Tally struct {
	set   *Set
	votes map[int]struct{}
}

func NewTally(set *Set) *Tally {
	return &Tally{
		set:   set,
		votes: make(map[int]struct{}, set.Len()),
	}
}

// Add records a vote of the replica and reports whether it was counted.
// Votes of unknown replicas and repeated votes are not counted.
func (t *Tally) Add(index int) bool {
	if t.set.Get(index) == nil {
		return false
	}
	if _, ok := t.votes[index]; ok {
		return false
	}
	t.votes[index] = struct{}{}
	return true
}

// Has reports whether the replica voted already.
func (t *Tally) Has(index int) bool {
	_, ok := t.votes[index]
	return ok
}

// Len returns the number of distinct votes.
func (t *Tally) Len() int {
	return len(t.votes)
}
