package quorum

import (
	"errors"
	"fmt"

	"github.com/iykyk-syn/bboard/crypto"
)

// Replica is a member of the static replica set.
type Replica struct {
	// Index is the position of the Replica in the Set. It is the replica identifier on the wire.
	Index  int
	PubKey crypto.PubKey
}

// Validate performs basic validation.
func (r *Replica) Validate() error {
	if r == nil {
		return errors.New("nil replica")
	}
	if r.PubKey == nil || len(r.PubKey.Bytes()) == 0 {
		return errors.New("replica does not have a public key")
	}
	return nil
}

// Set is the static ordered set of N replicas tolerating f=(N-1)/3 byzantine faults.
// Replica indexes are positions in the order the keys were given.
type Set struct {
	replicas []*Replica
}

// NewSet creates a Set from public keys ordered by replica index.
func NewSet(keys []crypto.PubKey) (*Set, error) {
	set := &Set{replicas: make([]*Replica, len(keys))}
	for i, k := range keys {
		set.replicas[i] = &Replica{Index: i, PubKey: k}
	}
	return set, set.Validate()
}

func (s *Set) Validate() error {
	if s == nil || len(s.replicas) == 0 {
		return errors.New("replicas are nil or empty")
	}

	for idx, r := range s.replicas {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid replica #%d: %w", idx, err)
		}
		for _, other := range s.replicas[:idx] {
			if other.PubKey.Equals(r.PubKey.Bytes()) {
				return fmt.Errorf("replica #%d repeats the key of #%d", idx, other.Index)
			}
		}
	}
	return nil
}

func (s *Set) Len() int { return len(s.replicas) }

// Faults is the number of byzantine replicas tolerated.
func (s *Set) Faults() int {
	return (len(s.replicas) - 1) / 3
}

// QuorumSize is the number of matching votes that outvote any byzantine coalition, 2f+1.
func (s *Set) QuorumSize() int {
	return 2*s.Faults() + 1
}

// Amplification is the number of votes guaranteeing at least one honest voter, f+1.
func (s *Set) Amplification() int {
	return s.Faults() + 1
}

// Get returns the Replica with the given index or nil.
func (s *Set) Get(index int) *Replica {
	if index < 0 || index >= len(s.replicas) {
		return nil
	}
	return s.replicas[index]
}

// All returns the replicas ordered by index.
func (s *Set) All() []*Replica {
	return s.replicas
}

// Verify checks that mac over content was produced by the Replica with the given index.
func (s *Set) Verify(index int, content, mac []byte) bool {
	r := s.Get(index)
	if r == nil {
		return false
	}
	return crypto.VerifyMAC(content, mac, r.PubKey)
}
