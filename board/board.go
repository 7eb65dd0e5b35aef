package board

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/iykyk-syn/bboard"
)

// Discipline is the sequencing rule of a Board.
type Discipline uint8

const (
	// Personal boards are (1,N) registers: only the owner writes, sequence must be exactly next.
	Personal Discipline = iota
	// General boards are (N,N) registers: any user writes, the first claim of a slot wins.
	General
)

// Board is an ordered append-only sequence of Announcements keyed by sequence.
// Sequence values on a Board form a dense prefix: the n-th Announcement carries sequence n.
type Board struct {
	id         string
	discipline Discipline
	owner      *User

	mu            sync.RWMutex
	announcements []*Announcement
}

func newBoard(id string, discipline Discipline, owner *User) *Board {
	return &Board{
		id:         id,
		discipline: discipline,
		owner:      owner,
	}
}

// NewGeneral creates an empty general Board.
func NewGeneral() *Board {
	return newBoard(GeneralID, General, nil)
}

// ID returns the Board id.
func (b *Board) ID() string {
	return b.id
}

// Len returns the current highest sequence of the Board.
func (b *Board) Len() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint64(len(b.announcements))
}

// Post appends the Announcement after checking it against the Board's sequencing discipline,
// ownership and the author signature. References are an external concern of the Directory.
func (b *Board) Post(a *Announcement) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.check(a); err != nil {
		return err
	}
	b.announcements = append(b.announcements, a)
	return nil
}

// Check reports whether Post would accept the Announcement without appending it.
func (b *Board) Check(a *Announcement) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.check(a)
}

func (b *Board) check(a *Announcement) error {
	if a.Board != b.id {
		return fmt.Errorf("%w: posting %s to %s", bboard.ErrInvalidBoard, a.Board, b.id)
	}
	if b.discipline == Personal && !bytes.Equal(a.Author, b.owner.Key()) {
		return bboard.ErrNotOwner
	}

	current := uint64(len(b.announcements))
	// the id check goes before the sequence one, so replays stay idempotent
	if a.Sequence >= 1 && a.Sequence <= current {
		if bytes.Equal(b.announcements[a.Sequence-1].Signature, a.Signature) {
			return bboard.ErrDuplicate
		}
	}

	switch b.discipline {
	case Personal:
		if a.Sequence != current+1 {
			return fmt.Errorf("%w: want %d, got %d", bboard.ErrInvalidSequence, current+1, a.Sequence)
		}
	case General:
		// a writer may only claim the free slot, any lower one is taken already
		if a.Sequence > current+1 {
			return fmt.Errorf("%w: slot %d is ahead of %d", bboard.ErrInvalidSequence, a.Sequence, current+1)
		}
		if a.Sequence <= current {
			return fmt.Errorf("%w: slot %d is taken", bboard.ErrInvalidSequence, a.Sequence)
		}
	}

	if err := a.Validate(); err != nil {
		return err
	}
	return nil
}

// Read returns copies of the last n Announcements, newest last. n=0 reads all.
func (b *Board) Read(n int) ([]Announcement, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", bboard.ErrInvalidCount, n)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	from := 0
	if n > 0 && n < len(b.announcements) {
		from = len(b.announcements) - n
	}

	out := make([]Announcement, 0, len(b.announcements)-from)
	for _, a := range b.announcements[from:] {
		out = append(out, a.Clone())
	}
	return out, nil
}
