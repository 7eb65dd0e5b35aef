package board

import (
	"fmt"
	"sync"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
)

// Directory holds the whole domain state of a replica: registered users, their personal boards,
// the general board and the global index of delivered Announcements.
type Directory struct {
	mu      sync.RWMutex
	users   map[string]*User
	general *Board
	index   map[string]*Announcement
}

// NewDirectory creates an empty Directory with its singleton general Board.
func NewDirectory() *Directory {
	return &Directory{
		users:   make(map[string]*User),
		general: NewGeneral(),
		index:   make(map[string]*Announcement),
	}
}

// RegisterUser creates a User with its personal Board.
func (d *Directory) RegisterUser(key []byte) (*User, error) {
	pubKey, err := ed25519.BytesToPubKey(key)
	if err != nil {
		return nil, bboard.ErrInvalidKey
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[pubKey.String()]; ok {
		return nil, bboard.ErrAlreadyExists
	}
	u := newUser(pubKey)
	d.users[pubKey.String()] = u
	return u, nil
}

// User looks up a registered User by key.
func (d *Directory) User(key []byte) (*User, error) {
	pubKey, err := ed25519.BytesToPubKey(key)
	if err != nil {
		return nil, bboard.ErrInvalidKey
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[pubKey.String()]
	if !ok {
		return nil, bboard.ErrUnknownUser
	}
	return u, nil
}

// Users returns the number of registered users.
func (d *Directory) Users() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// Announcements returns the number of delivered Announcements.
func (d *Directory) Announcements() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.index)
}

// General returns the shared general Board.
func (d *Directory) General() *Board {
	return d.general
}

// Board resolves a board id to the general Board or a personal one.
func (d *Directory) Board(id string) (*Board, error) {
	if id == GeneralID {
		return d.general, nil
	}
	key, err := ed25519.HexToPubKey(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bboard.ErrInvalidBoard, id)
	}
	u, err := d.User(key)
	if err != nil {
		return nil, err
	}
	return u.Board(), nil
}

// Has reports whether an Announcement with the given id was delivered.
func (d *Directory) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.index[id]
	return ok
}

// CheckReferences verifies that every reference is known and none repeats.
func (d *Directory) CheckReferences(refs []string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.checkReferences(refs)
}

func (d *Directory) checkReferences(refs []string) error {
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			return fmt.Errorf("%w: repeated %s", bboard.ErrInvalidReference, ref)
		}
		seen[ref] = struct{}{}

		if _, ok := d.index[ref]; !ok {
			return fmt.Errorf("%w: unknown %s", bboard.ErrInvalidReference, ref)
		}
	}
	return nil
}

// CheckPost reports whether Post would accept the Announcement, without changing any state.
func (d *Directory) CheckPost(a *Announcement) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, err := d.target(a)
	if err != nil {
		return err
	}
	return d.check(b, a)
}

// Post delivers the Announcement onto its Board and the global index.
// An Announcement delivered before reports bboard.ErrDuplicate and changes nothing.
func (d *Directory) Post(a *Announcement) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.target(a)
	if err != nil {
		return err
	}
	if err = d.check(b, a); err != nil {
		return err
	}
	if err = b.Post(a); err != nil {
		return err
	}
	d.index[a.ID()] = a
	return nil
}

func (d *Directory) check(b *Board, a *Announcement) error {
	if _, ok := d.index[a.ID()]; ok {
		return bboard.ErrDuplicate
	}
	if err := d.checkReferences(a.References); err != nil {
		return err
	}
	return b.Check(a)
}

// target resolves the Board of the Announcement. Caller must hold the lock.
func (d *Directory) target(a *Announcement) (*Board, error) {
	if _, ok := d.users[a.Author.String()]; !ok {
		return nil, bboard.ErrUnknownUser
	}
	if a.Board == GeneralID {
		return d.general, nil
	}
	owner, ok := d.users[a.Board]
	if !ok {
		return nil, fmt.Errorf("%w: %s", bboard.ErrInvalidBoard, a.Board)
	}
	return owner.Board(), nil
}
