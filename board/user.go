package board

import (
	"github.com/iykyk-syn/bboard/crypto/ed25519"
)

// User is a registered identity owning exactly one personal Board.
type User struct {
	key   ed25519.PublicKey
	board *Board
}

func newUser(key ed25519.PublicKey) *User {
	u := &User{key: key}
	u.board = newBoard(key.String(), Personal, u)
	return u
}

// Key returns the public key of the User.
func (u *User) Key() ed25519.PublicKey {
	return u.key
}

// Board returns the personal Board of the User.
func (u *User) Board() *Board {
	return u.board
}
