package board

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
)

// MaxContentLength is the maximum number of characters in an Announcement.
const MaxContentLength = 255

// GeneralID identifies the shared general board.
const GeneralID = "general"

// Announcement is an immutable signed post on a Board.
type Announcement struct {
	Author     ed25519.PublicKey `json:"author"`
	Content    string            `json:"content"`
	Signature  []byte            `json:"signature"`
	Sequence   uint64            `json:"sequence"`
	References []string          `json:"references"`
	Board      string            `json:"board"`
}

// NewAnnouncement creates and signs an Announcement.
func NewAnnouncement(key ed25519.PrivateKey, boardID string, seq uint64, content string, refs ...string) (*Announcement, error) {
	a := &Announcement{
		Author:     key.Public(),
		Content:    content,
		Sequence:   seq,
		References: refs,
		Board:      boardID,
	}
	if a.References == nil {
		a.References = []string{}
	}

	sig, err := key.Sign(a.SigningBytes())
	if err != nil {
		return nil, err
	}
	a.Signature = sig
	return a, nil
}

// ID is the content fingerprint of the Announcement used for replica wide deduplication.
func (a *Announcement) ID() string {
	return AnnouncementID(a.Signature)
}

// AnnouncementID computes the id for the given signature.
func AnnouncementID(signature []byte) string {
	h := sha256.Sum256(signature)
	return hex.EncodeToString(h[:])
}

// SigningBytes is the canonical encoding the author signs:
// sequence, author key, content, references and board id.
func (a *Announcement) SigningBytes() []byte {
	buf := binary.BigEndian.AppendUint64(nil, a.Sequence)
	buf = appendField(buf, a.Author)
	buf = appendField(buf, []byte(a.Content))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(a.References)))
	for _, ref := range a.References {
		buf = appendField(buf, []byte(ref))
	}
	return appendField(buf, []byte(a.Board))
}

// Validate performs the stateless checks of the Announcement: content size,
// references uniqueness and the author signature.
func (a *Announcement) Validate() error {
	if _, err := ed25519.BytesToPubKey(a.Author); err != nil {
		return bboard.ErrInvalidKey
	}
	if a.Board == "" {
		return bboard.ErrInvalidBoard
	}
	if !utf8.ValidString(a.Content) {
		return fmt.Errorf("%w: content is not utf-8", bboard.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(a.Content) > MaxContentLength {
		return fmt.Errorf("%w: %d characters", bboard.ErrContentTooLong, utf8.RuneCountInString(a.Content))
	}

	seen := make(map[string]struct{}, len(a.References))
	for _, ref := range a.References {
		if _, ok := seen[ref]; ok {
			return fmt.Errorf("%w: repeated %s", bboard.ErrInvalidReference, ref)
		}
		seen[ref] = struct{}{}
	}

	if !a.Author.VerifySignature(a.SigningBytes(), a.Signature) {
		return bboard.ErrBadSignature
	}
	return nil
}

// Clone returns a deep copy of the Announcement.
func (a *Announcement) Clone() Announcement {
	c := *a
	c.Author = append(ed25519.PublicKey(nil), a.Author...)
	c.Signature = append([]byte(nil), a.Signature...)
	c.References = append([]string{}, a.References...)
	return c
}

// PersonalID returns the id of the personal board owned by key.
func PersonalID(key crypto.PubKey) string {
	return hex.EncodeToString(key.Bytes())
}

func appendField(buf, field []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(field)))
	return append(buf, field...)
}
