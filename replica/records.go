package replica

import (
	"encoding/json"
	"fmt"

	"github.com/iykyk-syn/bboard/board"
	"github.com/iykyk-syn/bboard/store"
)

const (
	recordRegister = "register"
	recordPost     = "post"
)

type registerFields struct {
	Key []byte `json:"key"`
}

func registerRecord(key []byte) (store.Record, error) {
	fields, err := json.Marshal(registerFields{Key: key})
	if err != nil {
		return store.Record{}, err
	}
	return store.Record{Type: recordRegister, Fields: fields}, nil
}

func postRecord(a *board.Announcement) (store.Record, error) {
	fields, err := json.Marshal(a)
	if err != nil {
		return store.Record{}, err
	}
	return store.Record{Type: recordPost, Fields: fields}, nil
}

func decodeRecord(rec store.Record) (key []byte, a *board.Announcement, err error) {
	switch rec.Type {
	case recordRegister:
		var f registerFields
		if err = json.Unmarshal(rec.Fields, &f); err != nil {
			return nil, nil, fmt.Errorf("decoding register record: %w", err)
		}
		return f.Key, nil, nil
	case recordPost:
		a = &board.Announcement{}
		if err = json.Unmarshal(rec.Fields, a); err != nil {
			return nil, nil, fmt.Errorf("decoding post record: %w", err)
		}
		if a.References == nil {
			a.References = []string{}
		}
		return nil, a, nil
	default:
		return nil, nil, fmt.Errorf("unknown record type %q", rec.Type)
	}
}
