package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/draganm/bolted"
	"github.com/draganm/bolted/dbpath"
)

var profilesPath = dbpath.ToPath("profiles")

var ErrNotFound = errors.New("profile not found")

// BoltedStore keeps profiles in the embedded state database, one entry per
// email.
type BoltedStore struct {
	db bolted.Database
}

func NewBoltedStore(db bolted.Database) (*BoltedStore, error) {
	err := bolted.SugaredWrite(db, func(tx bolted.SugaredWriteTx) error {
		if !tx.Exists(profilesPath) {
			tx.CreateMap(profilesPath)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("while creating profiles map: %w", err)
	}
	return &BoltedStore{db: db}, nil
}

func (s *BoltedStore) Upsert(ctx context.Context, p Profile) error {
	if p.Email == "" {
		return errors.New("profile email must not be empty")
	}

	d, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("while marshalling profile: %w", err)
	}

	return bolted.SugaredWrite(s.db, func(tx bolted.SugaredWriteTx) error {
		tx.Put(profilesPath.Append(p.Email), d)
		return nil
	})
}

func (s *BoltedStore) Get(ctx context.Context, email string) (*Profile, error) {
	p := &Profile{}
	err := bolted.SugaredRead(s.db, func(tx bolted.SugaredReadTx) error {
		pth := profilesPath.Append(email)
		if !tx.Exists(pth) {
			return ErrNotFound
		}
		return json.Unmarshal(tx.Get(pth), p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *BoltedStore) Count(ctx context.Context) (int, error) {
	cnt := 0
	err := bolted.SugaredRead(s.db, func(tx bolted.SugaredReadTx) error {
		for it := tx.Iterator(profilesPath); !it.IsDone(); it.Next() {
			cnt++
		}
		return nil
	})
	return cnt, err
}
