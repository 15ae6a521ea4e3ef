package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/draganm/bolted"
	"github.com/draganm/bolted/dbpath"
)

var sessionsPath = dbpath.ToPath("sessions")

type BoltedStore struct {
	db bolted.Database
}

func NewBoltedStore(db bolted.Database) (*BoltedStore, error) {
	err := bolted.SugaredWrite(db, func(tx bolted.SugaredWriteTx) error {
		if !tx.Exists(sessionsPath) {
			tx.CreateMap(sessionsPath)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("while creating sessions map: %w", err)
	}
	return &BoltedStore{db: db}, nil
}

func (b *BoltedStore) Get(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	err := bolted.SugaredRead(b.db, func(tx bolted.SugaredReadTx) error {
		pth := sessionsPath.Append(id)
		if !tx.Exists(pth) {
			return ErrNotFound
		}
		err := json.Unmarshal(tx.Get(pth), s)
		if err != nil {
			return fmt.Errorf("while unmarshalling session %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *BoltedStore) Put(ctx context.Context, s *Session) error {
	d, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("while marshalling session: %w", err)
	}
	return bolted.SugaredWrite(b.db, func(tx bolted.SugaredWriteTx) error {
		tx.Put(sessionsPath.Append(s.ID), d)
		return nil
	})
}

func (b *BoltedStore) Delete(ctx context.Context, id string) error {
	return bolted.SugaredWrite(b.db, func(tx bolted.SugaredWriteTx) error {
		pth := sessionsPath.Append(id)
		if tx.Exists(pth) {
			tx.Delete(pth)
		}
		return nil
	})
}

func (b *BoltedStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	purged := 0
	err := bolted.SugaredWrite(b.db, func(tx bolted.SugaredWriteTx) error {
		toDelete := []string{}
		for it := tx.Iterator(sessionsPath); !it.IsDone(); it.Next() {
			s := &Session{}
			err := json.Unmarshal(it.GetValue(), s)
			if err != nil || s.ExpiresAt.Before(cutoff) {
				toDelete = append(toDelete, it.GetKey())
			}
		}
		for _, id := range toDelete {
			tx.Delete(sessionsPath.Append(id))
		}
		purged = len(toDelete)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}
