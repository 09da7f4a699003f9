package events

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketNotifications = []byte("notifications")

// Journal is a durable, append-only record of every emitted notification,
// keyed by a monotonic sequence number. Downstream systems that missed
// in-process delivery can replay from it.
type Journal struct {
	db *bolt.DB
}

// OpenJournal opens or creates the journal file.
func OpenJournal(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNotifications)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal bucket: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records one notification under the next sequence number.
func (j *Journal) Append(n *Notification) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// ReplayFrom returns every journaled notification with sequence > after, in
// order, together with the last sequence seen.
func (j *Journal) ReplayFrom(after uint64) ([]*Notification, uint64, error) {
	var out []*Notification
	last := after
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNotifications).Cursor()
		for k, v := c.Seek(seqKey(after + 1)); k != nil; k, v = c.Next() {
			var n Notification
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			out = append(out, &n)
			last = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return out, last, err
}

func seqKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}
