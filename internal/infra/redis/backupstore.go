package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openwpsec/guard/pkg/domain/backup"
	"github.com/openwpsec/guard/pkg/domain/shared"
)

const (
	backupKeyPrefix = "guard:rowbackup"
	recentListKey   = "guard:rowbackup:recent"
)

// BackupStore persists row-backup sets with a TTL and keeps a rolling
// list of the most recent backup IDs for operator listing. Expired
// backups simply disappear; restore attempts against them report "not
// found".
type BackupStore struct {
	client *Client
	ttl    time.Duration
	recent int64
}

// NewBackupStore creates a backup store. ttl bounds how long a backup
// stays restorable; recent is the size of the rolling reference list.
func NewBackupStore(client *Client, ttl time.Duration, recent int) *BackupStore {
	return &BackupStore{
		client: client,
		ttl:    ttl,
		recent: int64(recent),
	}
}

func backupKey(id string) string {
	return fmt.Sprintf("%s:%s", backupKeyPrefix, id)
}

// Save persists a backup set under its ID and pushes the ID onto the
// rolling reference list.
func (s *BackupStore) Save(ctx context.Context, set *backup.Set) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal backup set: %w", err)
	}

	if err := s.client.set(ctx, backupKey(set.ID), data, s.ttl); err != nil {
		return err
	}

	pipe := s.client.client.TxPipeline()
	pipe.LPush(ctx, recentListKey, set.ID)
	pipe.LTrim(ctx, recentListKey, 0, s.recent-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update recent backup list: %w", err)
	}
	return nil
}

// Get returns the backup set for id, or shared.ErrNotFound when the
// backup is unknown or has expired.
func (s *BackupStore) Get(ctx context.Context, id string) (*backup.Set, error) {
	data, err := s.client.get(ctx, backupKey(id))
	if err != nil {
		if err == ErrCacheMiss {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	var set backup.Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("unmarshal backup set: %w", err)
	}
	return &set, nil
}

// Delete removes the backup set and drops its reference from the
// rolling list.
func (s *BackupStore) Delete(ctx context.Context, id string) error {
	if err := s.client.del(ctx, backupKey(id)); err != nil {
		return err
	}
	if err := s.client.client.LRem(ctx, recentListKey, 0, id).Err(); err != nil {
		return fmt.Errorf("remove backup reference: %w", err)
	}
	return nil
}

// Recent lists the most recent backup IDs, newest first. IDs whose
// backups have since expired may appear; callers tolerate a not-found
// on use.
func (s *BackupStore) Recent(ctx context.Context) ([]string, error) {
	ids, err := s.client.client.LRange(ctx, recentListKey, 0, s.recent-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent backups: %w", err)
	}
	return ids, nil
}
