package backup

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/kuitang/notelytic/internal/notes"
	"github.com/kuitang/notelytic/internal/obs"
)

const (
	snapshotDir = "snapshots"
	corruptDir  = "corrupt"
	timeLayout  = "20060102T150405.000000000Z"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Service writes note snapshots and corrupt payloads under a key prefix.
type Service struct {
	client *Client
	prefix string
	now    func() time.Time
}

var _ notes.Archiver = (*Service)(nil)

// NewService returns a Service writing under prefix.
func NewService(client *Client, prefix string) *Service {
	return &Service{client: client, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

func (s *Service) key(dir, name string) string {
	return path.Join(s.prefix, dir, name)
}

// Snapshot stores every note in the browser-storage JSON layout, so a
// snapshot can be fed back through the legacy import.
func (s *Service) Snapshot(ctx context.Context, records map[string]notes.Record) (string, error) {
	payload, err := notes.MarshalLegacy(records)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := s.key(snapshotDir, "notes-"+s.now().UTC().Format(timeLayout)+".json")
	if err := s.client.PutObject(ctx, key, payload, "application/json"); err != nil {
		return "", err
	}
	obs.From(ctx).Info("backup_snapshot_written", "key", key, "notes", len(records), "bytes", len(payload))
	return key, nil
}

// ArchiveCorrupt implements notes.Archiver.
func (s *Service) ArchiveCorrupt(ctx context.Context, name string, payload []byte) (string, error) {
	name = unsafeName.ReplaceAllString(name, "_")
	if name == "" {
		name = "payload"
	}
	key := s.key(corruptDir, name+"-"+s.now().UTC().Format(timeLayout)+".json")
	if err := s.client.PutObject(ctx, key, payload, "application/octet-stream"); err != nil {
		return "", err
	}
	obs.From(ctx).Warn("backup_corrupt_payload_archived", "key", key, "bytes", len(payload))
	return key, nil
}

// Snapshots lists snapshot keys, oldest first.
func (s *Service) Snapshots(ctx context.Context) ([]string, error) {
	return s.client.ListKeys(ctx, s.key(snapshotDir, "")+"/")
}

// Latest returns the newest snapshot key, or ErrObjectNotFound.
func (s *Service) Latest(ctx context.Context) (string, error) {
	keys, err := s.Snapshots(ctx)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", ErrObjectNotFound
	}
	return keys[len(keys)-1], nil
}

// Fetch returns the raw content of key.
func (s *Service) Fetch(ctx context.Context, key string) ([]byte, error) {
	return s.client.GetObject(ctx, key)
}
