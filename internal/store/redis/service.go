package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/whiterails/internal/sources/servicefile"
)

const (
	// DefaultServiceTTL bounds how long a mirrored definition survives
	// without being refreshed by a scan.
	DefaultServiceTTL = 48 * time.Hour
	// DefaultRunTTL bounds how long an idle run history list is kept.
	DefaultRunTTL = 7 * 24 * time.Hour
)

// Store handles Redis operations for the service mirror and run history
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Ping reports whether Redis answers
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SyncServices mirrors the live set: every document is written and entries
// for source paths no longer live are deleted.
func (s *Store) SyncServices(ctx context.Context, docs []servicefile.Document) error {
	existing, err := s.client.SMembers(ctx, KeyAllServices).Result()
	if err != nil {
		return fmt.Errorf("failed to get mirrored services: %w", err)
	}

	live := make(map[string]bool, len(docs))
	pipe := s.client.TxPipeline()

	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal service %s: %w", doc.SourcePath, err)
		}
		live[doc.SourcePath] = true
		pipe.Set(ctx, ServiceKey(doc.SourcePath), data, DefaultServiceTTL)
		pipe.SAdd(ctx, KeyAllServices, doc.SourcePath)
	}

	for _, path := range existing {
		if !live[path] {
			pipe.Del(ctx, ServiceKey(path))
			pipe.SRem(ctx, KeyAllServices, path)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save services: %w", err)
	}
	return nil
}

// GetService retrieves a mirrored service by source path
func (s *Store) GetService(ctx context.Context, sourcePath string) (*servicefile.Document, error) {
	data, err := s.client.Get(ctx, ServiceKey(sourcePath)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("service not found: %s", sourcePath)
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	var doc servicefile.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal service: %w", err)
	}
	return &doc, nil
}

// GetAllServices retrieves every mirrored service, ordered by source path
func (s *Store) GetAllServices(ctx context.Context) ([]servicefile.Document, error) {
	paths, err := s.client.SMembers(ctx, KeyAllServices).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get service paths: %w", err)
	}
	sort.Strings(paths)

	docs := make([]servicefile.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := s.GetService(ctx, path)
		if err != nil {
			// Expired entries are skipped
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}
