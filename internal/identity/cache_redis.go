// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ducpham/sentra/internal/platform/constants"
	"github.com/ducpham/sentra/internal/platform/sec"
)

// ProfileCache is a read-through Redis cache for public profiles.
//
// # Staleness
//
// Entries live at most [constants.ProfileCacheTTL]; every profile mutation
// additionally evicts the owner's entries eagerly, so the TTL only bounds
// staleness when eviction itself fails.
type ProfileCache struct {
	client *redis.Client
}

// NewProfileCache creates a ProfileCache backed by the given Redis client.
func NewProfileCache(client *redis.Client) *ProfileCache {
	return &ProfileCache{client: client}
}

/*
Get retrieves a cached public profile.

Parameters:
  - context: context.Context
  - kind: sec.Kind
  - id: string

Returns:
  - *PublicProfile: The cached projection, nil on cache miss
  - error: Connectivity or decoding errors
*/
func (cache *ProfileCache) Get(context context.Context, kind sec.Kind, id string) (*PublicProfile, error) {
	payload, err := cache.client.Get(context, profileCacheKey(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("profile_cache_get_failed: %w", err)
	}

	profile := &PublicProfile{}
	if err := json.Unmarshal(payload, profile); err != nil {
		return nil, fmt.Errorf("profile_cache_decode_failed: %w", err)
	}

	return profile, nil
}

/*
Set stores a public profile with the standard TTL.

Parameters:
  - context: context.Context
  - profile: PublicProfile

Returns:
  - error: Encoding or storage failures
*/
func (cache *ProfileCache) Set(context context.Context, profile PublicProfile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("profile_cache_encode_failed: %w", err)
	}

	key := profileCacheKey(profile.Kind, profile.ID)
	if err := cache.client.Set(context, key, payload, constants.ProfileCacheTTL).Err(); err != nil {
		return fmt.Errorf("profile_cache_set_failed: %w", err)
	}

	return nil
}

/*
Invalidate evicts every cached entry belonging to one principal.

Description: Scans for the principal's key prefix rather than deleting a
single literal key, so derived entries (future projections keyed under the
same prefix) are evicted together.

Parameters:
  - context: context.Context
  - kind: sec.Kind
  - id: string

Returns:
  - error: Scan or deletion failures
*/
func (cache *ProfileCache) Invalidate(context context.Context, kind sec.Kind, id string) error {
	pattern := profileCacheKey(kind, id) + "*"

	iterator := cache.client.Scan(context, 0, pattern, 0).Iterator()
	for iterator.Next(context) {
		if err := cache.client.Del(context, iterator.Val()).Err(); err != nil {
			return fmt.Errorf("profile_cache_invalidate_failed: %w", err)
		}
	}
	if err := iterator.Err(); err != nil {
		return fmt.Errorf("profile_cache_scan_failed: %w", err)
	}

	return nil
}

func profileCacheKey(kind sec.Kind, id string) string {
	if kind == sec.KindAdmin {
		return constants.RedisPrefixAdminProfile + id
	}
	return constants.RedisPrefixUserProfile + id
}
