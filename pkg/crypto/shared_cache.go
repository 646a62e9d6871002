package crypto

import (
	lru "github.com/hashicorp/golang-lru"
)

// DefaultSharedKeyCacheSize bounds the number of cached remote peers
const DefaultSharedKeyCacheSize = 256

// SharedKeyCache memoises Precompute results for one local secret key
type SharedKeyCache struct {
	secret SecretKey
	cache  *lru.Cache
}

// NewSharedKeyCache creates a cache bound to our secret key
func NewSharedKeyCache(secret SecretKey, size int) (*SharedKeyCache, error) {
	if size <= 0 {
		size = DefaultSharedKeyCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &SharedKeyCache{secret: secret, cache: cache}, nil
}

// Get returns the shared key for their public key, computing it on a miss
func (c *SharedKeyCache) Get(theirPublic PublicKey) SharedKey {
	if v, ok := c.cache.Get(theirPublic); ok {
		return v.(SharedKey)
	}
	shared := Precompute(theirPublic, c.secret)
	c.cache.Add(theirPublic, shared)
	return shared
}

// Reset rebinds the cache to a new secret key and drops every entry
func (c *SharedKeyCache) Reset(secret SecretKey) {
	c.secret = secret
	c.cache.Purge()
}

// Forget drops the entry for one remote key
func (c *SharedKeyCache) Forget(theirPublic PublicKey) {
	c.cache.Remove(theirPublic)
}

// Len returns the number of cached shared keys
func (c *SharedKeyCache) Len() int {
	return c.cache.Len()
}
