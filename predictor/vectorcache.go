package predictor

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// VectorCache keeps computed fingerprints in memory and optionally on disk,
// keyed by generator parameters, kind and canonical SMILES.
type VectorCache struct {
	dir      string
	memCache map[string]FixedVector
	mu       sync.RWMutex
}

// NewVectorCache prepares a cache. An empty dir keeps vectors in memory only.
func NewVectorCache(dir string) (*VectorCache, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &VectorCache{
		dir:      dir,
		memCache: make(map[string]FixedVector),
	}, nil
}

// Len returns the number of vectors held in memory.
func (c *VectorCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.memCache)
}

// Get returns a copy of the cached vector, consulting disk after memory.
func (c *VectorCache) Get(paramsID string, kind FingerprintKind, canonical string) (FixedVector, bool) {
	if c == nil {
		return nil, false
	}
	key := c.cacheKey(paramsID, kind, canonical)
	if vec := c.getFromCache(key); vec != nil {
		return vec, true
	}
	if vec, err := c.loadFromDisk(key); err == nil {
		c.storeInMemory(key, vec)
		return cloneVector(vec), true
	}
	return nil, false
}

// Put stores a copy of vec. Disk write failures leave the memory entry in place.
func (c *VectorCache) Put(paramsID string, kind FingerprintKind, canonical string, vec FixedVector) {
	if c == nil {
		return
	}
	key := c.cacheKey(paramsID, kind, canonical)
	c.storeInMemory(key, vec)
	_ = c.saveToDisk(key, vec)
}

func (c *VectorCache) cacheKey(paramsID string, kind FingerprintKind, canonical string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, paramsID)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, kind.Key())
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, canonical)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *VectorCache) getFromCache(key string) FixedVector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if vec, ok := c.memCache[key]; ok {
		return cloneVector(vec)
	}
	return nil
}

func (c *VectorCache) storeInMemory(key string, vec FixedVector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memCache[key] = cloneVector(vec)
}

func (c *VectorCache) loadFromDisk(key string) (FixedVector, error) {
	if c.dir == "" {
		return nil, os.ErrNotExist
	}
	path := filepath.Join(c.dir, key+".bin")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("cache file too small: %s", path)
	}
	length := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if len(data) != length*4 {
		return nil, fmt.Errorf("cache length mismatch: %s", path)
	}
	vec := make(FixedVector, length)
	for i := 0; i < length; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : (i+1)*4]))
	}
	return vec, nil
}

func (c *VectorCache) saveToDisk(key string, vec FixedVector) error {
	if c.dir == "" {
		return nil
	}
	path := filepath.Join(c.dir, key+".bin")
	tmp := path + ".tmp"
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec)))
	off := 4
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func cloneVector(vec FixedVector) FixedVector {
	out := make(FixedVector, len(vec))
	copy(out, vec)
	return out
}
