// Package payload handles persistent anchor descriptors: opaque byte blobs
// produced by the native layer that can later be localized again. Blobs are
// stored base64 encoded and fetched with a cooperative poll loop.
package payload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/anchorsync/internal/monitoring"
	"github.com/banshee-data/anchorsync/internal/timeutil"
)

var (
	// ErrNotFound means no payload is stored under the key (yet).
	ErrNotFound = errors.New("payload not found")
	// ErrTimeout means Await gave up before the payload appeared.
	ErrTimeout = errors.New("timed out waiting for payload")
)

// Source looks up payloads by key. Fetch returns ErrNotFound (possibly
// wrapped) while the payload is not available.
type Source interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Encode returns the base64 form used for storage and transport.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return data, nil
}

// Await polls src every interval until the payload for key is available,
// the timeout elapses (ErrTimeout) or ctx is cancelled (ctx.Err()).
// Errors other than ErrNotFound end the poll immediately.
func Await(ctx context.Context, clock timeutil.Clock, src Source, key string, interval, timeout time.Duration) ([]byte, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	start := clock.Now()
	polls := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := src.Fetch(ctx, key)
		polls++
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		if clock.Since(start) >= timeout {
			monitoring.Logf("payload: gave up on %q after %d polls", key, polls)
			return nil, ErrTimeout
		}
		clock.Sleep(interval)
	}
}

// MemorySource is an in-process Source, used by the simulator and tests.
type MemorySource struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{data: make(map[string][]byte)}
}

// Put stores data under key.
func (s *MemorySource) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
}

// Fetch implements Source.
func (s *MemorySource) Fetch(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}
