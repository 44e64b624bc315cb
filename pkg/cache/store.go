package cache

import (
	"context"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrStoreUnavailable is returned by store constructors when the backing
// service cannot be reached. Callers are expected to fall back to a
// process-local cache.
var ErrStoreUnavailable = errors.New("shared store unavailable")

// Store is the shared, best-effort tier of a Cache. It may be backed by
// anything that survives the process (Redis, an SQL table). A ttl of zero
// means no expiry.
type Store interface {
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Fetch(ctx context.Context, key string) ([]byte, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Codec turns cached values into bytes for the shared tier.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// MsgpackCodec encodes values with MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
