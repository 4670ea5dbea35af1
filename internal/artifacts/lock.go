package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serializes promotions. Acquire returns ErrLocked when another
// promotion holds the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LockFile is the lock file name used inside the production directory
const LockFile = ".promote.lock"

// FileLocker is an exclusive lock file. A lock older than TTL is treated as
// left behind by a crashed process and taken over.
type FileLocker struct {
	Path string
	TTL  time.Duration
}

// NewFileLocker locks productionDir/.promote.lock
func NewFileLocker(productionDir string, ttl time.Duration) *FileLocker {
	return &FileLocker{Path: filepath.Join(productionDir, LockFile), TTL: ttl}
}

func (l *FileLocker) Acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			f.Close()
			return func() { os.Remove(l.Path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		info, statErr := os.Stat(l.Path)
		if statErr != nil || l.TTL <= 0 || time.Since(info.ModTime()) < l.TTL {
			return nil, ErrLocked
		}
		os.Remove(l.Path)
	}
	return nil, ErrLocked
}

// RedisLockClient is the subset of the redis client used for locking
type RedisLockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// deletes the key only while it still holds our token
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// RedisLocker holds the promotion lock in redis so promotions are
// serialized across hosts.
type RedisLocker struct {
	client RedisLockClient
	key    string
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisLocker creates a lock on key that expires after ttl
func NewRedisLocker(client RedisLockClient, key string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl, logger: logger.Sugar()}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire promotion lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Err(); err != nil {
			l.logger.Warnw("Failed to release promotion lock", "key", l.key, "error", err)
		}
	}, nil
}
