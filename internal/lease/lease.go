// Package lease — single-owner аренда run в Redis.
//
// Реестр воркеров живёт в памяти процесса. Если API запущен в нескольких
// экземплярах, аренда не даёт двум процессам обрабатывать один run:
// ключ bulksub:lease:run:<id> хранит owner и продлевается heartbeat'ом.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Default configuration values.
const (
	defaultTTL       = 30 * time.Second
	defaultKeyPrefix = "bulksub:lease:run:"
)

var (
	// ErrHeld — run арендован другим владельцем.
	ErrHeld = errors.New("lease: held by another owner")

	// ErrLost — аренда истекла или перехвачена.
	ErrLost = errors.New("lease: lost")
)

// refreshScript продлевает ключ, только если он принадлежит owner.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript удаляет ключ, только если он принадлежит owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config — конфигурация Locker.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`

	// TTL — время жизни ключа; heartbeat каждые TTL/3 (default: 30s).
	TTL time.Duration `yaml:"ttl"`

	// Owner — идентификатор процесса (default: hostname-pid-uuid).
	Owner string `yaml:"owner"`

	Logger *slog.Logger `yaml:"-"`
}

// Locker выдаёт аренды runs.
type Locker struct {
	rdb    redis.UniversalClient
	owner  string
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewClient создаёт Redis клиент и проверяет соединение.
func NewClient(ctx context.Context, url, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// New создаёт Locker поверх готового клиента.
func New(rdb redis.UniversalClient, cfg Config) *Locker {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Owner == "" {
		cfg.Owner = defaultOwner()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Locker{
		rdb:    rdb,
		owner:  cfg.Owner,
		ttl:    cfg.TTL,
		prefix: defaultKeyPrefix,
		logger: logger,
	}
}

// Owner возвращает идентификатор владельца.
func (l *Locker) Owner() string {
	return l.owner
}

// Acquire берёт аренду run и запускает heartbeat.
// Повторный Acquire тем же владельцем продлевает существующую аренду.
func (l *Locker) Acquire(ctx context.Context, runID uuid.UUID) (*Lease, error) {
	key := l.key(runID)

	ok, err := l.rdb.SetNX(ctx, key, l.owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		// Ключ мог остаться от этого же процесса (рестарт воркера без Release).
		if err := l.refresh(ctx, key); err != nil {
			if errors.Is(err, ErrLost) {
				return nil, ErrHeld
			}
			return nil, err
		}
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	lease := &Lease{
		locker: l,
		runID:  runID,
		key:    key,
		cancel: cancel,
		lost:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.heartbeat(hbCtx)

	l.logger.Debug("lease acquired", "run_id", runID, "owner", l.owner, "ttl", l.ttl)
	return lease, nil
}

// Lease — удерживаемая аренда run.
type Lease struct {
	locker *Locker
	runID  uuid.UUID
	key    string

	cancel   context.CancelFunc
	lost     chan struct{}
	lostOnce sync.Once
	done     chan struct{}
}

// RunID возвращает арендованный run.
func (l *Lease) RunID() uuid.UUID {
	return l.runID
}

// Lost закрывается, если аренду не удалось продлить.
func (l *Lease) Lost() <-chan struct{} {
	return l.lost
}

// Release останавливает heartbeat и удаляет ключ, если он ещё наш.
func (l *Lease) Release(ctx context.Context) error {
	l.cancel()
	<-l.done

	n, err := releaseScript.Run(ctx, l.locker.rdb, []string{l.key}, l.locker.owner).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLost
	}

	l.locker.logger.Debug("lease released", "run_id", l.runID)
	return nil
}

// --- Helpers ---

func (l *Lease) heartbeat(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.locker.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.locker.refresh(ctx, l.key)
			if err == nil {
				continue
			}
			if errors.Is(err, ErrLost) {
				l.locker.logger.Warn("lease lost", "run_id", l.runID)
				l.lostOnce.Do(func() { close(l.lost) })
				return
			}
			if ctx.Err() == nil {
				l.locker.logger.Warn("lease refresh failed", "run_id", l.runID, "error", err)
			}
		}
	}
}

func (l *Locker) refresh(ctx context.Context, key string) error {
	n, err := refreshScript.Run(ctx, l.rdb, []string{key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh %s: %w", key, err)
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

func (l *Locker) key(runID uuid.UUID) string {
	return l.prefix + runID.String()
}

func defaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "bulksub"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
