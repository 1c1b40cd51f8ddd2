package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"events-cache/config"
	"events-cache/logging"

	"github.com/go-redis/redis/v8"
)

// RedisProvider hands out cache clients. Callers Release every client they
// Acquire, passing the error of the last operation so a broken connection
// can be dropped.
type RedisProvider interface {
	Acquire(ctx context.Context) (RedisClient, error)
	Release(client RedisClient, err error)
	Close() error
}

// GoRedisProvider lazily connects a go-redis client and replaces it after
// connection-level failures. It also runs as a supervised service that
// pings on an interval.
type GoRedisProvider struct {
	cfg    config.RedisConfig
	mu     sync.Mutex
	client *GeoRedisClient
}

// NewGoRedisProvider builds a provider; no connection is made until Acquire.
func NewGoRedisProvider(cfg config.RedisConfig) *GoRedisProvider {
	return &GoRedisProvider{cfg: cfg}
}

func (p *GoRedisProvider) Acquire(ctx context.Context) (RedisClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	client := NewGeoRedisClient(redis.NewClient(&redis.Options{
		Addr:        p.cfg.Address(),
		Username:    p.cfg.Username,
		Password:    p.cfg.Password,
		DB:          p.cfg.DB,
		DialTimeout: p.cfg.DialTimeout,
		ReadTimeout: p.cfg.OpTimeout,
		PoolSize:    p.cfg.PoolSize,
	}))

	pingCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", p.cfg.Address(), err)
	}

	logging.Info().Str("addr", p.cfg.Address()).Msg("[RedisProvider] connected")
	p.client = client
	return client, nil
}

// Release drops the shared client when err is a connection-level failure.
func (p *GoRedisProvider) Release(client RedisClient, err error) {
	if err == nil || !IsConnectionError(err) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil || RedisClient(p.client) != client {
		return
	}
	logging.Warn().Err(err).Msg("[RedisProvider] resetting connection")
	_ = p.client.Close()
	p.client = nil
}

func (p *GoRedisProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// Serve pings the cache every HealthInterval, reconnecting on failure,
// until ctx is done.
func (p *GoRedisProvider) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.Close()
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *GoRedisProvider) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, p.cfg.OpTimeout)
	defer cancel()

	client, err := p.Acquire(pingCtx)
	if err != nil {
		logging.Warn().Err(err).Msg("[RedisProvider] health check could not connect")
		return
	}
	err = client.Ping(pingCtx)
	if err != nil {
		logging.Warn().Err(err).Msg("[RedisProvider] health check ping failed")
		// a failed ping always warrants a fresh connection
		p.mu.Lock()
		if p.client != nil && RedisClient(p.client) == client {
			_ = p.client.Close()
			p.client = nil
		}
		p.mu.Unlock()
		return
	}
}

func (p *GoRedisProvider) String() string {
	return "redis-provider"
}

// IsConnectionError reports whether err means the connection itself is unusable.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, redis.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "max number of clients reached") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "client is closed")
}

// StaticProvider always hands out the same client.
type StaticProvider struct {
	Client RedisClient
	// AcquireErr, when set, is returned by every Acquire.
	AcquireErr error
}

// NewStaticProvider wraps client.
func NewStaticProvider(client RedisClient) *StaticProvider {
	return &StaticProvider{Client: client}
}

func (p *StaticProvider) Acquire(ctx context.Context) (RedisClient, error) {
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	return p.Client, nil
}

func (p *StaticProvider) Release(client RedisClient, err error) {}

func (p *StaticProvider) Close() error {
	return p.Client.Close()
}
