package database

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ConnectRedis connects through Sentinel when sentinel addresses and a
// master name are given, and directly through redisURL otherwise.
func ConnectRedis(ctx context.Context, redisURL string, sentinelAddrs []string, masterName string) (redis.UniversalClient, error) {
	if addrs := splitAddrs(sentinelAddrs); len(addrs) > 0 && masterName != "" {
		return connectSentinel(ctx, addrs, masterName)
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse REDIS_URL")
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 5
	opt.MaxRetries = 3

	client := redis.NewClient(opt)
	if err := ping(ctx, client, 5*time.Second); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connect to redis")
	}
	log.WithField("addr", opt.Addr).Info("redis connected")
	return client, nil
}

func connectSentinel(ctx context.Context, addrs []string, masterName string) (redis.UniversalClient, error) {
	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    masterName,
		SentinelAddrs: addrs,
		PoolSize:      50,
		MinIdleConns:  5,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
	})
	if err := ping(ctx, client, 10*time.Second); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connect to redis sentinel")
	}
	log.WithFields(log.Fields{"master": masterName, "sentinels": addrs}).Info("redis sentinel connected")
	return client, nil
}

func ping(ctx context.Context, client redis.UniversalClient, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

func splitAddrs(in []string) []string {
	var out []string
	for _, a := range in {
		for _, p := range strings.Split(a, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// CloseRedis closes client if it is set.
func CloseRedis(client redis.UniversalClient) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
