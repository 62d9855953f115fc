package redislock

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"
)

// NewPool builds a redigo connection pool (dial-on-demand, idle reaping,
// liveness check on borrow) as a bare *redis.Pool so redislock.Lock can be
// constructed independently of any particular client wrapper.
func NewPool(addr, password string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     20,
		MaxActive:   100,
		IdleTimeout: 10 * time.Second,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			var opts []redis.DialOption
			if password != "" {
				opts = append(opts, redis.DialPassword(password))
			}
			return redis.DialContext(context.Background(), "tcp", addr, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}
}
