// Package cache provides configuration options for the redis query
// cache.
package cache

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

// Options defines configuration options for the query cache.
type Options struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	TTL       time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `json:"key-prefix" mapstructure:"key-prefix"`

	Host        string        `json:"host" mapstructure:"host"`
	Port        int           `json:"port" mapstructure:"port"`
	Password    string        `json:"-" mapstructure:"password"`
	Database    int           `json:"database" mapstructure:"database"`
	PoolSize    int           `json:"pool-size" mapstructure:"pool-size"`
	DialTimeout time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Enabled:     false,
		TTL:         1 * time.Hour,
		KeyPrefix:   "lumen:query:",
		Host:        "127.0.0.1",
		Port:        6379,
		Database:    0,
		PoolSize:    10,
		DialTimeout: 5 * time.Second,
	}
}

// Validate checks if the options are valid. An empty password falls
// back to the REDIS_PASSWORD environment variable.
func (o *Options) Validate() error {
	if o.Password == "" {
		o.Password = os.Getenv("REDIS_PASSWORD")
	}
	if o.Enabled && o.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive when the cache is enabled, got %s", o.TTL)
	}
	return nil
}

// NewClient creates a redis client from the options.
func (o *Options) NewClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        net.JoinHostPort(o.Host, strconv.Itoa(o.Port)),
		Password:    o.Password,
		DB:          o.Database,
		PoolSize:    o.PoolSize,
		DialTimeout: o.DialTimeout,
	})
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "cache.enabled", o.Enabled, "Enable the redis query cache")
	fs.DurationVar(&o.TTL, "cache.ttl", o.TTL, "Cached query result TTL")
	fs.StringVar(&o.KeyPrefix, "cache.key-prefix", o.KeyPrefix, "Cache key prefix")
	fs.StringVar(&o.Host, "cache.host", o.Host, "Redis host")
	fs.IntVar(&o.Port, "cache.port", o.Port, "Redis port")
	fs.StringVar(&o.Password, "cache.password", o.Password, "Redis password (prefer the REDIS_PASSWORD env var)")
	fs.IntVar(&o.Database, "cache.database", o.Database, "Redis database")
	fs.IntVar(&o.PoolSize, "cache.pool-size", o.PoolSize, "Redis connection pool size")
	fs.DurationVar(&o.DialTimeout, "cache.dial-timeout", o.DialTimeout, "Redis dial timeout")
}
