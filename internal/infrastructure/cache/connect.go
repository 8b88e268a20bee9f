package cache

import (
	"github.com/redis/go-redis/v9"
)

// Connect builds a client from a redis:// URL. An empty URL means Redis is not
// configured and yields a nil client, which every consumer treats as disabled.
func Connect(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}
