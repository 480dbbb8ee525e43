package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// redisAddr resolves the Redis address from the environment. REDIS_ADDR
// takes precedence (host:port in one value); otherwise REDIS_HOST/REDIS_PORT
// are combined, per the spec's environment block.
func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", host, port)
}

// NewRedisClient creates a new Redis client from environment variables.
// Reads REDIS_ADDR or REDIS_HOST/REDIS_PORT, REDIS_DB (default: 0), and
// REDIS_PASSWORD (optional). Returns a ready-to-use Redis client or an error.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	addr := redisAddr()

	dbStr := os.Getenv("REDIS_DB")
	if dbStr == "" {
		dbStr = "0"
	}
	db, err := strconv.Atoi(dbStr)
	if err != nil {
		log.Printf("NewRedisClient: invalid REDIS_DB value '%s', using default 0", dbStr)
		db = 0
	}

	password := os.Getenv("REDIS_PASSWORD")

	log.Printf("NewRedisClient: addr=%s db=%d passwordSet=%v", addr, db, password != "")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("NewRedisClient: failed to ping Redis: %v", err)
		return nil, err
	}

	log.Printf("NewRedisClient: successfully connected to Redis")
	return client, nil
}

