package config

import (
	"os"
	"strconv"
	"time"
)

// WorkerSettings holds the §6 environment block for a rag-worker process.
type WorkerSettings struct {
	WorkerID         string
	WorkerType       string
	PollInterval     time.Duration
	HeartbeatInterval time.Duration
	EmbeddingAPIURL  string
}

// LoadWorkerSettings reads WORKER_ID, WORKER_TYPE, POLL_INTERVAL_MS,
// HEARTBEAT_INTERVAL_MS and EMBEDDING_API_URL, applying the defaults from
// spec.md §4.H (1000ms poll, 5000ms heartbeat) and §6 (WORKER_TYPE=rag).
func LoadWorkerSettings() WorkerSettings {
	s := WorkerSettings{
		WorkerID:        os.Getenv("WORKER_ID"),
		WorkerType:      envOr("WORKER_TYPE", "rag"),
		EmbeddingAPIURL: os.Getenv("EMBEDDING_API_URL"),
	}
	if s.WorkerID == "" {
		s.WorkerID = "worker-" + randSuffix()
	}
	s.PollInterval = envMillis("POLL_INTERVAL_MS", 1000)
	s.HeartbeatInterval = envMillis("HEARTBEAT_INTERVAL_MS", 5000)
	return s
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envMillis(key string, def int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * time.Millisecond
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return time.Duration(def) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// randSuffix produces a short, non-cryptographic process-identifying
// suffix for a default worker id; operators are expected to set WORKER_ID
// explicitly in any multi-worker deployment.
func randSuffix() string {
	return strconv.FormatInt(time.Now().UnixNano()%1e6, 36)
}
