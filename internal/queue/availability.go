// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"errors"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// availability tracks the tri-state unknown|up|down described in spec.md
// §4.A. Transitions are edge-triggered: a state change logs once instead
// of on every operation.
type availability struct {
	mu    sync.RWMutex
	state string // "unknown", "up", "down"
}

func newAvailability() *availability {
	return &availability{state: "unknown"}
}

func (a *availability) get() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *availability) markUp() {
	a.mu.Lock()
	was := a.state
	a.state = "up"
	a.mu.Unlock()
	if was != "up" {
		log.Printf("queue: redis is up (was %s)", was)
	}
}

func (a *availability) markDown(err error) {
	a.mu.Lock()
	was := a.state
	a.state = "down"
	a.mu.Unlock()
	if was != "down" {
		log.Printf("queue: redis is down: %v", err)
	}
}

// isConnectivityError reports whether err should flip availability to
// down. redis.Nil ("key does not exist") is a normal, expected outcome,
// not a sign of an unreachable server.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, redis.Nil)
}
