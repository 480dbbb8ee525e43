// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import "context"

// Unavailable is a Queue that always reports ErrUnavailable, for startup
// when Redis could not be reached at all. The HTTP surface's synchronous
// fallback (spec.md §4.I, §8 property 10) makes this a legitimate
// degraded-mode queue rather than a stub.
type Unavailable struct{}

func (Unavailable) Enqueue(context.Context, Job) (string, error)            { return "", ErrUnavailable }
func (Unavailable) Claim(context.Context, Requires, string) (*Job, error)   { return nil, ErrUnavailable }
func (Unavailable) Heartbeat(context.Context, string, string) error        { return ErrUnavailable }
func (Unavailable) UpdateProgress(context.Context, string, int, int) error { return ErrUnavailable }
func (Unavailable) Complete(context.Context, string, string, any) error    { return ErrUnavailable }
func (Unavailable) Fail(context.Context, string, string, string) error     { return ErrUnavailable }
func (Unavailable) Status(context.Context, string) (*Snapshot, error)      { return nil, ErrUnavailable }
func (Unavailable) Stats(context.Context) (map[string]int64, error)        { return nil, ErrUnavailable }
func (Unavailable) Healthy() bool                                          { return false }

var _ Queue = Unavailable{}
