package domain

import "sync/atomic"

// Counter is a named monotonic counter, reset on a timer by the monitor task.
// It measures channel throughput and is not part of correctness.
type Counter struct {
	Name  string
	count atomic.Int64
}

// NewCounter creates a counter with the given name.
func NewCounter(name string) *Counter {
	return &Counter{Name: name}
}

// Add increments the counter by one.
func (c *Counter) Add() {
	c.count.Add(1)
}

// Reset returns the current count and resets it to zero.
func (c *Counter) Reset() int64 {
	return c.count.Swap(0)
}

// Value returns the current count without resetting.
func (c *Counter) Value() int64 {
	return c.count.Load()
}
