package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}

// Scope indicates which dimension a scan limit is counted against.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeSubscription
	ScopeClient
)

// Decision describes the resolved limit and the bucket it applies to.
type Decision struct {
	Limit          int
	Scope          Scope
	SubscriptionID uint64
	Client         string
}
