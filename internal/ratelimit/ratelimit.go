// Package ratelimit enforces fixed-window per-principal quotas on the
// write-heavy operations.
package ratelimit

import (
	"context"
	"time"
)

// Action names a rate-limited operation.
type Action string

const (
	ActionProcessVideo Action = "process_video"
	ActionCreateLink   Action = "create_link"
	ActionDeleteLink   Action = "delete_link"
)

// Limit pairs a request budget with its window.
type Limit struct {
	Max    int
	Window time.Duration
}

// Limits holds the per-action budgets. Unknown actions are unlimited.
var Limits = map[Action]Limit{
	ActionProcessVideo: {Max: 10, Window: 10 * time.Minute},
	ActionCreateLink:   {Max: 20, Window: time.Hour},
	ActionDeleteLink:   {Max: 30, Window: time.Hour},
}

// Result reports the outcome of a quota check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter answers whether principal may perform action right now. A
// permitted call consumes one unit from the current window.
type Limiter interface {
	CheckAndConsume(ctx context.Context, principal string, action Action, limit Limit) (Result, error)
}

// Check applies the predefined budget for action. Actions without a
// budget are always allowed.
func Check(ctx context.Context, l Limiter, principal string, action Action) (Result, error) {
	limit, ok := Limits[action]
	if !ok {
		return Result{Allowed: true, Remaining: -1}, nil
	}
	return l.CheckAndConsume(ctx, principal, action, limit)
}
