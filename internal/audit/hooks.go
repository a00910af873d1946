package audit

import (
	"context"
	"time"

	"github.com/dsbroker/broker/pkg/log"
)

// queryHooks satisfies sqlhooks.Hooks, timing and logging every statement
// the audit log issues.
type queryHooks struct{}

type beginKey struct{}

func (queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("audit: query %s %q", query, args)
	return context.WithValue(ctx, beginKey{}, time.Now()), nil
}

func (queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey{}).(time.Time); ok {
		log.Debugf("audit: query took %s", time.Since(begin))
	}
	return ctx, nil
}
