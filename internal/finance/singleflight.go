package finance

import (
	"context"

	"golang.org/x/sync/singleflight"
)

var loadGroup singleflight.Group

// collapse shares one load between concurrent callers of the same key. Each
// caller still honours its own context.
func collapse(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := loadGroup.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
