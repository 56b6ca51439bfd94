// Copyright (c) 2025 Dmitry Vats

package ctxutil

import (
	"context"
	"os"
	"sync"
)

// CloseGroup tracks a set of background goroutines that must be stopped
// together. Close cancels the group context and waits for all goroutines to
// return, so cancellation is synchronous with teardown.
type CloseGroup struct {
	closeCtx  context.Context
	causeFunc context.CancelCauseFunc

	wg sync.WaitGroup

	once sync.Once
}

func (cg *CloseGroup) init() {
	cg.closeCtx, cg.causeFunc = context.WithCancelCause(context.Background())
}

func (cg *CloseGroup) Context() context.Context {
	cg.once.Do(cg.init)
	return cg.closeCtx
}

// Go starts f on a new goroutine tied to the group lifetime.
func (cg *CloseGroup) Go(f func(ctx context.Context)) {
	cg.once.Do(cg.init)

	cg.wg.Add(1)
	go func() {
		defer cg.wg.Done()
		f(cg.closeCtx)
	}()
}

// Close cancels the group and blocks till all goroutines have returned.
func (cg *CloseGroup) Close() {
	cg.once.Do(cg.init)
	cg.causeFunc(os.ErrClosed)
	cg.wg.Wait()
}
