// Copyright 2026 The OpenBehind Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openbehind

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/gzhang91/openbehind/fsops"
)

// wakeRecord is a harvested open frame together with the HCtx it was taken
// from, ready to be handed to the backend without needing to re-acquire
// any lock to find it again.
type wakeRecord struct {
	hctx  *HCtx
	frame *openFrame
}

// wakeHandle promotes handle's deferred open into a real backend open, if
// one has not already been launched. It is idempotent: every caller but
// the one that wins the frame's compare-and-swap returns immediately
// without effect.
func (d *Dispatcher) wakeHandle(ctx context.Context, handle fsops.HandleID) {
	h := d.lookupHCtx(handle)
	if h == nil {
		return
	}
	if frame := h.grabFrame(); frame != nil {
		d.issueOpen(ctx, wakeRecord{hctx: h, frame: frame})
	}
}

// wakeSet issues a backend open for every already-harvested record
// concurrently. Each open's completion is handled independently; wakeSet
// does not wait for the slower ones before the faster ones' queues are
// released.
func (d *Dispatcher) wakeSet(ctx context.Context, records []wakeRecord) {
	if len(records) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			d.issueOpen(gctx, rec)
			return nil
		})
	}
	// Errors are delivered per-handle via completion handling, not
	// through the errgroup; Wait only bounds the fan-out goroutines.
	_ = g.Wait()
}

// issueOpen performs the backend open for rec and runs the completion
// handling. It is the only place a backend Open call is ever made from
// this layer's deferred-open machinery.
func (d *Dispatcher) issueOpen(ctx context.Context, rec wakeRecord) {
	op := &fsops.OpenOp{
		Context: ctx,
		Inode:   rec.frame.inode,
		Loc:     rec.frame.loc,
		Flags:   rec.frame.flags,
		Xdata:   rec.frame.xdata,
		Handle:  rec.hctx.handle,
	}
	d.logf("wake: issuing backend open handle=%d inode=%d", rec.hctx.handle, rec.frame.inode)
	err := d.backend.Open(op)
	d.completeOpen(rec.hctx, err)
}

// completeOpen runs the wake completion protocol: mark the handle opened,
// finalize any inode drain it participated in, release every fop queued
// behind it, and tear down the HCtx once nothing references it any more.
//
// On success the HCtx is removed from the handle table immediately and
// the handle is recorded in its inode's liveHandles, so it remains
// discoverable as a sibling by a later Open until it is Released; it is
// otherwise ordinary from that point on. On failure it is kept in the
// table, poisoned with err, until an explicit Release tears it down -
// that is what makes the poisoning visible to every fop arriving in the
// meantime.
func (d *Dispatcher) completeOpen(h *HCtx, err error) {
	h.mu.lock()
	h.opened = true
	h.err = err
	drainWaiter := h.inodeDrainWaiter
	released := h.fopQueue.drain()
	releasePending := h.releasePending
	h.mu.unlock()

	if err == nil {
		if releasePending {
			// A Release already arrived for this handle while its open
			// was in flight: it never becomes a live handle as far as
			// sibling detection is concerned, since it is already gone
			// again by the time anyone could observe it.
			d.removeHCtxFromTables(h)
			d.logf("wake: forwarding deferred release for handle=%d", h.handle)
			_ = d.backend.Release(&fsops.ReleaseOp{
				Context: context.Background(),
				Inode:   h.inode.inode,
				Handle:  h.handle,
			})
		} else {
			d.promoteToLiveHandle(h)
		}
	}

	var drained bool
	var inodeReleased []fopStub
	if drainWaiter {
		ic := h.inode
		ic.mu.lock()
		drained, inodeReleased = ic.finalize(err)
		ic.mu.unlock()
	}

	releaseStubs(released, err)

	if drained {
		ic := h.inode
		ic.mu.lock()
		drainErr := ic.drainStatus
		ic.mu.unlock()
		releaseStubs(inodeReleased, drainErr)
	}

	h.mu.lock()
	zero := h.unpin()
	h.mu.unlock()
	if err != nil && zero {
		d.removeHCtxFromTables(h)
	}
}

// releaseStubs resumes or fails every stub in FIFO order. Resumption runs
// the continuations one after another on a single goroutine of its own:
// each stub's continuation starts only after the previous one has
// returned, so the queued fops reach the backend in enqueue order.
func releaseStubs(stubs []fopStub, err error) {
	if err != nil {
		for _, s := range stubs {
			s.done <- err
		}
		return
	}
	go func() {
		for _, s := range stubs {
			s.done <- s.proceed()
		}
	}()
}

// openAndResume is the suspension point used by every handle-scope fop. If
// handle has no HCtx, it is an ordinary handle and proceed runs
// immediately. Otherwise the fop is queued behind the handle's deferred
// open (triggering it if necessary) and this call blocks until released.
func (d *Dispatcher) openAndResume(ctx context.Context, handle fsops.HandleID, proceed func() error) error {
	h := d.lookupHCtx(handle)
	if h == nil {
		return proceed()
	}

	h.mu.lock()
	if h.err != nil {
		err := h.err
		h.mu.unlock()
		return err
	}
	if h.opened {
		h.mu.unlock()
		return proceed()
	}

	done := make(chan error, 1)
	h.fopQueue.Push(fopStub{proceed: proceed, done: done})
	h.mu.unlock()

	d.wakeHandle(ctx, handle)
	return <-done
}

// openAllPendingFdsAndResume is the suspension point used by every
// inode-scope fop. It marks the inode unlinked (inode-scope fops are, by
// construction, exactly the ones after which no further deferral should
// occur), drains every outstanding deferred open, and either runs proceed
// immediately (nothing to drain) or blocks until the drain completes.
func (d *Dispatcher) openAllPendingFdsAndResume(ctx context.Context, inode fsops.InodeID, proceed func() error) error {
	ic := d.lookupOrCreateICtx(inode)

	ic.mu.lock()
	ic.unlinked = true

	if ic.drainInProgress {
		done := make(chan error, 1)
		ic.inodeFopQueue.Push(fopStub{proceed: proceed, done: done})
		ic.mu.unlock()
		return <-done
	}

	records := ic.armDrain()
	if !ic.drainInProgress {
		ic.mu.unlock()
		return proceed()
	}

	done := make(chan error, 1)
	ic.inodeFopQueue.Push(fopStub{proceed: proceed, done: done})
	ic.mu.unlock()

	d.wakeSet(ctx, records)
	return <-done
}
