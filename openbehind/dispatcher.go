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

// Package openbehind implements a deferred-open state machine that sits in
// front of an fsops.FileSystem backend: Open is acknowledged immediately,
// the real backend open is deferred (or "woken") until some later fop
// genuinely needs it, and a family of suspension queues keep every fop's
// ordering promises intact in the meantime.
package openbehind

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gzhang91/openbehind/fsops"
)

// Dispatcher wraps a backend fsops.FileSystem with open-behind semantics.
// It is itself an fsops.FileSystem, so it can be dropped in front of any
// other implementation transparently.
type Dispatcher struct {
	backend fsops.FileSystem
	anon    fsops.AnonymousOpener // nil if backend doesn't support it

	cfg atomic.Pointer[Options]

	// tableMu guards only map membership of handles and inodes; it is
	// never held while any HCtx or ICtx lock is also held, and it is
	// never nested under either of them.
	tableMu    sync.Mutex
	handles    map[fsops.HandleID]*HCtx
	inodes     map[fsops.InodeID]*ICtx
	nextHandle uint64

	logger *log.Logger
}

// New constructs a Dispatcher in front of backend. If backend also
// implements fsops.AnonymousOpener, anonymous-handle substitution is
// available; otherwise use-anonymous-fd is silently treated as
// unavailable and anonymous-eligible fops always take the real-handle
// path.
func New(backend fsops.FileSystem, opts *Options, debugLog bool) *Dispatcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	d := &Dispatcher{
		backend: backend,
		handles: make(map[fsops.HandleID]*HCtx),
		inodes:  make(map[fsops.InodeID]*ICtx),
		logger:  newDebugLogger(debugLog),
	}
	if a, ok := backend.(fsops.AnonymousOpener); ok {
		d.anon = a
	}
	d.cfg.Store(opts)
	return d
}

// Reconfigure atomically swaps in a new Options snapshot. In-flight calls
// keep using whatever snapshot they already loaded.
func (d *Dispatcher) Reconfigure(opts *Options) {
	d.cfg.Store(opts)
}

func (d *Dispatcher) options() *Options {
	return d.cfg.Load()
}

func (d *Dispatcher) lookupHCtx(handle fsops.HandleID) *HCtx {
	d.tableMu.Lock()
	defer d.tableMu.Unlock()
	return d.handles[handle]
}

func (d *Dispatcher) lookupOrCreateICtx(inode fsops.InodeID) *ICtx {
	d.tableMu.Lock()
	defer d.tableMu.Unlock()
	ic, ok := d.inodes[inode]
	if !ok {
		ic = newICtx(inode)
		d.inodes[inode] = ic
	}
	return ic
}

// removeHCtxFromTables unlinks h from both the handle table and its
// owning ICtx's deferred-handle set. Safe to call more than once. Used
// for teardown (poisoned handle released, or never-launched open
// discarded) — not for the success path, which instead promotes the
// handle into ic.liveHandles via promoteToLiveHandle so it still counts
// as a sibling for later opens on the same inode.
func (d *Dispatcher) removeHCtxFromTables(h *HCtx) {
	d.tableMu.Lock()
	delete(d.handles, h.handle)
	d.tableMu.Unlock()

	ic := h.inode
	ic.mu.lock()
	delete(ic.deferredHandles, h.handle)
	ic.mu.unlock()
}

// promoteToLiveHandle moves h out of the deferred bookkeeping (handle
// table, ic.deferredHandles) and records it in ic.liveHandles: the
// backend open succeeded, so the handle is now an ordinary live handle
// as far as this layer is concerned, but it must still be discoverable
// as a sibling by any later Open on the same inode until it is
// Released.
func (d *Dispatcher) promoteToLiveHandle(h *HCtx) {
	d.tableMu.Lock()
	delete(d.handles, h.handle)
	d.tableMu.Unlock()

	ic := h.inode
	ic.mu.lock()
	delete(ic.deferredHandles, h.handle)
	ic.liveHandles[h.handle] = struct{}{}
	ic.mu.unlock()
}

// Open is the dispatch entry point for every open call. See the package
// doc and the design notes in this tree for the policy it implements.
func (d *Dispatcher) Open(op *fsops.OpenOp) error {
	opts := d.options()

	if !opts.active() || op.Flags.HasTruncate() {
		d.logf("open: forwarding synchronously inode=%d truncate=%v active=%v", op.Inode, op.Flags.HasTruncate(), opts.active())
		return d.backend.Open(op)
	}

	handle := fsops.HandleID(atomic.AddUint64(&d.nextHandle, 1))
	op.Handle = handle

	ic := d.lookupOrCreateICtx(op.Inode)

	ic.mu.lock()
	if ic.unlinked || ic.drainInProgress {
		ic.mu.unlock()
		d.logf("open: inode=%d unlinked=%v draining=%v, forwarding synchronously", op.Inode, ic.unlinked, ic.drainInProgress)
		return d.backend.Open(op)
	}

	// Open-behind applies only to the first handle on an inode; a second
	// concurrent (or later) open serializes behind whatever the inode
	// already has outstanding — a still-deferred handle, or one whose
	// backend open already completed and is simply still live.
	if sibling, ok := ic.anyLiveOrDeferredHandle(); ok {
		ic.mu.unlock()
		d.logf("open: inode=%d already has a live or deferred handle=%d, serializing second open", op.Inode, sibling)
		return d.openSerializedBehindSibling(op.Context, sibling, ic, op)
	}

	frame := &openFrame{inode: op.Inode, loc: op.Loc, flags: op.Flags, xdata: op.Xdata}
	h := newHCtx(handle, ic, frame)
	ic.deferredHandles[handle] = h
	ic.mu.unlock()

	d.tableMu.Lock()
	d.handles[handle] = h
	d.tableMu.Unlock()

	d.logf("open: deferring inode=%d handle=%d lazy=%v", op.Inode, handle, opts.LazyOpen)

	if !opts.LazyOpen {
		// Fire-and-forget: Open has already faked success above and must
		// return now, not block on the real backend round trip.
		go d.wakeHandle(op.Context, handle)
	}
	return nil
}

// openSerializedBehindSibling handles a second (or later) Open arriving
// on an inode that already has a live or deferred sibling handle. It
// waits behind that sibling exactly like any other handle-scope fop
// would (openAndResume already does the right thing whether sibling is
// still deferred or already fully live: a still-deferred sibling is
// woken and this open's backend call runs once it resolves, while an
// already-live sibling makes openAndResume proceed immediately). Once
// the new handle's own backend open has succeeded, it is registered as
// live in its own right, so a third open finds it too.
func (d *Dispatcher) openSerializedBehindSibling(ctx context.Context, sibling fsops.HandleID, ic *ICtx, op *fsops.OpenOp) error {
	err := d.openAndResume(ctx, sibling, func() error { return d.backend.Open(op) })
	if err == nil {
		ic.mu.lock()
		ic.liveHandles[op.Handle] = struct{}{}
		ic.mu.unlock()
	}
	return err
}

// lookupICtx returns the ICtx already tracked for inode, or nil if none
// exists. Unlike lookupOrCreateICtx, it never allocates one.
func (d *Dispatcher) lookupICtx(inode fsops.InodeID) *ICtx {
	d.tableMu.Lock()
	defer d.tableMu.Unlock()
	return d.inodes[inode]
}

// Release frees the deferred-open bookkeeping for a handle, forwarding to
// the backend only when a real backend handle actually exists.
func (d *Dispatcher) Release(op *fsops.ReleaseOp) error {
	h := d.lookupHCtx(op.Handle)
	if h == nil {
		if ic := d.lookupICtx(op.Inode); ic != nil {
			ic.mu.lock()
			delete(ic.liveHandles, op.Handle)
			ic.mu.unlock()
		}
		return d.backend.Release(op)
	}

	h.mu.lock()
	if frame := h.discardFrame(); frame != nil {
		// Never launched: nothing exists at the backend to release.
		zero := h.unpin()
		h.mu.unlock()
		if zero {
			d.removeHCtxFromTables(h)
		}
		return nil
	}
	if h.opened {
		// Must be poisoned; a successful open already removed h from the
		// tables, so lookupHCtx would have returned nil above.
		zero := h.unpin()
		h.mu.unlock()
		if zero {
			d.removeHCtxFromTables(h)
		}
		return nil
	}

	// Open still in flight: record that completeOpen must forward the
	// real release once it finishes successfully.
	h.releasePending = true
	zero := h.unpin()
	h.mu.unlock()
	if zero {
		d.removeHCtxFromTables(h)
	}
	return nil
}

// Forget tears down an inode's context. Its queues must be empty by
// construction: every handle on it has already been released.
func (d *Dispatcher) Forget(op *fsops.ForgetOp) error {
	d.tableMu.Lock()
	ic, ok := d.inodes[op.Inode]
	if ok {
		delete(d.inodes, op.Inode)
	}
	d.tableMu.Unlock()

	if ok {
		ic.mu.lock()
		if len(ic.deferredHandles) != 0 || len(ic.liveHandles) != 0 || !ic.inodeFopQueue.IsEmpty() {
			ic.mu.unlock()
			panic(fmt.Sprintf("openbehind: Forget(inode=%d) with live state: %d deferred handles, %d live handles, inodeFopQueue empty=%v",
				op.Inode, len(ic.deferredHandles), len(ic.liveHandles), ic.inodeFopQueue.IsEmpty()))
		}
		ic.mu.unlock()
	}

	return d.backend.Forget(op)
}

////////////////////////////////////////////////////////////////////////
// Handle-scope fops requiring a real handle
////////////////////////////////////////////////////////////////////////

func (d *Dispatcher) Writev(op *fsops.WritevOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Writev(op) })
}

func (d *Dispatcher) Flush(op *fsops.FlushOp) error {
	if h := d.lookupHCtx(op.Handle); h != nil {
		h.mu.lock()
		stillDeferred := h.frame.Load() != nil
		h.mu.unlock()
		if stillDeferred {
			d.logf("flush: handle=%d never opened, shortcut success", op.Handle)
			return nil
		}
	}
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Flush(op) })
}

func (d *Dispatcher) Fsync(op *fsops.FsyncOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Fsync(op) })
}

func (d *Dispatcher) Ftruncate(op *fsops.FtruncateOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Ftruncate(op) })
}

func (d *Dispatcher) Fsetattr(op *fsops.FsetattrOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Fsetattr(op) })
}

func (d *Dispatcher) Fgetxattr(op *fsops.FgetxattrOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Fgetxattr(op) })
}

func (d *Dispatcher) Fsetxattr(op *fsops.FsetxattrOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Fsetxattr(op) })
}

func (d *Dispatcher) Fremovexattr(op *fsops.FremovexattrOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Fremovexattr(op) })
}

func (d *Dispatcher) Fxattrop(op *fsops.FxattropOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Fxattrop(op) })
}

func (d *Dispatcher) Finodelk(op *fsops.FinodelkOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Finodelk(op) })
}

func (d *Dispatcher) Fentrylk(op *fsops.FentrylkOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Fentrylk(op) })
}

func (d *Dispatcher) Lk(op *fsops.LkOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Lk(op) })
}

func (d *Dispatcher) Fallocate(op *fsops.FallocateOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Fallocate(op) })
}

func (d *Dispatcher) Discard(op *fsops.DiscardOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Discard(op) })
}

func (d *Dispatcher) Zerofill(op *fsops.ZerofillOp) error {
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Zerofill(op) })
}

////////////////////////////////////////////////////////////////////////
// Handle-scope fops eligible for anonymous-handle substitution
////////////////////////////////////////////////////////////////////////

func (d *Dispatcher) Readv(op *fsops.ReadvOp) error {
	opts := d.options()
	if opts.active() && opts.UseAnonymousFD && !opts.ReadAfterOpen && d.anon != nil {
		if h := d.lookupHCtx(op.Handle); h != nil {
			h.mu.lock()
			frame := h.frame.Load()
			h.mu.unlock()
			if frame != nil {
				anonHandle, err := d.anon.OpenAnonymous(op.Inode)
				if err != nil {
					return err
				}
				d.logf("readv: handle=%d servicing via anonymous handle=%d", op.Handle, anonHandle)
				real := op.Handle
				op.Handle = anonHandle
				op.DirectIO = frame.flags.HasDirect()
				err = d.backend.Readv(op)
				op.Handle = real
				return err
			}
		}
	}
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Readv(op) })
}

func (d *Dispatcher) Fstat(op *fsops.FstatOp) error {
	opts := d.options()
	if opts.active() && opts.UseAnonymousFD && d.anon != nil {
		if h := d.lookupHCtx(op.Handle); h != nil {
			h.mu.lock()
			frame := h.frame.Load()
			h.mu.unlock()
			if frame != nil {
				anonHandle, err := d.anon.OpenAnonymous(op.Inode)
				if err != nil {
					return err
				}
				d.logf("fstat: handle=%d servicing via anonymous handle=%d", op.Handle, anonHandle)
				real := op.Handle
				op.Handle = anonHandle
				err = d.backend.Fstat(op)
				op.Handle = real
				return err
			}
		}
	}
	return d.openAndResume(op.Context, op.Handle, func() error { return d.backend.Fstat(op) })
}

////////////////////////////////////////////////////////////////////////
// Inode-scope fops (drain before proceeding)
////////////////////////////////////////////////////////////////////////

func (d *Dispatcher) Unlink(op *fsops.UnlinkOp) error {
	return d.openAllPendingFdsAndResume(op.Context, op.Child, func() error { return d.backend.Unlink(op) })
}

func (d *Dispatcher) Rename(op *fsops.RenameOp) error {
	if op.TargetInode == 0 {
		return d.backend.Rename(op)
	}
	return d.openAllPendingFdsAndResume(op.Context, op.TargetInode, func() error { return d.backend.Rename(op) })
}

func (d *Dispatcher) Setattr(op *fsops.SetattrOp) error {
	return d.openAllPendingFdsAndResume(op.Context, op.Inode, func() error { return d.backend.Setattr(op) })
}

func (d *Dispatcher) Setxattr(op *fsops.SetxattrOp) error {
	if !op.IsInodeScope() {
		return d.backend.Setxattr(op)
	}
	return d.openAllPendingFdsAndResume(op.Context, op.Inode, func() error { return d.backend.Setxattr(op) })
}

var _ fsops.FileSystem = (*Dispatcher)(nil)
