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
	"sync/atomic"

	"github.com/gzhang91/openbehind/fsops"
)

// openFrame is the captured call frame for a deferred open: everything
// needed to actually issue it against the backend, later, from whichever
// goroutine wins the race to grab it.
type openFrame struct {
	inode fsops.InodeID
	loc   string
	flags fsops.OpenFlags
	xdata []byte
}

// fopStub is a suspended fop, reified so it can sit in a FIFO queue and be
// released later by a different goroutine than the one that enqueued it.
// proceed is called by the releasing goroutine to forward the fop along
// the ordinary (non-suspended) path, straight to the backend; its result
// is delivered to the original caller's blocked goroutine over done.
type fopStub struct {
	proceed func() error
	done    chan<- error
}

// HCtx is the per-handle context for a handle whose open has been (or is
// being) deferred. Its presence in the handle table is itself the flag
// that the handle is mid-open-behind; a handle with no HCtx entry is
// ordinary and every fop against it forwards straight through.
//
// GUARDED_BY(mu) unless noted otherwise.
type HCtx struct {
	mu tryMutex

	handle fsops.HandleID
	inode  *ICtx

	// frame is non-nil exactly when no backend open has yet been launched
	// for this handle. It is cleared by whichever caller wins the
	// compare-and-swap race to grab it, which is the single commit point
	// for "this handle's real open has now started."
	frame atomic.Pointer[openFrame]

	opened           bool
	err              error
	inodeDrainWaiter bool
	fopQueue         queue[fopStub]

	// releasePending records that Release arrived while the backend open
	// was still in flight; completeOpen forwards the real backend release
	// once the open finishes successfully.
	releasePending bool

	// pins counts outstanding reasons the handle must not be freed: one
	// while this HCtx exists unopened, plus one more while a backend open
	// launched from it is in flight. It is atomic rather than
	// mu-guarded because grabFrame (which adds the second reason) is
	// itself lock-free, called from goroutines that do not hold mu.
	pins atomic.Int32
}

func newHCtx(handle fsops.HandleID, inode *ICtx, frame *openFrame) *HCtx {
	h := &HCtx{handle: handle, inode: inode}
	h.mu = newTryMutex(h.checkInvariants)
	h.frame.Store(frame)
	h.pins.Store(1)
	return h
}

// checkInvariants panics if HCtx state is inconsistent. It is wired as the
// invariant check for mu and so runs on every lock/unlock transition.
//
// LOCKS_REQUIRED(mu)
func (h *HCtx) checkInvariants() {
	if h.opened && h.frame.Load() != nil {
		panic("HCtx: frame still attached after opened")
	}
	if h.pins.Load() < 0 {
		panic("HCtx: negative pin count")
	}
	if h.pins.Load() == 0 && !h.fopQueue.IsEmpty() {
		panic("HCtx: fops still queued on an unreferenced handle")
	}
}

// grabFrame atomically takes ownership of the open frame, if one is still
// attached, pinning the handle for the duration of the backend open this
// unlocks the right to issue. Only the caller that receives a non-nil
// result may issue the backend open; every other caller must treat this
// as a no-op.
func (h *HCtx) grabFrame() *openFrame {
	for {
		f := h.frame.Load()
		if f == nil {
			return nil
		}
		if h.frame.CompareAndSwap(f, nil) {
			h.pins.Add(1)
			return f
		}
	}
}

// discardFrame atomically clears the open frame without pinning the
// handle, for the caller that is throwing the deferred open away (a
// Release that arrives before anyone woke it) rather than issuing it.
// Returns the discarded frame, or nil if one was not still attached.
func (h *HCtx) discardFrame() *openFrame {
	for {
		f := h.frame.Load()
		if f == nil {
			return nil
		}
		if h.frame.CompareAndSwap(f, nil) {
			return f
		}
	}
}

// unpin releases one outstanding reason to keep the handle alive,
// reporting whether it is now unreferenced.
func (h *HCtx) unpin() bool {
	return h.pins.Add(-1) == 0
}
