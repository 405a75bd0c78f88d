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

import "github.com/gzhang91/openbehind/fsops"

// ICtx is the per-inode context aggregating every HCtx with a deferred
// open outstanding on that inode, plus the bookkeeping for inode-scope
// drains.
//
// GUARDED_BY(mu) unless noted otherwise.
type ICtx struct {
	mu tryMutex

	inode fsops.InodeID

	deferredHandles map[fsops.HandleID]*HCtx
	inodeFopQueue   queue[fopStub]

	// liveHandles is the live-handle hint, maintained by this layer itself
	// rather than reported by the backend: every handle
	// on this inode whose backend open has already completed
	// successfully and which has not yet been Released. A deferred
	// handle is promoted into this set (and dropped from
	// deferredHandles) the moment its open succeeds, so that a second
	// Open arriving after that point still finds it and serializes
	// through it instead of starting an independent, redundant backend
	// open against an inode that already has a live handle.
	liveHandles map[fsops.HandleID]struct{}

	drainInProgress bool
	drainCount      int
	drainStatus     error

	// unlinked is sticky: once true, no new deferred opens are created on
	// this inode for the rest of its life.
	unlinked bool
}

func newICtx(inode fsops.InodeID) *ICtx {
	ic := &ICtx{
		inode:           inode,
		deferredHandles: make(map[fsops.HandleID]*HCtx),
		liveHandles:     make(map[fsops.HandleID]struct{}),
	}
	ic.mu = newTryMutex(ic.checkInvariants)
	return ic
}

// anyLiveOrDeferredHandle reports a handle already associated with this
// inode, if any — whether it still has a backend open in flight
// (deferredHandles) or has already completed one and is simply still
// open (liveHandles). Open-behind only ever installs a fresh HCtx when
// this returns false; any other concurrent or later open on the inode
// serializes behind whatever this returns.
//
// LOCKS_REQUIRED(ic.mu)
func (ic *ICtx) anyLiveOrDeferredHandle() (fsops.HandleID, bool) {
	for h := range ic.deferredHandles {
		return h, true
	}
	for h := range ic.liveHandles {
		return h, true
	}
	return 0, false
}

// checkInvariants panics if ICtx state is inconsistent. Wired as the
// invariant check for mu.
//
// LOCKS_REQUIRED(mu)
func (ic *ICtx) checkInvariants() {
	if ic.drainInProgress && ic.drainCount < 0 {
		panic("ICtx: negative drainCount while draining")
	}
	if !ic.drainInProgress && ic.drainCount != 0 {
		panic("ICtx: stale drainCount outside a drain")
	}
	if !ic.drainInProgress && !ic.inodeFopQueue.IsEmpty() {
		panic("ICtx: inodeFopQueue non-empty with no drain in progress")
	}
}

// armDrain walks deferredHandles and, for each HCtx not yet opened,
// harvests its frame (if still attached) into a wake record and marks it
// as a drain participant. It returns the harvested records; the caller is
// responsible for actually issuing their opens once ic.mu is released.
//
// The caller must already hold ic.mu. drainStatus is reset to nil here:
// every drain starts with a clean aggregate result, independent of
// whatever a previous, already-finalized drain concluded.
//
// LOCKS_REQUIRED(ic.mu)
func (ic *ICtx) armDrain() []wakeRecord {
	ic.drainStatus = nil

	var records []wakeRecord
	for _, h := range ic.deferredHandles {
		h.mu.lock()
		if h.opened {
			h.mu.unlock()
			continue
		}

		h.inodeDrainWaiter = true
		ic.drainCount++

		if frame := h.grabFrame(); frame != nil {
			records = append(records, wakeRecord{hctx: h, frame: frame})
		}
		h.mu.unlock()
	}

	if ic.drainCount > 0 {
		ic.drainInProgress = true
	}
	return records
}

// finalize accounts for one drain participant completing. It merges err
// into drainStatus (first error wins) and, once every participant has
// reported in, clears drainInProgress and returns the inode-scope fops
// that were waiting on the drain, for the caller to release.
//
// LOCKS_REQUIRED(ic.mu)
func (ic *ICtx) finalize(err error) (drained bool, released []fopStub) {
	ic.drainCount--
	if err != nil && ic.drainStatus == nil {
		ic.drainStatus = err
	}
	if ic.drainCount > 0 {
		return false, nil
	}

	ic.drainInProgress = false
	return true, ic.inodeFopQueue.drain()
}
