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

package openbehind_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhang91/openbehind/fsops"
	"github.com/gzhang91/openbehind/membackend"
	"github.com/gzhang91/openbehind/openbehind"
)

func newDispatcher(backend *membackend.Backend, mutate func(*openbehind.Options)) *openbehind.Dispatcher {
	opts := openbehind.DefaultOptions()
	opts.OpenBehind = true
	if mutate != nil {
		mutate(opts)
	}
	return openbehind.New(backend, opts, false)
}

func TestFakeSuccessThenRealFailure(t *testing.T) {
	backend := membackend.New()
	inode := fsops.InodeID(7)
	backend.FailOpen(inode, errors.New("backend: no such file"))

	d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = false })

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/missing"}
	require.NoError(t, d.Open(op), "the open itself must fake success")

	require.Eventually(t, func() bool {
		return backend.OpenCount(inode) == 1
	}, time.Second, time.Millisecond, "backend open should eventually be attempted")

	err := d.Fstat(&fsops.FstatOp{Context: context.Background(), Inode: inode, Handle: op.Handle})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")

	// The poison persists.
	err = d.Fstat(&fsops.FstatOp{Context: context.Background(), Inode: inode, Handle: op.Handle})
	require.Error(t, err)
}

func TestAtMostOneBackendOpenPerHandle(t *testing.T) {
	backend := membackend.New()
	backend.SetOpenDelay(30 * time.Millisecond)
	inode := fsops.InodeID(11)

	d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = true })

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Fstat(&fsops.FstatOp{Context: context.Background(), Inode: inode, Handle: op.Handle})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, backend.OpenCount(inode))
}

// writevRecorder wraps a membackend.Backend and records the offset of every
// Writev that reaches it, in arrival order.
type writevRecorder struct {
	*membackend.Backend
	mu      sync.Mutex
	offsets []int64
}

func (r *writevRecorder) Writev(op *fsops.WritevOp) error {
	r.mu.Lock()
	r.offsets = append(r.offsets, op.Offset)
	r.mu.Unlock()
	return r.Backend.Writev(op)
}

func TestFIFOPerHandle(t *testing.T) {
	backend := membackend.New()
	backend.SetOpenDelay(50 * time.Millisecond)
	inode := fsops.InodeID(12)

	rec := &writevRecorder{Backend: backend}
	opts := openbehind.DefaultOptions()
	opts.OpenBehind = true
	opts.LazyOpen = true
	d := openbehind.New(rec, opts, false)

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op))

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Stagger enqueue order deterministically.
			time.Sleep(time.Duration(i) * time.Millisecond)
			_ = d.Writev(&fsops.WritevOp{Context: context.Background(), Inode: inode, Handle: op.Handle, Offset: int64(i), Data: []byte{byte(i)}})
		}()
	}
	wg.Wait()

	// Every fop queued behind the deferred open reaches the backend exactly
	// once, in the order it was enqueued.
	want := make([]int64, n)
	for i := range want {
		want[i] = int64(i)
	}
	assert.Equal(t, want, rec.offsets)
}

func TestDrainCorrectness(t *testing.T) {
	backend := membackend.New()
	backend.SetOpenDelay(30 * time.Millisecond)
	inode := fsops.InodeID(13)

	d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = true })

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op))

	start := time.Now()
	err := d.Unlink(&fsops.UnlinkOp{Context: context.Background(), Parent: 1, Name: "f", Child: inode})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond, "unlink must wait for the deferred open to drain")
	assert.Equal(t, 1, backend.OpenCount(inode))
}

func TestDrainErrorResetPolicy(t *testing.T) {
	backend := membackend.New()
	inode := fsops.InodeID(14)
	backend.FailOpen(inode, errors.New("boom"))

	d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = true })

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op))
	err := d.Unlink(&fsops.UnlinkOp{Context: context.Background(), Parent: 1, Name: "f", Child: inode})
	require.Error(t, err, "first drain is poisoned by the failing open")

	// A later, independent drain on the same inode must not inherit the
	// previous drain's failure.
	backend.ClearFailOpen(inode)
	err = d.Setattr(&fsops.SetattrOp{Context: context.Background(), Inode: inode})
	require.NoError(t, err, "a fresh drain must start with a clean aggregate status")
}

func TestUnlinkPoisonsFurtherDeferral(t *testing.T) {
	backend := membackend.New()
	inode := fsops.InodeID(15)

	d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = true })

	require.NoError(t, d.Unlink(&fsops.UnlinkOp{Context: context.Background(), Parent: 1, Name: "f", Child: inode}))

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op))

	// Forwarded synchronously: the backend must have already seen it.
	assert.Equal(t, 1, backend.OpenCount(inode))
}

func TestSecondHandleSerialization(t *testing.T) {
	backend := membackend.New()
	backend.SetOpenDelay(30 * time.Millisecond)
	inode := fsops.InodeID(16)

	d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = false })

	op1 := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op1))

	start := time.Now()
	op2 := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op2))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond, "second open should wait behind the first's backend open")
	assert.Equal(t, 2, backend.OpenCount(inode))
}

func TestOpenFindsAlreadyLiveSibling(t *testing.T) {
	backend := membackend.New()
	inode := fsops.InodeID(24)

	d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = false })

	op1 := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op1))

	require.Eventually(t, func() bool {
		return backend.OpenCount(inode) == 1
	}, time.Second, time.Millisecond, "first handle's backend open should complete")

	// op1's handle is no longer deferred, only live. A second Open must
	// still recognize it as a sibling via the live-handle hint rather
	// than independently starting its own deferred open against an
	// inode that already has a live handle.
	op2 := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op2))
	assert.Equal(t, 2, backend.OpenCount(inode), "second open must forward synchronously behind the live sibling")

	require.NoError(t, d.Release(&fsops.ReleaseOp{Context: context.Background(), Inode: inode, Handle: op1.Handle}))
	require.NoError(t, d.Release(&fsops.ReleaseOp{Context: context.Background(), Inode: inode, Handle: op2.Handle}))
}

func TestAnonymousHandleGating(t *testing.T) {
	backend := membackend.New()
	backend.SetOpenDelay(50 * time.Millisecond)
	inode := fsops.InodeID(17)

	d := newDispatcher(backend, func(o *openbehind.Options) {
		o.LazyOpen = true
		o.UseAnonymousFD = true
		o.ReadAfterOpen = false
	})

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op))

	start := time.Now()
	err := d.Readv(&fsops.ReadvOp{Context: context.Background(), Inode: inode, Handle: op.Handle, Size: 4})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 25*time.Millisecond, "anonymous-handle read must not wait on the deferred open")
	assert.Equal(t, 0, backend.OpenCount(inode), "anonymous read must not itself trigger the wake")
}

func TestReadAfterOpenForcesWait(t *testing.T) {
	backend := membackend.New()
	backend.SetOpenDelay(30 * time.Millisecond)
	inode := fsops.InodeID(18)

	d := newDispatcher(backend, func(o *openbehind.Options) {
		o.LazyOpen = true
		o.UseAnonymousFD = true
		o.ReadAfterOpen = true
	})

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op))

	start := time.Now()
	err := d.Readv(&fsops.ReadvOp{Context: context.Background(), Inode: inode, Handle: op.Handle, Size: 4})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
	assert.Equal(t, 1, backend.OpenCount(inode))
}

func TestLazyOpenVsEager(t *testing.T) {
	t.Run("lazy", func(t *testing.T) {
		backend := membackend.New()
		inode := fsops.InodeID(19)
		d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = true })

		op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
		require.NoError(t, d.Open(op))
		require.NoError(t, d.Release(&fsops.ReleaseOp{Context: context.Background(), Inode: inode, Handle: op.Handle}))

		assert.Equal(t, 0, backend.OpenCount(inode))
	})

	t.Run("eager", func(t *testing.T) {
		backend := membackend.New()
		inode := fsops.InodeID(20)
		d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = false })

		op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
		require.NoError(t, d.Open(op))

		require.Eventually(t, func() bool {
			return backend.OpenCount(inode) == 1
		}, time.Second, time.Millisecond)

		require.NoError(t, d.Release(&fsops.ReleaseOp{Context: context.Background(), Inode: inode, Handle: op.Handle}))
		assert.Equal(t, 1, backend.OpenCount(inode))
	})
}

func TestTruncateBypass(t *testing.T) {
	backend := membackend.New()
	inode := fsops.InodeID(21)
	d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = true })

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f", Flags: fsops.OpenTruncate}
	require.NoError(t, d.Open(op))

	assert.Equal(t, 1, backend.OpenCount(inode), "a truncating open is never deferred")
}

func TestFlushShortcut(t *testing.T) {
	backend := membackend.New()
	inode := fsops.InodeID(22)
	d := newDispatcher(backend, func(o *openbehind.Options) { o.LazyOpen = true })

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op))

	require.NoError(t, d.Flush(&fsops.FlushOp{Context: context.Background(), Inode: inode, Handle: op.Handle}))
	assert.Equal(t, 0, backend.OpenCount(inode), "flush before any real open must not trigger one")
}

func TestPassThroughDisablesOpenBehind(t *testing.T) {
	backend := membackend.New()
	inode := fsops.InodeID(23)
	d := newDispatcher(backend, func(o *openbehind.Options) {
		o.LazyOpen = true
		o.PassThrough = true
	})

	op := &fsops.OpenOp{Context: context.Background(), Inode: inode, Loc: "/f"}
	require.NoError(t, d.Open(op))
	assert.Equal(t, 1, backend.OpenCount(inode), "pass-through must forward synchronously regardless of open-behind")
}
