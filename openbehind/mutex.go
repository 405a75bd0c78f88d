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

import "github.com/jacobsa/syncutil"

// tryMutex layers try-lock semantics on top of syncutil.InvariantMutex,
// which like sync.Mutex offers no TryLock of its own. A buffered channel
// of capacity one acts as the actual mutual-exclusion gate; the underlying
// InvariantMutex is taken and released in lock-step with it purely so its
// invariant check still runs on every transition.
//
// statedump is the only caller that ever uses tryLock; every other path
// uses lock/unlock and is guaranteed to make progress.
type tryMutex struct {
	inner syncutil.InvariantMutex
	gate  chan struct{}
}

func newTryMutex(checkInvariants func()) tryMutex {
	return tryMutex{
		inner: syncutil.NewInvariantMutex(checkInvariants),
		gate:  make(chan struct{}, 1),
	}
}

func (m *tryMutex) lock() {
	m.gate <- struct{}{}
	m.inner.Lock()
}

func (m *tryMutex) unlock() {
	m.inner.Unlock()
	<-m.gate
}

// tryLock attempts to acquire the mutex without blocking. It returns false
// immediately if the mutex is currently held.
func (m *tryMutex) tryLock() bool {
	select {
	case m.gate <- struct{}{}:
	default:
		return false
	}
	m.inner.Lock()
	return true
}
