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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFO(t *testing.T) {
	var q queue[int]
	assert.True(t, q.IsEmpty())

	q.Push(1)
	q.Push(2)
	q.Push(3)
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, 1, q.Pop())
	assert.Equal(t, 2, q.Pop())
	assert.Equal(t, 3, q.Pop())
	assert.True(t, q.IsEmpty())
}

func TestQueueDrain(t *testing.T) {
	var q queue[string]
	q.Push("a")
	q.Push("b")

	out := q.drain()
	assert.Equal(t, []string{"a", "b"}, out)
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, len(q.drain()))
}
