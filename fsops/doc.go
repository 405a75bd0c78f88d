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

// Package fsops defines the vocabulary of filesystem operations (fops) that
// flow through an open-behind dispatcher: one struct per op, and a
// FileSystem interface with one method per op.
//
// Each XxxOp struct carries everything needed to process the request and is
// the channel through which the result travels back to the caller: methods
// on FileSystem mutate the op in place and return an error, matching the
// call/return shape used by the backends in this tree rather than the
// callback-style op.Respond(err) convention used further down the stack.
package fsops
