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
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options is the immutable snapshot of every runtime-reconfigurable knob
// this layer exposes. A Dispatcher never mutates an Options value in
// place; Reconfigure swaps in a whole new one.
type Options struct {
	// OpenBehind is the master switch. With it off, Open always forwards
	// synchronously and no other option has any effect.
	OpenBehind bool

	// UseAnonymousFD allows Readv/Fstat to be serviced through a
	// transient, backend-resolved handle instead of waiting on the real
	// deferred open.
	UseAnonymousFD bool

	// LazyOpen, when true, does not eagerly wake a deferred open right
	// after faking its success; the open only happens once some fop
	// actually needs it.
	LazyOpen bool

	// ReadAfterOpen forces Readv to wait for a real backend open rather
	// than use an anonymous handle, regardless of UseAnonymousFD.
	ReadAfterOpen bool

	// PassThrough disables open-behind entirely, as if OpenBehind were
	// false, regardless of its value. It exists as a separate knob so a
	// caller can flip it independently without losing the OpenBehind
	// setting underneath.
	PassThrough bool
}

// DefaultOptions matches the defaults a freshly started translator ships
// with.
func DefaultOptions() *Options {
	return &Options{
		OpenBehind:     false,
		UseAnonymousFD: false,
		LazyOpen:       true,
		ReadAfterOpen:  true,
		PassThrough:    false,
	}
}

// active reports whether the deferred-open machinery should be consulted
// at all for this call.
func (o *Options) active() bool {
	return o.OpenBehind && !o.PassThrough
}

// BindFlags registers every Options field onto flagSet and binds it
// through v, so that flag values, config-file values and defaults all
// resolve through the same viper.Get call sites.
func BindFlags(flagSet *pflag.FlagSet, v *viper.Viper) error {
	flagSet.Bool("open-behind", false, "acknowledge opens before the backend open completes")
	flagSet.Bool("use-anonymous-fd", false, "service readv/fstat through an anonymous handle while a deferred open is pending")
	flagSet.Bool("lazy-open", true, "do not eagerly wake a deferred open; wait for a fop that needs it")
	flagSet.Bool("read-after-open", true, "force readv to wait for the real backend open")
	flagSet.Bool("pass-through", false, "disable open-behind entirely regardless of open-behind")

	for _, name := range []string{
		"open-behind", "use-anonymous-fd", "lazy-open", "read-after-open", "pass-through",
	} {
		if err := v.BindPFlag(name, flagSet.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// OptionsFromViper reads the five bound keys out of v into a fresh
// Options snapshot.
func OptionsFromViper(v *viper.Viper) *Options {
	return &Options{
		OpenBehind:     v.GetBool("open-behind"),
		UseAnonymousFD: v.GetBool("use-anonymous-fd"),
		LazyOpen:       v.GetBool("lazy-open"),
		ReadAfterOpen:  v.GetBool("read-after-open"),
		PassThrough:    v.GetBool("pass-through"),
	}
}
