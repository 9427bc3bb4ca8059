// Package intern provides a process-wide string interner for symbol
// names. Entries are append-only for the lifetime of the process, so a
// Sym handed out once stays valid until exit.
package intern

import (
	"sync"

	"github.com/omnidex/oci/internal/types"
)

// Interner assigns small opaque keys to repeated identifiers and maps
// them back. Safe for concurrent interning and resolving; the common
// path (resolve, intern of an already-seen string) takes only a read
// lock.
type Interner struct {
	mu      sync.RWMutex
	lookup  map[string]types.Sym
	strings []string
}

// New creates an empty interner. Sym 0 is reserved so that the zero
// value of types.Sym never aliases a real entry.
func New() *Interner {
	return &Interner{
		lookup:  make(map[string]types.Sym, 1024),
		strings: []string{""},
	}
}

// Intern returns the key for s, creating one on first sight.
func (in *Interner) Intern(s string) types.Sym {
	in.mu.RLock()
	if sym, ok := in.lookup[s]; ok {
		in.mu.RUnlock()
		return sym
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if sym, ok := in.lookup[s]; ok {
		return sym
	}
	sym := types.Sym(len(in.strings))
	in.strings = append(in.strings, s)
	in.lookup[s] = sym
	return sym
}

// Get returns the key for s without interning. The boolean is false
// when s has never been interned.
func (in *Interner) Get(s string) (types.Sym, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	sym, ok := in.lookup[s]
	return sym, ok
}

// Resolve maps a key back to its string. Unknown keys resolve to "".
func (in *Interner) Resolve(sym types.Sym) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(sym) >= len(in.strings) {
		return ""
	}
	return in.strings[sym]
}

// Len reports the number of interned strings (excluding the reserved
// zero entry).
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.strings) - 1
}

// Table returns a copy of the intern table indexed by Sym. Used by the
// state snapshot; index 0 is the reserved empty entry.
func (in *Interner) Table() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]string, len(in.strings))
	copy(out, in.strings)
	return out
}

// Restore rebuilds the interner from a snapshot table. The table must
// start with the reserved empty entry. Replaces all current contents.
func (in *Interner) Restore(table []string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(table) == 0 {
		table = []string{""}
	}
	in.strings = make([]string, len(table))
	copy(in.strings, table)
	in.lookup = make(map[string]types.Sym, len(table))
	for i, s := range table {
		if i == 0 {
			continue
		}
		in.lookup[s] = types.Sym(i)
	}
}
