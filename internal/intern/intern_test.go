package intern

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex/oci/internal/types"
)

func TestInternResolve(t *testing.T) {
	in := New()

	a := in.Intern("compute_total")
	b := in.Intern("compute_total")
	c := in.Intern("other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "compute_total", in.Resolve(a))
	assert.Equal(t, "other", in.Resolve(c))
	assert.Equal(t, 2, in.Len())
}

func TestZeroSymIsReserved(t *testing.T) {
	in := New()
	sym := in.Intern("x")
	assert.NotEqual(t, types.SymNone, sym)
	assert.Equal(t, "", in.Resolve(types.SymNone))
}

func TestGetWithoutIntern(t *testing.T) {
	in := New()
	_, ok := in.Get("never_seen")
	assert.False(t, ok)

	sym := in.Intern("seen")
	got, ok := in.Get("seen")
	require.True(t, ok)
	assert.Equal(t, sym, got)
}

func TestUnicodeNames(t *testing.T) {
	in := New()
	sym := in.Intern("compute_总数")
	assert.Equal(t, "compute_总数", in.Resolve(sym))
}

func TestConcurrentIntern(t *testing.T) {
	in := New()
	const goroutines = 16
	const names = 100

	var wg sync.WaitGroup
	results := make([][]types.Sym, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			syms := make([]types.Sym, names)
			for i := 0; i < names; i++ {
				syms[i] = in.Intern(fmt.Sprintf("name_%d", i))
			}
			results[g] = syms
		}(g)
	}
	wg.Wait()

	// Every goroutine must agree on every key.
	for g := 1; g < goroutines; g++ {
		assert.Equal(t, results[0], results[g])
	}
	assert.Equal(t, names, in.Len())
}

func TestRestoreRoundTrip(t *testing.T) {
	in := New()
	a := in.Intern("alpha")
	b := in.Intern("beta")

	table := in.Table()
	fresh := New()
	fresh.Restore(table)

	assert.Equal(t, "alpha", fresh.Resolve(a))
	assert.Equal(t, "beta", fresh.Resolve(b))
	got, ok := fresh.Get("beta")
	require.True(t, ok)
	assert.Equal(t, b, got)
}
