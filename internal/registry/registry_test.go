package registry_test

import (
	"fmt"
	"testing"

	"github.com/junioryono/graft/internal/registry"
	"github.com/junioryono/graft/internal/typesys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	name string
	seq  int
}

var hooks = registry.Hooks[item]{
	SameImplementation: func(a, b item) bool { return a.name == b.name },
	Inherit: func(prev, next item) item {
		next.seq = prev.seq
		return next
	},
}

func names(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.name
	}
	return out
}

func mustAdd(t *testing.T, tbl registry.Table[item], st *typesys.Type, key any, it item, p registry.Policy) registry.Table[item] {
	t.Helper()
	next, _, err := tbl.Add(st, key, it, p, hooks)
	require.NoError(t, err)
	return next
}

func TestTable_Add(t *testing.T) {
	svc := typesys.New("Service")

	t.Run("append keeps order and old snapshots", func(t *testing.T) {
		t.Parallel()

		empty := registry.NewTable[item]()
		one := mustAdd(t, empty, svc, nil, item{name: "a", seq: 1}, registry.AppendNonKeyed)
		two := mustAdd(t, one, svc, nil, item{name: "b", seq: 2}, registry.AppendNonKeyed)

		assert.Nil(t, empty.Get(svc))
		assert.Equal(t, []string{"a"}, names(one.Get(svc).Defaults()))
		assert.Equal(t, []string{"a", "b"}, names(two.Get(svc).Defaults()))
	})

	t.Run("throw", func(t *testing.T) {
		t.Parallel()

		tbl := mustAdd(t, registry.NewTable[item](), svc, nil, item{name: "a"}, registry.Throw)
		_, changed, err := tbl.Add(svc, nil, item{name: "b"}, registry.Throw, hooks)
		assert.ErrorIs(t, err, registry.ErrDuplicateDefault)
		assert.False(t, changed)
	})

	t.Run("keep", func(t *testing.T) {
		t.Parallel()

		tbl := mustAdd(t, registry.NewTable[item](), svc, nil, item{name: "a"}, registry.AppendNonKeyed)
		next, changed, err := tbl.Add(svc, nil, item{name: "b"}, registry.Keep, hooks)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, []string{"a"}, names(next.Get(svc).Defaults()))
	})

	t.Run("replace inherits position", func(t *testing.T) {
		t.Parallel()

		tbl := mustAdd(t, registry.NewTable[item](), svc, nil, item{name: "a", seq: 1}, registry.AppendNonKeyed)
		tbl = mustAdd(t, tbl, svc, nil, item{name: "b", seq: 2}, registry.AppendNonKeyed)
		tbl = mustAdd(t, tbl, svc, nil, item{name: "c", seq: 9}, registry.Replace)

		defaults := tbl.Get(svc).Defaults()
		require.Len(t, defaults, 1)
		assert.Equal(t, "c", defaults[0].name)
		assert.Equal(t, 1, defaults[0].seq)
	})

	t.Run("append new implementation skips duplicates", func(t *testing.T) {
		t.Parallel()

		tbl := mustAdd(t, registry.NewTable[item](), svc, nil, item{name: "a"}, registry.AppendNewImplementation)
		tbl = mustAdd(t, tbl, svc, nil, item{name: "a"}, registry.AppendNewImplementation)
		tbl = mustAdd(t, tbl, svc, nil, item{name: "b"}, registry.AppendNewImplementation)

		assert.Equal(t, []string{"a", "b"}, names(tbl.Get(svc).Defaults()))
	})

	t.Run("keyed duplicates", func(t *testing.T) {
		t.Parallel()

		tbl := mustAdd(t, registry.NewTable[item](), svc, "k1", item{name: "a", seq: 1}, registry.AppendNonKeyed)
		tbl = mustAdd(t, tbl, svc, "k2", item{name: "b", seq: 2}, registry.AppendNonKeyed)

		_, _, err := tbl.Add(svc, "k1", item{name: "x"}, registry.AppendNonKeyed, hooks)
		assert.ErrorIs(t, err, registry.ErrDuplicateKey)

		replaced := mustAdd(t, tbl, svc, "k1", item{name: "x", seq: 5}, registry.Replace)
		got, ok := replaced.Get(svc).Find("k1")
		require.True(t, ok)
		assert.Equal(t, item{name: "x", seq: 1}, got)

		other, ok := replaced.Get(svc).Find("k2")
		require.True(t, ok)
		assert.Equal(t, "b", other.name)
		assert.Equal(t, "k1", replaced.Get(svc).Keyed()[0].Key)
	})
}

func TestTable_Keyed(t *testing.T) {
	svc := typesys.New("Service")

	type compositeKey struct {
		region string
		shard  int
	}

	t.Run("many keys keep order and lookups", func(t *testing.T) {
		t.Parallel()

		const n = 5000
		tbl := registry.NewTable[item]()
		for i := range n {
			tbl = mustAdd(t, tbl, svc, fmt.Sprintf("k%d", i), item{name: fmt.Sprintf("v%d", i), seq: i}, registry.AppendNonKeyed)
		}

		entry := tbl.Get(svc)
		assert.Equal(t, n, entry.Len())
		got, ok := entry.Find(fmt.Sprintf("k%d", n-1))
		require.True(t, ok)
		assert.Equal(t, n-1, got.seq)

		keyed := entry.Keyed()
		require.Len(t, keyed, n)
		assert.Equal(t, "k0", keyed[0].Key)
		assert.Equal(t, fmt.Sprintf("k%d", n-1), keyed[n-1].Key)
	})

	t.Run("struct and integer keys", func(t *testing.T) {
		t.Parallel()

		tbl := mustAdd(t, registry.NewTable[item](), svc, compositeKey{"eu", 1}, item{name: "eu1"}, registry.AppendNonKeyed)
		tbl = mustAdd(t, tbl, svc, 1, item{name: "one"}, registry.AppendNonKeyed)

		got, ok := tbl.Get(svc).Find(compositeKey{"eu", 1})
		require.True(t, ok)
		assert.Equal(t, "eu1", got.name)

		_, ok = tbl.Get(svc).Find(compositeKey{"eu", 2})
		assert.False(t, ok)
		_, ok = tbl.Get(svc).Find(int64(1))
		assert.False(t, ok, "keys of different types differ")
	})

	t.Run("remove reindexes the remaining keys", func(t *testing.T) {
		t.Parallel()

		tbl := registry.NewTable[item]()
		for _, k := range []string{"a", "b", "c"} {
			tbl = mustAdd(t, tbl, svc, k, item{name: k}, registry.AppendNonKeyed)
		}

		next, removed := tbl.Remove(svc, func(key any, _ item) bool { return key == "a" })
		assert.Equal(t, 1, removed)

		got, ok := next.Get(svc).Find("c")
		require.True(t, ok)
		assert.Equal(t, "c", got.name)
		_, ok = next.Get(svc).Find("a")
		assert.False(t, ok)

		got, ok = tbl.Get(svc).Find("a")
		require.True(t, ok, "earlier tables are unchanged")
		assert.Equal(t, "a", got.name)
	})
}

func TestTable_Remove(t *testing.T) {
	t.Parallel()

	svc := typesys.New("Service")
	tbl := registry.NewTable[item]()
	for _, n := range []string{"r1", "r2", "r3"} {
		tbl = mustAdd(t, tbl, svc, nil, item{name: n}, registry.AppendNonKeyed)
	}

	next, removed := tbl.Remove(svc, func(_ any, it item) bool { return it.name == "r2" })
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"r1", "r3"}, names(next.Get(svc).Defaults()))
	assert.Equal(t, []string{"r1", "r2", "r3"}, names(tbl.Get(svc).Defaults()))

	gone, removed := next.Remove(svc, func(any, item) bool { return true })
	assert.Equal(t, 2, removed)
	assert.Nil(t, gone.Get(svc))
	assert.Equal(t, 0, gone.Len())
}

func TestTable_All(t *testing.T) {
	t.Parallel()

	a, b := typesys.New("A"), typesys.New("B")
	tbl := mustAdd(t, registry.NewTable[item](), a, nil, item{name: "a"}, registry.AppendNonKeyed)
	tbl = mustAdd(t, tbl, b, nil, item{name: "b"}, registry.AppendNonKeyed)

	seen := map[string]int{}
	for st, e := range tbl.All() {
		seen[st.Name()] = e.Len()
	}
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, seen)
}

func BenchmarkTable_AddKeyed(b *testing.B) {
	svc := typesys.New("Service")
	for b.Loop() {
		tbl := registry.NewTable[item]()
		for i := range 1000 {
			tbl, _, _ = tbl.Add(svc, i, item{seq: i}, registry.AppendNonKeyed, hooks)
		}
	}
}

func BenchmarkEntry_Find(b *testing.B) {
	svc := typesys.New("Service")
	tbl := registry.NewTable[item]()
	for i := range 10000 {
		tbl, _, _ = tbl.Add(svc, i, item{seq: i}, registry.AppendNonKeyed, hooks)
	}
	entry := tbl.Get(svc)

	for b.Loop() {
		entry.Find(9999)
	}
}
