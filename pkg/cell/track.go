package cell

import (
	"sort"
	"sync"

	"github.com/petermattis/goid"
)

// activeReads maps goroutine ID -> *readSet for goroutines currently inside
// a Track call. Reads are recorded per goroutine so component bodies need no
// explicit tracking handle.
var activeReads sync.Map

type readSet struct {
	names map[string]struct{}
	prev  *readSet
}

func record(name string) {
	if rs, ok := activeReads.Load(goid.Get()); ok {
		rs.(*readSet).names[name] = struct{}{}
	}
}

// Track runs fn with read tracking enabled on the calling goroutine and
// returns the sorted set of cell names read through any Store. Track nests:
// an inner Track shadows the outer one for fn's duration.
func Track(fn func()) []string {
	gid := goid.Get()

	rs := &readSet{names: make(map[string]struct{})}
	if prev, ok := activeReads.Load(gid); ok {
		rs.prev = prev.(*readSet)
	}
	activeReads.Store(gid, rs)
	defer func() {
		if rs.prev != nil {
			activeReads.Store(gid, rs.prev)
		} else {
			activeReads.Delete(gid)
		}
	}()

	fn()

	names := make([]string, 0, len(rs.names))
	for name := range rs.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Untracked runs fn with tracking suspended on the calling goroutine, so
// reads inside fn are not recorded by an enclosing Track.
func Untracked(fn func()) {
	gid := goid.Get()
	prev, ok := activeReads.Load(gid)
	if !ok {
		fn()
		return
	}
	activeReads.Delete(gid)
	defer activeReads.Store(gid, prev)
	fn()
}
