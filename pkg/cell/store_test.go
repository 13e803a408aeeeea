package cell

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnsetReturnsNil(t *testing.T) {
	s := NewStore()
	assert.Nil(t, s.Get("missing"))
	assert.Equal(t, 0, s.GetInt("missing"))
	assert.Equal(t, "", s.GetString("missing"))
}

func TestSetGetRoundTrip(t *testing.T) {
	s := NewStore()
	s.Set("count", 3)
	s.Set("name", "ada")

	assert.Equal(t, 3, s.GetInt("count"))
	assert.Equal(t, "ada", s.GetString("name"))
}

func TestUpdateAppliesFunction(t *testing.T) {
	s := NewStore()
	s.Set("count", 1)
	s.Update("count", func(v any) any {
		n, _ := v.(int)
		return n + 10
	})
	assert.Equal(t, 11, s.GetInt("count"))
}

func TestSubscribeFutureOnly(t *testing.T) {
	s := NewStore()
	s.Set("count", 1)

	var got []any
	unsub := s.Subscribe("count", func(v any) { got = append(got, v) })
	defer unsub()

	// The current value is not replayed.
	require.Empty(t, got)

	s.Set("count", 2)
	s.Set("count", 3)
	assert.Equal(t, []any{2, 3}, got)
}

func TestSubscribeWithImmediate(t *testing.T) {
	s := NewStore()
	s.Set("count", 7)

	var got []any
	unsub := s.Subscribe("count", func(v any) { got = append(got, v) }, WithImmediate())
	defer unsub()

	assert.Equal(t, []any{7}, got)
}

func TestSetEqualValueStillNotifies(t *testing.T) {
	s := NewStore()
	s.Set("count", 1)

	calls := 0
	unsub := s.Subscribe("count", func(any) { calls++ })
	defer unsub()

	s.Set("count", 1)
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	s := NewStore()

	calls := 0
	unsub := s.Subscribe("count", func(any) { calls++ })
	unsub()
	unsub()

	s.Set("count", 1)
	assert.Zero(t, calls)
}

func TestUnsubscribeInsideCallback(t *testing.T) {
	s := NewStore()

	var unsub func()
	calls := 0
	unsub = s.Subscribe("count", func(any) {
		calls++
		unsub()
	})

	s.Set("count", 1)
	s.Set("count", 2)
	assert.Equal(t, 1, calls)
}

func TestToSeqStartsWithCurrentValue(t *testing.T) {
	s := NewStore()
	s.Set("count", 5)

	ch, stop := s.ToSeq("count")
	defer stop()

	assert.Equal(t, 5, <-ch)

	s.Set("count", 6)
	assert.Equal(t, 6, <-ch)
}

func TestNamesSorted(t *testing.T) {
	s := NewStore()
	s.Set("zeta", 1)
	s.Set("alpha", 2)
	s.Set("mid", 3)

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, s.Names())
}

func TestTrackRecordsReads(t *testing.T) {
	s := NewStore()
	s.Set("a", 1)
	s.Set("b", 2)
	s.Set("c", 3)

	reads := Track(func() {
		s.Get("b")
		s.Get("a")
		s.Get("a")
	})
	assert.Equal(t, []string{"a", "b"}, reads)
}

func TestTrackNests(t *testing.T) {
	s := NewStore()

	var inner []string
	outer := Track(func() {
		s.Get("outer")
		inner = Track(func() {
			s.Get("inner")
		})
		s.Get("outer2")
	})

	assert.Equal(t, []string{"inner"}, inner)
	assert.Equal(t, []string{"outer", "outer2"}, outer)
}

func TestUntrackedSuppressesRecording(t *testing.T) {
	s := NewStore()

	reads := Track(func() {
		s.Get("seen")
		Untracked(func() {
			s.Get("hidden")
		})
	})
	assert.Equal(t, []string{"seen"}, reads)
}

func TestTrackIsPerGoroutine(t *testing.T) {
	s := NewStore()

	done := make(chan struct{})
	reads := Track(func() {
		go func() {
			defer close(done)
			s.Get("other-goroutine")
		}()
		<-done
		s.Get("here")
	})
	assert.Equal(t, []string{"here"}, reads)
}

func TestDehydrateOnlyMarkedCellsSorted(t *testing.T) {
	s := NewStore()
	s.Set("count", 2)
	s.Set("name", "ada")
	s.Set("secret", "hunter2")
	s.MarkSerializable("name", "count")

	got := s.Dehydrate()
	require.Len(t, got, 2)
	assert.Equal(t, Dehydrated{Key: "count", Value: 2}, got[0])
	assert.Equal(t, Dehydrated{Key: "name", Value: "ada"}, got[1])
}

func TestRehydrateDoesNotNotify(t *testing.T) {
	s := NewStore()
	calls := 0
	unsub := s.Subscribe("count", func(any) { calls++ })
	defer unsub()

	s.Rehydrate([]Dehydrated{{Key: "count", Value: 4}})
	assert.Zero(t, calls)
	assert.Equal(t, 4, s.GetInt("count"))
}

func TestRehydrateNormalizesJSONNumbers(t *testing.T) {
	payload := `[{"key":"count","value":9},{"key":"ratio","value":0.5}]`
	var pairs []Dehydrated
	require.NoError(t, json.Unmarshal([]byte(payload), &pairs))

	s := NewStore()
	s.Rehydrate(pairs)

	assert.Equal(t, 9, s.GetInt("count"))
	assert.Equal(t, 0.5, s.Get("ratio"))
}

func TestDehydrateRehydrateRoundTrip(t *testing.T) {
	s := NewStore()
	s.Set("count", 12)
	s.MarkSerializable("count")

	data, err := json.Marshal(s.Dehydrate())
	require.NoError(t, err)

	var pairs []Dehydrated
	require.NoError(t, json.Unmarshal(data, &pairs))

	s2 := NewStore()
	s2.Rehydrate(pairs)
	assert.Equal(t, 12, s2.GetInt("count"))

	// Rehydrated cells stay serializable for the next dehydration.
	assert.Equal(t, s.Dehydrate(), s2.Dehydrate())
}
