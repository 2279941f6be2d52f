package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedLog struct {
	mu  sync.Mutex
	got []string
}

func (l *firedLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, s)
}

func (l *firedLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.got...)
}

func TestFake_FiresInOrder(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var fired firedLog
	c.AfterFunc(2*time.Second, func() { fired.add("b") })
	c.AfterFunc(time.Second, func() { fired.add("a") })
	c.AfterFunc(5*time.Second, func() { fired.add("c") })

	c.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired.list())
	assert.Equal(t, start.Add(3*time.Second), c.Now())
	assert.Equal(t, 1, c.Pending())

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired.list())
	assert.Equal(t, 0, c.Pending())
}

func TestFake_Stop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))

	var fired firedLog
	timer := c.AfterFunc(time.Second, func() { fired.add("x") })
	require.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	assert.Equal(t, 0, c.Pending())

	c.Advance(time.Minute)
	assert.Empty(t, fired.list())
}

func TestFake_CallbackSeesItsDeadline(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewFake(start)

	var mu sync.Mutex
	var seen time.Time
	c.AfterFunc(4*time.Second, func() {
		mu.Lock()
		seen = c.Now()
		mu.Unlock()
	})

	c.Advance(time.Minute)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, start.Add(4*time.Second), seen)
}

func TestFake_NestedScheduling(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewFake(start)

	var mu sync.Mutex
	var at []time.Time
	var tick func()
	tick = func() {
		mu.Lock()
		at = append(at, c.Now())
		n := len(at)
		mu.Unlock()
		if n < 3 {
			c.AfterFunc(time.Second, tick)
		}
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(10 * time.Second)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, at, 3)
	assert.Equal(t, start.Add(time.Second), at[0])
	assert.Equal(t, start.Add(3*time.Second), at[2])
	assert.Equal(t, start.Add(10*time.Second), c.Now())
}

func TestFake_Reset(t *testing.T) {
	c := NewFake(time.Unix(0, 0))

	var fired firedLog
	timer := c.AfterFunc(time.Second, func() { fired.add("x") })
	timer.Reset(10 * time.Second)

	c.Advance(5 * time.Second)
	assert.Empty(t, fired.list())
	assert.Equal(t, 1, c.Pending())

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"x"}, fired.list())
}
