// Package clock содержит тестовые часы поверх clockwork для детерминированной
// проверки таймеров сессий.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// settleTimeout ограничивает ожидание колбэков, запущенных clockwork.
const settleTimeout = 5 * time.Second

type base interface {
	clockwork.Clock
	Advance(d time.Duration)
}

// Fake фейковые часы clockwork, чей Advance возвращается только после того,
// как отработали все созревшие колбэки AfterFunc. Время двигается от срока
// к сроку, поэтому колбэк видит Now() равным своему сроку, а таймеры,
// взведённые из колбэка, срабатывают в том же Advance.
type Fake struct {
	base

	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clockwork.Timer
	owner *Fake

	at      time.Time
	fired   bool
	done    bool
	stopped bool
}

// NewFake создаёт фейковые часы, начинающиеся с момента start.
func NewFake(start time.Time) *Fake {
	return &Fake{base: clockwork.NewFakeClockAt(start)}
}

// AfterFunc планирует f через d и запоминает срок, чтобы Advance мог дождаться вызова.
func (c *Fake) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	t := &fakeTimer{owner: c, at: c.Now().Add(d)}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()

	t.Timer = c.base.AfterFunc(d, func() {
		c.mu.Lock()
		t.fired = true
		c.mu.Unlock()

		defer func() {
			c.mu.Lock()
			t.done = true
			c.mu.Unlock()
		}()
		f()
	})
	return t
}

// Advance сдвигает время на d, останавливаясь на каждом сроке и дожидаясь его колбэков.
func (c *Fake) Advance(d time.Duration) {
	target := c.Now().Add(d)
	for {
		c.settle()
		next, ok := c.nextDeadline(target)
		if !ok {
			break
		}
		c.base.Advance(next.Sub(c.Now()))
	}
	if rest := target.Sub(c.Now()); rest > 0 {
		c.base.Advance(rest)
	}
	c.settle()
}

// Pending возвращает число ещё не сработавших и не отменённых вызовов.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// nextDeadline ближайший срок живого таймера в интервале (Now, target].
func (c *Fake) nextDeadline(target time.Time) (time.Time, bool) {
	now := c.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var next time.Time
	found := false
	for _, t := range c.timers {
		if t.stopped || t.fired || !t.at.After(now) || t.at.After(target) {
			continue
		}
		if !found || t.at.Before(next) {
			next, found = t.at, true
		}
	}
	return next, found
}

// settle ждёт завершения всех колбэков со сроком не позже Now.
func (c *Fake) settle() {
	deadline := time.Now().Add(settleTimeout)
	for time.Now().Before(deadline) {
		if !c.running(c.Now()) {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *Fake) running(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		if !t.stopped && !t.done && !t.at.After(now) {
			return true
		}
	}
	return false
}

// Stop отменяет вызов. Возвращает false, если вызов уже произошёл или был отменён.
func (t *fakeTimer) Stop() bool {
	if !t.Timer.Stop() {
		return false
	}
	t.owner.mu.Lock()
	t.stopped = true
	t.owner.mu.Unlock()
	return true
}

// Reset переносит вызов на Now()+d.
func (t *fakeTimer) Reset(d time.Duration) bool {
	at := t.owner.Now().Add(d)
	active := t.Timer.Reset(d)

	t.owner.mu.Lock()
	t.at = at
	t.fired, t.done, t.stopped = false, false, false
	t.owner.mu.Unlock()
	return active
}
