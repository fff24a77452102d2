package core

import "sync"

// Lifetime is a reference count guarding a resource whose teardown must wait
// until every dependent object is gone. Teardown runs exactly once, when the
// count is zero and a shutdown was requested.
type Lifetime struct {
	mu        sync.Mutex
	name      string
	count     int
	requested bool
	done      bool
	teardown  func()
}

func NewLifetime(name string, teardown func()) *Lifetime {
	return &Lifetime{
		name:     name,
		teardown: teardown,
	}
}

// Acquire registers a new dependent.
func (l *Lifetime) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		LogError("%s: acquire after shutdown", l.name)
		return ErrDeviceShutDown
	}
	l.count++
	return nil
}

// Release drops a dependent and tears down when it was the last one and
// shutdown was already requested.
func (l *Lifetime) Release() {
	l.mu.Lock()
	if l.count == 0 {
		l.mu.Unlock()
		LogWarn("%s: release without a matching acquire", l.name)
		return
	}
	l.count--
	run := l.count == 0 && l.requested && !l.done
	if run {
		l.done = true
	}
	l.mu.Unlock()

	if run {
		l.run()
	}
}

// RequestShutdown marks the intent to tear down. If nothing holds a
// reference the teardown happens now, otherwise on the last Release.
func (l *Lifetime) RequestShutdown() {
	l.mu.Lock()
	if l.requested {
		l.mu.Unlock()
		return
	}
	l.requested = true
	run := l.count == 0 && !l.done
	if run {
		l.done = true
	}
	pending := l.count
	l.mu.Unlock()

	if run {
		l.run()
		return
	}
	LogDebug("%s: shutdown deferred, %d references outstanding", l.name, pending)
}

func (l *Lifetime) run() {
	LogDebug("%s: tearing down", l.name)
	if l.teardown != nil {
		l.teardown()
	}
}

func (l *Lifetime) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *Lifetime) ShutdownRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requested
}

// ShutDown reports whether teardown has completed.
func (l *Lifetime) ShutDown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}
