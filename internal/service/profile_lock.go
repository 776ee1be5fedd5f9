package service

import "sync"

// profileLocks держит по мьютексу на профиль, пока он кому-то нужен.
type profileLocks struct {
	mu    sync.Mutex
	locks map[string]*profileLock
}

type profileLock struct {
	mu   sync.Mutex
	refs int
}

func newProfileLocks() *profileLocks {
	return &profileLocks{locks: make(map[string]*profileLock)}
}

// lock blocks until the profile is free and returns its unlock func.
func (p *profileLocks) lock(profile string) func() {
	p.mu.Lock()
	l := p.locks[profile]
	if l == nil {
		l = &profileLock{}
		p.locks[profile] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, profile)
		}
		p.mu.Unlock()
	}
}
