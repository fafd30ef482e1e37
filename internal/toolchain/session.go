package toolchain

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LocateFunc is the lookup a Session memoizes.
type LocateFunc func(ctx context.Context, preferred string) (Info, error)

// Session memoizes toolchain discovery for one build session.
//
// A Session is initialized on first use and stays valid until it is dropped;
// there is no teardown. Callers pass it explicitly into every compile.
// Failed lookups are not memoized.
type Session struct {
	locate LocateFunc

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
	found    *lru.Cache[string, Info]
}

// NewSession returns a Session backed by locate. A nil locate uses NewLocator().Locate.
func NewSession(locate LocateFunc) *Session {
	if locate == nil {
		locate = NewLocator().Locate
	}
	// Size 16 never fails; sessions rarely see more than one override path.
	found, _ := lru.New[string, Info](16)
	return &Session{
		locate:   locate,
		inflight: make(map[string]*sync.Mutex),
		found:    found,
	}
}

// Toolchain returns the toolchain for preferred, probing it at most once per
// successful lookup even under concurrent callers.
func (s *Session) Toolchain(ctx context.Context, preferred string) (Info, error) {
	if info, ok := s.found.Get(preferred); ok {
		return info, nil
	}

	s.mu.Lock()
	keyMu, ok := s.inflight[preferred]
	if !ok {
		keyMu = &sync.Mutex{}
		s.inflight[preferred] = keyMu
	}
	s.mu.Unlock()

	keyMu.Lock()
	defer keyMu.Unlock()

	if info, ok := s.found.Get(preferred); ok {
		return info, nil
	}
	info, err := s.locate(ctx, preferred)
	if err != nil {
		return Info{}, err
	}
	s.found.Add(preferred, info)
	return info, nil
}
