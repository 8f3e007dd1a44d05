package lock

import (
	"sync"

	"github.com/apex/log"
)

// KeyLocker hands out one mutex per key, so work on different keys runs in
// parallel while work on the same key is serialised.
type KeyLocker[K comparable] struct {
	mapMutex sync.Mutex
	keyMap   map[K]*sync.Mutex
}

func NewKeyLocker[K comparable]() *KeyLocker[K] {
	return &KeyLocker[K]{
		keyMap: make(map[K]*sync.Mutex),
	}
}

func (l *KeyLocker[K]) AcquireLock(key K) {
	l.mapMutex.Lock()
	keyMutex, ok := l.keyMap[key]
	if !ok {
		keyMutex = &sync.Mutex{}
		l.keyMap[key] = keyMutex
	}
	l.mapMutex.Unlock()

	keyMutex.Lock()
}

func (l *KeyLocker[K]) ReleaseLock(key K) {
	l.mapMutex.Lock()
	m, ok := l.keyMap[key]
	l.mapMutex.Unlock()

	if !ok {
		log.Errorf("ReleaseLock called on key (%v) with no mutex", key)
		return
	}

	m.Unlock()
}

func (l *KeyLocker[K]) WithLock(key K, f func() error) error {
	l.AcquireLock(key)
	defer l.ReleaseLock(key)
	return f()
}
