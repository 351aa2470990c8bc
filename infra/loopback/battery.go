package loopback

import "sync"

// Battery models a vehicle battery as an energy level in percent.
type Battery struct {
	mu    sync.Mutex
	level float64
}

// NewBattery returns a battery at level percent.
func NewBattery(level int) *Battery {
	b := &Battery{}
	b.set(float64(level))
	return b
}

// Drain removes pct percent and returns the new level.
func (b *Battery) Drain(pct float64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(b.level - pct)
	return int(b.level)
}

// Charge adds pct percent and returns the new level.
func (b *Battery) Charge(pct float64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(b.level + pct)
	return int(b.level)
}

// Level returns the current level in whole percent.
func (b *Battery) Level() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.level)
}

func (b *Battery) set(l float64) {
	if l < 0 {
		l = 0
	}
	if l > 100 {
		l = 100
	}
	b.level = l
}
