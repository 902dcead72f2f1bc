package engine

import (
	"context"
	"sync"
)

// slot es el estado de coalescencia de un instrumento.
type slot struct {
	running bool
	dirty   bool
}

// scheduler ejecuta como mucho una pasada por clave a la vez. Un Trigger que
// llega durante una pasada marca la clave como sucia y provoca exactamente una
// pasada más al terminar, sin importar cuántos ticks llegaron.
type scheduler struct {
	run func(ctx context.Context, key string)

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
	wg     sync.WaitGroup
}

func newScheduler(run func(ctx context.Context, key string)) *scheduler {
	return &scheduler{run: run, slots: make(map[string]*slot)}
}

// Trigger pide una pasada para key. Tras Stop no hace nada.
func (s *scheduler) Trigger(ctx context.Context, key string) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{}
		s.slots[key] = sl
	}
	if sl.running {
		sl.dirty = true
		s.mu.Unlock()
		return
	}
	sl.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(ctx, key, sl)
}

func (s *scheduler) loop(ctx context.Context, key string, sl *slot) {
	defer s.wg.Done()
	for {
		s.run(ctx, key)

		s.mu.Lock()
		if !sl.dirty || ctx.Err() != nil {
			sl.running, sl.dirty = false, false
			s.mu.Unlock()
			return
		}
		sl.dirty = false
		s.mu.Unlock()
	}
}

// Forget descarta el slot de una clave que ya no se opera.
func (s *scheduler) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[key]; ok && !sl.running {
		delete(s.slots, key)
	}
}

// Wait bloquea hasta que terminan todas las pasadas en curso.
func (s *scheduler) Wait() {
	s.wg.Wait()
}

// Stop rechaza nuevos Trigger y espera a las pasadas en curso. Cerrar bajo
// s.mu garantiza que ningún wg.Add ocurre en paralelo con el Wait final.
func (s *scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
