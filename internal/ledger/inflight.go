package ledger

import (
	"time"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// Key identifica un (token, side).
type Key struct {
	Token string
	Side  domain.Side
}

// InFlight registra trades y órdenes enviados pero aún no confirmados,
// por (token, side). No es seguro para uso concurrente: el Ledger lo protege
// con su propio mutex.
type InFlight struct {
	staleAfter time.Duration
	entries    map[Key]map[string]time.Time
}

// NewInFlight crea un tracker que purga entradas más viejas que staleAfter.
func NewInFlight(staleAfter time.Duration) *InFlight {
	return &InFlight{
		staleAfter: staleAfter,
		entries:    make(map[Key]map[string]time.Time),
	}
}

// Add registra id bajo k con el instante de envío.
func (f *InFlight) Add(k Key, id string, at time.Time) {
	set, ok := f.entries[k]
	if !ok {
		set = make(map[string]time.Time)
		f.entries[k] = set
	}
	set[id] = at
}

// Replace sustituye oldID por newID conservando el instante original.
func (f *InFlight) Replace(k Key, oldID, newID string) {
	set, ok := f.entries[k]
	if !ok {
		return
	}
	at, ok := set[oldID]
	if !ok {
		return
	}
	delete(set, oldID)
	set[newID] = at
}

// Resolve elimina id de k. Devuelve true si existía.
func (f *InFlight) Resolve(k Key, id string) bool {
	set, ok := f.entries[k]
	if !ok {
		return false
	}
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(f.entries, k)
	}
	return true
}

// ResolveAny elimina id de cualquier clave. Útil cuando el evento no trae el lado.
func (f *InFlight) ResolveAny(id string) bool {
	for k := range f.entries {
		if f.Resolve(k, id) {
			return true
		}
	}
	return false
}

// Purge elimina las entradas enviadas antes de now-staleAfter.
// Devuelve cuántas se eliminaron.
func (f *InFlight) Purge(now time.Time) int {
	cutoff := now.Add(-f.staleAfter)
	n := 0
	for k, set := range f.entries {
		for id, at := range set {
			if at.Before(cutoff) {
				delete(set, id)
				n++
			}
		}
		if len(set) == 0 {
			delete(f.entries, k)
		}
	}
	return n
}

// Empty indica si no hay nada en vuelo para k.
func (f *InFlight) Empty(k Key) bool {
	return len(f.entries[k]) == 0
}

// TokenEmpty indica si no hay nada en vuelo para ningún lado del token.
func (f *InFlight) TokenEmpty(token string) bool {
	return f.Empty(Key{token, domain.Buy}) && f.Empty(Key{token, domain.Sell})
}

// Count devuelve el número de entradas de ambos lados del token.
func (f *InFlight) Count(token string) int {
	return len(f.entries[Key{token, domain.Buy}]) + len(f.entries[Key{token, domain.Sell}])
}
