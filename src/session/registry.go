package session

import (
	"sort"

	"range-meter/src/helpers"
	"range-meter/src/models"
)

// SymbolRegistry is the full tradable symbol set of one upstream session.
// It is never mutated after construction, so concurrent reads need no lock.
type SymbolRegistry struct {
	symbols map[string]models.MSymbol
}

// -----------------------------------------------------------------------------

// NewSymbolRegistry indexes symbols by id. Later duplicates win.
func NewSymbolRegistry(symbols []models.MSymbol) *SymbolRegistry {
	r := &SymbolRegistry{symbols: make(map[string]models.MSymbol, len(symbols))}
	for _, s := range symbols {
		if s.ID == "" {
			continue
		}
		r.symbols[s.ID] = s
	}
	return r
}

// -----------------------------------------------------------------------------

// Get returns the symbol or an UnknownSymbolError carrying id.
func (r *SymbolRegistry) Get(id string) (models.MSymbol, error) {
	s, ok := r.symbols[id]
	if !ok {
		return models.MSymbol{}, helpers.NewUnknownSymbol(id)
	}
	return s, nil
}

func (r *SymbolRegistry) Contains(id string) bool {
	_, ok := r.symbols[id]
	return ok
}

func (r *SymbolRegistry) Len() int {
	return len(r.symbols)
}

// -----------------------------------------------------------------------------

// All returns the symbols sorted by id.
func (r *SymbolRegistry) All() []models.MSymbol {
	out := make([]models.MSymbol, 0, len(r.symbols))
	for _, s := range r.symbols {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
