package session

import (
	"sort"
	"sync"

	"range-meter/src/models"
)

// PackageBook holds the current daily range package of every assembled symbol.
// Readers always receive copies.
type PackageBook struct {
	mu       sync.RWMutex
	packages map[string]models.MDailyRangePackage
}

func NewPackageBook() *PackageBook {
	return &PackageBook{packages: make(map[string]models.MDailyRangePackage)}
}

// -----------------------------------------------------------------------------

func (b *PackageBook) Get(symbolID string) (models.MDailyRangePackage, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.packages[symbolID]
	return p, ok
}

// -----------------------------------------------------------------------------

// Put installs pkg, replacing any previous package of the same symbol.
func (b *PackageBook) Put(pkg models.MDailyRangePackage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.packages[pkg.SymbolID] = pkg
}

// -----------------------------------------------------------------------------

// Update applies fn to the stored package under the write lock. It returns the
// updated copy, fn's result and whether the symbol had a package at all.
func (b *PackageBook) Update(symbolID string, fn func(p *models.MDailyRangePackage) bool) (models.MDailyRangePackage, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.packages[symbolID]
	if !ok {
		return models.MDailyRangePackage{}, false, false
	}
	changed := fn(&p)
	b.packages[symbolID] = p
	return p, changed, true
}

// -----------------------------------------------------------------------------

func (b *PackageBook) Delete(symbolID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.packages, symbolID)
}

// -----------------------------------------------------------------------------

// Snapshot returns every package sorted by symbol.
func (b *PackageBook) Snapshot() []models.MDailyRangePackage {
	b.mu.RLock()
	out := make([]models.MDailyRangePackage, 0, len(b.packages))
	for _, p := range b.packages {
		out = append(out, p)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SymbolID < out[j].SymbolID })
	return out
}
