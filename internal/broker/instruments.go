package broker

import (
	"context"
	"strings"
	"sync"

	"saxo-trader/internal/models"
)

// InstrumentCache memoizes ticker-to-UIC lookups in front of a Gateway.
// Instrument identifiers never change intraday, so entries live for the
// process lifetime.
type InstrumentCache struct {
	gateway Gateway

	mu    sync.RWMutex
	byRef map[string]models.InstrumentRef
}

// NewInstrumentCache wraps the gateway's instrument lookup.
func NewInstrumentCache(gateway Gateway) *InstrumentCache {
	return &InstrumentCache{
		gateway: gateway,
		byRef:   make(map[string]models.InstrumentRef),
	}
}

// Resolve returns the instrument for the ticker, hitting the gateway
// only on the first lookup.
func (c *InstrumentCache) Resolve(ctx context.Context, ticker string) (models.InstrumentRef, error) {
	key := strings.ToUpper(strings.TrimSpace(ticker))

	c.mu.RLock()
	ref, ok := c.byRef[key]
	c.mu.RUnlock()
	if ok {
		return ref, nil
	}

	ref, err := c.gateway.FindInstrument(ctx, key)
	if err != nil {
		return models.InstrumentRef{}, err
	}

	c.mu.Lock()
	c.byRef[key] = ref
	c.mu.Unlock()
	return ref, nil
}
