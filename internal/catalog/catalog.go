// Package catalog holds the static list of bookable reading services.
// Each service fixes the duration and price of the sessions booked
// against it.  The catalog is read-only once built.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrUnknownService is returned by Lookup for keys not in the catalog.
var ErrUnknownService = errors.New("unknown service type")

// Service describes one bookable offering.
type Service struct {
	Key        string        `json:"key"`
	Name       string        `json:"name"`
	Duration   time.Duration `json:"-"`
	PriceCents uint32        `json:"price_cents"`
}

// Minutes returns the duration in whole minutes, as shown to clients.
func (s Service) Minutes() int { return int(s.Duration / time.Minute) }

// MarshalJSON renders the duration as minutes instead of nanoseconds.
func (s Service) MarshalJSON() ([]byte, error) {
	type alias Service
	return json.Marshal(struct {
		alias
		DurationMinutes int `json:"duration_minutes"`
	}{alias(s), s.Minutes()})
}

// Catalog is an ordered, immutable set of services keyed by Service.Key.
type Catalog struct {
	byKey map[string]Service
	order []string
}

// New builds a catalog from the given services.  Keys must be unique and
// non-empty and every service needs a positive duration.
func New(services ...Service) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]Service, len(services))}
	for _, s := range services {
		s.Key = strings.TrimSpace(s.Key)
		if s.Key == "" {
			return nil, errors.New("catalog: empty service key")
		}
		if s.Duration <= 0 {
			return nil, fmt.Errorf("catalog: service %q has non-positive duration", s.Key)
		}
		if _, dup := c.byKey[s.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate service %q", s.Key)
		}
		c.byKey[s.Key] = s
		c.order = append(c.order, s.Key)
	}
	return c, nil
}

// Default returns the catalog offered by the Celestia deployment.
func Default() *Catalog {
	c, err := New(
		Service{Key: "general-purpose-reading", Name: "General Purpose Reading", Duration: 45 * time.Minute, PriceCents: 6500},
		Service{Key: "astrological-tarot-session", Name: "Astrological Tarot Session", Duration: 60 * time.Minute, PriceCents: 8500},
		Service{Key: "tarot-reading", Name: "Tarot Reading", Duration: 60 * time.Minute, PriceCents: 8500},
		Service{Key: "birth-chart-reading", Name: "Birth Chart Reading", Duration: 90 * time.Minute, PriceCents: 12000},
		Service{Key: "chart-tarot-combo", Name: "Chart + Tarot Combo", Duration: 120 * time.Minute, PriceCents: 16500},
		Service{Key: "follow-up", Name: "Follow-up Session", Duration: 30 * time.Minute, PriceCents: 4500},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// fileEntry is the on-disk shape of a service in a catalog file.
type fileEntry struct {
	Key             string `json:"key"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      uint32 `json:"price_cents"`
}

// Load reads a JSON array of services from path.  An empty path yields
// the default catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a JSON catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var entries []fileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	services := make([]Service, 0, len(entries))
	for _, e := range entries {
		services = append(services, Service{
			Key:        e.Key,
			Name:       e.Name,
			Duration:   time.Duration(e.DurationMinutes) * time.Minute,
			PriceCents: e.PriceCents,
		})
	}
	return New(services...)
}

// Lookup returns the service registered under key.
func (c *Catalog) Lookup(key string) (Service, error) {
	s, ok := c.byKey[key]
	if !ok {
		return Service{}, fmt.Errorf("%w: %q", ErrUnknownService, key)
	}
	return s, nil
}

// List returns the services in declaration order.
func (c *Catalog) List() []Service {
	out := make([]Service, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k])
	}
	return out
}
