// Package adservertest provides an in-memory adserver.Client for tests.
package adservertest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/patrickwarner/adprovision/internal/adserver"
	"github.com/patrickwarner/adprovision/internal/models"
)

// Fake is a scriptable, concurrency-safe adserver.Client.
type Fake struct {
	mu sync.Mutex

	// ExistingNames are line item names already present on the order.
	ExistingNames []string
	// CollideFirst rejects that many CreateLineItem calls with a collision.
	CollideFirst int
	// AlwaysCollide rejects every CreateLineItem call with a collision.
	AlwaysCollide bool
	// LineItemErr is returned by CreateLineItem when set.
	LineItemErr error
	// FindErr is returned by FindLineItems when set.
	FindErr error
	// TransientCreatives makes CreateCreative fail transiently that many
	// times per size before succeeding.
	TransientCreatives map[string]int
	// FailCreatives makes CreateCreative fail permanently for a size.
	FailCreatives map[string]error
	// Geo maps lower-cased location names to geo ids.
	Geo        map[string]string
	Advertiser string

	Attempts     []string
	Drafts       []models.LineItemDraft
	Creatives    []adserver.CreativeRequest
	Associations []adserver.Association
	calls        map[string]int
	nextID       int
}

var _ adserver.Client = (*Fake)(nil)

// New returns a Fake with an advertiser and no scripted failures.
func New() *Fake {
	return &Fake{Advertiser: "adv-1"}
}

func (f *Fake) record(op string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return prefix + strconv.Itoa(f.nextID)
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// CreateLineItem implements adserver.Client.
func (f *Fake) CreateLineItem(_ context.Context, draft models.LineItemDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_line_item")
	f.Attempts = append(f.Attempts, draft.Name)

	if f.LineItemErr != nil {
		return "", f.LineItemErr
	}
	if f.AlwaysCollide || f.CollideFirst > 0 {
		if f.CollideFirst > 0 {
			f.CollideFirst--
		}
		return "", &adserver.CollisionError{Name: draft.Name, Reason: "DUPLICATE_OBJECT"}
	}
	for _, n := range f.ExistingNames {
		if n == draft.Name {
			return "", &adserver.CollisionError{Name: draft.Name, Reason: "DUPLICATE_OBJECT"}
		}
	}
	f.Drafts = append(f.Drafts, draft)
	f.ExistingNames = append(f.ExistingNames, draft.Name)
	return f.id("li-"), nil
}

// FindLineItems implements adserver.Client.
func (f *Fake) FindLineItems(_ context.Context, _ string, name string, match adserver.MatchStrategy) ([]adserver.LineItemRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("find_line_items")

	if f.FindErr != nil {
		return nil, f.FindErr
	}
	var out []adserver.LineItemRef
	for i, n := range f.ExistingNames {
		var hit bool
		switch match {
		case adserver.MatchExact:
			hit = n == name
		case adserver.MatchCaseInsensitive:
			hit = strings.EqualFold(n, name)
		case adserver.MatchContains:
			hit = strings.Contains(strings.ToLower(n), strings.ToLower(name))
		}
		if hit {
			out = append(out, adserver.LineItemRef{ID: fmt.Sprintf("existing-%d", i), Name: n})
		}
	}
	return out, nil
}

// CreateCreative implements adserver.Client.
func (f *Fake) CreateCreative(_ context.Context, req adserver.CreativeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_creative")

	key := req.Size.String()
	if err, ok := f.FailCreatives[key]; ok {
		return "", err
	}
	if f.TransientCreatives[key] > 0 {
		f.TransientCreatives[key]--
		return "", &adserver.TransientError{Op: "create_creative", Err: errors.New("connection reset")}
	}
	f.Creatives = append(f.Creatives, req)
	return f.id("cr-"), nil
}

// AssociateCreative implements adserver.Client.
func (f *Fake) AssociateCreative(_ context.Context, a adserver.Association) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("associate_creative")
	f.Associations = append(f.Associations, a)
	return nil
}

// OrderAdvertiser implements adserver.Client.
func (f *Fake) OrderAdvertiser(_ context.Context, orderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_order")
	if f.Advertiser == "" {
		return "", fmt.Errorf("order %s has no advertiser", orderID)
	}
	return f.Advertiser, nil
}

// LookupGeo implements adserver.Client.
func (f *Fake) LookupGeo(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("lookup_geo")
	if id, ok := f.Geo[strings.ToLower(name)]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%q: %w", name, models.ErrLocationNotFound)
}
