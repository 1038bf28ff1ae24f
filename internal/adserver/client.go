// Package adserver talks to the remote ad-serving platform: line item and
// creative creation, creative association, and the lookups provisioning
// depends on.
package adserver

import (
	"context"

	"github.com/patrickwarner/adprovision/internal/models"
)

// MatchStrategy selects how FindLineItems compares names.
type MatchStrategy string

const (
	MatchExact           MatchStrategy = "exact"
	MatchCaseInsensitive MatchStrategy = "case_insensitive"
	MatchContains        MatchStrategy = "contains"
)

// MatchStrategies lists every strategy in the order the naming pre-check runs them.
var MatchStrategies = []MatchStrategy{MatchExact, MatchCaseInsensitive, MatchContains}

// LineItemRef identifies an existing line item.
type LineItemRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreativeRequest is a template creative to create.
type CreativeRequest struct {
	Name           string                    `json:"name"`
	AdvertiserID   string                    `json:"advertiser_id"`
	TemplateID     int64                     `json:"template_id"`
	Size           models.Size               `json:"size"`
	DestinationURL string                    `json:"destination_url,omitempty"`
	Variables      []models.TemplateVariable `json:"variables"`
}

// Association links a creative to a line item for a targeting label and sizes.
type Association struct {
	LineItemID    string        `json:"line_item_id"`
	CreativeID    string        `json:"creative_id"`
	TargetingName string        `json:"targeting_name,omitempty"`
	Sizes         []models.Size `json:"sizes"`
}

// Client is the ad server surface used by provisioning.
//
// CreateLineItem returns a *CollisionError when the name is already taken.
// Network failures, throttling and server errors are returned as *TransientError.
type Client interface {
	CreateLineItem(ctx context.Context, draft models.LineItemDraft) (string, error)
	FindLineItems(ctx context.Context, orderID, name string, match MatchStrategy) ([]LineItemRef, error)
	CreateCreative(ctx context.Context, req CreativeRequest) (string, error)
	AssociateCreative(ctx context.Context, a Association) error
	OrderAdvertiser(ctx context.Context, orderID string) (string, error)
	// LookupGeo resolves a location name to its geo id. Unknown names
	// return an error wrapping models.ErrLocationNotFound.
	LookupGeo(ctx context.Context, name string) (string, error)
}
