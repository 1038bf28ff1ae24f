package models

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want Size
		ok   bool
	}{
		{"300x250", Size{300, 250}, true},
		{" 728X90 ", Size{728, 90}, true},
		{"300x250_2", Size{300, 250}, true},
		{"brand_320x50.png", Size{320, 50}, true},
		{"banana", Size{}, false},
		{"", Size{}, false},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "970x250", MustParseSize("970x250").String())
	assert.Panics(t, func() { MustParseSize("nope") })
}

func TestBaseSize(t *testing.T) {
	assert.Equal(t, "300x250", BaseSize("300x250_2x"))
	assert.Equal(t, "728x90", BaseSize("728x90"))
}

func TestDetectLineType(t *testing.T) {
	assert.Equal(t, LineRichMedia, DetectLineType("TOI_RichMedia_Expando"))
	assert.Equal(t, LineStandard, DetectLineType("TOI_ROS_MREC"))
}

func TestClickURLFallsBackToDestination(t *testing.T) {
	assert.Equal(t, "https://lp", LineContext{LandingPageURL: "https://lp", DestinationURL: "https://dest"}.ClickURL())
	assert.Equal(t, "https://dest", LineContext{DestinationURL: "https://dest"}.ClickURL())
}

func TestInputError(t *testing.T) {
	err := fmt.Errorf("brief: %w", NewInputError("sizes", "at least one creative size is required"))
	assert.True(t, IsInputError(err))
	assert.EqualError(t, err, "brief: invalid sizes: at least one creative size is required")
	assert.False(t, IsInputError(ErrNoPlacements))

	noCreative := fmt.Errorf("size 300x250: %w", ErrNoCreative)
	assert.ErrorIs(t, noCreative, ErrNoCreative)
	assert.True(t, IsInputError(noCreative))
	assert.EqualError(t, noCreative, "size 300x250: invalid creative: no creative detected")
}

func TestPlacementGroupMergeAndJSON(t *testing.T) {
	g := NewPlacementGroup("320x50")
	g.AddIDs("b", "a")
	g.AddOriginalSize("320x50")

	other := NewPlacementGroup("320x50")
	other.AddIDs("a", "c")
	other.AddOriginalSize("320x100")
	g.Merge(other)

	assert.Equal(t, []string{"a", "b", "c"}, g.IDs())
	assert.True(t, g.HasOriginalSize("320x100"))

	b, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"320x50","placement_ids":["a","b","c"],"original_sizes":["320x100","320x50"]}`, string(b))
}

func TestCreativeIDsSkipsFailures(t *testing.T) {
	res := &ProvisioningResult{Creatives: []CreativeOutcome{
		{Size: "300x250", CreativeID: "cr-1"},
		{Size: "728x90", Error: "no creative detected"},
		{Size: "320x50", CreativeID: "cr-2"},
	}}
	assert.Equal(t, []string{"cr-1", "cr-2"}, res.CreativeIDs())
}
