package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPatchMarkup(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "noscript anchor gets click macro",
			input:    `<script src="x.js"></script><noscript><a href="https://adv.example/c"><img src="i.png"></a></noscript>`,
			expected: `<script src="x.js"></script><noscript><a href="%%CLICK_URL_UNESC%%https://adv.example/c"><img src="i.png"></a></noscript>`,
		},
		{
			name:     "already patched noscript is untouched",
			input:    `<noscript><a href="%%CLICK_URL_UNESC%%https://adv.example/c">x</a></noscript>`,
			expected: `<noscript><a href="%%CLICK_URL_UNESC%%https://adv.example/c">x</a></noscript>`,
		},
		{
			name:     "dcm ins before class attribute",
			input:    `<ins class='dcmads' data-dcm-placement='N1/B2'></ins>`,
			expected: `<ins data-dcm-click-tracker='%%CLICK_URL_UNESC%%' class='dcmads' data-dcm-placement='N1/B2'></ins>`,
		},
		{
			name:     "dcm block without class attribute",
			input:    `<ins data-dcm-placement='N1/B2' style='display:block'></ins>`,
			expected: `<ins data-dcm-click-tracker='%%CLICK_URL_UNESC%%' data-dcm-placement='N1/B2' style='display:block'></ins>`,
		},
		{
			name:     "plain markup untouched",
			input:    `<div class="ad">hello</div>`,
			expected: `<div class="ad">hello</div>`,
		},
	}

	p := NewPatcherForTesting(zaptest.NewLogger(t), false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.PatchMarkup(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestPatchMarkupIdempotent(t *testing.T) {
	inputs := []string{
		`<noscript><a href="https://a.example">x</a></noscript>`,
		`<ins class='dcmads' data-dcm-placement='N1'></ins><noscript><a href="https://b.example">y</a></noscript>`,
		`<div data-dcm-rendering-mode='script'>z</div>`,
		`<script>plain()</script>`,
	}
	p := NewPatcherForTesting(zaptest.NewLogger(t), false)
	for _, in := range inputs {
		once, err := p.PatchMarkup(in)
		require.NoError(t, err)
		twice, err := p.PatchMarkup(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, in)
	}
}

func TestPatchMarkupStrictMode(t *testing.T) {
	// detected as dcm, but no tag shape the injector understands
	input := `<ins>dcmads</ins>`

	lenient := NewPatcherForTesting(zaptest.NewLogger(t), false)
	out, err := lenient.PatchMarkup(input)
	require.NoError(t, err)
	assert.Equal(t, input, out)

	strict := NewPatcherForTesting(zaptest.NewLogger(t), true)
	_, err = strict.PatchMarkup(input)
	assert.Error(t, err)
}

func TestPatchHTMLAsset(t *testing.T) {
	p := NewPatcherForTesting(zaptest.NewLogger(t), false)
	tracker := "https://track.example/imp?cb=%%CACHEBUSTER%%"

	t.Run("after marker", func(t *testing.T) {
		html := "<html><!--NO_REFRESH--><a href=\"https://www.google.co.in\">go</a></html>"
		out := p.PatchHTMLAsset(html, "https://brand.example", tracker)

		assert.Contains(t, out, `href="https://brand.example"`)
		assert.NotContains(t, out, "google.co.in")
		assert.Equal(t, 1, strings.Count(out, "<!--NO_REFRESH-->"))
		assert.Contains(t, out, `<IMG SRC="`+tracker+`" attributionsrc`)
		assert.True(t, strings.HasPrefix(out, "<html><!--NO_REFRESH-->\n<div style=\"display:none;\">"))
	})

	t.Run("prepended without marker", func(t *testing.T) {
		out := p.PatchHTMLAsset("<p>ad</p>", "", tracker)
		assert.True(t, strings.HasPrefix(out, "<!--NO_REFRESH-->\n"))
		assert.True(t, strings.HasSuffix(out, "\n<p>ad</p>"))
	})

	t.Run("idempotent", func(t *testing.T) {
		once := p.PatchHTMLAsset("<p>ad</p>", "https://brand.example", tracker)
		twice := p.PatchHTMLAsset(once, "https://brand.example", tracker)
		assert.Equal(t, once, twice)
	})

	t.Run("landing url extends the placeholder", func(t *testing.T) {
		html := `<a href="https://www.google.co.in">go</a>`
		landing := "https://www.google.co.in/x"
		once := p.PatchHTMLAsset(html, landing, "")
		twice := p.PatchHTMLAsset(once, landing, "")
		assert.Equal(t, `<a href="https://www.google.co.in/x">go</a>`, once)
		assert.Equal(t, once, twice)
	})

	t.Run("no tracker", func(t *testing.T) {
		assert.Equal(t, "<p>ad</p>", p.PatchHTMLAsset("<p>ad</p>", "", ""))
	})
}

func TestTrackerHelpers(t *testing.T) {
	assert.Equal(t, "https://t.example/i?ord=%%CACHEBUSTER%%", NormalizeTracker(" https://t.example/i?ord=[timestamp] "))
	assert.Equal(t, "https://t.example/i?ord=%%CACHEBUSTER%%", NormalizeTracker("https://t.example/i?ord=[CACHEBUSTER]"))

	wrapped := WrapHidden("<script>t()</script>")
	assert.Equal(t, `<div style="display:none;"><script>t()</script></div>`, wrapped)
	assert.Equal(t, wrapped, WrapHidden(wrapped))
	assert.Empty(t, WrapHidden("  "))

	assert.Equal(t, "https://t.example/p.gif", ExtractImpressionSrc(`<img src="https://t.example/p.gif" width=1>`))
	assert.Equal(t, "https://t.example/p.gif", ExtractImpressionSrc("https://t.example/p.gif"))
	assert.Empty(t, ExtractImpressionSrc("<img src=pixel.gif>"))
}
