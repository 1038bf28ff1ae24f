// Package markup patches third-party creative markup and HTML assets with
// the ad server's click and cachebuster macros. Every patch is idempotent.
package markup

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Ad server macros.
const (
	ClickMacro       = "%%CLICK_URL_UNESC%%"
	CachebusterMacro = "%%CACHEBUSTER%%"
)

const (
	dcmClickAttr       = "data-dcm-click-tracker"
	noRefreshMarker    = "<!--NO_REFRESH-->"
	placeholderLanding = "https://www.google.co.in"
	hiddenDivOpen      = `<div style="display:none;">`
)

var (
	noscriptHref  = regexp.MustCompile(`(?i)(<a\s+[^>]*?href=")([^"]*)"`)
	dcmBeforeAttr = regexp.MustCompile(`(?i)(<ins|<div)([^>]*?)(\s+class=)`)
	dcmAfterTag   = regexp.MustCompile(`(?i)(<ins|<div)(\s)`)
	impressionSrc = regexp.MustCompile(`(?i)src=["'](https?://[^"']+)["']`)

	trackerCachebuster = strings.NewReplacer("[timestamp]", CachebusterMacro, "[CACHEBUSTER]", CachebusterMacro)
)

// Patcher applies markup patches and records what it changed.
type Patcher struct {
	logger     *zap.Logger
	strictMode bool // If true, a detected block that cannot be patched is an error

	patchCounter *prometheus.CounterVec
}

var (
	globalPatchCounter *prometheus.CounterVec
	globalCounterOnce  sync.Once
)

// NewPatcher creates a lenient Patcher reporting to the default Prometheus registry.
func NewPatcher(logger *zap.Logger) *Patcher {
	globalCounterOnce.Do(func() {
		globalPatchCounter = newPatchCounter(promauto.With(prometheus.DefaultRegisterer))
	})
	return &Patcher{logger: logger, patchCounter: globalPatchCounter}
}

// NewPatcherForTesting creates a Patcher with a private registry.
func NewPatcherForTesting(logger *zap.Logger, strictMode bool) *Patcher {
	return &Patcher{
		logger:       logger,
		strictMode:   strictMode,
		patchCounter: newPatchCounter(promauto.With(prometheus.NewRegistry())),
	}
}

func newPatchCounter(factory promauto.Factory) *prometheus.CounterVec {
	return factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adprovision_markup_patches_total",
			Help: "Total markup patches by kind and result",
		},
		[]string{"kind", "result"},
	)
}

// SetStrictMode enables or disables strict patching
func (p *Patcher) SetStrictMode(strict bool) {
	p.strictMode = strict
}

// PatchMarkup injects the click macro into noscript anchors and the click
// tracker attribute into DoubleClick blocks. Already patched markup is
// returned unchanged.
func (p *Patcher) PatchMarkup(markup string) (string, error) {
	out, err := p.patchNoscript(markup)
	if err != nil {
		return markup, err
	}
	return p.patchDCM(out)
}

func (p *Patcher) patchNoscript(markup string) (string, error) {
	lower := strings.ToLower(markup)
	if !strings.Contains(lower, "<noscript>") || !strings.Contains(lower, "<a href") {
		return markup, nil
	}
	if strings.Contains(markup, ClickMacro) {
		p.patchCounter.WithLabelValues("noscript", "present").Inc()
		return markup, nil
	}
	patched := noscriptHref.ReplaceAllString(markup, "${1}"+ClickMacro+`${2}"`)
	if patched == markup {
		p.patchCounter.WithLabelValues("noscript", "failed").Inc()
		return p.unpatched("noscript", markup)
	}
	p.patchCounter.WithLabelValues("noscript", "patched").Inc()
	return patched, nil
}

// IsDoubleClick reports whether markup is a DoubleClick (DCM) ad block.
func IsDoubleClick(markup string) bool {
	lower := strings.ToLower(markup)
	return (strings.Contains(lower, "dcmads") || strings.Contains(lower, "data-dcm")) &&
		(strings.Contains(lower, "<ins") || strings.Contains(lower, "<div"))
}

func (p *Patcher) patchDCM(markup string) (string, error) {
	if !IsDoubleClick(markup) {
		return markup, nil
	}
	if strings.Contains(markup, dcmClickAttr) {
		p.patchCounter.WithLabelValues("dcm", "present").Inc()
		return markup, nil
	}
	attr := " " + dcmClickAttr + "='" + ClickMacro + "'"
	patched := dcmBeforeAttr.ReplaceAllString(markup, "${1}${2}"+attr+"${3}")
	if patched == markup {
		patched = dcmAfterTag.ReplaceAllString(markup, "${1}"+attr+"${2}")
	}
	if patched == markup {
		p.patchCounter.WithLabelValues("dcm", "failed").Inc()
		return p.unpatched("dcm", markup)
	}
	p.patchCounter.WithLabelValues("dcm", "patched").Inc()
	return patched, nil
}

func (p *Patcher) unpatched(kind, markup string) (string, error) {
	if p.strictMode {
		return markup, fmt.Errorf("could not inject %s click macro", kind)
	}
	p.logger.Warn("could not inject click macro", zap.String("kind", kind), zap.Int("bytes", len(markup)))
	return markup, nil
}

// PatchHTMLAsset prepares an uploaded HTML creative: the placeholder landing
// URL is replaced and a hidden impression pixel is placed after the
// NO_REFRESH marker (or prepended when the marker is absent).
func (p *Patcher) PatchHTMLAsset(html, landingPage, impressionTracker string) string {
	if landingPage != "" && !strings.Contains(html, landingPage) {
		html = strings.ReplaceAll(html, placeholderLanding, landingPage)
	}
	if impressionTracker == "" || strings.Contains(html, impressionTracker) {
		return html
	}
	block := noRefreshMarker + "\n" + hiddenDivOpen +
		fmt.Sprintf("\n<IMG SRC=%q attributionsrc BORDER=\"0\" HEIGHT=\"1\" WIDTH=\"1\" ALT=\"Advertisement\">\n</div>", impressionTracker)
	if strings.Contains(html, noRefreshMarker) {
		html = strings.Replace(html, noRefreshMarker, block, 1)
	} else {
		html = block + "\n" + html
	}
	p.patchCounter.WithLabelValues("html_pixel", "patched").Inc()
	return html
}

// NormalizeTracker rewrites vendor cachebuster placeholders into the ad server macro.
func NormalizeTracker(tracker string) string {
	return trackerCachebuster.Replace(strings.TrimSpace(tracker))
}

// WrapHidden wraps a tracking script in a hidden div. Wrapped input is returned unchanged.
func WrapHidden(script string) string {
	script = strings.TrimSpace(script)
	if script == "" || strings.HasPrefix(script, hiddenDivOpen) {
		return script
	}
	return hiddenDivOpen + script + "</div>"
}

// ExtractImpressionSrc returns the first absolute src URL in an impression tag.
// A bare URL is returned as-is.
func ExtractImpressionSrc(tag string) string {
	tag = strings.TrimSpace(tag)
	if m := impressionSrc.FindStringSubmatch(tag); m != nil {
		return m[1]
	}
	if strings.HasPrefix(tag, "http://") || strings.HasPrefix(tag, "https://") {
		return tag
	}
	return ""
}
