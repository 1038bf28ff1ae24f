package provision

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/placement"
	"github.com/patrickwarner/adprovision/internal/templates"
)

var (
	sizeInterstitial = models.Size{Width: 1260, Height: 570}
	sizeBillboard    = models.Size{Width: 980, Height: 200}
	sizeLeaderboard  = models.Size{Width: 728, Height: 90}
	sizeMobileLead   = models.Size{Width: 320, Height: 100}
	sizeMobileBanner = models.Size{Width: 320, Height: 50}
	sizeCombined     = models.Size{Width: 600, Height: 250}
	sizeMrec         = models.Size{Width: 300, Height: 250}
)

// placeholderSet collects placeholders and targetings without duplicates.
type placeholderSet struct {
	placeholders []models.CreativePlaceholder
	targetings   []models.CreativeTargeting
	seen         map[models.CreativePlaceholder]bool
	named        map[string]int
}

func newPlaceholderSet() *placeholderSet {
	return &placeholderSet{seen: make(map[models.CreativePlaceholder]bool), named: make(map[string]int)}
}

func (p *placeholderSet) add(size models.Size, label string, ids []string) {
	ph := models.CreativePlaceholder{Size: size, TargetingName: label}
	if !p.seen[ph] {
		p.seen[ph] = true
		p.placeholders = append(p.placeholders, ph)
	}
	if label == "" || len(ids) == 0 {
		return
	}
	if i, ok := p.named[label]; ok {
		g := models.NewPlacementGroup(label)
		g.AddIDs(p.targetings[i].PlacementIDs...)
		g.AddIDs(ids...)
		p.targetings[i].PlacementIDs = g.IDs()
		return
	}
	p.named[label] = len(p.targetings)
	p.targetings = append(p.targetings, models.CreativeTargeting{Name: label, PlacementIDs: ids})
}

// BuildPlaceholders derives the creative placeholders and targetings of a
// line item from its resolved placement groups. Only groups with placements
// contribute; companion sizes that always accompany a primary size are added
// without a targeting label.
func BuildPlaceholders(res *placement.Resolution, lineType models.LineType, hasVideo bool) ([]models.CreativePlaceholder, []models.CreativeTargeting) {
	set := newPlaceholderSet()
	requested := make(map[string]bool)

	for _, key := range res.Keys() {
		g := res.Groups[key]
		for _, s := range g.Sizes() {
			requested[s] = true
		}
		if len(g.PlacementIDs) == 0 {
			continue
		}
		ids := g.IDs()
		for _, s := range g.Sizes() {
			size := models.MustParseSize(s)
			set.add(size, templates.TargetingName(size, lineType), ids)
		}
	}

	if hasIDs(res, sizeInterstitial) {
		for _, s := range templates.SizeOverrides(sizeInterstitial) {
			set.add(s, "", nil)
		}
	}
	if hasIDs(res, sizeBillboard) && res.Groups[sizeLeaderboard.String()] == nil {
		set.add(sizeLeaderboard, "", nil)
	}
	// Any 320x50 creative may serve next to the mobile leaderboard.
	if requested[sizeMobileLead.String()] && !requested[sizeMobileBanner.String()] {
		set.add(sizeMobileBanner, "", nil)
	}
	if g := res.Groups[sizeCombined.String()]; g != nil && len(g.PlacementIDs) > 0 {
		set.add(sizeMrec, templates.TargetingMrecExpando, g.IDs())
	}
	if hasVideo && res.Groups[sizeMrec.String()] == nil {
		set.add(sizeMrec, "", nil)
	}
	return set.placeholders, set.targetings
}

func hasIDs(res *placement.Resolution, size models.Size) bool {
	g := res.Groups[size.String()]
	return g != nil && len(g.PlacementIDs) > 0
}

// Accepted date layouts for brief schedules.
const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

// BuildSchedule applies the start rule: a start date of today or earlier
// starts immediately, a future date starts at midnight. The end date
// defaults to defaultEnd; a bare end date ends at 23:59.
func BuildSchedule(start, end, defaultEnd string, now time.Time, loc *time.Location) (models.Schedule, error) {
	if loc == nil {
		loc = time.UTC
	}
	sched := models.Schedule{StartType: models.StartImmediately, Location: loc}

	if start = strings.TrimSpace(start); start != "" {
		day, err := time.ParseInLocation(dateLayout, start, loc)
		if err != nil {
			return sched, models.NewInputError("start_date", fmt.Sprintf("expected YYYY-MM-DD, got %q", start))
		}
		y, m, d := now.In(loc).Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if day.After(today) {
			sched.StartType = models.StartUseDate
			sched.Start = day
		}
	}

	if end = strings.TrimSpace(end); end == "" {
		end = defaultEnd
	}
	endTime, err := parseEnd(end, loc)
	if err != nil {
		return sched, models.NewInputError("end_date", err.Error())
	}
	if sched.StartType == models.StartUseDate && !endTime.After(sched.Start) {
		return sched, models.NewInputError("end_date", "must be after the start date")
	}
	sched.End = endTime
	return sched, nil
}

func parseEnd(v string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{time.DateTime, dateTimeLayout} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	day, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q", v)
	}
	return day.Add(23*time.Hour + 59*time.Minute), nil
}

// NormalizeCurrency upper-cases code and falls back to the default currency
// for anything unsupported. ok is false when the fallback was applied.
func NormalizeCurrency(code string) (currency string, ok bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range models.SupportedCurrencies {
		if c == code {
			return c, true
		}
	}
	return models.DefaultCurrency, code == ""
}

// draftInput gathers everything a line item draft is built from.
type draftInput struct {
	brief        Brief
	orderID      string
	schedule     models.Schedule
	geoIDs       []string
	placementIDs []string
	placeholders []models.CreativePlaceholder
	targetings   []models.CreativeTargeting
	currency     string
}

func buildDraft(in draftInput) models.LineItemDraft {
	units := in.brief.Impressions
	if units == 0 {
		units = models.DefaultImpression
	}
	d := models.LineItemDraft{
		Name:                 in.brief.Name,
		OrderID:              in.orderID,
		GeoIDs:               in.geoIDs,
		PlacementIDs:         in.placementIDs,
		CreativePlaceholders: in.placeholders,
		CreativeTargetings:   in.targetings,
		Schedule:             in.schedule,
		DeliveryRateType:     models.DeliveryEvenly,
		LineItemType:         models.LineItemStandard,
		CostType:             models.CostTypeCPM,
		CostPerUnit: models.Money{
			CurrencyCode: in.currency,
			MicroAmount:  int64(math.Round(in.brief.CPM * 1_000_000)),
		},
		GoalType:           models.GoalLifetime,
		GoalUnits:          units,
		AllowOverbook:      true,
		SkipInventoryCheck: true,
	}
	if in.brief.FrequencyCap > 0 {
		d.FrequencyCaps = []models.FrequencyCap{{MaxImpressions: in.brief.FrequencyCap, TimeUnit: models.TimeUnitLifetime}}
	}
	return d
}
