// Package mapscraper extracts PV system listings from the public
// pvoutput.org/map.jsp pages.  The map lists systems the search API
// won't return (search caps at 30 results), so bulk downloads over a
// whole country start here.
package mapscraper

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	mapURL = "https://pvoutput.org/map.jsp"

	// Hard stop for pagination in case the Next link never disappears.
	maxPages = 1024
)

var (
	sidRe        = regexp.MustCompile(`^display\.jsp\?sid=(\d+)$`)
	titleRe      = regexp.MustCompile(`(.*) (\d+\.\d+)kW`)
	imgRe        = regexp.MustCompile(`<img .*?>`)
	durationRe   = regexp.MustCompile(`(\d+) Days`)
	energyRe     = regexp.MustCompile(`(\d+(?:\.\d+)?)([Mk])Wh\b`)
	efficiencyRe = regexp.MustCompile(`(\d+(?:\.\d+)?)kWh/kW`)
)

// MapSystem is one row scraped from the systems map.  TimeseriesDays
// is how long the system has been reporting.
type MapSystem struct {
	SystemID                  int
	Name                      string
	SystemDCCapacityW         float64
	Address                   string
	Panel                     string
	Inverter                  string
	Orientation               string
	TimeseriesDays            int
	TotalEnergyGenWh          float64
	AverageDailyEnergyGenWh   float64
	AverageEfficiencyKWhPerKW float64
}

// Scraper fetches and parses map pages.
type Scraper struct {
	http   *resty.Client
	logger *zap.Logger
}

// New creates a Scraper.  A nil logger disables logging.
func New(logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		http:   resty.New(),
		logger: logger,
	}
}

// SystemsForCountry walks the map pages for a PVOutput country code
// (range 1-257) and returns every listed system.  Pagination stops at
// the first blank page or when the Next link disappears.
func (s *Scraper) SystemsForCountry(ctx context.Context, countryCode int) ([]MapSystem, error) {
	if countryCode < 1 || countryCode > 257 {
		return nil, fmt.Errorf("country code %d outside valid range [1, 257]", countryCode)
	}

	var systems []MapSystem
	for page := 0; page < maxPages; page++ {
		resp, err := s.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"country": strconv.Itoa(countryCode),
				"p":       strconv.Itoa(page),
			}).
			Get(mapURL)
		if err != nil {
			return nil, fmt.Errorf("fetching map page %d: %w", page, err)
		}
		if resp.StatusCode() >= 300 {
			return nil, fmt.Errorf("map page %d returned status %d", page, resp.StatusCode())
		}

		pageSystems, hasNext, err := ParsePage(strings.NewReader(resp.String()))
		if err != nil {
			return nil, fmt.Errorf("parsing map page %d: %w", page, err)
		}
		if len(pageSystems) == 0 {
			// Pages can be blank even when the previous page had a
			// Next link.
			break
		}
		systems = append(systems, pageSystems...)
		s.logger.Debug("scraped map page",
			zap.Int("page", page),
			zap.Int("systems", len(pageSystems)))

		if !hasNext {
			break
		}
	}
	return systems, nil
}

// ParsePage extracts the systems listed on one map page and reports
// whether the page links to a next one.
func ParsePage(r io.Reader) ([]MapSystem, bool, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, false, fmt.Errorf("parsing page: %w", err)
	}

	var systems []MapSystem
	var parseErr error
	doc.Find("a[href^='display.jsp?sid=']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		sys, err := parseSystemRow(sel)
		if err != nil {
			parseErr = err
			return false
		}
		systems = append(systems, sys)
		return true
	})
	if parseErr != nil {
		return nil, false, parseErr
	}

	hasNext := false
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		if strings.TrimSpace(sel.Text()) == "Next" {
			hasNext = true
		}
	})
	return systems, hasNext, nil
}

// parseSystemRow extracts one system from its display.jsp anchor.  The
// anchor's title attribute packs most of the metadata: a "Name 1.23kW"
// prefix, then "|"-separated key/value lines split by <br/>.
func parseSystemRow(sel *goquery.Selection) (MapSystem, error) {
	var sys MapSystem

	href, _ := sel.Attr("href")
	m := sidRe.FindStringSubmatch(href)
	if m == nil {
		return sys, fmt.Errorf("unexpected href %q", href)
	}
	sys.SystemID, _ = strconv.Atoi(m[1])

	title, _ := sel.Attr("title")
	name, meta, _ := strings.Cut(title, "|")
	tm := titleRe.FindStringSubmatch(strings.TrimSpace(name))
	if tm == nil {
		return sys, fmt.Errorf("system %d: unexpected title %q", sys.SystemID, title)
	}
	sys.Name = tm[1]
	capacityKW, err := strconv.ParseFloat(tm[2], 64)
	if err != nil {
		return sys, fmt.Errorf("system %d: capacity: %w", sys.SystemID, err)
	}
	sys.SystemDCCapacityW = capacityKW * 1e3

	for _, line := range strings.Split(meta, "<br/>") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		// Some values contain a colon; Cut keeps the remainder intact.
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Location":
			sys.Address = strings.TrimSpace(imgRe.ReplaceAllString(value, ""))
		case "Panels":
			sys.Panel = value
		case "Inverter":
			sys.Inverter = value
		case "Orientation":
			sys.Orientation = value
		}
	}

	// The surrounding table row carries the reporting duration, total
	// and average generation, and efficiency.
	row := sel.Closest("tr").Text()
	if m := durationRe.FindStringSubmatch(row); m != nil {
		sys.TimeseriesDays, _ = strconv.Atoi(m[1])
	}
	if m := efficiencyRe.FindStringSubmatch(row); m != nil {
		sys.AverageEfficiencyKWhPerKW, _ = strconv.ParseFloat(m[1], 64)
	}
	energies := energyRe.FindAllStringSubmatch(row, -1)
	if len(energies) >= 2 {
		sys.TotalEnergyGenWh = energyWh(energies[0])
		sys.AverageDailyEnergyGenWh = energyWh(energies[1])
	}

	return sys, nil
}

func energyWh(m []string) float64 {
	v, _ := strconv.ParseFloat(m[1], 64)
	if m[2] == "M" {
		return v * 1e6
	}
	return v * 1e3
}
