// Package contest lists the public Cabrillo logs that contest sponsors
// publish after each edition.
package contest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rogercaminal/hamcontestlog/internal/domain"
)

var (
	// ErrEditionNotFound means the sponsor has no public logs for the
	// requested year and mode.
	ErrEditionNotFound = fmt.Errorf("contest edition %w", domain.ErrNotFound)

	// ErrUnsupportedMode is returned for modes the contest does not run.
	ErrUnsupportedMode = errors.New("unsupported mode")

	// callsignRe matches anchor text that looks like a callsign, including
	// portable forms such as "EA8/EF6T".
	callsignRe = regexp.MustCompile(`^[A-Z0-9]+(?:/[A-Z0-9]+)*$`)

	yearRe = regexp.MustCompile(`^\d{4}$`)
)

// Catalog implements pipeline.ContestCatalog for one contest definition.
type Catalog struct {
	def        Definition
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCatalog creates a catalog that scrapes def's public log pages.
func NewCatalog(def Definition, timeout time.Duration, logger *slog.Logger) *Catalog {
	return &Catalog{
		def:        def,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Name returns the contest name.
func (c *Catalog) Name() string { return c.def.Name }

// ListLogs returns every log published for the given year and mode, in page
// order.
func (c *Catalog) ListLogs(ctx context.Context, year int, mode string) ([]domain.LogRef, error) {
	if !c.def.SupportsMode(mode) {
		return nil, fmt.Errorf("%w: %s does not run %s", ErrUnsupportedMode, c.def.Name, mode)
	}
	pageURL, err := c.participantsURL(ctx, year, mode)
	if err != nil {
		return nil, err
	}
	doc, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	refs, err := ParseLogLinks(pageURL, doc)
	if err != nil {
		return nil, err
	}
	c.logger.Info("contest logs listed",
		"contest", c.def.Name,
		"year", year,
		"mode", mode,
		"logs", len(refs),
	)
	return refs, nil
}

func (c *Catalog) participantsURL(ctx context.Context, year int, mode string) (string, error) {
	if c.def.YearIndexURL == "" {
		return ExpandURL(c.def.ParticipantsURL, year, mode), nil
	}
	doc, err := c.fetch(ctx, c.def.YearIndexURL)
	if err != nil {
		return "", err
	}
	years, err := ParseYearIndex(c.def.YearIndexURL, doc)
	if err != nil {
		return "", err
	}
	u, ok := years[year]
	if !ok {
		return "", fmt.Errorf("%w: %s %d", ErrEditionNotFound, c.def.Name, year)
	}
	return u, nil
}

func (c *Catalog) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, fmt.Errorf("%w: %s: status %d", ErrEditionNotFound, pageURL, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}

// ExpandURL fills the {year} and {mode} placeholders of a URL template.
func ExpandURL(template string, year int, mode string) string {
	return strings.NewReplacer(
		"{year}", strconv.Itoa(year),
		"{mode}", strings.ToLower(mode),
	).Replace(template)
}

// ParseLogLinks extracts one LogRef per callsign anchor in doc. Relative
// links are resolved against pageURL. A callsign listed twice keeps its
// last link.
func ParseLogLinks(pageURL string, doc *goquery.Document) ([]domain.LogRef, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var refs []domain.LogRef
	index := make(map[string]int)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		call := strings.ToUpper(strings.TrimSpace(a.Text()))
		if !isCallsign(call) {
			return
		}
		href, _ := a.Attr("href")
		link, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		ref := domain.LogRef{Callsign: call, URL: link.String()}
		if i, ok := index[call]; ok {
			refs[i] = ref
			return
		}
		index[call] = len(refs)
		refs = append(refs, ref)
	})
	return refs, nil
}

// ParseYearIndex maps each four-digit year anchor in doc to its absolute
// participants URL. Only anchors that point back at the index page itself,
// for the same event and with an edition id ("publiclogs.php?eid=4&iid=N"),
// count; news or archive links labelled with a year are ignored.
func ParseYearIndex(pageURL string, doc *goquery.Document) (map[int]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	years := make(map[int]string)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		if !yearRe.MatchString(text) {
			return
		}
		href, _ := a.Attr("href")
		link, err := base.Parse(href)
		if err != nil || !isEditionLink(base, link) {
			return
		}
		year, _ := strconv.Atoi(text)
		years[year] = link.String()
	})
	return years, nil
}

func isEditionLink(index, link *url.URL) bool {
	if link.Host != index.Host || link.Path != index.Path {
		return false
	}
	q := link.Query()
	if q.Get("iid") == "" {
		return false
	}
	eid := index.Query().Get("eid")
	return eid == "" || q.Get("eid") == eid
}

// isCallsign requires at least one letter and one digit so navigation links
// ("HOME", "2024") are skipped.
func isCallsign(s string) bool {
	if len(s) < 3 || !callsignRe.MatchString(s) {
		return false
	}
	return strings.ContainsAny(s, "0123456789") && strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
}
