package scrape

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tailbot/internal/flight"
)

var (
	// ErrNoFlights means the page had no recognizable history rows at all.
	ErrNoFlights = errors.New("scrape: no flight rows found")

	// ErrLayoutChanged means a row was present but a field could not be
	// extracted. Both errors usually mean the site changed its markup.
	ErrLayoutChanged = errors.New("scrape: page layout changed")
)

// ParseHistory extracts finished flights from a history page, newest first
// in the markup, returned oldest first. Rows still in the air are skipped.
// Walking stops at the first row equal to since, so only newer flights come
// back. One bad row fails the whole page: partial reads against a drifted
// layout are worse than no reads.
func ParseHistory(r io.Reader, since *flight.Flight) ([]flight.Flight, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("scrape: parse html: %w", err)
	}

	rows := doc.Find("tr[data-target]")
	if rows.Length() == 0 {
		return nil, ErrNoFlights
	}

	flights := make([]flight.Flight, 0, rows.Length())
	var rowErr error
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		f, err := extractRow(row)
		if err != nil {
			rowErr = fmt.Errorf("%w: row %d: %v", ErrLayoutChanged, i, err)
			return false
		}
		if !f.Finished() {
			return true
		}
		if since != nil && f == *since {
			return false
		}
		flights = append(flights, f)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	slices.Reverse(flights)
	return flights, nil
}

// extractRow pulls one flight out of a table row. The date is the first
// link's text, origin/destination are the title attributes of the first two
// titled spans, and the three trailing cells hold departure, arrival, and
// duration.
func extractRow(row *goquery.Selection) (flight.Flight, error) {
	var f flight.Flight

	anchor := row.Find("a[href]").First()
	if anchor.Length() == 0 {
		return f, errors.New("missing date link")
	}
	f.Date = strings.TrimSpace(anchor.Text())

	airports := row.Find("span[title]")
	if airports.Length() < 2 {
		return f, errors.New("missing airport spans")
	}
	f.Origin = airports.Eq(0).AttrOr("title", "")
	f.Destination = airports.Eq(1).AttrOr("title", "")

	cells := row.Find("td")
	n := cells.Length()
	if n < 3 {
		return f, errors.New("missing time cells")
	}
	f.Departure = joinFields(cells.Eq(n - 3).Text())
	f.Arrival = joinFields(cells.Eq(n - 2).Text())
	f.Duration = strings.TrimSpace(cells.Eq(n - 1).Text())

	if !f.Complete() {
		return f, fmt.Errorf("empty field in %+v", f)
	}
	return f, nil
}

// joinFields collapses the cell's text fragments (time and timezone sit in
// separate elements) into one space-separated string.
func joinFields(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
