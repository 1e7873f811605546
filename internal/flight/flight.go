package flight

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Statuses shown in the duration column while a flight has not landed yet.
// Rows carrying one of these are skipped, never posted.
var unfinishedStatuses = [...]string{"Scheduled", "En Route"}

// Flight is one row of an aircraft's history table. All fields are kept as
// the page renders them (free text); Departure/Arrival include the timezone
// suffix separated by a single space.
type Flight struct {
	Date        string `json:"date"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Departure   string `json:"departure"`
	Arrival     string `json:"arrival"`
	Duration    string `json:"duration"`
}

// Complete reports whether every field was extracted. A row with any empty
// field means the page layout changed under us.
func (f Flight) Complete() bool {
	return f.Date != "" &&
		f.Origin != "" &&
		f.Destination != "" &&
		f.Departure != "" &&
		f.Arrival != "" &&
		f.Duration != ""
}

// Finished reports whether the flight has landed (its duration column holds
// an actual duration rather than an in-progress status).
func (f Flight) Finished() bool {
	for _, s := range unfinishedStatuses {
		if f.Duration == s {
			return false
		}
	}
	return true
}

// Key returns a stable identifier over all six fields, used to dedup posts
// across runs. Fields are joined with a separator that cannot occur in page
// text before hashing.
func (f Flight) Key() string {
	h := fnv.New64a()
	for _, v := range []string{f.Date, f.Origin, f.Destination, f.Departure, f.Arrival, f.Duration} {
		_, _ = h.Write([]byte(v))
		_, _ = h.Write([]byte{0x1f})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// String is a compact log representation; never used for posting.
func (f Flight) String() string {
	var b strings.Builder
	b.WriteString(f.Date)
	b.WriteString(" ")
	b.WriteString(f.Origin)
	b.WriteString(" > ")
	b.WriteString(f.Destination)
	return b.String()
}
