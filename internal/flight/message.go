package flight

import "strings"

// MessagePrefix opens every flight post. Recognizing our own posts in a feed
// relies on it, so changing it strands the last-posted lookup.
const MessagePrefix = "***New Flight***\n\n"

const fieldSep = ": "

// Label order matches the rendered message, one line per field.
var fieldLabels = [...]string{"Date", "Origin", "Destination", "Departure", "Arrival", "Duration"}

// RenderMessage formats a flight for posting. ParseMessage inverts it.
func RenderMessage(f Flight) string {
	var b strings.Builder
	b.WriteString(MessagePrefix)
	for i, v := range []string{f.Date, f.Origin, f.Destination, f.Departure, f.Arrival, f.Duration} {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(fieldLabels[i])
		b.WriteString(fieldSep)
		b.WriteString(v)
	}
	return b.String()
}

// ParseMessage recovers a flight from a rendered message. It reports false
// when the text does not start with MessagePrefix; a matching prefix with
// malformed lines yields a partial flight, which callers should gate with
// Complete before trusting.
func ParseMessage(s string) (Flight, bool) {
	rest, ok := strings.CutPrefix(s, MessagePrefix)
	if !ok {
		return Flight{}, false
	}
	var f Flight
	for i := range fieldLabels {
		v, tail, ok := nextField(rest)
		if !ok {
			break
		}
		switch i {
		case 0:
			f.Date = v
		case 1:
			f.Origin = v
		case 2:
			f.Destination = v
		case 3:
			f.Departure = v
		case 4:
			f.Arrival = v
		case 5:
			f.Duration = v
		}
		rest = tail
	}
	return f, true
}

// nextField pulls the value after the first separator on the current line
// and returns the remainder after the line break. The last line has no
// break, so the value runs to the end of the string.
func nextField(s string) (val, rest string, ok bool) {
	sep := strings.Index(s, fieldSep)
	if sep < 0 {
		return "", "", false
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return s[sep+len(fieldSep):], "", true
	}
	if sep > nl {
		return "", "", false
	}
	return s[sep+len(fieldSep) : nl], s[nl+1:], true
}
