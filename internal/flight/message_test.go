package flight

import "testing"

var sampleFlight = Flight{
	Date:        "02-Jan-2023",
	Origin:      "Portland Intl (KPDX)",
	Destination: "Seattle-Tacoma Intl (KSEA)",
	Departure:   "11:02AM PST",
	Arrival:     "11:48AM PST",
	Duration:    "0:46",
}

const sampleMessage = "***New Flight***\n\n" +
	"Date: 02-Jan-2023\n" +
	"Origin: Portland Intl (KPDX)\n" +
	"Destination: Seattle-Tacoma Intl (KSEA)\n" +
	"Departure: 11:02AM PST\n" +
	"Arrival: 11:48AM PST\n" +
	"Duration: 0:46"

func TestRenderMessage(t *testing.T) {
	if got := RenderMessage(sampleFlight); got != sampleMessage {
		t.Fatalf("RenderMessage mismatch:\ngot:\n%s\nwant:\n%s", got, sampleMessage)
	}
}

func TestParseMessageRoundTrip(t *testing.T) {
	got, ok := ParseMessage(RenderMessage(sampleFlight))
	if !ok {
		t.Fatalf("ParseMessage rejected a rendered message")
	}
	if got != sampleFlight {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, sampleFlight)
	}
	if !got.Complete() {
		t.Fatalf("round-tripped flight not complete: %+v", got)
	}
}

func TestParseMessageForeignText(t *testing.T) {
	for _, text := range []string{
		"",
		"Date: 02-Jan-2023",
		"New Flight\n\nDate: 02-Jan-2023",
		"***New Flight*** Date: 02-Jan-2023",
	} {
		if _, ok := ParseMessage(text); ok {
			t.Errorf("ParseMessage accepted %q", text)
		}
	}
}

func TestParseMessagePartial(t *testing.T) {
	// A matching prefix with broken lines parses, but incompletely.
	f, ok := ParseMessage("***New Flight***\n\nDate: 02-Jan-2023\ngarbage line\nDestination: KSEA")
	if !ok {
		t.Fatalf("ParseMessage rejected a prefixed message")
	}
	if f.Date != "02-Jan-2023" {
		t.Fatalf("Date = %q, want 02-Jan-2023", f.Date)
	}
	if f.Complete() {
		t.Fatalf("partial parse reported complete: %+v", f)
	}
}

func TestParseMessageValueWithSeparator(t *testing.T) {
	f := sampleFlight
	f.Origin = "Somewhere: With Colon (XXXX)"
	got, ok := ParseMessage(RenderMessage(f))
	if !ok || got != f {
		t.Fatalf("round trip with separator in value: got %+v ok=%v, want %+v", got, ok, f)
	}
}
