package cycle

import (
	"testing"
	"time"
)

func FuzzParse(f *testing.F) {
	f.Add(`0.5`)
	f.Add(`{"type":"fixed","value":3}`)
	f.Add(`{"type":"linear","min":0,"max":360,"period":86400,"epoch":"2000-01-01T12:00:00Z"}`)
	f.Add(`[1,{"type":"linear","max":2,"period":10}]`)
	f.Add(`{"type":"linear","period":0}`)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.Fuzz(func(t *testing.T, data string) {
		c, err := Parse([]byte(data))
		if err != nil {
			return
		}
		// Anything that parses must resolve or fail cleanly, and re-encode.
		_, _ = c.Resolve(now)
		if _, err := Encode(c); err != nil {
			t.Fatalf("encode parsed %q: %v", data, err)
		}
	})
}
