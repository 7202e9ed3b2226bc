package feed

import (
	"fmt"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// csvTime accepts RFC3339, "2006-01-02 15:04:05" and bare dates. Times
// without a zone are UTC.
type csvTime struct {
	time.Time
}

func (t *csvTime) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("unrecognised time %q", s)
}

func (t csvTime) MarshalCSV() (string, error) {
	return t.Time.Format(time.RFC3339), nil
}
