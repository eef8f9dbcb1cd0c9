package importer

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
	// ISODateLayout is the stored form of Date and DateTime observations.
	ISODateLayout = "2006-01-02T15:04:05.000-07:00"
)

// ToISODate converts "yyyy-MM-dd" or "yyyy-MM-dd HH:mm:ss" in loc to the
// stored ISO form. Dates without a time are taken at local midnight.
func ToISODate(s string, loc *time.Location) (string, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	layout := dateLayout
	if len(s) > len(dateLayout) {
		layout = dateTimeLayout
	}
	t, err := time.ParseInLocation(layout, s, loc)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected yyyy-MM-dd or yyyy-MM-dd HH:mm:ss", s)
	}
	return t.Format(ISODateLayout), nil
}
