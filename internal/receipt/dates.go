package receipt

import (
	"strings"
	"time"

	"github.com/lkaczmarek/paragon-pipeline/internal/common"
)

// dateLayouts is the fixed, ordered list of formats receipts show up in.
// First matching layout wins.
var dateLayouts = []string{
	"2006-01-02",       // ISO
	"02.01.2006",       // dotted (Polish receipts)
	"2006-01-02 15:04", // ISO with time
	"02.01.2006 15:04", // dotted with time
	"02-01-2006",       // dashed
}

// ParseDate converts a receipt date string to a calendar date. A string that
// matches no known layout is a hard failure: substituting "today" would mask
// data-quality problems.
func ParseDate(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, common.NewPipelineError(common.KindUnparsableDate, "empty date", nil)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, common.NewPipelineError(common.KindUnparsableDate, "unrecognized date format: "+trimmed, nil)
}
