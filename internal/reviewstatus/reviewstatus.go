// Package reviewstatus derives how stale a product's last revision is and
// labels draft states for display.
package reviewstatus

import (
	"strings"
	"time"

	"modelcards/api/internal/fieldpath"
	"modelcards/api/internal/store"
)

type Bucket string

const (
	BucketRecent       Bucket = "Recent"
	BucketDueSoon      Bucket = "Due Soon"
	BucketOverdue      Bucket = "Overdue"
	BucketCritical     Bucket = "Critical"
	BucketNotAvailable Bucket = "Not available"
)

type Source string

const (
	SourceNone          Source = ""
	SourceCertification Source = "certification"
	SourceRecord        Source = "record"
)

const NotAvailable = "Not available"

// RevisionDate is the effective last-revised date and where it came from.
type RevisionDate struct {
	Date   *time.Time `json:"date,omitempty"`
	Source Source     `json:"source,omitempty"`
}

var declaredLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01",
	"2006",
}

// ParseDeclared reads a record-declared date. Unparseable input is treated
// as missing.
func ParseDeclared(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range declaredLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// DeclaredDate returns the record's own revision date, preferring
// lastRevised over lastUpdated.
func DeclaredDate(rec fieldpath.Record) string {
	for _, key := range []string{"lastRevised", "lastUpdated"} {
		if text, ok := rec[key].(string); ok && strings.TrimSpace(text) != "" {
			return text
		}
	}
	return ""
}

// Merge picks the more recent of the certification timestamp and the
// declared date. Ties go to the certification.
func Merge(certifiedAt *time.Time, declared string) RevisionDate {
	declaredAt, hasDeclared := ParseDeclared(declared)
	switch {
	case certifiedAt != nil && (!hasDeclared || !declaredAt.After(*certifiedAt)):
		at := certifiedAt.UTC()
		return RevisionDate{Date: &at, Source: SourceCertification}
	case hasDeclared:
		return RevisionDate{Date: &declaredAt, Source: SourceRecord}
	default:
		return RevisionDate{}
	}
}

// DaysElapsed counts whole calendar days between from and now in UTC.
func DaysElapsed(from, now time.Time) int {
	start := truncateDay(from)
	end := truncateDay(now)
	return int(end.Sub(start).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Classify(days int) Bucket {
	switch {
	case days <= 90:
		return BucketRecent
	case days <= 180:
		return BucketDueSoon
	case days <= 365:
		return BucketOverdue
	default:
		return BucketCritical
	}
}

type Status struct {
	Bucket       Bucket `json:"bucket"`
	DaysElapsed  *int   `json:"daysElapsed,omitempty"`
	LastRevised  string `json:"lastRevised"`
	Source       Source `json:"source,omitempty"`
	DeclaredDate string `json:"declaredDate"`
}

// Evaluate computes the display status for a record. Missing or invalid
// dates yield "Not available" rather than an error.
func Evaluate(declared string, certifiedAt *time.Time, now time.Time) Status {
	merged := Merge(certifiedAt, declared)
	status := Status{
		Bucket:       BucketNotAvailable,
		LastRevised:  NotAvailable,
		Source:       merged.Source,
		DeclaredDate: NotAvailable,
	}
	if declaredAt, ok := ParseDeclared(declared); ok {
		status.DeclaredDate = declaredAt.Format("2006-01-02")
	}
	if merged.Date == nil {
		return status
	}
	days := DaysElapsed(*merged.Date, now)
	if days < 0 {
		days = 0
	}
	status.DaysElapsed = &days
	status.Bucket = Classify(days)
	status.LastRevised = merged.Date.Format("2006-01-02")
	return status
}

type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
)

type Badge struct {
	Label string `json:"label"`
	Tone  Tone   `json:"tone"`
}

func DraftBadge(status store.DraftStatus) Badge {
	switch status {
	case store.StatusDraft:
		return Badge{Label: "Draft", Tone: ToneNeutral}
	case store.StatusPendingReview:
		return Badge{Label: "Pending review", Tone: ToneInfo}
	case store.StatusApproved:
		return Badge{Label: "Approved", Tone: ToneSuccess}
	case store.StatusRejected:
		return Badge{Label: "Changes requested", Tone: ToneWarning}
	case store.StatusApplied:
		return Badge{Label: "Published", Tone: ToneSuccess}
	default:
		return Badge{Label: NotAvailable, Tone: ToneNeutral}
	}
}
