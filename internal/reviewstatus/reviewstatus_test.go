package reviewstatus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelcards/api/internal/fieldpath"
	"modelcards/api/internal/store"
)

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		days int
		want Bucket
	}{
		{0, BucketRecent},
		{90, BucketRecent},
		{91, BucketDueSoon},
		{180, BucketDueSoon},
		{181, BucketOverdue},
		{365, BucketOverdue},
		{366, BucketCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.days), "days=%d", tc.days)
	}
}

func TestMergePrefersMoreRecentDate(t *testing.T) {
	certified := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	merged := Merge(&certified, "2024-01-15")
	require.NotNil(t, merged.Date)
	assert.Equal(t, SourceCertification, merged.Source)
	assert.Equal(t, certified, *merged.Date)

	merged = Merge(&certified, "2024-06-30")
	assert.Equal(t, SourceRecord, merged.Source)
	assert.Equal(t, "2024-06-30", merged.Date.Format("2006-01-02"))

	merged = Merge(nil, "2024-06-30")
	assert.Equal(t, SourceRecord, merged.Source)

	merged = Merge(nil, "soon")
	assert.Nil(t, merged.Date)
	assert.Equal(t, SourceNone, merged.Source)
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	status := Evaluate("2024-10-03", nil, now)
	require.NotNil(t, status.DaysElapsed)
	assert.Equal(t, 90, *status.DaysElapsed)
	assert.Equal(t, BucketRecent, status.Bucket)
	assert.Equal(t, "2024-10-03", status.LastRevised)

	status = Evaluate("2024-10-02", nil, now)
	assert.Equal(t, BucketDueSoon, status.Bucket)

	certified := time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)
	status = Evaluate("", &certified, now)
	assert.Equal(t, 367, *status.DaysElapsed)
	assert.Equal(t, BucketCritical, status.Bucket)
	assert.Equal(t, SourceCertification, status.Source)
	assert.Equal(t, NotAvailable, status.DeclaredDate)
}

func TestEvaluateMissingDates(t *testing.T) {
	status := Evaluate("", nil, time.Now())
	assert.Equal(t, BucketNotAvailable, status.Bucket)
	assert.Equal(t, NotAvailable, status.LastRevised)
	assert.Nil(t, status.DaysElapsed)

	status = Evaluate("31/12/2024", nil, time.Now())
	assert.Equal(t, NotAvailable, status.LastRevised)
}

func TestDeclaredDate(t *testing.T) {
	assert.Equal(t, "2024-05-01", DeclaredDate(fieldpath.Record{"lastRevised": "2024-05-01", "lastUpdated": "2023-01-01"}))
	assert.Equal(t, "2023-01-01", DeclaredDate(fieldpath.Record{"lastRevised": " ", "lastUpdated": "2023-01-01"}))
	assert.Equal(t, "", DeclaredDate(fieldpath.Record{}))
}

func TestDraftBadge(t *testing.T) {
	assert.Equal(t, "Pending review", DraftBadge(store.StatusPendingReview).Label)
	assert.Equal(t, ToneWarning, DraftBadge(store.StatusRejected).Tone)
	assert.Equal(t, NotAvailable, DraftBadge("").Label)
}
