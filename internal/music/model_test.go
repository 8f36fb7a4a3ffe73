// SPDX-License-Identifier: MIT

package music

import (
	"testing"
	"time"
)

func TestCopyrightStatusSafeToUse(t *testing.T) {
	cases := []struct {
		status CopyrightStatus
		safe   bool
	}{
		{CopyrightPublicDomain, true},
		{CopyrightCreativeCommons, true},
		{CopyrightRoyaltyFree, true},
		{CopyrightUnknown, false},
		{CopyrightCopyrighted, false},
	}
	for _, tc := range cases {
		if got := tc.status.SafeToUse(); got != tc.safe {
			t.Errorf("SafeToUse(%s) = %v, want %v", tc.status, got, tc.safe)
		}
	}
}

func TestParseCopyrightStatus(t *testing.T) {
	if got := ParseCopyrightStatus("creative_commons"); got != CopyrightCreativeCommons {
		t.Errorf("ParseCopyrightStatus(creative_commons) = %s", got)
	}
	if got := ParseCopyrightStatus("some_new_license"); got != CopyrightUnknown {
		t.Errorf("ParseCopyrightStatus(unrecognized) = %s, want unknown", got)
	}
	if got := ParseCopyrightStatus(""); got != CopyrightUnknown {
		t.Errorf("ParseCopyrightStatus(empty) = %s, want unknown", got)
	}
}

func TestDurationFormatted(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{125.5, "2:05"},
		{60, "1:00"},
		{59.9, "0:59"},
		{600, "10:00"},
	}
	for _, tc := range cases {
		rec := Recommendation{Duration: tc.seconds}
		if got := rec.DurationFormatted(); got != tc.want {
			t.Errorf("DurationFormatted(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestLibraryEntryMarkUsed(t *testing.T) {
	entry := LibraryEntry{DownloadedAt: time.Now()}
	if entry.UseCount != 0 || entry.LastUsedAt != nil {
		t.Fatalf("fresh entry should be unused")
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry.MarkUsed(now)
	entry.MarkUsed(now.Add(time.Hour))

	if entry.UseCount != 2 {
		t.Errorf("UseCount = %d, want 2", entry.UseCount)
	}
	if entry.LastUsedAt == nil || !entry.LastUsedAt.Equal(now.Add(time.Hour)) {
		t.Errorf("LastUsedAt = %v, want %v", entry.LastUsedAt, now.Add(time.Hour))
	}
}

func TestLibraryEntryExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	downloaded := now.AddDate(0, 0, -40)
	recentUse := now.AddDate(0, 0, -5)

	old := LibraryEntry{DownloadedAt: downloaded}
	if !old.Expired(now, 30) {
		t.Error("entry downloaded 40 days ago should be expired at maxAge 30")
	}

	// A recent use resets the age basis.
	used := LibraryEntry{DownloadedAt: downloaded, LastUsedAt: &recentUse}
	if used.Expired(now, 30) {
		t.Error("entry used 5 days ago should not be expired at maxAge 30")
	}

	if old.Expired(now, 0) {
		t.Error("maxAge 0 disables expiry")
	}
}
