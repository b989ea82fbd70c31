package yaaf

import (
	"testing"
	"time"
)

func TestPackedDateTimeRoundTrip(t *testing.T) {
	cases := []time.Time{
		time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC),
		time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2127, time.December, 31, 23, 31, 31, 0, time.UTC),
	}
	for _, want := range cases {
		t.Run(want.String(), func(t *testing.T) {
			packed, err := packDateTime(want)
			if err != nil {
				t.Fatalf("packDateTime: %v", err)
			}
			got := unpackDateTime(packed)
			if !got.Equal(want) {
				t.Fatalf("unpackDateTime(packDateTime(%v)) = %v", want, got)
			}
		})
	}
}

func TestPackedDateTimeOutOfRange(t *testing.T) {
	if _, err := packDateTime(time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("expected error for year before 2000")
	}
	if !IsKind(mustErr(packDateTime(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))), KindWriterDateOutOfRange) {
		t.Fatal("expected KindWriterDateOutOfRange")
	}
}

func mustErr(_ [6]byte, err error) error { return err }
