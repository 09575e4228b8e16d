package id_test

import (
	"testing"

	"github.com/queueworks/forq/id"
)

func TestNew_GeneratesPrefixedID(t *testing.T) {
	jobID := id.NewJobID()
	if jobID.IsNil() {
		t.Fatal("NewJobID returned a nil ID")
	}
	if jobID.Prefix() != id.PrefixJob {
		t.Errorf("Prefix() = %q, want %q", jobID.Prefix(), id.PrefixJob)
	}
	if got := jobID.String(); len(got) == 0 {
		t.Error("String() returned empty string for valid ID")
	}
}

func TestNew_IDsAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		s := id.NewJobID().String()
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate ID generated: %s", s)
		}
		seen[s] = struct{}{}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	orig := id.NewWorkerID()

	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", orig.String(), err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), orig.String())
	}
}

func TestParse_RejectsEmptyString(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("Parse(\"\") succeeded, want error")
	}
}

func TestParseWithPrefix_RejectsWrongPrefix(t *testing.T) {
	workerID := id.NewWorkerID()

	if _, err := id.ParseJobID(workerID.String()); err == nil {
		t.Errorf("ParseJobID(%q) succeeded, want prefix mismatch error", workerID.String())
	}
}

func TestID_NilBehavior(t *testing.T) {
	var nilID id.ID

	if !nilID.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID String() = %q, want empty", nilID.String())
	}
	if nilID.Prefix() != "" {
		t.Errorf("nil ID Prefix() = %q, want empty", nilID.Prefix())
	}
}

func TestID_TextMarshaling(t *testing.T) {
	orig := id.NewJobID()

	data, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText error: %v", err)
	}

	var decoded id.ID
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText error: %v", err)
	}
	if decoded.String() != orig.String() {
		t.Errorf("text round trip = %q, want %q", decoded.String(), orig.String())
	}

	var nilDecoded id.ID
	if err := nilDecoded.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil) error: %v", err)
	}
	if !nilDecoded.IsNil() {
		t.Error("UnmarshalText of empty data should yield the Nil ID")
	}
}
