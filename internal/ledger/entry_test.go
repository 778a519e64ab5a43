package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testEntry() *Entry {
	return &Entry{
		ID:           uuid.New(),
		ReportID:     "rpt_2024_q3",
		Sequence:     0,
		EventType:    EventReportGenerated,
		Actor:        "system",
		Metadata:     map[string]any{"model": "gpt-4-turbo", "tokens": 1532},
		Timestamp:    time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC),
		PreviousHash: GenesisHash,
	}
}

func TestComputeHash_deterministic(t *testing.T) {
	a := testEntry()
	b := testEntry()
	b.ID = a.ID
	// Same metadata, different construction order.
	b.Metadata = map[string]any{"tokens": 1532, "model": "gpt-4-turbo"}

	ha, err := computeHash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := computeHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Errorf("identical entries hashed differently: %s vs %s", ha, hb)
	}
	if len(ha) != 64 {
		t.Errorf("expected 64-hex digest, got %q", ha)
	}
}

func TestComputeHash_coversEveryField(t *testing.T) {
	base, err := computeHash(testEntry())
	if err != nil {
		t.Fatal(err)
	}

	mutations := map[string]func(*Entry){
		"reportId":     func(e *Entry) { e.ReportID = "rpt_other" },
		"sequence":     func(e *Entry) { e.Sequence = 1 },
		"eventType":    func(e *Entry) { e.EventType = EventReportApproved },
		"actor":        func(e *Entry) { e.Actor = "mallory" },
		"metadata":     func(e *Entry) { e.Metadata["tokens"] = 1533 },
		"timestamp":    func(e *Entry) { e.Timestamp = e.Timestamp.Add(time.Microsecond) },
		"previousHash": func(e *Entry) { e.PreviousHash = "deadbeef" },
	}
	for field, mutate := range mutations {
		e := testEntry()
		mutate(e)
		h, err := computeHash(e)
		if err != nil {
			t.Fatalf("%s: %v", field, err)
		}
		if h == base {
			t.Errorf("changing %s did not change the hash", field)
		}
	}
}

func TestComputeHash_nilMetadata(t *testing.T) {
	e := testEntry()
	e.Metadata = nil
	if _, err := computeHash(e); err != nil {
		t.Fatalf("nil metadata should hash: %v", err)
	}
}

func TestEventType_Valid(t *testing.T) {
	valid := []EventType{
		EventReportGenerated, EventCitationAttached,
		EventReportApproved, EventReportRejected, EventReportPublished,
	}
	for _, et := range valid {
		if !et.Valid() {
			t.Errorf("%s should be valid", et)
		}
	}
	for _, et := range []EventType{"", "REPORT_DELETED", "report_generated"} {
		if et.Valid() {
			t.Errorf("%q should be invalid", et)
		}
	}
}
