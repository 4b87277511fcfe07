package logbuffer

import (
	"testing"
	"time"
)

func TestRingEviction(t *testing.T) {
	buf := New(3)
	for i, msg := range []string{"a", "b", "c", "d"} {
		buf.Add(Entry{Message: msg, Timestamp: time.Unix(int64(i), 0)})
	}

	all := buf.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Message != "b" || all[2].Message != "d" {
		t.Fatalf("expected oldest entry evicted, got %v", all)
	}
}

func TestQueryFilters(t *testing.T) {
	buf := New(10)
	base := time.Unix(1000, 0)
	buf.Add(Entry{Level: "info", Component: "director", Message: "pick queued", Timestamp: base})
	buf.Add(Entry{Level: "warn", Component: "player", Message: "send failed", Timestamp: base.Add(time.Minute)})
	buf.Add(Entry{Level: "info", Component: "director", Message: "retry scheduled", Timestamp: base.Add(2 * time.Minute)})

	got := buf.Query(QueryParams{Level: "info", Component: "director"})
	if len(got) != 2 {
		t.Fatalf("expected 2 director info entries, got %d", len(got))
	}

	got = buf.Query(QueryParams{Search: "RETRY"})
	if len(got) != 1 || got[0].Message != "retry scheduled" {
		t.Fatalf("expected case-insensitive search hit, got %v", got)
	}

	got = buf.Query(QueryParams{Since: base.Add(30 * time.Second)})
	if len(got) != 2 {
		t.Fatalf("expected since filter to drop first entry, got %d", len(got))
	}

	got = buf.Query(QueryParams{Descending: true, Limit: 1})
	if len(got) != 1 || got[0].Message != "retry scheduled" {
		t.Fatalf("expected newest entry first, got %v", got)
	}
}

func TestWriterCapturesZerologJSON(t *testing.T) {
	buf := New(10)
	w := NewWriter(buf, nil)

	line := `{"level":"warn","component":"cache","message":"redis unavailable","time":1700000000,"addr":"localhost:6379"}` + "\n"
	if _, err := w.Write([]byte(line)); err != nil {
		t.Fatalf("write: %v", err)
	}

	all := buf.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 captured entry, got %d", len(all))
	}
	entry := all[0]
	if entry.Level != "warn" || entry.Component != "cache" || entry.Message != "redis unavailable" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Timestamp.Unix() != 1700000000 {
		t.Fatalf("unexpected timestamp: %v", entry.Timestamp)
	}
	if entry.Fields["addr"] != "localhost:6379" {
		t.Fatalf("expected extra fields preserved, got %v", entry.Fields)
	}
}

func TestWriterIgnoresNonJSON(t *testing.T) {
	buf := New(10)
	w := NewWriter(buf, nil)

	if _, err := w.Write([]byte("plain text line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.Stats().Count; got != 0 {
		t.Fatalf("expected nothing captured, got %d", got)
	}
}
