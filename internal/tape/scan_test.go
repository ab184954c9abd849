package tape

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// unsealedSession captures n records and closes the file without writing
// the index, simulating a crashed process.
func unsealedSession(t *testing.T, n int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "crashed.tape")
	w, err := OpenForCapture(path, &Header{StartedAt: 42}, nil)
	if err != nil {
		t.Fatalf("open for capture: %v", err)
	}
	for i := 0; i < n; i++ {
		body := []byte(`{"model":"x","n":` + string(rune('0'+i)) + `}`)
		if _, err := w.Append("POST", "/v1/messages", body, []byte("resp"), 5); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	return path
}

func TestReplayRejectsUnsealedFile(t *testing.T) {
	path := unsealedSession(t, 2)

	_, err := OpenForReplay(path)
	var te *TruncatedIndexError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TruncatedIndexError", err)
	}
}

func TestScanSealedFile(t *testing.T) {
	path := captureSession(t, nil, `{"a":1}`, `{"a":2}`, `{"a":3}`)

	var got []*Record
	h, sealed, err := Scan(path, func(off int64, rec *Record, cerr *CorruptRecordError) bool {
		if cerr != nil {
			t.Errorf("unexpected corrupt record at %d: %v", off, cerr)
			return true
		}
		got = append(got, rec)
		return true
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !sealed {
		t.Error("sealed file reported as unsealed")
	}
	if h.StartedAt != 1700000000000 {
		t.Errorf("header started_at %d", h.StartedAt)
	}
	if len(got) != 3 {
		t.Fatalf("scanned %d records, want 3", len(got))
	}
	if string(got[1].Request) != `{"a":2}` {
		t.Errorf("record 1 request %q", got[1].Request)
	}
}

func TestScanUnsealedFile(t *testing.T) {
	path := unsealedSession(t, 3)

	var n int
	_, sealed, err := Scan(path, func(off int64, rec *Record, cerr *CorruptRecordError) bool {
		if cerr != nil {
			t.Errorf("unexpected corrupt record at %d: %v", off, cerr)
			return true
		}
		n++
		return true
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if sealed {
		t.Error("unsealed file reported as sealed")
	}
	if n != 3 {
		t.Errorf("scanned %d records, want 3", n)
	}
}

func TestScanStopsAtTruncatedRecord(t *testing.T) {
	path := unsealedSession(t, 3)

	// Cut the last record short. The first two stay readable; the scan
	// reports the damage and stops.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := os.Truncate(path, info.Size()-5); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	var good, corrupt int
	_, _, err = Scan(path, func(off int64, rec *Record, cerr *CorruptRecordError) bool {
		if cerr != nil {
			corrupt++
		} else {
			good++
		}
		return true
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if good != 2 {
		t.Errorf("readable records %d, want 2", good)
	}
	if corrupt != 1 {
		t.Errorf("corrupt reports %d, want 1", corrupt)
	}
}

func TestRecoverUnsealedFile(t *testing.T) {
	src := unsealedSession(t, 3)
	dst := filepath.Join(t.TempDir(), "recovered.tape")

	res, err := Recover(src, dst)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if res.Recovered != 3 || res.Corrupt != 0 {
		t.Fatalf("recovered=%d corrupt=%d, want 3/0", res.Recovered, res.Corrupt)
	}
	if res.Sealed {
		t.Error("source reported as sealed")
	}

	// The recovered file is sealed and replays the original calls.
	s, err := OpenForReplay(dst)
	if err != nil {
		t.Fatalf("open recovered file: %v", err)
	}
	defer s.Close()
	if s.Count() != 3 {
		t.Fatalf("count %d, want 3", s.Count())
	}
	if s.Header.StartedAt != 42 {
		t.Errorf("recovered header started_at %d, want original 42", s.Header.StartedAt)
	}
	if _, ok, err := s.Lookup("POST", "/v1/messages", []byte(`{"model":"x","n":1}`)); err != nil || !ok {
		t.Errorf("lookup on recovered file: ok=%v err=%v", ok, err)
	}
}

func TestRecoverSurfacesWriteFailure(t *testing.T) {
	src := unsealedSession(t, 3)

	dst := filepath.Join(t.TempDir(), "recovered.tape")
	w, err := OpenForCapture(dst, &Header{StartedAt: 42}, nil)
	if err != nil {
		t.Fatalf("open destination: %v", err)
	}
	// Make every subsequent append fail, as a full disk would.
	w.f.Close()

	res, err := recoverInto(src, w)
	if err == nil {
		t.Fatalf("write failure swallowed: %+v", res)
	}
	if !errors.Is(err, os.ErrClosed) {
		t.Errorf("got %v, want wrapped write error", err)
	}
	if res.Recovered != 0 {
		t.Errorf("reported %d recovered records despite failed writes", res.Recovered)
	}
}

func TestRecoverTruncatedTail(t *testing.T) {
	src := unsealedSession(t, 3)
	info, err := os.Stat(src)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := os.Truncate(src, info.Size()-5); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "recovered.tape")
	res, err := Recover(src, dst)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if res.Recovered != 2 || res.Corrupt != 1 {
		t.Fatalf("recovered=%d corrupt=%d, want 2/1", res.Recovered, res.Corrupt)
	}

	s, err := OpenForReplay(dst)
	if err != nil {
		t.Fatalf("open recovered file: %v", err)
	}
	defer s.Close()
	if s.Count() != 2 {
		t.Errorf("count %d, want 2", s.Count())
	}
}
