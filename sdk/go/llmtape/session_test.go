package llmtape

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/llmtape/internal/tape"
)

func echoUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"echo":` + string(body) + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRecordThenReplay(t *testing.T) {
	up := echoUpstream(t)
	dir := t.TempDir()

	rec, err := Record(WithStoreDir(dir))
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	client := &http.Client{Transport: rec.Transport()}
	bodies := []string{`{"model":"x","n":1}`, `{"model":"x","n":2}`}
	for _, body := range bodies {
		resp, err := client.Post(up.URL+"/v1/messages", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		got, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(got) != `{"echo":`+body+`}` {
			t.Errorf("recording transport altered the response: %q", got)
		}
	}
	if rec.Count() != 2 {
		t.Fatalf("recorded %d calls, want 2", rec.Count())
	}
	if err := rec.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}

	rep, err := Replay(WithStoreDir(dir), WithSession(rec.ID()))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	defer rep.Close()

	up.Close() // replay must not need the network

	client = &http.Client{Transport: rep.Transport()}
	for _, body := range bodies {
		resp, err := client.Post(up.URL+"/v1/messages", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("replayed post: %v", err)
		}
		got, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.Header.Get("x-llmtape-replay") != "hit" {
			t.Error("missing replay header")
		}
		if string(got) != `{"echo":`+body+`}` {
			t.Errorf("replayed response %q", got)
		}
	}
}

func TestReplayLatestWithoutID(t *testing.T) {
	up := echoUpstream(t)
	dir := t.TempDir()

	rec, err := Record(WithStoreDir(dir))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	client := &http.Client{Transport: rec.Transport()}
	resp, err := client.Post(up.URL+"/v1/messages", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if err := rec.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}

	rep, err := Replay(WithStoreDir(dir))
	if err != nil {
		t.Fatalf("replay latest: %v", err)
	}
	defer rep.Close()
	if rep.ID() != rec.ID() {
		t.Errorf("latest session %q, want %q", rep.ID(), rec.ID())
	}
}

func TestReplayMissError(t *testing.T) {
	up := echoUpstream(t)
	dir := t.TempDir()

	rec, err := Record(WithStoreDir(dir))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	client := &http.Client{Transport: rec.Transport()}
	resp, err := client.Post(up.URL+"/v1/messages", "application/json", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if err := rec.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}

	rep, err := Replay(WithStoreDir(dir))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	defer rep.Close()

	client = &http.Client{Transport: rep.Transport()}
	_, err = client.Post(up.URL+"/v1/messages", "application/json", strings.NewReader(`{"a":999}`))
	if err == nil {
		t.Fatal("expected miss error")
	}
	var miss *MissError
	if !errors.As(err, &miss) {
		t.Fatalf("got %v, want *MissError", err)
	}
	if miss.Method != "POST" || miss.Path != "/v1/messages" {
		t.Errorf("miss %+v", miss)
	}
}

func TestCaptureSealsOnError(t *testing.T) {
	up := echoUpstream(t)
	dir := t.TempDir()

	boom := errors.New("agent failed")
	id, err := Capture(func(rec *Recorder) error {
		client := &http.Client{Transport: rec.Transport()}
		resp, err := client.Post(up.URL+"/v1/messages", "application/json", strings.NewReader(`{"a":1}`))
		if err != nil {
			return err
		}
		resp.Body.Close()
		return boom
	}, WithStoreDir(dir))
	if !errors.Is(err, boom) {
		t.Fatalf("capture: got %v, want wrapped agent error", err)
	}

	// The failed run is still sealed and replayable.
	rep, err := Replay(WithStoreDir(dir), WithSession(id))
	if err != nil {
		t.Fatalf("replay after failed capture: %v", err)
	}
	defer rep.Close()
	if rep.Count() != 1 {
		t.Errorf("records %d, want 1", rep.Count())
	}
}

func TestCaptureSealsOnPanic(t *testing.T) {
	up := echoUpstream(t)
	dir := t.TempDir()

	var id string
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic did not propagate out of Capture")
			}
		}()
		Capture(func(rec *Recorder) error {
			id = rec.ID()
			client := &http.Client{Transport: rec.Transport()}
			resp, err := client.Post(up.URL+"/v1/messages", "application/json", strings.NewReader(`{"a":1}`))
			if err != nil {
				return err
			}
			resp.Body.Close()
			panic("agent crashed")
		}, WithStoreDir(dir))
	}()

	// The crashed run must still be sealed and replayable.
	rep, err := Replay(WithStoreDir(dir), WithSession(id))
	if err != nil {
		t.Fatalf("replay after panic: %v", err)
	}
	defer rep.Close()
	if rep.Count() != 1 {
		t.Errorf("records %d, want 1", rep.Count())
	}
}

func TestSealThenRecordFails(t *testing.T) {
	up := echoUpstream(t)
	dir := t.TempDir()

	rec, err := Record(WithStoreDir(dir))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := rec.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}

	client := &http.Client{Transport: rec.Transport()}
	_, err = client.Post(up.URL+"/v1/messages", "application/json", strings.NewReader(`{}`))
	if err == nil || !errors.Is(err, tape.ErrSessionClosed) {
		t.Errorf("post after seal: got %v, want ErrSessionClosed", err)
	}
}

func TestRecordScrubsByDefault(t *testing.T) {
	secret := "sk-ant-REDACTED"
	up := echoUpstream(t)
	dir := t.TempDir()

	rec, err := Record(WithStoreDir(dir))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	client := &http.Client{Transport: rec.Transport()}
	body := `{"auth":"` + secret + `"}`
	resp, err := client.Post(up.URL+"/v1/messages", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if err := rec.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}

	rep, err := Replay(WithStoreDir(dir))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	defer rep.Close()

	// The live request, secret included, still hits: the hash covers
	// the unscrubbed bytes.
	client = &http.Client{Transport: rep.Transport()}
	r2, err := client.Post(up.URL+"/v1/messages", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("replayed post: %v", err)
	}
	got, _ := io.ReadAll(r2.Body)
	r2.Body.Close()
	if strings.Contains(string(got), secret) {
		t.Error("secret survived scrubbing in recorded response")
	}
}
