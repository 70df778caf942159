package worker

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/txstate-etc/pagers/pkg/archive"
	"github.com/txstate-etc/pagers/pkg/domain"
	"github.com/txstate-etc/pagers/pkg/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// exportStatus is read by the test server's export handler so individual
// tests can control the classification a worker sees.
var exportStatus = struct {
	code int
}{code: http.StatusOK}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/.magnolia/admincentral", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "JSESSIONID=ABCDEF0123456789ABCDEF0123456789; Path=/; HttpOnly")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/docroot/gato/export.jsp", func(w http.ResponseWriter, r *http.Request) {
		if exportStatus.code != http.StatusOK {
			w.WriteHeader(exportStatus.code)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte("<xml>exported</xml>"))
	})
	return httptest.NewServer(mux)
}

func newTestSession(t *testing.T, srv *httptest.Server) *session.Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing server url: %v", err)
	}
	u.User = url.UserPassword("admin", "secret")
	c, err := session.New(u.String())
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return c
}

func manifestLines(t *testing.T, dir string) []string {
	t.Helper()
	data, err := os.ReadFile(dir + "/.manifest.jsonl")
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}

func TestProcessHardLinkShortcut(t *testing.T) {
	dir := t.TempDir()
	p := domain.PathInfo{RepoType: domain.Website, Path: "/gato/page"}
	lastMod := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	p.LastModified = &lastMod

	prevDir := archive.Path(dir, "previous", p)
	if err := os.MkdirAll(prevDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	prevFile := prevDir + "/" + archive.Filename(p)
	if err := os.WriteFile(prevFile, []byte("cached export"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(prevFile, lastMod, lastMod); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	curDir := archive.Path(dir, "current", p)
	if err := os.MkdirAll(curDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	w := &Worker{ID: 0, Dir: dir, ArchiveExt: "current", PreviousExt: "previous", RunID: "run-1", log: discardLogger()}
	if !w.process(context.Background(), p) {
		t.Fatal("process returned false, want true (hard link should not terminate the worker)")
	}

	archiveFile := curDir + "/" + archive.Filename(p)
	if _, err := os.Stat(archiveFile); err != nil {
		t.Errorf("archive file not created via hard link: %v", err)
	}

	lines := manifestLines(t, curDir)
	if len(lines) != 1 || !strings.Contains(lines[0], `"action":"linked"`) {
		t.Errorf("manifest lines = %v, want one \"linked\" entry", lines)
	}
}

func TestProcessFallsThroughToExportOnMtimeMismatch(t *testing.T) {
	exportStatus.code = http.StatusOK
	srv := newTestServer(t)
	defer srv.Close()
	sess := newTestSession(t, srv)

	dir := t.TempDir()
	p := domain.PathInfo{RepoType: domain.Website, Path: "/gato/page"}
	lastMod := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	p.LastModified = &lastMod

	prevDir := archive.Path(dir, "previous", p)
	os.MkdirAll(prevDir, 0o755)
	prevFile := prevDir + "/" + archive.Filename(p)
	os.WriteFile(prevFile, []byte("stale"), 0o644)
	os.Chtimes(prevFile, lastMod.Add(-time.Hour), lastMod.Add(-time.Hour))

	curDir := archive.Path(dir, "current", p)
	os.MkdirAll(curDir, 0o755)

	w := &Worker{ID: 0, Session: sess, Dir: dir, ArchiveExt: "current", PreviousExt: "previous", RunID: "run-1", log: discardLogger()}
	if !w.process(context.Background(), p) {
		t.Fatal("process returned false, want true")
	}

	archiveFile := curDir + "/" + archive.Filename(p)
	data, err := os.ReadFile(archiveFile)
	if err != nil {
		t.Fatalf("archive file not written by export: %v", err)
	}
	if !strings.Contains(string(data), "exported") {
		t.Errorf("archive file content = %q, want exported body", data)
	}

	lines := manifestLines(t, curDir)
	if len(lines) != 1 || !strings.Contains(lines[0], `"action":"exported"`) {
		t.Errorf("manifest lines = %v, want one \"exported\" entry", lines)
	}
}

func TestProcessBlockingTerminatesWorker(t *testing.T) {
	exportStatus.code = http.StatusNotFound
	srv := newTestServer(t)
	defer srv.Close()
	sess := newTestSession(t, srv)

	dir := t.TempDir()
	p := domain.PathInfo{RepoType: domain.Website, Path: "/gato/page"}

	curDir := archive.Path(dir, "current", p)
	os.MkdirAll(curDir, 0o755)

	w := &Worker{ID: 0, Session: sess, Dir: dir, ArchiveExt: "current", PreviousExt: "previous", RunID: "run-1", log: discardLogger()}
	if w.process(context.Background(), p) {
		t.Fatal("process returned true, want false (a 404 should terminate the worker)")
	}

	if lines := manifestLines(t, curDir); len(lines) != 0 {
		t.Errorf("manifest lines = %v, want none for a terminating Blocking error", lines)
	}
}
