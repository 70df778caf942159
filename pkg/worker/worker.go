// Package worker implements the per-endpoint export workers: each owns one
// session.Client to a distinct cluster member and drains PathInfo records
// from a shared queue until it is closed or a Blocking error retires it.
package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/txstate-etc/pagers/pkg/archive"
	"github.com/txstate-etc/pagers/pkg/domain"
	"github.com/txstate-etc/pagers/pkg/logging"
	"github.com/txstate-etc/pagers/pkg/manifest"
	"github.com/txstate-etc/pagers/pkg/session"
)

// backoffSleep is the fixed pause after a Backoff classification, chosen so
// a server already under pressure from a filled temp directory gets a
// chance to recover before the next request lands.
const backoffSleep = 15 * time.Second

// timestampPrecision is the resolution the hard-link shortcut compares
// filesystem mtimes against node timestamps at. The source system only
// carries millisecond precision, so both sides are truncated to it before
// comparison.
const timestampPrecision = time.Millisecond

// Worker consumes PathInfo records from a shared queue and exports or
// hard-links each one. It owns exactly one session.Client and runs on
// exactly one goroutine.
type Worker struct {
	ID          int
	Session     *session.Client
	Dir         string
	ArchiveExt  string
	PreviousExt string
	RunID       string

	// Limiter, when non-nil, is waited on before every export request.
	// Shared across all workers so EXPORT_RATE_PER_SEC bounds the
	// aggregate request rate, not each worker's individually.
	Limiter *rate.Limiter

	log *slog.Logger
}

// New constructs a Worker. id is used only to tag its log lines. runID is
// the coordinator's run ID, stamped onto every manifest line this worker
// writes. limiter may be nil.
func New(id int, sess *session.Client, dir, archiveExt, previousExt, runID string, limiter *rate.Limiter) *Worker {
	return &Worker{
		ID:          id,
		Session:     sess,
		Dir:         dir,
		ArchiveExt:  archiveExt,
		PreviousExt: previousExt,
		RunID:       runID,
		Limiter:     limiter,
		log:         logging.ForWorker(id),
	}
}

// Run drains queue until it is closed (normal shutdown), ctx is canceled,
// or a Blocking response or failed session renewal retires this worker
// early. It never panics on a single record's failure; every error class
// below it resumes at the next record except Blocking, which ends the loop,
// and a LostSession or Backoff whose renewal fails, which ends it too.
func (w *Worker) Run(ctx context.Context, queue <-chan domain.PathInfo) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-queue:
			if !ok {
				return
			}
			if !w.process(ctx, p) {
				return
			}
		}
	}
}

// process handles one record. It returns false if the worker should
// terminate (a Blocking error or a failed session renewal).
func (w *Worker) process(ctx context.Context, p domain.PathInfo) bool {
	archiveDir := archive.Path(w.Dir, w.ArchiveExt, p)
	previousFile := archive.Path(w.Dir, w.PreviousExt, p) + "/" + archive.Filename(p)
	archiveFile := archiveDir + "/" + archive.Filename(p)

	if w.tryHardLink(archiveDir, previousFile, archiveFile, p) {
		return true
	}
	return w.export(ctx, archiveDir, archiveFile, p)
}

// tryHardLink attempts the previous-day dedup shortcut. It returns true
// when the shortcut applies (whether or not the link itself succeeded) so
// the caller knows not to fall through to a full export; it returns false
// when the previous file doesn't exist or its mtime doesn't match, meaning
// a full export is required.
func (w *Worker) tryHardLink(archiveDir, previousFile, archiveFile string, p domain.PathInfo) bool {
	fi, err := os.Stat(previousFile)
	if err != nil {
		return false
	}
	if p.LastModified == nil || !sameModTime(fi.ModTime(), *p.LastModified) {
		return false
	}

	if err := os.Link(previousFile, archiveFile); err != nil {
		w.log.Error("hard link failed", "path", p.Path, "error", err)
		return true
	}
	if err := os.Chtimes(archiveFile, *p.LastModified, *p.LastModified); err != nil {
		w.log.Error("setting archive times failed", "path", p.Path, "error", err)
	}
	w.writeManifest(archiveDir, p, "linked")
	return true
}

func (w *Worker) writeManifest(dir string, p domain.PathInfo, action string) {
	if err := manifest.Append(dir, manifest.Entry{RunID: w.RunID, Path: p.Path, Action: action}); err != nil {
		w.log.Error("writing manifest failed", "path", p.Path, "error", err)
	}
}

func sameModTime(fsTime time.Time, want time.Time) bool {
	return fsTime.Truncate(timestampPrecision).Equal(want.Truncate(timestampPrecision))
}

// export runs the retry loop of spec.md §4.5 against archiveFile. It
// returns false when the worker should terminate.
func (w *Worker) export(ctx context.Context, archiveDir, archiveFile string, p domain.PathInfo) bool {
	for {
		if w.Limiter != nil {
			if err := w.Limiter.Wait(ctx); err != nil {
				w.log.Error("rate limiter wait failed", "path", p.Path, "error", err)
				w.writeManifest(archiveDir, p, "skipped")
				return true
			}
		}

		body, err := w.Session.Export(ctx, p)
		if err == nil {
			w.writeExport(archiveDir, archiveFile, p, body)
			return true
		}

		var rerr *domain.RequestError
		if !errors.As(err, &rerr) {
			w.log.Error("export failed", "path", p.Path, "error", err)
			w.writeManifest(archiveDir, p, "skipped")
			return true
		}

		switch rerr.Kind {
		case domain.LostSession:
			w.log.Warn("lost session, renewing", "path", p.Path, "error", rerr)
			if err := w.Session.Renew(); err != nil {
				w.log.Error("session renewal failed, terminating worker", "error", err)
				return false
			}
			continue
		case domain.Backoff:
			w.log.Warn("backoff, renewing and skipping", "path", p.Path, "error", rerr)
			time.Sleep(backoffSleep)
			if err := w.Session.Renew(); err != nil {
				w.log.Error("session renewal failed, terminating worker", "error", err)
				return false
			}
			w.writeManifest(archiveDir, p, "skipped")
			return true
		case domain.Blocking:
			w.log.Error("blocking error, terminating worker", "path", p.Path, "error", rerr)
			return false
		default: // Skip
			w.log.Error("export failed, skipping", "path", p.Path, "error", rerr)
			w.writeManifest(archiveDir, p, "skipped")
			return true
		}
	}
}

func (w *Worker) writeExport(archiveDir, archiveFile string, p domain.PathInfo, body io.ReadCloser) {
	defer body.Close()

	f, err := os.Create(archiveFile)
	if err != nil {
		w.log.Error("creating archive file failed", "path", p.Path, "error", err)
		return
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		w.log.Error("writing archive file failed", "path", p.Path, "error", err)
		return
	}
	if p.LastModified != nil {
		if err := os.Chtimes(archiveFile, *p.LastModified, *p.LastModified); err != nil {
			w.log.Error("setting archive times failed", "path", p.Path, "error", err)
		}
	}
	w.writeManifest(archiveDir, p, "exported")
}
