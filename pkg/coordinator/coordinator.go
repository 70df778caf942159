// Package coordinator implements the primary: it enumerates sites and paths
// for each configured repository, feeds the resulting PathInfo records to a
// bounded worker queue, and drains the queue on shutdown.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/txstate-etc/pagers/pkg/archive"
	"github.com/txstate-etc/pagers/pkg/domain"
	"github.com/txstate-etc/pagers/pkg/logging"
	"github.com/txstate-etc/pagers/pkg/session"
)

// drainPollInterval and drainPollAttempts bound how long Run waits for the
// queue to empty after the producer side closes, mirroring the teacher's
// sandbox manager reconciliation ticker bounded to a fixed tick count
// instead of running forever. Variables, not constants, so tests can
// shrink the window instead of waiting out the real 5 minutes.
var (
	drainPollInterval = 30 * time.Second
	drainPollAttempts = 10
)

const backoffSleep = 15 * time.Second

// terminate wraps a Blocking classification (or a failed session renewal
// following one) so Run can distinguish "abandon this repo/site" from
// "stop the whole coordinator" without parsing error text.
type terminate struct{ cause error }

func (t *terminate) Error() string { return "coordinator terminated: " + t.cause.Error() }
func (t *terminate) Unwrap() error { return t.cause }

// Coordinator owns the primary session.Client and the shared export queue.
// The primary Client must be a distinct instance from every worker's
// Client, even when one worker happens to target the same endpoint URL:
// Client methods are not safe for concurrent use, and Renew mutates a
// Client in place (see session.Client's doc comment).
type Coordinator struct {
	Session *session.Client
	Queue   chan domain.PathInfo
	Dir     string
	Ext     string

	// RunID stamps every manifest line workers write for this invocation.
	RunID uuid.UUID

	// Limiter, when non-nil, is shared with every worker's export calls.
	Limiter *rate.Limiter

	// cancel forces every worker's Run loop to return once drain's poll
	// window expires with records still queued, so stragglers are
	// actually abandoned rather than leaving the caller's wait on worker
	// goroutines blocked until the closed queue empties on its own.
	cancel context.CancelFunc

	log *slog.Logger
}

// New constructs a Coordinator. queueCapacity should equal the worker count.
// cancel is called once if drain's poll window expires with the queue
// still non-empty; it should cancel the context shared with every worker's
// Run call so the caller's wait on those goroutines returns promptly.
func New(sess *session.Client, dir, ext string, queueCapacity int, ratePerSec float64, cancel context.CancelFunc) *Coordinator {
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &Coordinator{
		Session: sess,
		Queue:   make(chan domain.PathInfo, queueCapacity),
		Dir:     dir,
		Ext:     ext,
		RunID:   uuid.New(),
		Limiter: limiter,
		cancel:  cancel,
		log:     logging.ForCoordinator(),
	}
}

// Run enumerates every configured repository's sites and paths, feeding the
// queue, then closes it and drains per spec.md §4.6/§5's bounded poll.
func (c *Coordinator) Run(ctx context.Context, repos []domain.RepoConfig) error {
	for _, repo := range repos {
		if err := c.processRepo(ctx, repo); err != nil {
			var term *terminate
			if errors.As(err, &term) {
				close(c.Queue)
				return term
			}
			c.log.Error("repo enumeration failed", "repo", repo.Type, "error", err)
		}
	}
	close(c.Queue)
	c.drain()
	return nil
}

func (c *Coordinator) processRepo(ctx context.Context, repo domain.RepoConfig) error {
	sites, err := c.sitesFor(ctx, repo)
	if err != nil {
		return err
	}

	for _, site := range sites {
		if err := c.processSite(ctx, site); err != nil {
			var term *terminate
			if errors.As(err, &term) {
				return err
			}
			c.log.Error("site enumeration failed", "path", site.Path, "error", err)
		}
	}
	return nil
}

// sitesFor returns the site list for repo: the explicit Sites list when
// given, otherwise the result of enumerating via the session client.
func (c *Coordinator) sitesFor(ctx context.Context, repo domain.RepoConfig) ([]domain.PathInfo, error) {
	if repo.Sites != nil {
		sites := make([]domain.PathInfo, len(repo.Sites))
		for i, name := range repo.Sites {
			sites[i] = domain.PathInfo{RepoType: repo.Type, Path: "/" + name}
		}
		return sites, nil
	}
	return c.retrySites(ctx, repo.Type)
}

// retrySites applies spec.md §4.6's repo-level policy: LostSession retries
// the same request after a renewal, Backoff sleeps and renews then abandons
// the repo, Skip abandons the repo, Blocking terminates the coordinator.
func (c *Coordinator) retrySites(ctx context.Context, repoType domain.RepoType) ([]domain.PathInfo, error) {
	for {
		sites, err := c.Session.Sites(ctx, repoType)
		if err == nil {
			return sites, nil
		}

		var rerr *domain.RequestError
		if !errors.As(err, &rerr) {
			return nil, err
		}
		switch rerr.Kind {
		case domain.LostSession:
			c.log.Warn("lost session enumerating sites, renewing", "repo", repoType, "error", rerr)
			if renewErr := c.Session.Renew(); renewErr != nil {
				return nil, &terminate{cause: renewErr}
			}
			continue
		case domain.Backoff:
			c.log.Warn("backoff enumerating sites, abandoning repo", "repo", repoType, "error", rerr)
			time.Sleep(backoffSleep)
			if renewErr := c.Session.Renew(); renewErr != nil {
				return nil, &terminate{cause: renewErr}
			}
			return nil, nil
		case domain.Blocking:
			return nil, &terminate{cause: rerr}
		default: // Skip
			return nil, nil
		}
	}
}

func (c *Coordinator) processSite(ctx context.Context, site domain.PathInfo) error {
	dir := archive.Path(c.Dir, c.Ext, site)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.log.Error("creating archive directory failed", "path", site.Path, "error", err)
		return nil
	}

	paths, err := c.retryPaths(ctx, site)
	if err != nil {
		return err
	}

	for _, p := range paths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.Queue <- p:
		}
	}
	return nil
}

// retryPaths mirrors retrySites' policy for the recursive path enumeration
// request.
func (c *Coordinator) retryPaths(ctx context.Context, site domain.PathInfo) ([]domain.PathInfo, error) {
	for {
		paths, err := c.Session.Paths(ctx, site)
		if err == nil {
			return paths, nil
		}

		var rerr *domain.RequestError
		if !errors.As(err, &rerr) {
			return nil, err
		}
		switch rerr.Kind {
		case domain.LostSession:
			c.log.Warn("lost session enumerating paths, renewing", "path", site.Path, "error", rerr)
			if renewErr := c.Session.Renew(); renewErr != nil {
				return nil, &terminate{cause: renewErr}
			}
			continue
		case domain.Backoff:
			c.log.Warn("backoff enumerating paths, abandoning site", "path", site.Path, "error", rerr)
			time.Sleep(backoffSleep)
			if renewErr := c.Session.Renew(); renewErr != nil {
				return nil, &terminate{cause: renewErr}
			}
			return nil, nil
		case domain.Blocking:
			return nil, &terminate{cause: rerr}
		default: // Skip
			return nil, nil
		}
	}
}

// drain polls the shared queue for emptiness every drainPollInterval, up to
// drainPollAttempts times. If records are still queued after the window
// expires, it cancels the context shared with every worker so stragglers
// are abandoned rather than run to completion: the queue's producer side
// is always closed before drain runs, so cancellation here only cuts off
// records workers have not yet picked up or are still mid-export on.
func (c *Coordinator) drain() {
	if len(c.Queue) == 0 {
		return
	}
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for i := 0; i < drainPollAttempts; i++ {
		<-ticker.C
		if len(c.Queue) == 0 {
			return
		}
	}
	c.log.Warn("forcing shutdown with records still queued", "remaining", len(c.Queue))
	if c.cancel != nil {
		c.cancel()
	}
}
