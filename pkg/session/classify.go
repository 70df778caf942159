package session

import (
	"net/http"

	"github.com/txstate-etc/pagers/pkg/domain"
)

// classify maps an HTTP response (or a transport-level error) to the
// four-way ErrorClass taxonomy. A nil return means the response is a 2xx
// success and the caller should proceed to read the body.
func classify(resp *http.Response, err error) *domain.RequestError {
	if err != nil {
		return domain.NewRequestError(domain.Skip, 0, err.Error())
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return domain.NewRequestError(domain.LostSession, resp.StatusCode, resp.Status)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return domain.NewRequestError(domain.Blocking, resp.StatusCode, resp.Status)
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return domain.NewRequestError(domain.Backoff, resp.StatusCode, resp.Status)
	default:
		return domain.NewRequestError(domain.Skip, resp.StatusCode, resp.Status)
	}
}
