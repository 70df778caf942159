package session

import (
	"errors"
	"net/http"
	"testing"

	"github.com/txstate-etc/pagers/pkg/domain"
)

func TestClassifyStatusBuckets(t *testing.T) {
	cases := []struct {
		status int
		want   domain.ErrorKind
	}{
		{200, 0}, // handled separately below: classify returns nil for 2xx
		{302, domain.LostSession},
		{404, domain.Blocking},
		{500, domain.Backoff},
		{999, domain.Skip},
	}

	for _, c := range cases {
		resp := &http.Response{StatusCode: c.status, Status: "test"}
		rerr := classify(resp, nil)
		if c.status == 200 {
			if rerr != nil {
				t.Errorf("classify(200) = %v, want nil", rerr)
			}
			continue
		}
		if rerr == nil {
			t.Fatalf("classify(%d) = nil, want a RequestError", c.status)
		}
		if rerr.Kind != c.want {
			t.Errorf("classify(%d).Kind = %v, want %v", c.status, rerr.Kind, c.want)
		}
	}
}

func TestClassifyTransportErrorIsSkip(t *testing.T) {
	rerr := classify(nil, errors.New("connection reset by peer"))
	if rerr == nil {
		t.Fatal("classify(transport error) = nil, want a RequestError")
	}
	if rerr.Kind != domain.Skip {
		t.Errorf("Kind = %v, want Skip", rerr.Kind)
	}
}
