package difychecker

import (
	"context"
	"errors"
	"testing"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/healthcheck"
)

type fakeProber struct {
	err   error
	calls int
}

func (f *fakeProber) Health(context.Context, bots.Bot) error {
	f.calls++
	return f.err
}

func TestCheckerReachable(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{}
	items := NewChecker(nil, prober).ListChecks(context.Background(), bots.Bot{ID: "b", DifyEndpoint: "https://dify.example/v1"})
	if len(items) != 1 || items[0].Status != healthcheck.StatusOK {
		t.Fatalf("unexpected checks %+v", items)
	}
	if prober.calls != 1 {
		t.Fatalf("expected one probe, got %d", prober.calls)
	}
}

func TestCheckerUnreachable(t *testing.T) {
	t.Parallel()

	items := NewChecker(nil, &fakeProber{err: errors.New("status 401")}).ListChecks(context.Background(), bots.Bot{ID: "b", DifyEndpoint: "https://dify.example/v1"})
	if items[0].Status != healthcheck.StatusError || items[0].Detail != "status 401" {
		t.Fatalf("unexpected check %+v", items[0])
	}
}

func TestCheckerMissingEndpointSkipsProbe(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{}
	items := NewChecker(nil, prober).ListChecks(context.Background(), bots.Bot{ID: "b"})
	if items[0].Status != healthcheck.StatusError || prober.calls != 0 {
		t.Fatalf("missing endpoint should fail without probing, got %+v", items[0])
	}
}
