package embedder

import (
	"errors"
	"testing"
	"time"

	"github.com/dshills/hybridsearch/internal/registry"
)

func failoverBackends() []registry.Descriptor {
	return []registry.Descriptor{
		{Name: "a", Priority: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond},
		{Name: "b", Priority: 2, MaxRetries: 1, RetryDelay: 10 * time.Millisecond},
	}
}

func TestFailoverInitialState(t *testing.T) {
	fo := newFailover(failoverBackends())
	if fo.State() != StateTrying {
		t.Errorf("initial state = %s, want trying", fo.State())
	}
	desc, ok := fo.Current()
	if !ok || desc.Name != "a" {
		t.Errorf("Current() = %v, want primary a", desc.Name)
	}
}

func TestFailoverEmptySnapshot(t *testing.T) {
	fo := newFailover(nil)
	if fo.State() != StateExhausted {
		t.Errorf("state = %s, want exhausted", fo.State())
	}
	if _, ok := fo.Current(); ok {
		t.Error("Current() returned a backend from an empty snapshot")
	}
}

func TestFailoverTransientRetriesThenFailsOver(t *testing.T) {
	fo := newFailover(failoverBackends())
	boom := errors.New("boom")

	// Backend a allows 2 retries.
	fo.Fail(boom, true)
	if fo.State() != StateRetrying || fo.Attempt() != 1 {
		t.Fatalf("after 1st failure: state %s attempt %d", fo.State(), fo.Attempt())
	}
	fo.Fail(boom, true)
	if fo.State() != StateRetrying || fo.Attempt() != 2 {
		t.Fatalf("after 2nd failure: state %s attempt %d", fo.State(), fo.Attempt())
	}

	// Third transient failure exhausts a's budget.
	fo.Fail(boom, true)
	if fo.State() != StateFailedOver {
		t.Fatalf("after retries exhausted: state %s, want failed_over", fo.State())
	}
	desc, _ := fo.Current()
	if desc.Name != "b" {
		t.Errorf("Current() = %s, want b", desc.Name)
	}
	if fo.Failovers() != 1 {
		t.Errorf("Failovers() = %d, want 1", fo.Failovers())
	}
}

func TestFailoverPermanentSkipsRetries(t *testing.T) {
	fo := newFailover(failoverBackends())

	fo.Fail(errors.New("bad request"), false)
	if fo.State() != StateFailedOver {
		t.Errorf("state = %s, want failed_over without retries", fo.State())
	}
}

func TestFailoverExhaustion(t *testing.T) {
	fo := newFailover(failoverBackends())
	boom := errors.New("boom")

	for fo.State() != StateExhausted {
		fo.Fail(boom, false)
	}
	if fo.Failovers() != 1 {
		t.Errorf("Failovers() = %d, want 1", fo.Failovers())
	}
	if !errors.Is(fo.LastErr(), boom) {
		t.Errorf("LastErr() = %v", fo.LastErr())
	}
	if _, ok := fo.Current(); ok {
		t.Error("Current() returned a backend after exhaustion")
	}
}

func TestFailoverSuccessTerminal(t *testing.T) {
	fo := newFailover(failoverBackends())
	fo.Succeed()
	if fo.State() != StateSuccess {
		t.Errorf("state = %s, want success", fo.State())
	}
	if _, ok := fo.Current(); ok {
		t.Error("Current() returned a backend after success")
	}
}

func TestFailoverBackoffGrowth(t *testing.T) {
	backends := []registry.Descriptor{
		{Name: "a", MaxRetries: 5, RetryDelay: 100 * time.Millisecond},
	}
	fo := newFailover(backends)
	boom := errors.New("boom")

	var delays []time.Duration
	for i := 0; i < 4; i++ {
		fo.Fail(boom, true)
		delays = append(delays, fo.Backoff())
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestFailoverBackoffCap(t *testing.T) {
	backends := []registry.Descriptor{
		{Name: "a", MaxRetries: 100, RetryDelay: 10 * time.Second},
	}
	fo := newFailover(backends)
	for i := 0; i < 10; i++ {
		fo.Fail(errors.New("boom"), true)
	}
	if got := fo.Backoff(); got != maxBackoff {
		t.Errorf("Backoff() = %v, want cap %v", got, maxBackoff)
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateTrying:     "trying",
		StateRetrying:   "retrying",
		StateFailedOver: "failed_over",
		StateSuccess:    "success",
		StateExhausted:  "exhausted",
		State(99):       "unknown",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State(%d).String() = %s, want %s", s, s.String(), want)
		}
	}
}
