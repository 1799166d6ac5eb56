package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/subgeo/subgeo/internal/model"
)

type stubProvider struct {
	clash, singbox bool
}

func (s stubProvider) Ensure(kind model.CoreKind) bool {
	if kind == model.CoreClash {
		return s.clash
	}
	return s.singbox
}

func (s stubProvider) Path(kind model.CoreKind) string { return "/opt/cores/" + string(kind) }

// countingProber tracks how many probes run simultaneously.
type countingProber struct {
	mu      sync.Mutex
	live    int
	maxLive int
	delay   time.Duration
	class   func(n *model.Node) model.Classification
}

func (p *countingProber) Probe(ctx context.Context, n *model.Node) model.Outcome {
	p.mu.Lock()
	p.live++
	if p.live > p.maxLive {
		p.maxLive = p.live
	}
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.live--
	p.mu.Unlock()

	class := model.Country("US")
	if p.class != nil {
		class = p.class(n)
	}
	return model.NewOutcome(n, class)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.NewFile(0, os.DevNull))
	log.SetLevel(logrus.PanicLevel)
	return log
}

func makeNodes(count int) []*model.Node {
	nodes := make([]*model.Node, count)
	for i := range nodes {
		nodes[i] = &model.Node{
			Name:     fmt.Sprintf("node-%d", i),
			Protocol: model.ProtocolTrojan,
			Server:   "1.2.3.4",
			Port:     443,
			Trojan:   &model.Trojan{Password: "pw"},
		}
	}
	return nodes
}

func TestProbeAll_RespectsConcurrencyBound(t *testing.T) {
	prober := &countingProber{delay: 20 * time.Millisecond}
	pl := &Pipeline{
		Prober:      prober,
		Provider:    stubProvider{clash: true},
		Log:         quietLogger(),
		Concurrency: 5,
	}

	nodes := makeNodes(12)
	outcomes, err := pl.ProbeAll(context.Background(), nodes)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 12 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}
	if prober.maxLive > 5 {
		t.Fatalf("%d probes ran simultaneously, bound is 5", prober.maxLive)
	}
}

func TestProbeAll_PreservesInputOrder(t *testing.T) {
	// Completion order is scrambled by per-node delays; result order must not be.
	var calls atomic.Int64
	prober := &countingProber{
		class: func(n *model.Node) model.Classification {
			if calls.Add(1)%2 == 0 {
				time.Sleep(30 * time.Millisecond)
			}
			return model.Country("DE")
		},
	}
	pl := &Pipeline{Prober: prober, Provider: stubProvider{clash: true}, Log: quietLogger()}

	nodes := makeNodes(8)
	outcomes, err := pl.ProbeAll(context.Background(), nodes)
	if err != nil {
		t.Fatal(err)
	}
	for i, out := range outcomes {
		want := fmt.Sprintf("[DE] node-%d", i)
		if out.LabeledName() != want {
			t.Fatalf("outcomes[%d].LabeledName() = %q, want %q", i, out.LabeledName(), want)
		}
		if nodes[i].Name != want {
			t.Fatalf("nodes[%d].Name = %q, want %q", i, nodes[i].Name, want)
		}
	}
}

func TestProbeAll_NoCoreIsPipelineFailure(t *testing.T) {
	pl := &Pipeline{Prober: &countingProber{}, Provider: stubProvider{}, Log: quietLogger()}

	_, err := pl.ProbeAll(context.Background(), makeNodes(2))
	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("err = %v, want *PipelineError", err)
	}
	if pErr.AppError.Code != "NO_CORE_AVAILABLE" {
		t.Fatalf("Code = %q", pErr.AppError.Code)
	}
}

func TestCollect_BadSourceDoesNotAbortOthers(t *testing.T) {
	sub1 := "trojan://pw@9.9.9.9:443#alpha\ntrojan://pw@8.8.8.8:443#beta\n"
	pl := &Pipeline{
		Provider: stubProvider{clash: true},
		Log:      quietLogger(),
		Fetch: func(ctx context.Context, rawURL string) (string, error) {
			if rawURL == "https://bad.example/sub" {
				return "", errors.New("connection refused")
			}
			return sub1, nil
		},
	}

	nodes, err := pl.Collect(context.Background(), []string{
		"https://bad.example/sub",
		"https://good.example/sub",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	if nodes[0].Name != "alpha" || nodes[1].Name != "beta" {
		t.Fatalf("node names = %q, %q", nodes[0].Name, nodes[1].Name)
	}
}

func TestCollect_AllSourcesFailedIsPipelineFailure(t *testing.T) {
	pl := &Pipeline{
		Provider: stubProvider{clash: true},
		Log:      quietLogger(),
		Fetch: func(ctx context.Context, rawURL string) (string, error) {
			return "", errors.New("unreachable")
		},
	}

	_, err := pl.Collect(context.Background(), []string{"https://a/s", "https://b/s"})
	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("err = %v, want *PipelineError", err)
	}
	if pErr.AppError.Code != "ALL_SOURCES_FAILED" {
		t.Fatalf("Code = %q", pErr.AppError.Code)
	}
}

func TestCollect_GarbageBodyYieldsZeroNodesNotError(t *testing.T) {
	pl := &Pipeline{
		Provider: stubProvider{clash: true},
		Log:      quietLogger(),
		Fetch: func(ctx context.Context, rawURL string) (string, error) {
			return "<html>not a subscription</html>", nil
		},
	}

	nodes, err := pl.Collect(context.Background(), []string{"https://a/s"})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 0 {
		t.Fatalf("got %d nodes from garbage body", len(nodes))
	}
}

func TestRun_EndToEndRelabels(t *testing.T) {
	pl := &Pipeline{
		Prober:   &countingProber{},
		Provider: stubProvider{clash: true},
		Log:      quietLogger(),
		Fetch: func(ctx context.Context, rawURL string) (string, error) {
			return "trojan://pw@9.9.9.9:443#edge\n", nil
		},
	}

	nodes, outcomes, err := pl.Run(context.Background(), []string{"https://a/s"})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || len(outcomes) != 1 {
		t.Fatalf("got %d nodes, %d outcomes", len(nodes), len(outcomes))
	}
	if nodes[0].Name != "[US] edge" {
		t.Fatalf("Name = %q, want relabeled", nodes[0].Name)
	}
}

func TestProbeAll_CancellationSkipsUnadmitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 1)
	prober := proberFunc(func(ctx context.Context, n *model.Node) model.Outcome {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		// Hold the admission slot briefly so waiting acquires observe the
		// cancellation rather than winning the freed slot.
		time.Sleep(50 * time.Millisecond)
		return model.NewOutcome(n, model.NetworkError)
	})
	pl := &Pipeline{Prober: prober, Provider: stubProvider{clash: true}, Log: quietLogger(), Concurrency: 1}

	go func() {
		<-started
		cancel()
	}()

	outcomes, err := pl.ProbeAll(ctx, makeNodes(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}
	if outcomes[2].Class.Kind != model.ClassSkipped {
		t.Fatalf("unadmitted node classified %v, want skipped", outcomes[2].Class.Kind)
	}
}

type proberFunc func(ctx context.Context, n *model.Node) model.Outcome

func (f proberFunc) Probe(ctx context.Context, n *model.Node) model.Outcome { return f(ctx, n) }
