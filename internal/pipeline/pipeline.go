package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/subgeo/subgeo/internal/fetch"
	"github.com/subgeo/subgeo/internal/model"
	"github.com/subgeo/subgeo/internal/provision"
	"github.com/subgeo/subgeo/internal/sub"
)

// DefaultConcurrency bounds how many probes run at once.
const DefaultConcurrency = 5

// PipelineError 表示整个处理批次失败
type PipelineError struct {
	AppError model.AppError
	Cause    error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
}

func (e *PipelineError) Unwrap() error { return e.Cause }

func pipelineErr(code, message string, cause error) error {
	return &PipelineError{
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   "pipeline",
		},
		Cause: cause,
	}
}

// NodeProber classifies a single node. Satisfied by *probe.Prober.
type NodeProber interface {
	Probe(ctx context.Context, n *model.Node) model.Outcome
}

// FetchFunc retrieves one subscription body.
type FetchFunc func(ctx context.Context, rawURL string) (string, error)

// Pipeline fans subscription URLs out to fetch+parse, probes every node
// under a concurrency bound, and returns outcomes in input order.
type Pipeline struct {
	Prober   NodeProber
	Provider provision.Provider
	Log      *logrus.Logger

	// Concurrency bounds simultaneous probes; <=0 means DefaultConcurrency.
	Concurrency int64

	// Fetch overrides subscription retrieval; defaults to fetch.Text.
	Fetch FetchFunc
}

func (pl *Pipeline) logger() *logrus.Logger {
	if pl.Log != nil {
		return pl.Log
	}
	return logrus.StandardLogger()
}

func (pl *Pipeline) fetcher() FetchFunc {
	if pl.Fetch != nil {
		return pl.Fetch
	}
	return fetch.Text
}

func (pl *Pipeline) bound() int64 {
	if pl.Concurrency > 0 {
		return pl.Concurrency
	}
	return DefaultConcurrency
}

// Collect fetches and parses every subscription source. A failing source is
// logged and skipped; the error is non-nil only when every source failed.
func (pl *Pipeline) Collect(ctx context.Context, urls []string) ([]*model.Node, error) {
	log := pl.logger()
	parser := sub.Parser{Log: pl.Log}

	var nodes []*model.Node
	fetched := 0
	var lastErr error
	for _, rawURL := range urls {
		body, err := pl.fetcher()(ctx, rawURL)
		if err != nil {
			log.WithField("url", rawURL).WithError(err).Warn("订阅拉取失败")
			lastErr = err
			continue
		}
		fetched++
		parsed := parser.Parse(body)
		log.WithFields(logrus.Fields{"url": rawURL, "nodes": len(parsed)}).Info("订阅解析完成")
		for i := range parsed {
			nodes = append(nodes, &parsed[i])
		}
	}
	if len(urls) > 0 && fetched == 0 {
		return nil, pipelineErr("ALL_SOURCES_FAILED", "所有订阅源均不可用", lastErr)
	}
	return nodes, nil
}

// ProbeAll runs the prober over nodes with at most Concurrency probes in
// flight. Outcomes are returned in node order regardless of completion order,
// and each outcome is applied so the node carries its classified name.
func (pl *Pipeline) ProbeAll(ctx context.Context, nodes []*model.Node) ([]model.Outcome, error) {
	if !pl.Provider.Ensure(model.CoreClash) && !pl.Provider.Ensure(model.CoreSingBox) {
		return nil, pipelineErr("NO_CORE_AVAILABLE", "没有可用的代理核心", nil)
	}

	sem := semaphore.NewWeighted(pl.bound())
	outcomes := make([]model.Outcome, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled mid-batch: nodes never admitted stay unprobed.
			for j := i; j < len(nodes); j++ {
				outcomes[j] = model.NewOutcome(nodes[j], model.Skipped)
			}
			break
		}
		wg.Add(1)
		go func(i int, n *model.Node) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = pl.Prober.Probe(ctx, n)
		}(i, n)
	}
	wg.Wait()

	for i := range outcomes {
		outcomes[i].Apply()
	}
	return outcomes, nil
}

// Run is the full batch: collect nodes from every source, probe them all,
// and return the relabeled nodes in input order.
func (pl *Pipeline) Run(ctx context.Context, urls []string) ([]*model.Node, []model.Outcome, error) {
	nodes, err := pl.Collect(ctx, urls)
	if err != nil {
		return nil, nil, err
	}
	outcomes, err := pl.ProbeAll(ctx, nodes)
	if err != nil {
		return nil, nil, err
	}
	return nodes, outcomes, nil
}
