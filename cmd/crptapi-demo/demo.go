/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/acronis/go-crptapi/config"
	"github.com/acronis/go-crptapi/crptapi"
	"github.com/acronis/go-crptapi/internal/fakeregistry"
	"github.com/acronis/go-crptapi/internal/ratelimit"
	"github.com/acronis/go-crptapi/log"
	"github.com/acronis/go-crptapi/service"
)

const envVarsPrefix = "CRPTAPI"

const sampleSignature = "someDigitalSignature"

var sampleDocument = crptapi.Document{
	Description:    "Test document",
	ParticipantInn: "1234567890",
	DocID:          "DOC-123",
	DocStatus:      "NEW",
	DocType:        "LP_INTRODUCE_GOODS",
	ImportRequest:  false,
	ProductionDate: "2023-10-26",
	ProductionType: "OWN_PRODUCTION",
}

type demoOpts struct {
	ConfigPath   string
	FakeRegistry bool
	Count        int
	Window       time.Duration
	MaxRequests  int

	// Logger overrides the logger built from configuration.
	Logger log.FieldLogger
}

type demoConfig struct {
	Log     *log.Config
	CRPTAPI *crptapi.Config
}

func loadDemoConfig(opts demoOpts) (*demoConfig, error) {
	cfg := &demoConfig{Log: log.NewConfig(), CRPTAPI: crptapi.NewConfig()}
	loader := config.NewDefaultLoader(envVarsPrefix)
	loader.DataProvider.SetDefault("crptapi.limiter.window", opts.Window.String())
	loader.DataProvider.SetDefault("crptapi.limiter.maxRequests", opts.MaxRequests)

	var err error
	if opts.ConfigPath != "" {
		err = loader.LoadFromFile(opts.ConfigPath, config.DataTypeYAML, cfg.Log, cfg.CRPTAPI)
	} else {
		err = loader.Load(cfg.Log, cfg.CRPTAPI)
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func runDemo(opts demoOpts) error {
	return runDemoContext(context.Background(), opts)
}

func runDemoContext(ctx context.Context, opts demoOpts) error {
	if opts.Count < 0 {
		return fmt.Errorf("count should not be negative, got %d", opts.Count)
	}
	cfg, err := loadDemoConfig(opts)
	if err != nil {
		return err
	}

	logger := opts.Logger
	if logger == nil {
		var closeLogger log.CloseFunc
		logger, closeLogger = log.NewLogger(cfg.Log)
		defer closeLogger()
	}

	var registry *fakeregistry.Server
	if opts.FakeRegistry {
		if registry, err = newFakeRegistry(cfg.CRPTAPI.Limiter, logger); err != nil {
			return err
		}
		cfg.CRPTAPI.Endpoint = registry.Endpoint()
	}

	metrics := newDemoMetrics()
	client, err := crptapi.NewWithOpts(cfg.CRPTAPI, crptapi.Opts{
		Logger:         logger,
		Metrics:        metrics.submissions,
		LimiterMetrics: metrics.limiter,
	})
	if err != nil {
		if registry != nil {
			_ = registry.Stop(false)
		}
		return fmt.Errorf("create client: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Error("failed to close client", log.Error(closeErr))
		}
	}()

	logger.Info("submitting documents",
		log.Int("count", opts.Count),
		log.String("endpoint", cfg.CRPTAPI.Endpoint),
		log.Int("max_requests", cfg.CRPTAPI.Limiter.MaxRequests),
		log.Duration("window", cfg.CRPTAPI.Limiter.Window))

	submitter := &submitter{client: client, count: opts.Count, logger: logger}
	var unit service.Unit = service.NewWorkerUnitWithOpts(submitter, service.WorkerUnitOpts{MetricsRegisterer: metrics})
	if registry != nil {
		unit = service.NewCompositeUnit(registry, service.NewWorkerUnitWithOpts(
			stopAfter(submitter, registry, logger), service.WorkerUnitOpts{MetricsRegisterer: metrics}))
	}
	if err = service.New(logger, unit).StartContext(ctx); err != nil {
		return err
	}
	if submitter.failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", submitter.failed, opts.Count)
	}
	return nil
}

// newFakeRegistry creates a local registry enforcing the same limit as the client.
// Its window is 10% shorter since delivery latency may bring two requests a bit closer than they were admitted.
// The listener is bound here, so the endpoint is known before the registry is started.
func newFakeRegistry(limiterCfg crptapi.LimiterConfig, logger log.FieldLogger) (*fakeregistry.Server, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen fake registry: %w", err)
	}
	registry, err := fakeregistry.New(logger.With(log.String("component", "fake_registry")), fakeregistry.Opts{
		Listener: listener,
		Limit:    ratelimit.Rate{Count: limiterCfg.MaxRequests, Duration: limiterCfg.Window * 9 / 10},
	})
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("create fake registry: %w", err)
	}
	return registry, nil
}

// stopAfter stops the unit once the worker returns,
// so a composite of a server and a batch worker finishes together with the batch.
func stopAfter(worker service.Worker, unit service.Unit, logger log.FieldLogger) service.Worker {
	return service.WorkerFunc(func(ctx context.Context) error {
		defer func() {
			if err := unit.Stop(true); err != nil {
				logger.Error("failed to stop unit after batch", log.Error(err))
			}
		}()
		return worker.Run(ctx)
	})
}

type submitter struct {
	client *crptapi.Client
	count  int
	logger log.FieldLogger
	failed int
}

// Run submits the sample document count times sequentially.
// API and transport errors are logged and counted; cancellation stops the batch.
func (s *submitter) Run(ctx context.Context) error {
	for i := 1; i <= s.count; i++ {
		startTime := time.Now()
		result, err := s.client.CreateDocument(ctx, sampleDocument, sampleSignature)
		fields := []log.Field{log.Int("n", i), log.DurationIn(time.Since(startTime), time.Millisecond)}
		if err != nil {
			if errors.Is(err, crptapi.ErrAdmissionCancelled) || errors.Is(err, crptapi.ErrClientClosed) {
				s.logger.Warn("submission interrupted", append(fields, log.Error(err))...)
				return nil
			}
			s.failed++
			s.logger.Error("submission failed", append(fields, log.Error(err))...)
			continue
		}
		s.logger.Info("document submitted", append(fields, log.String("result", result))...)
	}
	return nil
}
