// Package botruntime owns the serve loop: it keeps a bridge connection
// alive, fans inbound events into per-conversation workers, and wires
// the command engine to stores, audit, metrics and the health listener.
package botruntime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/listkeeper/audit"
	"github.com/quailyquaily/listkeeper/engine"
	"github.com/quailyquaily/listkeeper/groupcfg"
	"github.com/quailyquaily/listkeeper/internal/gateway"
	"github.com/quailyquaily/listkeeper/internal/healthcheck"
	"github.com/quailyquaily/listkeeper/internal/metrics"
	"github.com/quailyquaily/listkeeper/internal/worker"
	"github.com/quailyquaily/listkeeper/trigger"
)

const (
	defaultMaxConcurrency = 3
	defaultHandleTimeout  = 30 * time.Second
	workerQueueCap        = 16
	reconnectBackoffMin   = time.Second
	reconnectBackoffMax   = 30 * time.Second
)

type Options struct {
	Logger         *slog.Logger
	BridgeURL      string
	BridgeToken    string
	Prefix         string
	StateDir       string
	AuditPath      string
	HealthListen   string
	MaxConcurrency int
	HandleTimeout  time.Duration
	RosterTimeout  time.Duration
}

// Run blocks until ctx is canceled or the shutdown command fires. A
// broken bridge connection is retried with capped backoff; everything
// else about the process survives the reconnect.
func Run(ctx context.Context, opts Options) error {
	if strings.TrimSpace(opts.BridgeURL) == "" {
		return fmt.Errorf("botruntime: bridge url is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	handleTimeout := opts.HandleTimeout
	if handleTimeout <= 0 {
		handleTimeout = defaultHandleTimeout
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	triggers := trigger.NewFileStore(opts.StateDir, logger)
	groups := groupcfg.NewFileStore(opts.StateDir, logger)

	var recorder audit.Recorder = audit.Nop{}
	if path := strings.TrimSpace(opts.AuditPath); path != "" {
		sink, err := audit.NewJSONLSink(path)
		if err != nil {
			return fmt.Errorf("botruntime: open audit log: %w", err)
		}
		defer func() { _ = sink.Close() }()
		recorder = sink
	}

	if listen := healthcheck.NormalizeListen(opts.HealthListen); listen != "" {
		if _, err := healthcheck.StartServer(runCtx, logger, listen, "listkeeper"); err != nil {
			logger.Warn("health_server_start_error", "addr", listen, "error", err.Error())
		}
	}

	dispatch := newDispatcher(runCtx, maxConcurrency)

	logger.Info("serve_start",
		"bridge_url", opts.BridgeURL,
		"state_dir", opts.StateDir,
		"max_concurrency", maxConcurrency,
		"handle_timeout", handleTimeout.String(),
	)

	backoff := reconnectBackoffMin
	for {
		if runCtx.Err() != nil {
			logger.Info("serve_stop", "reason", "context_canceled")
			return nil
		}

		client, err := gateway.Dial(runCtx, gateway.Options{
			URL:           opts.BridgeURL,
			Token:         opts.BridgeToken,
			Logger:        logger,
			RosterTimeout: opts.RosterTimeout,
		})
		if err != nil {
			if runCtx.Err() != nil {
				logger.Info("serve_stop", "reason", "context_canceled")
				return nil
			}
			logger.Warn("bridge_connect_error", "error", err.Error())
			if sleepErr := sleepWithContext(runCtx, backoff); sleepErr != nil {
				return nil
			}
			backoff = min(backoff*2, reconnectBackoffMax)
			continue
		}
		backoff = reconnectBackoffMin
		logger.Info("bridge_connected", "url", opts.BridgeURL)

		eng, err := engine.New(engine.Options{
			Prefix:    opts.Prefix,
			Triggers:  triggers,
			Groups:    groups,
			Transport: client,
			Logger:    logger,
			Audit:     recorder,
			Hooks: engine.Hooks{
				OnCommand: func(name, outcome string) {
					metrics.Commands.WithLabelValues(name, outcome).Inc()
				},
				OnTriggerFired: func() { metrics.TriggersFired.Inc() },
				OnSendError:    func() { metrics.SendErrors.Inc() },
			},
			Shutdown: stop,
		})
		if err != nil {
			_ = client.Close()
			return err
		}

		readErr := client.Run(runCtx, gateway.Handlers{
			OnMessage: func(msg engine.Message) {
				metrics.InboundEvents.WithLabelValues("message").Inc()
				dispatch.enqueue(msg.ConversationID, func(jobCtx context.Context) {
					hctx, cancel := context.WithTimeout(jobCtx, handleTimeout)
					defer cancel()
					if err := eng.HandleMessage(hctx, msg); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn("message_handle_error", "conversation_id", msg.ConversationID, "error", err.Error())
					}
				})
			},
			OnMembership: func(event engine.Membership) {
				metrics.InboundEvents.WithLabelValues("membership").Inc()
				dispatch.enqueue(event.ConversationID, func(jobCtx context.Context) {
					hctx, cancel := context.WithTimeout(jobCtx, handleTimeout)
					defer cancel()
					if err := eng.HandleMembership(hctx, event); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn("membership_handle_error", "conversation_id", event.ConversationID, "error", err.Error())
					}
				})
			},
		})
		_ = client.Close()
		if runCtx.Err() != nil {
			logger.Info("serve_stop", "reason", "context_canceled")
			return nil
		}
		if readErr != nil {
			logger.Warn("bridge_read_error", "error", readErr.Error())
		}
	}
}

// dispatcher keeps one job channel per conversation so events within a
// conversation run strictly in order, while the shared semaphore caps
// total in-flight work.
type dispatcher struct {
	ctx    context.Context
	sem    chan struct{}
	mu     sync.Mutex
	queues map[string]chan func(context.Context)
}

func newDispatcher(ctx context.Context, maxConcurrency int) *dispatcher {
	return &dispatcher{
		ctx:    ctx,
		sem:    make(chan struct{}, maxConcurrency),
		queues: map[string]chan func(context.Context){},
	}
}

func (d *dispatcher) enqueue(conversationID string, job func(context.Context)) {
	d.mu.Lock()
	queue, ok := d.queues[conversationID]
	if !ok {
		queue = make(chan func(context.Context), workerQueueCap)
		d.queues[conversationID] = queue
		worker.Start(worker.StartOptions[func(context.Context)]{
			Ctx:    d.ctx,
			Sem:    d.sem,
			Jobs:   queue,
			Handle: func(ctx context.Context, fn func(context.Context)) { fn(ctx) },
		})
	}
	d.mu.Unlock()
	_ = worker.Enqueue(nil, d.ctx, queue, job)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
