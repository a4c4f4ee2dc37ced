package order

import (
	"context"
	"time"

	domidentity "github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	dominventory "github.com/Zhima-Mochi/minishop-saga/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-saga/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService     = "order-service"
	spanPrefix       = "UC."
	publishPeer      = "outbox"
	publishTimeout   = 300 * time.Millisecond
	outcomeSuccess   = "success"
	outcomeError     = "error"
	statusOK         = "OK"
	useCaseCreate    = "order.create"
	useCaseCancel    = "order.cancel"
	useCaseUpdate    = "order.update_status"
	useCaseGet       = "order.get"
	useCaseList      = "order.list"
	useCaseListStock = "inventory.list"
)

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Orders    domain.Repository
	Ledger    dominventory.Ledger
	Identity  domidentity.Verifier
	Payments  dompayment.Gateway
	Publisher domoutbox.Publisher
	IDs       IDGenerator
}

// Orchestrator coordinates the order saga: identity check, stock
// reservation, payment and the compensations that undo them.
type Orchestrator struct {
	orders    domain.Repository
	ledger    dominventory.Ledger
	identity  domidentity.Verifier
	payments  dompayment.Gateway
	publisher domoutbox.Publisher
	ids       IDGenerator
	cfg       Config
	tel       observability.Observability

	log observability.Logger
	// RED metrics (supplied via DI; do not instantiate inside methods).
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}

	extCounter     observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram   observability.Histogram // external_request_duration_seconds{peer,endpoint}
	refundFailures observability.Counter   // order_refund_failures_total{provider}
}

func NewOrchestrator(deps Deps, cfg Config, tel observability.Observability) *Orchestrator {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()

	return &Orchestrator{
		orders:         deps.Orders,
		ledger:         deps.Ledger,
		identity:       deps.Identity,
		payments:       deps.Payments,
		publisher:      deps.Publisher,
		ids:            deps.IDs,
		cfg:            cfg.withDefaults(),
		tel:            tel,
		log:            tel.Logger().With(observability.F("service", orderService)),
		reqCounter:     metrics.Counter(observability.MUsecaseRequests),
		durHistogram:   metrics.Histogram(observability.MUsecaseDuration),
		extCounter:     metrics.Counter(observability.MExternalRequests),
		extHistogram:   metrics.Histogram(observability.MExternalRequestDuration),
		refundFailures: metrics.Counter(observability.MRefundFailures),
	}
}

// run tracks one use case invocation: span, RED metrics and the closing
// use_case_done log line.
type run struct {
	o       *Orchestrator
	ctx     context.Context
	useCase string
	span    trace.Span
	start   time.Time
	logger  observability.Logger
	outcome string
	status  string
	fields  []observability.Field
}

func (o *Orchestrator) begin(ctx context.Context, useCase, name string, attrs ...attribute.KeyValue) (context.Context, *run) {
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := o.tel.Tracer().Start(ctx, spanPrefix+name, attrs...)

	logger := logctx.FromOr(ctx, o.log).With(observability.F("use_case", useCase))
	ctx = logctx.With(ctx, logger)

	return ctx, &run{
		o:       o,
		ctx:     ctx,
		useCase: useCase,
		span:    span,
		start:   time.Now(),
		logger:  logger,
		outcome: outcomeSuccess,
		status:  statusOK,
	}
}

func (r *run) fail(status string) {
	r.outcome, r.status = outcomeError, status
}

func (r *run) note(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

func (r *run) end(err error) {
	lat := time.Since(r.start).Seconds()
	if err != nil && r.outcome == outcomeSuccess {
		r.fail("ERROR")
	}

	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, r.status)
	} else {
		r.span.SetStatus(codes.Ok, r.status)
	}
	r.span.End()

	r.o.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.o.durHistogram.Observe(lat, observability.L("use_case", r.useCase))

	fields := append([]observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}, r.fields...)
	fields = append(fields, logctx.TraceFields(r.ctx)...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.logger.Info("use_case_done", fields...)
}

// publish hands evt to the event sink without letting a slow or failed sink
// affect the caller.
func (o *Orchestrator) publish(ctx context.Context, evt domoutbox.Event) {
	if o.publisher == nil {
		return
	}
	name := evt.EventName()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := outcomeSuccess
	if err := o.publisher.Publish(pubCtx, evt); err != nil {
		outcome = outcomeError
		trace.SpanFromContext(ctx).RecordError(err)
		logctx.FromOr(ctx, o.log).Warn("event_publish_failed",
			observability.F("event", name),
			observability.F("error", err.Error()),
		)
	}
	o.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", name),
		observability.L("outcome", outcome),
	)
	o.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", name),
	)
}

func linesOf(items []domain.Item) []dominventory.Line {
	lines := make([]dominventory.Line, len(items))
	for i, it := range items {
		lines[i] = dominventory.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return lines
}
