package workerpresentation

import (
	"context"
	"testing"

	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	infraobs "github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuditWorkerLogsAndCounts(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	reg := prometheus.NewRegistry()
	counters, histograms := prometrics.New("minishop", "", reg).Instruments()
	w := NewAuditWorker(infraobs.New(nil, zaplogger.Wrap(zap.New(core)), counters, histograms))

	ctx := context.Background()
	require.NoError(t, w.Handle(ctx, domorder.CreatedEvent{OrderID: "o-1", Status: domorder.StatusConfirmed}))
	require.NoError(t, w.Handle(ctx, domorder.CancelledEvent{OrderID: "o-1", Status: domorder.StatusCancelled, RefundError: "timeout"}))

	entries := logs.FilterMessage("order_event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "o-1", fields["order_id"])
	assert.Equal(t, "order.created", fields["event"])
	assert.Equal(t, workerAudit, fields["worker"])
	assert.NotEmpty(t, fields["event_id"])

	assert.Equal(t, 1, logs.FilterMessage("order_event_needs_reconciliation").Len())

	n, err := testutil.GatherAndCount(reg, "minishop_order_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWithEventContextKeepsProvidedEventID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithEventContext(context.Background(), zaplogger.Wrap(zap.New(core)), map[string]string{"event_id": "evt-1", "event": "order.created"})

	logctx.From(ctx).Info("event_handled")
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "evt-1", fields["event_id"])
	assert.Equal(t, "order.created", fields["event"])
}
