package obs

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTimeLogsFailureWithRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	ctx := WithRequestID(context.Background(), "req-42")

	err := errors.New("boom")
	Time(ctx, log, "settlement.settle")(&err)

	entries := logs.FilterMessage("op failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 failure entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["req_id"] != "req-42" || fields["op"] != "settlement.settle" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestTimeLogsSuccessAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var err error
	Time(context.Background(), zap.New(core), "route.accept")(&err)
	if logs.FilterMessage("op done").Len() != 1 {
		t.Fatalf("expected success entry")
	}
}

func TestTimeToleratesNilLogger(t *testing.T) {
	var err error
	Time(context.Background(), nil, "noop")(&err)
}
