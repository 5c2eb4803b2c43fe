package telemetry

import (
	"context"
	"testing"
)

func TestCaptureMask(t *testing.T) {
	defer SetCaptureMask(0)

	SetCaptureMask(0)
	if Captures(ChannelAllocatorDebug) {
		t.Error("no channel should capture with a zero mask")
	}

	SetCaptureMask(ChannelAllocatorDebug | ChannelMacroSchedProfile)
	if !Captures(ChannelAllocatorDebug) {
		t.Error("allocator debug channel should capture")
	}
	if !Captures(ChannelMacroSchedProfile) {
		t.Error("macro scheduler profile channel should capture")
	}
	if Captures(ChannelWorkerPoolDebug) {
		t.Error("worker pool channel should stay off")
	}

	SetCaptureMask(ChannelAll)
	if !Captures(ChannelUserStart) {
		t.Error("user channels should capture under ChannelAll")
	}
}

func TestStartSpan_Disabled(t *testing.T) {
	defer SetCaptureMask(0)
	SetCaptureMask(0)

	ctx, span := StartSpan(context.Background(), ChannelMicroSchedDebug, "spawn")
	if ctx == nil {
		t.Fatal("StartSpan must return a usable context")
	}
	// The disabled-channel span is a no-op and safe to end.
	span.End()
	if span.SpanContext().IsValid() {
		t.Error("disabled channel must yield a non-recording span")
	}
}

func TestStartSpan_Enabled(t *testing.T) {
	defer SetCaptureMask(0)
	SetCaptureMask(ChannelMicroSchedDebug)

	// Without an installed TracerProvider this is still the global no-op
	// tracer; the call must simply not panic and must return a span.
	_, span := StartSpan(context.Background(), ChannelMicroSchedDebug, "spawn")
	span.End()
}
