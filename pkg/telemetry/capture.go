package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ============================================================================
// Capture-mask channels
// ============================================================================

// CaptureChannel is a bit in the process-wide capture mask naming one
// instrumentation channel. Each subsystem carries a debug and a profile
// sub-channel; bits from ChannelUserStart up are free for applications.
type CaptureChannel uint64

const (
	// ChannelWorkerPoolDebug traces worker pool scheduling decisions.
	ChannelWorkerPoolDebug CaptureChannel = 1 << iota
	// ChannelWorkerPoolProfile traces worker pool timing.
	ChannelWorkerPoolProfile
	// ChannelMicroSchedDebug traces task spawn and completion.
	ChannelMicroSchedDebug
	// ChannelMicroSchedProfile traces per-task timing.
	ChannelMicroSchedProfile
	// ChannelThreadDebug traces thread lifecycle events.
	ChannelThreadDebug
	// ChannelThreadProfile traces thread timing.
	ChannelThreadProfile
	// ChannelAllocatorDebug traces slab and page transitions.
	ChannelAllocatorDebug
	// ChannelAllocatorProfile traces allocation timing.
	ChannelAllocatorProfile
	// ChannelMacroSchedDebug traces schedule construction and ranking.
	ChannelMacroSchedDebug
	// ChannelMacroSchedProfile traces schedule execution timing.
	ChannelMacroSchedProfile
)

// ChannelUserStart is the first channel bit reserved for applications.
const ChannelUserStart CaptureChannel = 1 << 32

// ChannelAll enables every channel.
const ChannelAll CaptureChannel = ^CaptureChannel(0)

var captureMask atomic.Uint64

// SetCaptureMask installs the process-wide capture mask. Channels outside
// the mask are no-ops.
func SetCaptureMask(mask CaptureChannel) {
	captureMask.Store(uint64(mask))
}

// CaptureMask returns the current capture mask.
func CaptureMask() CaptureChannel {
	return CaptureChannel(captureMask.Load())
}

// Captures reports whether a channel is enabled.
func Captures(ch CaptureChannel) bool {
	return captureMask.Load()&uint64(ch) != 0
}

// tracerName identifies this library's spans.
const tracerName = "github.com/taskgraph"

// StartSpan opens a span on the given channel. When the channel is outside
// the capture mask (or tracing is disabled) the returned span is the no-op
// span and the cost is a single atomic load.
func StartSpan(ctx context.Context, ch CaptureChannel, name string) (context.Context, trace.Span) {
	if !Captures(ch) {
		return trace.ContextWithSpan(ctx, noopSpan()), noopSpan()
	}
	return otel.Tracer(tracerName).Start(ctx, name)
}

func noopSpan() trace.Span {
	return trace.SpanFromContext(context.Background())
}
