// Package pipeline implements the per-call processing chain: tagged frame
// variants, the doubly-linked processor protocol, the four pipeline stages
// (VAD → STT → LLM → TTS), and the factory that wires them together.
//
// Frames travel downstream from the transport towards the TTS stage; the
// upstream direction carries backpressure and the TTS fallback emission when
// no output callback is installed. Control signals that must overtake
// in-flight data (interrupt, emergency stop) do not travel through the
// pipeline at all — they use the orchestrator's control channel.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/vocalis-ai/vocalis/pkg/types"
)

// Direction indicates which way a frame travels through the chain.
type Direction int

const (
	// Downstream is the canonical data direction: transport → VAD → STT → LLM → TTS.
	Downstream Direction = iota + 1

	// Upstream is the reverse path, used for backpressure and for TTS
	// fallback emission when no output callback is set.
	Upstream
)

// String implements fmt.Stringer for log output.
func (d Direction) String() string {
	switch d {
	case Downstream:
		return "downstream"
	case Upstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Class partitions frame variants by delivery priority.
type Class int

const (
	// ClassSystem frames carry lifecycle and speech-boundary signals.
	ClassSystem Class = iota

	// ClassData frames carry audio, text, and image payloads.
	ClassData

	// ClassControl frames carry processor-internal control. Rarely used;
	// most control travels via the orchestrator's control channel.
	ClassControl
)

// Header carries the metadata common to every frame variant.
type Header struct {
	// ID uniquely identifies this frame instance.
	ID string

	// Timestamp is when the frame was created.
	Timestamp time.Time

	// TraceID correlates frames belonging to one interaction.
	TraceID string

	// Metadata holds free-form frame annotations.
	Metadata map[string]any
}

// Frame is the tagged variant passed between processors. Concrete variants
// are dispatched by type switch; do not add behaviour to this interface.
type Frame interface {
	// Hdr returns the mutable frame header.
	Hdr() *Header

	// Name returns the variant tag (e.g. "Audio", "Cancel").
	Name() string

	// Class returns the priority class of the variant.
	Class() Class
}

// base is embedded by every variant to provide the header.
type base struct {
	hdr Header
}

func newBase() base {
	return base{hdr: Header{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		TraceID:   uuid.NewString(),
	}}
}

// Hdr implements Frame.
func (b *base) Hdr() *Header { return &b.hdr }

// WithTraceID overrides the frame's trace identifier and returns the header
// for further chaining.
func (b *base) WithTraceID(traceID string) *Header {
	if traceID != "" {
		b.hdr.TraceID = traceID
	}
	return &b.hdr
}

// ─── System frames ───────────────────────────────────────────────────────────

// StartFrame marks the beginning of a stream.
type StartFrame struct{ base }

// NewStartFrame creates a StartFrame.
func NewStartFrame() *StartFrame { return &StartFrame{base: newBase()} }

func (*StartFrame) Name() string { return "Start" }
func (*StartFrame) Class() Class { return ClassSystem }

// EndFrame marks the orderly end of a stream.
type EndFrame struct {
	base
	Reason string
}

// NewEndFrame creates an EndFrame with the given reason.
func NewEndFrame(reason string) *EndFrame {
	if reason == "" {
		reason = "normal"
	}
	return &EndFrame{base: newBase(), Reason: reason}
}

func (*EndFrame) Name() string { return "End" }
func (*EndFrame) Class() Class { return ClassSystem }

// CancelFrame aborts in-flight generation and synthesis. The LLM stage
// cancels its generation task; the TTS stage flushes its queue.
type CancelFrame struct {
	base
	Reason string
}

// NewCancelFrame creates a CancelFrame with the given reason.
func NewCancelFrame(reason string) *CancelFrame {
	if reason == "" {
		reason = "cancelled"
	}
	return &CancelFrame{base: newBase(), Reason: reason}
}

func (*CancelFrame) Name() string { return "Cancel" }
func (*CancelFrame) Class() Class { return ClassSystem }

// EndTaskFrame signals the end of a task — notably the [END_CALL] sentinel
// emitted by the LLM. No stage or transport code acts on it; the TTS stage
// forwards it and it is dropped at the tail of the chain.
type EndTaskFrame struct {
	base
	TaskID string
	Result map[string]any
}

// NewEndTaskFrame creates an EndTaskFrame.
func NewEndTaskFrame(taskID string, result map[string]any) *EndTaskFrame {
	return &EndTaskFrame{base: newBase(), TaskID: taskID, Result: result}
}

func (*EndTaskFrame) Name() string { return "EndTask" }
func (*EndTaskFrame) Class() Class { return ClassSystem }

// ErrorFrame reports a processor failure; Fatal marks it as unrecoverable.
// No stage emits or acts on it, so a fatal ErrorFrame does not end the call.
type ErrorFrame struct {
	base
	Message string
	Fatal   bool
}

// NewErrorFrame creates an ErrorFrame.
func NewErrorFrame(message string, fatal bool) *ErrorFrame {
	return &ErrorFrame{base: newBase(), Message: message, Fatal: fatal}
}

func (*ErrorFrame) Name() string { return "Error" }
func (*ErrorFrame) Class() Class { return ClassSystem }

// BackpressureSeverity grades a backpressure signal.
type BackpressureSeverity string

const (
	BackpressureWarning  BackpressureSeverity = "warning"
	BackpressureCritical BackpressureSeverity = "critical"
)

// BackpressureFrame is emitted upstream when a processor queue approaches
// capacity.
type BackpressureFrame struct {
	base
	QueueSize int
	MaxSize   int
	Severity  BackpressureSeverity
}

// NewBackpressureFrame creates a BackpressureFrame.
func NewBackpressureFrame(queueSize, maxSize int, severity BackpressureSeverity) *BackpressureFrame {
	return &BackpressureFrame{base: newBase(), QueueSize: queueSize, MaxSize: maxSize, Severity: severity}
}

func (*BackpressureFrame) Name() string { return "Backpressure" }
func (*BackpressureFrame) Class() Class { return ClassSystem }

// UserStartedSpeakingFrame is emitted by VAD on confirmed speech onset.
type UserStartedSpeakingFrame struct{ base }

// NewUserStartedSpeakingFrame creates a UserStartedSpeakingFrame.
func NewUserStartedSpeakingFrame() *UserStartedSpeakingFrame {
	return &UserStartedSpeakingFrame{base: newBase()}
}

func (*UserStartedSpeakingFrame) Name() string { return "UserStartedSpeaking" }
func (*UserStartedSpeakingFrame) Class() Class { return ClassSystem }

// UserStoppedSpeakingFrame is emitted by VAD when the turn-end condition is met.
type UserStoppedSpeakingFrame struct{ base }

// NewUserStoppedSpeakingFrame creates a UserStoppedSpeakingFrame.
func NewUserStoppedSpeakingFrame() *UserStoppedSpeakingFrame {
	return &UserStoppedSpeakingFrame{base: newBase()}
}

func (*UserStoppedSpeakingFrame) Name() string { return "UserStoppedSpeaking" }
func (*UserStoppedSpeakingFrame) Class() Class { return ClassSystem }

// ─── Data frames ─────────────────────────────────────────────────────────────

// AudioFrame carries raw audio bytes.
type AudioFrame struct {
	base
	Data       []byte
	SampleRate int
	Channels   int
}

// NewAudioFrame creates an AudioFrame.
func NewAudioFrame(data []byte, sampleRate, channels int) *AudioFrame {
	if channels == 0 {
		channels = 1
	}
	return &AudioFrame{base: newBase(), Data: data, SampleRate: sampleRate, Channels: channels}
}

func (*AudioFrame) Name() string { return "Audio" }
func (*AudioFrame) Class() Class { return ClassData }

// TextFrame carries a transcript segment or a response fragment.
type TextFrame struct {
	base
	Text    string
	IsFinal bool
	Role    types.Role
}

// NewTextFrame creates a final TextFrame with the given role.
func NewTextFrame(text string, role types.Role) *TextFrame {
	return &TextFrame{base: newBase(), Text: text, IsFinal: true, Role: role}
}

func (*TextFrame) Name() string { return "Text" }
func (*TextFrame) Class() Class { return ClassData }

// ImageFrame carries image data. Unused by the voice pipeline today; kept so
// multimodal providers have a frame to emit.
type ImageFrame struct {
	base
	Data   []byte
	Format string
	Width  int
	Height int
}

// NewImageFrame creates an ImageFrame.
func NewImageFrame(data []byte, format string, width, height int) *ImageFrame {
	return &ImageFrame{base: newBase(), Data: data, Format: format, Width: width, Height: height}
}

func (*ImageFrame) Name() string { return "Image" }
func (*ImageFrame) Class() Class { return ClassData }
