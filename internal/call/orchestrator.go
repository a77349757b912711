package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vocalis-ai/vocalis/internal/observe"
	"github.com/vocalis-ai/vocalis/internal/pipeline"
	"github.com/vocalis-ai/vocalis/internal/usecase"
	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	"github.com/vocalis-ai/vocalis/pkg/provider/stt"
	"github.com/vocalis-ai/vocalis/pkg/provider/tts"
	"github.com/vocalis-ai/vocalis/pkg/provider/vad"
	"github.com/vocalis-ai/vocalis/pkg/store"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// Watchdog defaults.
const (
	defaultMaxDuration  = 600 * time.Second
	defaultIdleTimeout  = 30 * time.Second
	controlPollInterval = time.Second
	monitorTick         = time.Second
)

// Deps bundles the collaborators an Orchestrator needs. Ports left nil
// disable the pipeline; the session still runs its control loop and
// watchdogs so text-only flows keep working.
type Deps struct {
	StartCall      *usecase.StartCall
	EndCall        *usecase.EndCall
	ProcessAudio   *usecase.ProcessAudio
	Generate       *usecase.GenerateResponse
	SynthesizeText *usecase.SynthesizeText

	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
	VAD vad.Engine

	Transcripts store.TranscriptRepository
	Tools       map[string]usecase.Tool
}

// Option configures an Orchestrator during construction.
type Option func(*Orchestrator)

// WithMaxDuration overrides the maximum session duration (default 600 s).
func WithMaxDuration(d time.Duration) Option {
	return func(o *Orchestrator) { o.maxDuration = d }
}

// WithIdleTimeout overrides the idle timeout (default 30 s).
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.idleTimeout = d }
}

// WithOutputCallback wires the transport's audio send path into the TTS stage.
func WithOutputCallback(cb pipeline.OutputCallback) Option {
	return func(o *Orchestrator) { o.output = cb }
}

// WithMetrics attaches the observability instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator owns one call session end to end: the pipeline, the FSM, the
// control channel, the idle/duration watchdogs, and graceful teardown. It is
// the facade the transport layer talks to.
type Orchestrator struct {
	deps Deps

	fsm     *FSM
	control *Channel
	history *pipeline.History
	output  pipeline.OutputCallback
	metrics *observe.Metrics

	maxDuration time.Duration
	idleTimeout time.Duration

	mu              sync.Mutex
	active          bool
	currentCall     *types.Call
	chain           *pipeline.Chain
	startTime       time.Time
	lastInteraction time.Time
	tasksCancel     context.CancelFunc
}

// New creates an Orchestrator for one call session.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:        deps,
		fsm:         NewFSM(),
		control:     NewChannel(0),
		history:     pipeline.NewHistory(),
		maxDuration: defaultMaxDuration,
		idleTimeout: defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FSMState returns the current conversation state.
func (o *Orchestrator) FSMState() State { return o.fsm.State() }

// Control returns the control channel for external signal producers.
func (o *Orchestrator) Control() *Channel { return o.control }

// History returns the shared conversation history.
func (o *Orchestrator) History() *pipeline.History { return o.history }

// CurrentCall returns the active call aggregate, or nil.
func (o *Orchestrator) CurrentCall() *types.Call {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentCall
}

// Active reports whether the session is running.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// StartSession brings the session up: starts the call via the use case,
// moves the FSM to listening, builds and starts the pipeline when all ports
// are available, spawns the control loop and idle monitor, and finally
// synthesizes the agent's greeting. The greeting audio is returned for the
// transport to play; a greeting failure logs and leaves the session running.
//
// Any other failure tears the session back down and is returned.
func (o *Orchestrator) StartSession(ctx context.Context, agentID, streamID, fromNumber, toNumber string) ([]byte, error) {
	slog.Info("starting session", "agent", agentID, "stream", streamID)

	now := time.Now()
	o.mu.Lock()
	o.active = true
	o.startTime = now
	o.lastInteraction = now
	o.mu.Unlock()

	greeting, err := o.startSession(ctx, agentID, streamID, fromNumber, toNumber)
	if err != nil {
		o.Stop()
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.ActiveCalls.Add(ctx, 1)
	}
	return greeting, nil
}

func (o *Orchestrator) startSession(ctx context.Context, agentID, streamID, fromNumber, toNumber string) ([]byte, error) {
	current, err := o.deps.StartCall.Execute(ctx, agentID, streamID, fromNumber, toNumber)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: start call: %w", err)
	}

	o.mu.Lock()
	o.currentCall = current
	o.mu.Unlock()

	agent := current.Agent

	o.fsm.Transition(StateListening, "session_started")

	if o.deps.STT != nil && o.deps.LLM != nil && o.deps.TTS != nil && o.deps.VAD != nil {
		chain, err := pipeline.New(pipeline.Config{
			Agent:              agent,
			STT:                o.deps.STT,
			LLM:                o.deps.LLM,
			TTS:                o.deps.TTS,
			VAD:                o.deps.VAD,
			History:            o.history,
			Executor:           usecase.NewToolExecutor(o.deps.Tools),
			HandleBargeIn:      usecase.HandleBargeIn,
			Output:             o.output,
			TranscriptCallback: o.saveTranscript,
			OnInterruption: func(text string) {
				o.HandleInterruption(context.WithoutCancel(ctx), text)
			},
			StreamID: streamID,
		})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: build pipeline: %w", err)
		}
		if err := chain.Start(ctx); err != nil {
			return nil, fmt.Errorf("orchestrator: start pipeline: %w", err)
		}

		o.mu.Lock()
		o.chain = chain
		o.mu.Unlock()
	} else {
		slog.Warn("ports not fully configured, running without pipeline", "stream", streamID)
	}

	tasksCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.tasksCancel = cancel
	o.mu.Unlock()

	go o.controlLoop(tasksCtx)
	go o.monitorIdle(tasksCtx)

	return o.synthesizeGreeting(ctx, agent, streamID), nil
}

// synthesizeGreeting renders the agent's first message directly through TTS,
// bypassing the LLM. Failures log and return nil: a silent start beats a
// dead session.
func (o *Orchestrator) synthesizeGreeting(ctx context.Context, agent *types.Agent, streamID string) []byte {
	if agent.FirstMessage == "" || o.deps.SynthesizeText == nil || o.deps.TTS == nil {
		return nil
	}

	voice, err := tts.NewVoiceConfig(tts.VoiceParams{
		Name:        agent.VoiceName,
		Speed:       agent.VoiceSpeed,
		Pitch:       agent.VoicePitch,
		Volume:      agent.VoiceVolume,
		Style:       tts.Style(agent.VoiceStyle),
		StyleDegree: agent.VoiceStyleDegree,
		Provider:    agent.VoiceProvider,
	})
	if err != nil {
		slog.Warn("greeting voice config invalid", "err", err)
		return nil
	}

	data, err := o.deps.SynthesizeText.Execute(ctx, agent.FirstMessage, voice, audio.ForClient(agent.ClientType), streamID)
	if err != nil {
		slog.Warn("greeting synthesis failed", "err", err)
		return nil
	}
	slog.Info("greeting synthesized", "bytes", len(data))
	return data
}

// PushAudioFrame injects raw audio into the head of the pipeline. Frames
// arriving before the pipeline is up are dropped with a log line.
func (o *Orchestrator) PushAudioFrame(ctx context.Context, rawAudio []byte, sampleRate, channels int) {
	o.mu.Lock()
	chain := o.chain
	o.mu.Unlock()

	if chain == nil || chain.Head() == nil {
		slog.Warn("pipeline not ready, dropping audio frame")
		return
	}

	frame := pipeline.NewAudioFrame(rawAudio, sampleRate, channels)
	if err := chain.Head().ProcessFrame(ctx, frame, pipeline.Downstream); err != nil {
		slog.Error("audio frame rejected", "err", err)
	}
}

// HandleInterruption reacts to a user barge-in: transitions through
// interrupted back to listening and posts the interrupt signal on the
// control channel. Ignored when the FSM forbids interruption.
func (o *Orchestrator) HandleInterruption(ctx context.Context, text string) {
	if !o.fsm.CanInterrupt() {
		slog.Debug("interruption ignored", "state", string(o.fsm.State()))
		return
	}

	reason := "vad_detected"
	if text != "" {
		reason = "user_spoke"
	}
	slog.Info("interruption detected", "reason", reason)

	o.fsm.Transition(StateInterrupted, fmt.Sprintf("%s: %.30s", reason, text))
	SendInterrupt(o.control, reason, text)
	o.fsm.Transition(StateListening, "ready_for_input")

	if o.metrics != nil {
		o.metrics.RecordBargeIn(ctx, reason)
	}

	o.mu.Lock()
	o.lastInteraction = time.Now()
	o.mu.Unlock()
}

// EndSession stops the session and finalises the call aggregate.
func (o *Orchestrator) EndSession(ctx context.Context, reason string) error {
	slog.Info("ending session", "reason", reason)
	o.Stop()

	o.mu.Lock()
	current := o.currentCall
	o.currentCall = nil
	o.mu.Unlock()

	if current == nil {
		return nil
	}
	if o.metrics != nil {
		o.metrics.ActiveCalls.Add(ctx, -1)
	}
	return o.deps.EndCall.Execute(ctx, current, reason)
}

// Stop tears the session down: pipeline, background tasks, control channel,
// FSM. Idempotent — later calls are no-ops.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	wasActive := o.active
	o.active = false
	chain := o.chain
	o.chain = nil
	cancel := o.tasksCancel
	o.tasksCancel = nil
	o.mu.Unlock()

	if !wasActive {
		return
	}
	slog.Info("stopping orchestrator")

	if chain != nil {
		if err := chain.Stop(); err != nil {
			slog.Warn("pipeline stop reported errors", "err", err)
		}
	}
	if cancel != nil {
		cancel()
	}

	o.control.Close()
	o.fsm.Reset()
	slog.Info("orchestrator stopped")
}

// saveTranscript forwards a committed turn to the transcript repository.
// The repository contract makes this a non-blocking enqueue.
func (o *Orchestrator) saveTranscript(role types.Role, text string) {
	o.mu.Lock()
	current := o.currentCall
	o.mu.Unlock()

	if o.deps.Transcripts == nil || current == nil {
		return
	}
	o.deps.Transcripts.Save(current.ID, role, text)
}

// controlLoop drains the control channel while the session is active. It
// polls with a one-second window so a deactivated session is noticed
// promptly even when no signals arrive.
func (o *Orchestrator) controlLoop(ctx context.Context) {
	slog.Info("control loop started")
	defer slog.Info("control loop stopped")

	for o.Active() {
		msg, ok := o.control.Wait(ctx, controlPollInterval)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		if o.metrics != nil {
			o.metrics.RecordControlSignal(ctx, string(msg.Signal))
		}

		switch msg.Signal {
		case SignalInterrupt:
			// Interruption side effects ran in HandleInterruption.
			slog.Debug("control: interrupt processed")

		case SignalCancel:
			slog.Info("control: cancel received")

		case SignalEmergencyStop:
			reason, _ := msg.Metadata["reason"].(string)
			slog.Warn("control: emergency stop", "reason", reason)
			o.Stop()
			return

		case SignalClearPipeline:
			slog.Debug("control: clear pipeline")

		case SignalPause, SignalResume:
			slog.Debug("control: pause/resume", "signal", string(msg.Signal))
		}
	}
}

// monitorIdle enforces the max-duration and idle watchdogs. Both violations
// convert into an emergency stop on the control channel.
func (o *Orchestrator) monitorIdle(ctx context.Context) {
	slog.Info("idle monitor started")
	defer slog.Info("idle monitor stopped")

	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()

	for o.Active() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		o.mu.Lock()
		start := o.startTime
		last := o.lastInteraction
		o.mu.Unlock()

		now := time.Now()
		if now.Sub(start) > o.maxDuration {
			slog.Info("max duration reached", "limit", o.maxDuration)
			SendEmergencyStop(o.control, "max_duration_exceeded")
			return
		}
		if now.Sub(last) > o.idleTimeout {
			slog.Info("idle timeout reached", "limit", o.idleTimeout)
			SendEmergencyStop(o.control, "idle_timeout")
			return
		}
	}
}
