package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	"github.com/vocalis-ai/vocalis/pkg/provider/stt"
	"github.com/vocalis-ai/vocalis/pkg/provider/telephony"
	"github.com/vocalis-ai/vocalis/pkg/provider/tts"
	"github.com/vocalis-ai/vocalis/pkg/store"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// StartCall initialises a call session: loads the agent, builds the call
// aggregate, and persists its initial state.
type StartCall struct {
	Calls  store.CallRepository
	Agents store.AgentRepository
}

// Execute creates and persists a new in-progress call for agentID.
func (uc *StartCall) Execute(ctx context.Context, agentID, callID, fromNumber, toNumber string) (*types.Call, error) {
	agent, err := uc.Agents.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("start call: load agent %q: %w", agentID, err)
	}

	call := types.NewCall(callID, agent)
	call.PhoneNumber = fromNumber
	if toNumber != "" {
		call.Metadata["to_number"] = toNumber
	}

	if err := call.Start(); err != nil {
		return nil, fmt.Errorf("start call: %w", err)
	}

	if err := uc.Calls.Save(ctx, call); err != nil {
		return nil, fmt.Errorf("start call: persist: %w", err)
	}
	return call, nil
}

// EndCall finalises the call: updates the aggregate, persists the terminal
// state, and hangs up the carrier leg.
type EndCall struct {
	Calls     store.CallRepository
	Telephony telephony.Provider
}

// Execute ends the call for the given reason. The carrier may already have
// disconnected; hangup failures are logged, not returned.
func (uc *EndCall) Execute(ctx context.Context, call *types.Call, reason string) error {
	call.End(reason)

	if err := uc.Calls.Save(ctx, call); err != nil {
		return fmt.Errorf("end call: persist: %w", err)
	}

	if uc.Telephony != nil {
		if err := uc.Telephony.EndCall(ctx, call.ID); err != nil {
			slog.Warn("telephony hangup failed", "call", call.ID, "err", err)
		}
	}
	return nil
}

// SynthesizeText converts text to speech directly, bypassing the LLM. Used
// for greetings, error prompts, and other system messages.
type SynthesizeText struct {
	TTS tts.Provider
}

// Execute synthesizes text with the given voice. A zero-value format
// defaults to the browser preset.
func (uc *SynthesizeText) Execute(ctx context.Context, text string, voice tts.VoiceConfig, format audio.Format, traceID string) ([]byte, error) {
	if format == (audio.Format{}) {
		format = audio.ForBrowser()
	}
	data, err := uc.TTS.Synthesize(ctx, text, voice, format)
	if err != nil {
		return nil, fmt.Errorf("synthesize text: %w", err)
	}
	slog.Debug("text synthesized", "trace", traceID, "bytes", len(data))
	return data, nil
}

// ProcessAudio transcribes one complete audio buffer. Used for discrete
// utterances outside the streaming pipeline (voicemail drops, unit probes).
type ProcessAudio struct {
	STT stt.Provider
}

// Execute returns the transcription of audioData for the call's client format.
func (uc *ProcessAudio) Execute(ctx context.Context, audioData []byte, call *types.Call) (string, error) {
	if len(audioData) == 0 {
		return "", nil
	}
	format := audio.ForTelephony()
	if call != nil && call.Agent != nil {
		format = audio.ForClient(call.Agent.ClientType)
	}
	text, err := uc.STT.Transcribe(ctx, audioData, format, "")
	if err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}
	return text, nil
}

// GenerateResponse is the non-streaming LLM→TTS path kept for callers that
// need a complete reply as one audio buffer (post-call probes, tests).
type GenerateResponse struct {
	LLM llm.Provider
	TTS tts.Provider
}

// Execute appends the user turn, generates a full reply, records the
// assistant turn, and synthesizes the reply in the call's client format.
func (uc *GenerateResponse) Execute(ctx context.Context, userText string, call *types.Call) ([]byte, error) {
	if userText != "" {
		if err := call.Conversation.AddTurn(types.ConversationTurn{Role: types.RoleUser, Content: userText}); err != nil {
			return nil, fmt.Errorf("generate response: %w", err)
		}
	}

	reply, err := uc.LLM.GenerateResponse(ctx, call.Conversation, call.Agent)
	if err != nil {
		return nil, fmt.Errorf("generate response: llm: %w", err)
	}
	if reply == "" {
		return nil, nil
	}

	if err := call.Conversation.AddTurn(types.ConversationTurn{Role: types.RoleAssistant, Content: reply}); err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}

	voice, err := tts.NewVoiceConfig(tts.VoiceParams{
		Name:        call.Agent.VoiceName,
		Speed:       call.Agent.VoiceSpeed,
		Pitch:       call.Agent.VoicePitch,
		Volume:      call.Agent.VoiceVolume,
		Style:       tts.Style(call.Agent.VoiceStyle),
		StyleDegree: call.Agent.VoiceStyleDegree,
		Provider:    call.Agent.VoiceProvider,
	})
	if err != nil {
		return nil, fmt.Errorf("generate response: voice config: %w", err)
	}

	data, err := uc.TTS.Synthesize(ctx, reply, voice, audio.ForClient(call.Agent.ClientType))
	if err != nil {
		return nil, fmt.Errorf("generate response: tts: %w", err)
	}
	return data, nil
}
