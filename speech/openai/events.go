// Package openai implements the realtime speech-to-text adapter for the
// OpenAI Realtime transcription API over WebSocket.
package openai

import "encoding/json"

// Server event types.
const (
	EventSessionCreated         = "transcription_session.created"
	EventSessionUpdated         = "transcription_session.updated"
	EventTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	EventTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventBufferCommitted        = "input_audio_buffer.committed"
	EventSpeechStarted          = "input_audio_buffer.speech_started"
	EventSpeechStopped          = "input_audio_buffer.speech_stopped"
	EventError                  = "error"
)

// Event is a discriminated union for Realtime API server events.
// Check the concrete type via type switch.
type Event interface {
	eventType() string
}

// SessionCreatedEvent confirms the transport handshake; streaming may
// begin once it is observed.
type SessionCreatedEvent struct {
	EventID string `json:"event_id"`
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
}

func (SessionCreatedEvent) eventType() string { return EventSessionCreated }

// SessionUpdatedEvent acknowledges a session configuration change.
type SessionUpdatedEvent struct {
	EventID string `json:"event_id"`
}

func (SessionUpdatedEvent) eventType() string { return EventSessionUpdated }

// TranscriptDeltaEvent carries an incremental transcription fragment.
type TranscriptDeltaEvent struct {
	EventID    string `json:"event_id"`
	ItemID     string `json:"item_id"`
	ContentIdx int    `json:"content_index"`
	Delta      string `json:"delta"`
}

func (TranscriptDeltaEvent) eventType() string { return EventTranscriptionDelta }

// TranscriptCompletedEvent carries a server-finalized segment.
type TranscriptCompletedEvent struct {
	EventID    string `json:"event_id"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

func (TranscriptCompletedEvent) eventType() string { return EventTranscriptionCompleted }

// BufferCommittedEvent reports that buffered audio was committed to a
// conversation item.
type BufferCommittedEvent struct {
	EventID string `json:"event_id"`
	ItemID  string `json:"item_id"`
}

func (BufferCommittedEvent) eventType() string { return EventBufferCommitted }

// SpeechStartedEvent is emitted when server-side VAD detects speech.
type SpeechStartedEvent struct {
	EventID      string `json:"event_id"`
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

func (SpeechStartedEvent) eventType() string { return EventSpeechStarted }

// SpeechStoppedEvent is emitted when server-side VAD detects silence.
type SpeechStoppedEvent struct {
	EventID    string `json:"event_id"`
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

func (SpeechStoppedEvent) eventType() string { return EventSpeechStopped }

// ErrorEvent is emitted when an API error occurs.
type ErrorEvent struct {
	EventID string `json:"event_id"`
	Error   struct {
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
		Param   string `json:"param,omitempty"`
	} `json:"error"`
}

func (ErrorEvent) eventType() string { return EventError }

// UnknownEvent holds events we don't recognize. They are ignored by the
// adapter so new server event types never break an old client.
type UnknownEvent struct {
	Type string `json:"type"`
	Raw  json.RawMessage
}

func (e UnknownEvent) eventType() string { return e.Type }

// ParseEvent unmarshals JSON into the appropriate Event type.
func ParseEvent(data []byte) (Event, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}

	switch header.Type {
	case EventSessionCreated:
		var e SessionCreatedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventSessionUpdated:
		var e SessionUpdatedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventTranscriptionDelta:
		var e TranscriptDeltaEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventTranscriptionCompleted:
		var e TranscriptCompletedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventBufferCommitted:
		var e BufferCommittedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventSpeechStarted:
		var e SpeechStartedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventSpeechStopped:
		var e SpeechStoppedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventError:
		var e ErrorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return UnknownEvent{Type: header.Type, Raw: data}, nil
	}
}

// TurnDetection configures server-side voice activity detection. The
// values are adapted to the measured ambient noise floor for microphone
// input and fixed for externally sourced audio.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// SessionUpdate is the client configuration event sent once after the
// handshake confirmation.
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// SessionConfig carries the nested session configuration.
type SessionConfig struct {
	InputAudioFormat        string              `json:"input_audio_format,omitempty"`
	TurnDetection           *TurnDetection      `json:"turn_detection,omitempty"`
	InputAudioTranscription *TranscriptionModel `json:"input_audio_transcription,omitempty"`
}

// TranscriptionModel selects the transcription model and language.
type TranscriptionModel struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

// AppendAudio builds an input_audio_buffer.append client event carrying
// base64-encoded PCM.
func AppendAudio(audioBase64 string) map[string]any {
	return map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": audioBase64,
	}
}
