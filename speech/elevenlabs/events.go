// Package elevenlabs implements the realtime speech-to-text adapter for
// the ElevenLabs streaming API over WebSocket.
package elevenlabs

import "encoding/json"

// Server message types.
const (
	MessageSessionStarted      = "session_started"
	MessageTentativeTranscript = "tentative_transcript"
	MessageCommittedTranscript = "committed_transcript"
	MessageError               = "error"
)

// ServerMessage is the envelope for every inbound message. Unrecognized
// message types are ignored for forward compatibility.
type ServerMessage struct {
	MessageType string `json:"message_type"`
	SessionID   string `json:"session_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Message     string `json:"message,omitempty"` // error detail
	Code        string `json:"code,omitempty"`
}

// ParseMessage unmarshals an inbound message.
func ParseMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// audioChunk is the outbound audio frame carrying base64 PCM.
type audioChunk struct {
	MessageType string `json:"message_type"`
	AudioBase64 string `json:"audio_base_64"`
}

func newAudioChunk(audioBase64 string) audioChunk {
	return audioChunk{MessageType: "input_audio", AudioBase64: audioBase64}
}
