// Package ipc exposes the loop engine and structure analyzer to an
// external UI process over a newline-delimited JSON-RPC protocol on a Unix
// domain socket.
package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents the type of command.
type CommandType string

const (
	CmdOpenFile        CommandType = "openFile"
	CmdPlay            CommandType = "play"
	CmdPause           CommandType = "pause"
	CmdStop            CommandType = "stop"
	CmdSeek            CommandType = "seek"
	CmdSetLoop         CommandType = "setLoop"
	CmdSetLoopPolicy   CommandType = "setLoopPolicy"
	CmdGetStatus       CommandType = "getStatus"
	CmdSubscribeEvents CommandType = "subscribeEvents"
	CmdUnsubscribeEvents CommandType = "unsubscribeEvents"
)

// PushMessage represents a server-initiated message (no request needed).
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request.
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OpenFileRequest is the data for an openFile command.
type OpenFileRequest struct {
	Path string `json:"path"`
}

// SeekRequest is the data for a seek command.
type SeekRequest struct {
	Seconds float64 `json:"seconds"`
}

// SetLoopRequest is the data for a setLoop command.
type SetLoopRequest struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// SetLoopPolicyRequest is the data for a setLoopPolicy command.
type SetLoopPolicyRequest struct {
	MaxIterations uint32 `json:"maxIterations"`
}

// SectionDTO mirrors analysis.Section for the wire.
type SectionDTO struct {
	StartTime  float64 `json:"startTime"`
	EndTime    float64 `json:"endTime"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// CandidateMetricsDTO mirrors analysis.CandidateMetrics for the wire.
type CandidateMetricsDTO struct {
	VolumeChangePercent float64 `json:"volumeChangePercent"`
	PhaseJump           float64 `json:"phaseJump"`
	SpectralDifference  float64 `json:"spectralDifference"`
	HarmonicContinuity  float64 `json:"harmonicContinuity"`
	EnvelopeContinuity  float64 `json:"envelopeContinuity"`
	ZeroStart           bool    `json:"zeroStart"`
	ZeroEnd             bool    `json:"zeroEnd"`
}

// LoopCandidateDTO mirrors analysis.LoopCandidate for the wire.
type LoopCandidateDTO struct {
	StartTime float64             `json:"startTime"`
	EndTime   float64             `json:"endTime"`
	Quality   float64             `json:"quality"`
	Metrics   CandidateMetricsDTO `json:"metrics"`
}

// StatusResponse is the response to getStatus: the engine's playback
// snapshot combined with the analyzer's most recent published results.
type StatusResponse struct {
	IsPlaying        bool    `json:"isPlaying"`
	CurrentTime      float64 `json:"currentTime"`
	Duration         float64 `json:"duration"`
	LoopStart        float64 `json:"loopStart"`
	LoopEnd          float64 `json:"loopEnd"`
	LoopPolicyMax    uint32  `json:"loopPolicyMax"`
	CurrentIteration uint32  `json:"currentIteration"`

	SuggestedLoopStart float64 `json:"suggestedLoopStart"`
	SuggestedLoopEnd   float64 `json:"suggestedLoopEnd"`
	AnalysisProgress   float64 `json:"analysisProgress"`
	LastError          string  `json:"lastError,omitempty"`

	Sections  []SectionDTO       `json:"sections"`
	Candidates []LoopCandidateDTO `json:"loopCandidates"`
}

// EventDTO mirrors eventbus.Event for push frames.
type EventDTO struct {
	Kind      string  `json:"kind"`
	Path      string  `json:"path,omitempty"`
	Seconds   float64 `json:"seconds,omitempty"`
	LoopStart float64 `json:"loopStart,omitempty"`
	LoopEnd   float64 `json:"loopEnd,omitempty"`
	ErrorKind string  `json:"errorKind,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// EncodeRequest encodes a request to JSON.
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON.
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data.
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	msg := PushMessage{
		Type: msgType,
		Data: rawData,
	}
	return json.Marshal(msg)
}
