package modelsync

import (
	"bytes"
	"encoding/json"
)

// `{error: {code, reason, description}}`
type ErrorPayload struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code        int    `json:"code"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// either a plain failure text or a structured domain rejection.
// Exactly one of `Text` or `Payload` is set.
type ErrorData struct {
	Text    string
	Payload *ErrorPayload
}

func NewTextErrorData(text string) *ErrorData {
	return &ErrorData{
		Text: text,
	}
}

func NewPayloadErrorData(payload *ErrorPayload) *ErrorData {
	return &ErrorData{
		Payload: payload,
	}
}

func (self *ErrorData) IsStructured() bool {
	return self.Payload != nil
}

// renders either shape
func (self *ErrorData) Message() string {
	if self == nil {
		return ""
	}
	if self.Payload == nil {
		return self.Text
	}
	if self.Payload.Error.Description != "" {
		return self.Payload.Error.Description
	}
	return self.Payload.Error.Reason
}

func (self *ErrorData) MarshalJSON() ([]byte, error) {
	if self.Payload != nil {
		return json.Marshal(self.Payload)
	}
	return json.Marshal(self.Text)
}

func (self *ErrorData) UnmarshalJSON(src []byte) error {
	src = bytes.TrimSpace(src)
	if 0 < len(src) && src[0] == '"' {
		self.Payload = nil
		return json.Unmarshal(src, &self.Text)
	}
	payload := &ErrorPayload{}
	if err := json.Unmarshal(src, payload); err != nil {
		return err
	}
	self.Text = ""
	self.Payload = payload
	return nil
}

type ResultState int

const (
	// no result yet
	ResultPending ResultState = iota
	ResultSuccess
	ResultFailure
	// no active message
	ResultCleared
)

func (self ResultState) String() string {
	switch self {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultCleared:
		return "cleared"
	default:
		return "pending"
	}
}

// the uniform outcome of a command.
// On success `Data` is set and `ErrorData` is nil; on failure the reverse.
type FetchResult[T any] struct {
	Data      T
	Success   bool
	ErrorData *ErrorData
	state     ResultState
}

func SuccessResult[T any](data T) *FetchResult[T] {
	return &FetchResult[T]{
		Data:    data,
		Success: true,
		state:   ResultSuccess,
	}
}

func FailureResult[T any](errorData *ErrorData) *FetchResult[T] {
	return &FetchResult[T]{
		Success:   false,
		ErrorData: errorData,
		state:     ResultFailure,
	}
}

func ClearResult[T any]() *FetchResult[T] {
	return &FetchResult[T]{
		state: ResultCleared,
	}
}

// a nil result is pending
func (self *FetchResult[T]) State() ResultState {
	if self == nil {
		return ResultPending
	}
	return self.state
}
