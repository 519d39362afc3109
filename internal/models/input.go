package models

// InputType classifies what kind of value an input request expects.
type InputType string

const (
	InputTypeText     InputType = "text"
	InputTypePassword InputType = "password"
	InputTypePath     InputType = "path"
	InputTypeConfirm  InputType = "confirm"
)

// InputRequest is the transient value object raised when a step demands
// human input. It exists only between the moment a step blocks and the
// moment a response is submitted. Confirm-type requests are answered with
// the literal strings "true" or "false".
type InputRequest struct {
	StepID   string    `json:"step_id"`
	Type     InputType `json:"type"`
	Prompt   string    `json:"prompt"`
	Default  string    `json:"default,omitempty"`
	Required bool      `json:"required"`
}
