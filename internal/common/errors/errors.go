// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Event ingestion / severity classification
	ErrCodeEventInvalid          ErrorCode = "EVENT_INVALID"
	ErrCodeEventDuplicate        ErrorCode = "EVENT_DUPLICATE"
	ErrCodeRuleEvaluationFailed  ErrorCode = "RULE_EVALUATION_FAILED"
	ErrCodeRuleRegistryInvalid   ErrorCode = "RULE_REGISTRY_INVALID"
	ErrCodeDedupStoreUnavailable ErrorCode = "DEDUP_STORE_UNAVAILABLE"

	// Intent classification
	ErrCodeIntentParsingFailed ErrorCode = "INTENT_PARSING_FAILED"
	ErrCodeIntentAPITimeout    ErrorCode = "INTENT_API_TIMEOUT"
	ErrCodeLLMUnavailable      ErrorCode = "LLM_UNAVAILABLE"

	// Conversation state
	ErrCodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeContextMissing    ErrorCode = "CONTEXT_MISSING"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"

	// Action confirmation
	ErrCodeActionConfirmationRequired ErrorCode = "ACTION_CONFIRMATION_REQUIRED"
	ErrCodeActionCancelled            ErrorCode = "ACTION_CANCELLED"
	ErrCodeActionExecutionFailed      ErrorCode = "ACTION_EXECUTION_FAILED"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeWorkflowEngineFailed   ErrorCode = "WORKFLOW_ENGINE_FAILED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// AsStandardError finds a *StandardError anywhere in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewEventInvalidError(details string) *StandardError {
	return newError(ErrCodeEventInvalid, "Event envelope failed validation", details, false, nil)
}

func NewEventDuplicateError(eventID string) *StandardError {
	return newError(ErrCodeEventDuplicate, "Event already consumed", fmt.Sprintf("eventId: %s", eventID), false, nil)
}

// NewRuleEvaluationFailedError records a rule that errored or panicked. It is never thrown
// to the engine; the classifier downgrades and keeps it on the verdict.
func NewRuleEvaluationFailedError(ruleID string, err error) *StandardError {
	return newError(ErrCodeRuleEvaluationFailed, "Severity rule evaluation failed",
		fmt.Sprintf("ruleId: %s, error: %v", ruleID, err), false, err).
		WithMetadata("ruleId", ruleID)
}

func NewRuleRegistryInvalidError(details string) *StandardError {
	return newError(ErrCodeRuleRegistryInvalid, "Alert rule registry is invalid", details, false, nil)
}

func NewDedupStoreUnavailableError(err error) *StandardError {
	return newError(ErrCodeDedupStoreUnavailable, "Event dedup store unavailable", err.Error(), true, err)
}

func NewIntentParsingFailedError(err error) *StandardError {
	return newError(ErrCodeIntentParsingFailed, "Classifier output could not be parsed", err.Error(), false, err)
}

func NewIntentAPITimeoutError() *StandardError {
	return newError(ErrCodeIntentAPITimeout, "Intent classification timeout", "completion call exceeded deadline", true, nil)
}

func NewLLMUnavailableError(provider string, err error) *StandardError {
	return newError(ErrCodeLLMUnavailable, "Completion provider unavailable",
		fmt.Sprintf("provider: %s, error: %v", provider, err), true, err)
}

func NewSessionNotFoundError(sessionID string) *StandardError {
	return newError(ErrCodeSessionNotFound, "Conversation session not found", fmt.Sprintf("sessionId: %s", sessionID), false, nil)
}

func NewInvalidTransitionError(actionID, from, to string) *StandardError {
	return newError(ErrCodeInvalidTransition, "Pending action status cannot move backwards or skip",
		fmt.Sprintf("actionId: %s, from: %s, to: %s", actionID, from, to), false, nil)
}

func NewContextMissingError(keys []string) *StandardError {
	return newError(ErrCodeContextMissing, "Conversation context is missing",
		fmt.Sprintf("keys: %s", strings.Join(keys, ",")), false, nil)
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid job input", details, false, nil)
}

func NewActionConfirmationRequiredError(decisionID string) *StandardError {
	return newError(ErrCodeActionConfirmationRequired, "Action requires explicit confirmation",
		fmt.Sprintf("decisionId: %s", decisionID), false, nil)
}

func NewActionCancelledError(decisionID string) *StandardError {
	return newError(ErrCodeActionCancelled, "Action was cancelled before execution",
		fmt.Sprintf("decisionId: %s", decisionID), false, nil)
}

// NewActionExecutionFailedError is non-retryable: a failed execution is surfaced, never replayed.
func NewActionExecutionFailedError(decisionID string, err error) *StandardError {
	return newError(ErrCodeActionExecutionFailed, "Action execution failed",
		fmt.Sprintf("decisionId: %s, error: %v", decisionID, err), false, err)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("type: %s, error: %s", channel, err.Error()), true, err)
}

func NewWorkflowEngineError(operation string, retryable bool, err error) *StandardError {
	return newError(ErrCodeWorkflowEngineFailed, fmt.Sprintf("Zeebe operation '%s' failed", operation),
		err.Error(), retryable, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 4. BPMN Mapping
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeEventInvalid:               "EVENT_INVALID",
	ErrCodeEventDuplicate:             "EVENT_DUPLICATE",
	ErrCodeRuleRegistryInvalid:        "RULE_REGISTRY_INVALID",
	ErrCodeDedupStoreUnavailable:      "DEDUP_STORE_UNAVAILABLE",
	ErrCodeIntentParsingFailed:        "INTENT_PARSING_FAILED",
	ErrCodeIntentAPITimeout:           "INTENT_API_TIMEOUT",
	ErrCodeLLMUnavailable:             "LLM_UNAVAILABLE",
	ErrCodeSessionNotFound:            "SESSION_NOT_FOUND",
	ErrCodeInvalidTransition:          "INVALID_TRANSITION",
	ErrCodeContextMissing:             "CONTEXT_MISSING",
	ErrCodeInvalidInput:               "INVALID_INPUT",
	ErrCodeActionConfirmationRequired: "ACTION_CONFIRMATION_REQUIRED",
	ErrCodeActionCancelled:            "ACTION_CANCELLED",
	ErrCodeActionExecutionFailed:      "ACTION_EXECUTION_FAILED",
	ErrCodeNotificationSendFailed:     "NOTIFICATION_SEND_FAILED",
	ErrCodeWorkflowEngineFailed:       "WORKFLOW_ENGINE_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDedupStoreUnavailable,
		ErrCodeNotificationSendFailed,
		ErrCodeLLMUnavailable,
		ErrCodeWorkflowEngineFailed:
		return 3

	case ErrCodeIntentAPITimeout:
		return 2

	default:
		// Business errors and action execution failures: no retry.
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "EVENT") || strings.Contains(codeStr, "RULE") || strings.Contains(codeStr, "DEDUP"):
		return "ALERTING"
	case strings.Contains(codeStr, "INTENT") || strings.Contains(codeStr, "LLM"):
		return "AI"
	case strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "CONTEXT"):
		return "CONVERSATION"
	case strings.HasPrefix(codeStr, "ACTION"):
		return "ACTION"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "WORKFLOW"):
		return "ENGINE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
