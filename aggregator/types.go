// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package aggregator implements the per-correlation request-aggregation
// engine: the correlation registry, aggregation state, event emitter,
// dispatcher, deadline scheduler, and the facade that wires them
// together into a single request/response surface for the gateway's
// HTTP handlers.
package aggregator

// Status is the outcome carried by a CallbackEvent.
type Status string

const (
	StatusOK               Status = "ok"
	StatusRejected         Status = "REJECTED"
	StatusTimeout          Status = "TIMEOUT"
	StatusConnectionClosed Status = "CONNECTION_CLOSED"
	StatusError            Status = "ERROR"
	StatusComplete         Status = "COMPLETE"
)

// Strategy names accepted on the aggregate request.
const (
	StrategySSE             = "SSE"
	StrategyWaitForEveryone = "WAIT_FOR_EVERYONE"
)

// JournalNote is a single entry in a backend's journal response.
type JournalNote struct {
	Date        string `json:"date"`
	Note        string `json:"note"`
	PatientID   string `json:"patientId"`
	DoctorID    string `json:"doctorId"`
	CaregiverID string `json:"caregiverId"`
}

// CallbackEvent is the on-wire record carrying a single backend
// outcome, or, when Status is StatusComplete, the terminal summary for
// a correlation. Respondents and Errors are only meaningful on the
// summary event.
type CallbackEvent struct {
	Source        string        `json:"source"`
	PatientID     string        `json:"patientId,omitempty"`
	CorrelationID string        `json:"correlationId"`
	Status        Status        `json:"status"`
	Notes         []JournalNote `json:"notes,omitempty"`
	Respondents   int           `json:"respondents,omitempty"`
	Errors        int           `json:"errors,omitempty"`
}

// Request is the body of POST /aggregate/journals.
type Request struct {
	PatientID string `json:"patientId"`
	Delays    string `json:"delays"`
	TimeoutMS *int64 `json:"timeoutMs,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
}

// Response is the reply to an aggregate request. Respondents is always
// 0 for the SSE strategy (the real count streams later) and the true
// final count for WAIT_FOR_EVERYONE; CorrelationID is only set for the
// SSE strategy, and Errors/Notes are only set for WAIT_FOR_EVERYONE.
type Response struct {
	Respondents   int           `json:"respondents"`
	CorrelationID string        `json:"correlationId,omitempty"`
	Strategy      string        `json:"strategy,omitempty"`
	Errors        int           `json:"errors,omitempty"`
	Notes         []JournalNote `json:"notes,omitempty"`
}
