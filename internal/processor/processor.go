package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/util"
)

const version = "1.0.0"

// Request is the envelope every query shares; the query specific payload sits alongside.
// The request id may be a string or a number.
type Request struct {
	Query     string `json:"query"`
	RequestID any    `json:"requestId"`
}

// Response carries a successful result
type Response struct {
	RequestID string         `json:"requestId,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Tools     []Tool         `json:"tools,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Tool describes one supported query
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	RequestID string `json:"requestId,omitempty"`
	Error     struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Error codes
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidOdds    = "invalid_odds"
	CodeInvalidResult  = "invalid_result"
	CodeInvalidInput   = "invalid_input"
	CodeUnknownQuery   = "unknown_query"
	CodeInternal       = "internal_error"
)

// Processor answers JSON queries against one set of models. Elo ratings, Poisson
// coefficients and a trained xG classifier persist between requests.
type Processor struct {
	cfg      *podds.Config
	elo      *podds.EloTracker
	poisson  *podds.PoissonModel
	xg       *podds.XGEstimator
	analyzer *podds.ValueBetAnalyzer
}

// New builds a processor; a nil config uses the defaults
func New(cfg *podds.Config) *Processor {
	if cfg == nil {
		cfg = podds.DefaultConfig()
	}
	return &Processor{
		cfg:      cfg,
		elo:      podds.NewEloTracker(cfg.Elo),
		poisson:  podds.NewPoissonModel(cfg.Poisson),
		xg:       podds.NewXGEstimator(nil),
		analyzer: podds.NewValueBetAnalyzer(cfg.Value),
	}
}

// Elo exposes the tracker so a caller can seed it from storage
func (p *Processor) Elo() *podds.EloTracker {
	return p.elo
}

// Poisson exposes the score model so a caller can fit it from storage
func (p *Processor) Poisson() *podds.PoissonModel {
	return p.poisson
}

// ProcessRequest decodes a request, dispatches it and encodes the answer.
// Failures are reported as an ErrorResponse document, not as a Go error.
func (p *Processor) ProcessRequest(input []byte) ([]byte, error) {
	var request Request
	if err := json.Unmarshal(input, &request); err != nil {
		logger.Error("Failed to parse input JSON", err)
		return createErrorResponse(CodeInvalidRequest, fmt.Sprintf("Invalid JSON: %v", err), "")
	}
	requestID, _ := util.GetAsString(request.RequestID)

	query := strings.ToLower(strings.TrimSpace(request.Query))
	logger.Info("Processing request", query, requestID)

	var (
		result map[string]any
		err    error
	)
	switch query {
	case "predict":
		result, err = p.predict(input)
	case "elo":
		result, err = p.eloQuery(input)
	case "value_bets":
		result, err = p.valueBets(input)
	case "xg":
		result, err = p.xgQuery(input)
	case "", "list", "help":
		return marshal(Response{RequestID: requestID, Tools: tools(), Metadata: map[string]any{"version": version}}, requestID)
	default:
		return createErrorResponse(CodeUnknownQuery, fmt.Sprintf("unknown query %q, try one of predict, elo, value_bets, xg", request.Query), requestID)
	}
	if err != nil {
		logger.Warn("Request failed", requestID, err)
		return createErrorResponse(errorCode(err), err.Error(), requestID)
	}

	return marshal(Response{
		RequestID: requestID,
		Context:   result,
		Metadata:  map[string]any{"version": version, "query": query},
	}, requestID)
}

// inputError marks a payload the caller got wrong
type inputError struct{ err error }

func (e inputError) Error() string { return e.err.Error() }
func (e inputError) Unwrap() error { return e.err }

func invalid(format string, args ...any) error {
	return inputError{fmt.Errorf(format, args...)}
}

func errorCode(err error) string {
	var in inputError
	switch {
	case errors.Is(err, podds.ErrInvalidOdds):
		return CodeInvalidOdds
	case errors.Is(err, podds.ErrInvalidResultKind):
		return CodeInvalidResult
	case errors.As(err, &in):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}

func decode(input []byte, into any) error {
	if err := json.Unmarshal(input, into); err != nil {
		return invalid("invalid payload: %v", err)
	}
	return nil
}

func marshal(v any, requestID string) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("Failed to marshal response to JSON", err)
		return createErrorResponse(CodeInternal, "Failed to create response", requestID)
	}
	return out, nil
}

// createErrorResponse creates an error response
func createErrorResponse(code, message, requestID string) ([]byte, error) {
	var response ErrorResponse
	response.RequestID = requestID
	response.Error.Code = code
	response.Error.Message = message
	return json.MarshalIndent(response, "", "  ")
}
