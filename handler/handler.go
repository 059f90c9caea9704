package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"tribu-agent/internal/domain"
	"tribu-agent/internal/usecase"
)

const (
	apiName    = "TribuAI Cultural Intelligence API"
	apiVersion = "1.0.0"

	correlationHeader = "X-Correlation-Id"
)

var allowedOrigins = map[string]bool{
	"http://localhost:5173": true,
	"http://localhost:3000": true,
}

type ConversationUseCase interface {
	Process(ctx context.Context, in usecase.ProcessInput) (usecase.ProcessOutput, error)
	Reset(ctx context.Context, sessionID string) (usecase.ResetOutput, error)
	Transcript(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}

type ProfileUseCase interface {
	ProcessProfile(ctx context.Context, p domain.Profile) (domain.RecommendationResult, error)
}

type Handler struct {
	conversation ConversationUseCase
	profile      ProfileUseCase
	validate     *validator.Validate
	logger       *slog.Logger
}

type processRequest struct {
	UserInput string `json:"user_input" validate:"required"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

type profileRequest struct {
	Music     []string `json:"music" validate:"dive,max=100"`
	Art       []string `json:"art" validate:"dive,max=100"`
	Fashion   []string `json:"fashion" validate:"dive,max=100"`
	Values    []string `json:"values" validate:"dive,max=100"`
	Places    []string `json:"places" validate:"dive,max=100"`
	Audiences []string `json:"audiences" validate:"dive,max=100"`
}

type resetRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
}

type processResponse struct {
	AssistantMessage string                     `json:"assistant_message"`
	SessionID        string                     `json:"session_id"`
	Context          domain.EntitySet           `json:"context"`
	ProfileComplete  bool                       `json:"profile_complete"`
	CulturalProfile  *domain.CulturalProfile    `json:"cultural_profile,omitempty"`
	Recommendations  map[string][]domain.Entity `json:"recommendations,omitempty"`
	Matching         *domain.Matching           `json:"matching,omitempty"`
}

type resetResponse struct {
	SessionID        string `json:"session_id"`
	AssistantMessage string `json:"assistant_message"`
}

type transcriptResponse struct {
	SessionID string               `json:"session_id"`
	Messages  []domain.ChatMessage `json:"messages"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type rootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewHandler(conv ConversationUseCase, profile ProfileUseCase, logger *slog.Logger) (*Handler, error) {
	if conv == nil {
		return nil, errors.New("handler: conversation use case must not be nil")
	}
	if profile == nil {
		return nil, errors.New("handler: profile use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		conversation: conv,
		profile:      profile,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
	}, nil
}

// Handle routes an API Gateway proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", corrID, "method", req.HTTPMethod, "path", req.Path)

	if req.HTTPMethod == http.MethodOptions {
		return h.respond(req, corrID, http.StatusNoContent, nil), nil
	}

	route, ok := routes[strings.TrimRight(req.Path, "/")]
	if !ok {
		return h.respond(req, corrID, http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Message: "Not found"}), nil
	}
	if req.HTTPMethod != route.method {
		return h.respond(req, corrID, http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: "Method not allowed"}), nil
	}

	status, body, err := route.serve(h, ctx, req)
	if err != nil {
		status, body = h.mapError(err)
		logger.ErrorContext(ctx, "request failed", "status", status, "err", err)
	} else {
		logger.InfoContext(ctx, "request served", "status", status)
	}
	return h.respond(req, corrID, status, body), nil
}

type route struct {
	method string
	serve  func(h *Handler, ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error)
}

var routes = map[string]route{
	"":                     {http.MethodGet, (*Handler).root},
	"/health":              {http.MethodGet, (*Handler).health},
	"/status":              {http.MethodGet, (*Handler).status},
	"/api/process":         {http.MethodPost, (*Handler).process},
	"/api/process-profile": {http.MethodPost, (*Handler).processProfile},
	"/api/reset":           {http.MethodPost, (*Handler).reset},
	"/api/transcript":      {http.MethodGet, (*Handler).transcript},
}

func (h *Handler) root(_ context.Context, _ events.APIGatewayProxyRequest) (int, any, error) {
	return http.StatusOK, rootResponse{Message: apiName, Version: apiVersion}, nil
}

func (h *Handler) health(_ context.Context, _ events.APIGatewayProxyRequest) (int, any, error) {
	return http.StatusOK, statusResponse{Status: "healthy"}, nil
}

func (h *Handler) status(_ context.Context, _ events.APIGatewayProxyRequest) (int, any, error) {
	return http.StatusOK, statusResponse{Status: "running"}, nil
}

func (h *Handler) process(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var in processRequest
	if err := h.decode(req.Body, &in); err != nil {
		return 0, nil, err
	}
	out, err := h.conversation.Process(ctx, usecase.ProcessInput{SessionID: in.SessionID, UserInput: in.UserInput})
	if err != nil {
		return 0, nil, err
	}
	resp := processResponse{
		AssistantMessage: out.AssistantMessage,
		SessionID:        out.SessionID,
		Context:          out.Context,
		ProfileComplete:  out.ProfileComplete,
	}
	if out.Result != nil {
		resp.CulturalProfile = &out.Result.CulturalProfile
		resp.Recommendations = out.Result.Recommendations
		resp.Matching = out.Result.Matching
	}
	return http.StatusOK, resp, nil
}

func (h *Handler) processProfile(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var in profileRequest
	if err := h.decode(req.Body, &in); err != nil {
		return 0, nil, err
	}
	out, err := h.profile.ProcessProfile(ctx, domain.Profile(in))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, out, nil
}

func (h *Handler) reset(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var in resetRequest
	if err := h.decode(req.Body, &in); err != nil {
		return 0, nil, err
	}
	out, err := h.conversation.Reset(ctx, in.SessionID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, resetResponse{SessionID: out.SessionID, AssistantMessage: out.AssistantMessage}, nil
}

func (h *Handler) transcript(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	sessionID := req.QueryStringParameters["session_id"]
	msgs, err := h.conversation.Transcript(ctx, sessionID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, transcriptResponse{SessionID: sessionID, Messages: msgs}, nil
}

// decode unmarshals and validates a JSON body. Failures are reported as
// INVALID_INPUT.
func (h *Handler) decode(body string, v any) error {
	if strings.TrimSpace(body) == "" {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_body"}
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "malformed_json", Err: err}
	}
	if err := h.validate.Struct(v); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "validation_failed", Err: err}
	}
	return nil
}

func (h *Handler) mapError(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Message: "An internal error occurred"}
	}
	body := errorResponse{Error: string(ucErr.Code), Message: ucErr.Reason}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput, usecase.ErrorInvalidQuestion:
		return http.StatusBadRequest, body
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, body
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, body
	case usecase.ErrorConflict:
		return http.StatusConflict, body
	default:
		return http.StatusInternalServerError, body
	}
}

func (h *Handler) respond(req events.APIGatewayProxyRequest, corrID string, status int, body any) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":    "application/json",
		correlationHeader: corrID,
	}
	if origin := headerValue(req.Headers, "Origin"); allowedOrigins[origin] {
		headers["Access-Control-Allow-Origin"] = origin
		headers["Access-Control-Allow-Credentials"] = "true"
		headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
		headers["Access-Control-Allow-Headers"] = "Content-Type," + correlationHeader
		headers["Vary"] = "Origin"
	}
	if body == nil {
		return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("encode response", "err", err)
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR","message":"An internal error occurred"}`)
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(raw)}
}

// headerValue looks a header up case-insensitively.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
