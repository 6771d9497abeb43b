package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/chatkit/plugin/chat/agent"
	"github.com/hrygo/chatkit/plugin/chat/model"
	"github.com/hrygo/chatkit/server/service/chat"
)

type CreateSessionRequest struct {
	Location string `json:"location,omitempty"`
}

type SessionResponse struct {
	SessionID string                `json:"sessionId"`
	Location  string                `json:"location"`
	State     string                `json:"state"`
	Welcome   *agent.WelcomeMessage `json:"welcome,omitempty"`
	Requests  []RequestResponse     `json:"requests,omitempty"`
}

type RequestResponse struct {
	RequestID string           `json:"requestId"`
	Message   string           `json:"message"`
	AgentID   string           `json:"agentId,omitempty"`
	Command   string           `json:"command,omitempty"`
	Attempt   int              `json:"attempt,omitempty"`
	Response  *ResponseBody    `json:"response,omitempty"`
	Followups []agent.Followup `json:"followups,omitempty"`
}

type ResponseBody struct {
	Markdown  string `json:"markdown"`
	Complete  bool   `json:"complete"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
	Agent   string `json:"agent,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	// Stream selects server-sent events over a single JSON response.
	Stream bool `json:"stream,omitempty"`
}

type TransferRequest struct {
	ToWorkspace string `json:"toWorkspace"`
	InputValue  string `json:"inputValue,omitempty"`
}

// CreateSession starts a session and waits for it to become ready.
// POST /api/v1/sessions
func (s *APIV1Service) CreateSession(c echo.Context) error {
	var body CreateSessionRequest
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	location := agent.Location(body.Location)
	if location == "" {
		location = agent.LocationPanel
	}

	session := s.Chat.StartSession(c.Request().Context(), location)
	if err := session.WaitForInitialization(c.Request().Context()); err != nil {
		return errorJSON(c, http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusCreated, sessionResponse(session, false))
}

// GetSession returns a session with its full request history, reviving
// it from persisted history if needed.
// GET /api/v1/sessions/:id
func (s *APIV1Service) GetSession(c echo.Context) error {
	session, err := s.Chat.GetOrRestoreSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusNotFound, "session not found")
	}
	if err := session.WaitForInitialization(c.Request().Context()); err != nil {
		return errorJSON(c, http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, sessionResponse(session, true))
}

// SendMessage submits one message. With stream=true the response is a
// server-sent event stream of progress parts followed by a final done
// event; otherwise the call blocks until completion and returns the
// finished request.
// POST /api/v1/sessions/:id/messages
func (s *APIV1Service) SendMessage(c echo.Context) error {
	sessionID := c.Param("id")
	if !s.rateLimiter.Allow(sessionID) {
		return errorJSON(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	var body SendMessageRequest
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	if body.Stream {
		return s.sendMessageStream(c, sessionID, &body)
	}

	receipt, err := s.Chat.SendRequest(c.Request().Context(), sessionID, body.Message, &chat.SendOptions{
		AgentName: body.Agent,
		Attempt:   body.Attempt,
	})
	if err != nil {
		return sendError(c, err)
	}
	if receipt == nil {
		return c.NoContent(http.StatusAccepted)
	}

	select {
	case <-receipt.Done:
	case <-c.Request().Context().Done():
		return c.NoContent(http.StatusRequestTimeout)
	}
	return c.JSON(http.StatusOK, requestResponse(receipt.Request))
}

func (s *APIV1Service) sendMessageStream(c echo.Context, sessionID string, body *SendMessageRequest) error {
	parts := make(chan agent.ProgressPart, 64)
	receipt, err := s.Chat.SendRequest(c.Request().Context(), sessionID, body.Message, &chat.SendOptions{
		AgentName: body.Agent,
		Attempt:   body.Attempt,
		Progress: func(part agent.ProgressPart) {
			select {
			case parts <- part:
			default:
				// A slow consumer loses stream granularity, never data:
				// the full response remains on the session.
			}
		},
	})
	if err != nil {
		return sendError(c, err)
	}
	if receipt == nil {
		return c.NoContent(http.StatusAccepted)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	for {
		select {
		case part := <-parts:
			if err := writeSSE(c, "progress", part); err != nil {
				s.Chat.CancelCurrentRequestForSession(sessionID)
				return nil
			}
		case <-receipt.Done:
			// Drain parts buffered before completion.
			for {
				select {
				case part := <-parts:
					if err := writeSSE(c, "progress", part); err != nil {
						return nil
					}
					continue
				default:
				}
				break
			}
			_ = writeSSE(c, "done", requestResponse(receipt.Request))
			return nil
		case <-c.Request().Context().Done():
			s.Chat.CancelCurrentRequestForSession(sessionID)
			return nil
		}
	}
}

func writeSSE(c echo.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// CancelRequest cancels the session's in-flight request, if any.
// POST /api/v1/sessions/:id/cancel
func (s *APIV1Service) CancelRequest(c echo.Context) error {
	s.Chat.CancelCurrentRequestForSession(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// ClearSession clears a live session, persisting panel sessions into
// history.
// DELETE /api/v1/sessions/:id
func (s *APIV1Service) ClearSession(c echo.Context) error {
	sessionID := c.Param("id")
	if err := s.Chat.ClearSession(c.Request().Context(), sessionID); err != nil {
		return sendError(c, err)
	}
	s.rateLimiter.Forget(sessionID)
	return c.NoContent(http.StatusNoContent)
}

// RemoveRequest removes one request from a live session.
// DELETE /api/v1/sessions/:id/requests/:requestId
func (s *APIV1Service) RemoveRequest(c echo.Context) error {
	err := s.Chat.RemoveRequest(c.Request().Context(), c.Param("id"), c.Param("requestId"))
	if err != nil {
		return sendError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// TransferSession offers a session to another workspace.
// POST /api/v1/sessions/:id/transfer
func (s *APIV1Service) TransferSession(c echo.Context) error {
	var body TransferRequest
	if err := c.Bind(&body); err != nil || body.ToWorkspace == "" {
		return errorJSON(c, http.StatusBadRequest, "toWorkspace is required")
	}
	if err := s.Chat.TransferSession(c.Request().Context(), c.Param("id"), body.ToWorkspace, body.InputValue); err != nil {
		return sendError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetHistory lists persisted sessions, newest first.
// GET /api/v1/history
func (s *APIV1Service) GetHistory(c echo.Context) error {
	entries := s.Chat.GetHistory(c.Request().Context())
	if entries == nil {
		entries = []chat.HistoryEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// RemoveHistoryEntry deletes one persisted session.
// DELETE /api/v1/history/:id
func (s *APIV1Service) RemoveHistoryEntry(c echo.Context) error {
	if err := s.Chat.RemoveHistoryEntry(c.Request().Context(), c.Param("id")); err != nil {
		return sendError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearHistory deletes every persisted session.
// DELETE /api/v1/history
func (s *APIV1Service) ClearHistory(c echo.Context) error {
	if err := s.Chat.ClearAllHistoryEntries(c.Request().Context()); err != nil {
		return sendError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func sendError(c echo.Context, err error) error {
	if errors.Is(err, chat.ErrUnknownSession) {
		return errorJSON(c, http.StatusNotFound, "session not found")
	}
	return errorJSON(c, http.StatusInternalServerError, err.Error())
}

func sessionResponse(session *model.Session, includeRequests bool) SessionResponse {
	out := SessionResponse{
		SessionID: session.ID(),
		Location:  string(session.InitialLocation()),
		State:     string(session.State()),
		Welcome:   session.WelcomeMessage(),
	}
	if includeRequests {
		for _, req := range session.Requests() {
			out.Requests = append(out.Requests, requestResponse(req))
		}
	}
	return out
}

func requestResponse(req *model.Request) RequestResponse {
	out := RequestResponse{
		RequestID: req.ID(),
		Message:   req.Message().Text,
		AgentID:   req.AgentID(),
		Command:   req.Command(),
		Attempt:   req.Attempt(),
	}
	if resp := req.Response(); resp != nil {
		body := &ResponseBody{
			Markdown:  resp.Markdown(),
			Complete:  resp.IsComplete(),
			Cancelled: resp.IsCancelled(),
		}
		if result := resp.Result(); result != nil && result.ErrorDetails != nil {
			body.Error = result.ErrorDetails.Message
		}
		out.Response = body
		out.Followups = resp.Followups()
	}
	return out
}
