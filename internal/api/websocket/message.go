package websocket

import (
	"fmt"

	"github.com/clabconsole/clabconsole-backend/internal/api/rest"
	"github.com/clabconsole/clabconsole-backend/internal/models"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/validate"
)

// Message types.
const (
	// TypeSession is sent once after connecting and carries the session id.
	TypeSession = "session"
	// TypeVisualize requests a visualization; it supersedes the session's in-flight one.
	TypeVisualize = "visualize"
	// TypeCancel cancels the in-flight visualization without starting a new one.
	TypeCancel = "cancel"
	TypeResult = "result"
	TypeError  = "error"
)

// Request is a client message.
type Request struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Topology  string `json:"topology,omitempty"`
	View      string `json:"view,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// Response is a server message. ID echoes the request it answers.
type Response struct {
	Type    string                  `json:"type"`
	ID      string                  `json:"id,omitempty"`
	Session string                  `json:"session,omitempty"`
	Result  *models.VisualizeResult `json:"result,omitempty"`
	Error   *rest.APIError          `json:"error,omitempty"`
}

func (m Request) visualizeRequest() (models.VisualizeRequest, error) {
	if !validate.Namespace(m.Namespace) {
		return models.VisualizeRequest{}, fmt.Errorf("invalid namespace %q", m.Namespace)
	}
	if !validate.Name(m.Topology) {
		return models.VisualizeRequest{}, fmt.Errorf("invalid topology name %q", m.Topology)
	}
	view, ok := models.ParseViewMode(m.View)
	if !ok {
		return models.VisualizeRequest{}, fmt.Errorf("invalid view %q: use kubernetes or network", m.View)
	}
	direction, ok := models.ParseDirection(m.Direction)
	if !ok {
		return models.VisualizeRequest{}, fmt.Errorf("invalid direction %q: use horizontal or vertical", m.Direction)
	}
	return models.VisualizeRequest{
		Namespace: m.Namespace,
		Topology:  m.Topology,
		View:      view,
		Direction: direction,
	}, nil
}

func errorResponse(id, code, message string) Response {
	return Response{
		Type:  TypeError,
		ID:    id,
		Error: &rest.APIError{Error: message, Code: code, Message: message},
	}
}
