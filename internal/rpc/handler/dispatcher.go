package handler

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/flocksync/internal/rpc/message"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Dispatcher routes JSON-RPC requests to registered handlers.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a new dispatcher with the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch handles a JSON-RPC request and returns a response.
// Returns nil for notifications (requests without ID).
func (d *Dispatcher) Dispatch(ctx context.Context, req *message.Request) *message.Response {
	logger := requestLogger(ctx, req)
	logger.Debug().Bool("notification", req.IsNotification()).Msg("dispatching request")

	handler := d.registry.Get(req.Method)
	if handler == nil {
		logger.Warn().Msg("method not found")
		if req.IsNotification() {
			return nil
		}
		return message.NewErrorResponse(req.ID, message.ErrMethodNotFound(req.Method))
	}

	result, rpcErr := handler(ctx, req.Params)

	if req.IsNotification() {
		if rpcErr != nil {
			logger.Warn().Int("code", rpcErr.Code).Str("error", rpcErr.Message).
				Msg("notification handler error (not sent to client)")
		}
		return nil
	}

	if rpcErr != nil {
		logger.Debug().Int("code", rpcErr.Code).Str("error", rpcErr.Message).Msg("request failed")
		return message.NewErrorResponse(req.ID, rpcErr)
	}

	resp, err := message.NewSuccessResponse(req.ID, result)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal response")
		return message.NewErrorResponse(req.ID, message.ErrInternalError("failed to marshal response"))
	}

	logger.Debug().Msg("request completed")
	return resp
}

func requestLogger(ctx context.Context, req *message.Request) zerolog.Logger {
	lc := log.With().Str("method", req.Method).Str("id", req.ID.String())
	if p, ok := PeerFrom(ctx); ok {
		lc = lc.Str("peer", p.ID())
	}
	return lc.Logger()
}

// DispatchBytes parses and dispatches a JSON-RPC request from bytes.
// Returns the response bytes, or nil for notifications.
func (d *Dispatcher) DispatchBytes(ctx context.Context, data []byte) ([]byte, error) {
	req, err := message.ParseRequest(data)
	if err != nil {
		log.Debug().Err(err).Msg("failed to parse request")
		return json.Marshal(message.NewErrorResponse(nil, message.ErrParseError(err.Error())))
	}

	resp := d.Dispatch(ctx, req)
	if resp == nil {
		return nil, nil
	}
	return json.Marshal(resp)
}

// HandleMessage handles a single request or a batch and returns the
// encoded response(s), or nil when nothing needs answering.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) > 0 && data[0] == '[' {
		return d.handleBatch(ctx, data)
	}
	return d.DispatchBytes(ctx, data)
}

func (d *Dispatcher) handleBatch(ctx context.Context, data []byte) ([]byte, error) {
	var rawRequests []json.RawMessage
	if err := json.Unmarshal(data, &rawRequests); err != nil {
		return json.Marshal(message.NewErrorResponse(nil, message.ErrParseError("Invalid batch request")))
	}
	if len(rawRequests) == 0 {
		return json.Marshal(message.NewErrorResponse(nil, message.ErrInvalidRequest("Empty batch")))
	}

	responses := make([]*message.Response, 0, len(rawRequests))
	for _, raw := range rawRequests {
		req, err := message.ParseRequest(raw)
		if err != nil {
			responses = append(responses, message.NewErrorResponse(nil, message.ErrParseError(err.Error())))
			continue
		}
		if resp := d.Dispatch(ctx, req); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		return nil, nil
	}
	return json.Marshal(responses)
}
