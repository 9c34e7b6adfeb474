package protocol

import (
	"context"
	"errors"
	"time"

	"messer/internal/apperror"
	"messer/internal/logger"
	"messer/internal/metrics"
	"messer/internal/model"
	"messer/internal/notify"
	"messer/internal/social"
	"messer/internal/store"
)

// Limiter gates requests. *rate.Limiter satisfies it.
type Limiter interface {
	Allow() bool
}

// Dispatcher turns request frames into exactly one response each.
type Dispatcher struct {
	social  *social.Service
	store   *store.Store
	encoder MessageEncoder
}

func NewDispatcher(svc *social.Service, encoder MessageEncoder) *Dispatcher {
	if encoder == nil {
		encoder = NewJSONEncoder()
	}
	return &Dispatcher{social: svc, store: svc.Store(), encoder: encoder}
}

func (d *Dispatcher) Encoder() MessageEncoder {
	return d.encoder
}

// Dispatch decodes frame and runs it for caller. limiter may be nil. The
// returned events must be published after the response is queued.
func (d *Dispatcher) Dispatch(ctx context.Context, caller *model.User, frame []byte, limiter Limiter) (*Response, []notify.Event) {
	req, err := d.encoder.DecodeRequest(frame)
	if err != nil {
		metrics.Requests.WithLabelValues("malformed", metrics.OutcomeError).Inc()
		return errorResponse("", nil, apperror.New(apperror.KindMalformed, "", "request is not a valid envelope")), nil
	}

	handle, ok := endpoints[req.Endpoint]
	if !ok {
		metrics.Requests.WithLabelValues("unknown", metrics.OutcomeError).Inc()
		return errorResponse(req.Endpoint, req,
			apperror.New(apperror.KindUnknownEndpoint, "", "unknown endpoint").WithDetails(map[string]string{"endpoint": req.Endpoint})), nil
	}

	if limiter != nil && !limiter.Allow() {
		metrics.Requests.WithLabelValues(req.Endpoint, metrics.OutcomeError).Inc()
		return errorResponse(req.Endpoint, req, apperror.New(apperror.KindRateLimited, "", "too many requests")), nil
	}

	start := time.Now()
	content, events, err := handle(ctx, d, caller, req.Content)
	metrics.RequestDuration.WithLabelValues(req.Endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Requests.WithLabelValues(req.Endpoint, metrics.OutcomeError).Inc()
		appErr := apperror.As(err)
		if appErr.Kind == apperror.KindInternal {
			logger.Error("request failed", "endpoint", req.Endpoint, "user_id", caller.ID, "error", err)
		} else {
			logger.Debug("request rejected", "endpoint", req.Endpoint, "user_id", caller.ID, "code", appErr.WireCode())
		}
		return errorResponse(req.Endpoint, req, appErr), nil
	}

	metrics.Requests.WithLabelValues(req.Endpoint, metrics.OutcomeOK).Inc()
	return &Response{
		Endpoint: req.Endpoint,
		ID:       req.ID,
		Content:  content,
		Errors:   []ErrorEntry{},
	}, events
}

// Notification wraps an event for the wire.
func (d *Dispatcher) Notification(ev notify.Event) *Notification {
	return &Notification{Type: ev.Type, Content: ev.Content}
}

func errorResponse(endpoint string, req *Request, err *apperror.Error) *Response {
	resp := &Response{Endpoint: endpoint, Errors: []ErrorEntry{entryFor(err)}}
	if req != nil {
		resp.ID = req.ID
	}
	return resp
}

func entryFor(err *apperror.Error) ErrorEntry {
	entry := ErrorEntry{Code: err.WireCode(), Message: err.Message, Content: err.Details}
	if err.Field != "" && entry.Content == nil {
		entry.Content = ReferenceError{Field: err.Field}
	}
	return entry
}

// resolveUser looks up a username named by field.
func (d *Dispatcher) resolveUser(ctx context.Context, field, username string) (*model.User, error) {
	u, err := d.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.New(apperror.KindNotFound, apperror.CodeUserNotFound, "user not found").OnField(field)
		}
		return nil, apperror.Internal(err)
	}
	return u, nil
}

// onReference tags not-found and forbidden errors with the field they came from.
func onReference(err error, field string) error {
	appErr := apperror.As(err)
	switch appErr.Kind {
	case apperror.KindNotFound, apperror.KindForbidden:
		if appErr.Field == "" {
			return appErr.OnField(field)
		}
	}
	return err
}
