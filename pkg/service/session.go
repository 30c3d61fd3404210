package service

import (
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/pkg/audit"
	"github.com/marmos91/opcuad/pkg/identity"
	"github.com/marmos91/opcuad/pkg/session"
)

// minClientNonceLength is the shortest client nonce accepted when one is
// supplied.
const minClientNonceLength = 32

// CreateSession allocates a session, binds it to a new secure channel and
// returns its id, authentication token and server nonce. The session must
// be activated before any other service can use it.
func (h *Handler) CreateSession(ctx *Context, req *ua.CreateSessionRequest) (*ua.CreateSessionResponse, error) {
	if err := h.cancelled(ctx); err != nil {
		return nil, err
	}
	if n := len(req.ClientNonce); n > 0 && n < minClientNonceLength {
		return nil, ua.StatusBadNonceInvalid
	}

	params := session.CreateParams{
		Name:                   req.SessionName,
		EndpointURL:            req.EndpointURL,
		ClientCertificate:      req.ClientCertificate,
		RequestedTimeout:       time.Duration(req.RequestedSessionTimeout * float64(time.Millisecond)),
		MaxResponseMessageSize: req.MaxResponseMessageSize,
	}
	if req.ClientDescription != nil {
		params.ClientURI = req.ClientDescription.ApplicationURI
	}
	if ctx != nil {
		params.ClientAddr = ctx.ClientAddr
	}

	s, err := h.Sessions.Create(params)

	ev := audit.NewEvent(audit.KindCreateSession, h.now())
	ev.Status = uint32(StatusOf(err))
	ev.Detail = req.SessionName
	if ctx != nil {
		ev.ClientAddr = ctx.ClientAddr
	}
	if err != nil {
		h.Audit.Record(ev)
		logger.WarnCtx(ctxOf(ctx), "CreateSession refused", logger.KeyError, err)
		return nil, err
	}
	ev.SessionID = s.ID().String()
	h.Audit.Record(ev)

	return &ua.CreateSessionResponse{
		ResponseHeader:        h.responseHeader(req.RequestHeader, ua.StatusOK),
		SessionID:             s.ID(),
		AuthenticationToken:   s.AuthenticationToken(),
		RevisedSessionTimeout: float64(s.Timeout() / time.Millisecond),
		ServerNonce:           s.Nonce(),
		ServerCertificate:     s.Channel().Store().Certificate(),
		ServerEndpoints:       h.Endpoints,
		ServerSignature:       &ua.SignatureData{},
		MaxRequestMessageSize: s.MaxRequestMessageSize(),
	}, nil
}

// ActivateSession validates the user identity token for the session named
// by the request's authentication token and rotates the server nonce.
func (h *Handler) ActivateSession(ctx *Context, req *ua.ActivateSessionRequest) (*ua.ActivateSessionResponse, error) {
	if err := h.cancelled(ctx); err != nil {
		return nil, err
	}

	var token *ua.NodeID
	if req.RequestHeader != nil {
		token = req.RequestHeader.AuthenticationToken
	}

	s, err := h.Sessions.Activate(token, req.UserIdentityToken)

	ev := audit.NewEvent(audit.KindActivateSession, h.now())
	ev.Status = uint32(StatusOf(err))
	ev.Detail = identity.Kind(req.UserIdentityToken)
	if ctx != nil {
		ev.ClientAddr = ctx.ClientAddr
	}
	if s != nil {
		ev.SessionID = s.ID().String()
		if u := s.User(); u != nil {
			ev.User = u.Name
		}
	} else if t, ok := h.Sessions.LookupByToken(token); ok {
		ev.SessionID = t.ID().String()
	}
	h.Audit.Record(ev)

	if err != nil {
		return nil, err
	}

	return &ua.ActivateSessionResponse{
		ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
		ServerNonce:    s.Nonce(),
		Results:        make([]ua.StatusCode, len(req.ClientSoftwareCertificates)),
	}, nil
}

// CloseSession terminates the session. Queued publish requests are
// answered with BadSessionClosed on the next driver tick.
func (h *Handler) CloseSession(ctx *Context, req *ua.CloseSessionRequest) (*ua.CloseSessionResponse, error) {
	var token *ua.NodeID
	if req.RequestHeader != nil {
		token = req.RequestHeader.AuthenticationToken
	}

	s, err := h.Sessions.Close(token, req.DeleteSubscriptions)

	ev := audit.NewEvent(audit.KindCloseSession, h.now())
	ev.Status = uint32(StatusOf(err))
	if ctx != nil {
		ev.ClientAddr = ctx.ClientAddr
	}
	if s != nil {
		ev.SessionID = s.ID().String()
		if u := s.User(); u != nil {
			ev.User = u.Name
		}
	}
	h.Audit.Record(ev)

	if err != nil {
		return nil, err
	}
	return &ua.CloseSessionResponse{
		ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
	}, nil
}
