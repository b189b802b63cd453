// Package httpapi is a thin REST+WebSocket adapter over the Gateway
// facade (spec §1 scopes HTTP front-ends as out-of-core, included here as
// domain-stack wiring): one handler per operation, a macaroon bearer token
// for authorization, and a WebSocket push stream standing in for dcrlnd's
// gRPC streaming RPCs.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xmrgateway/xmrgateway/invoices"
)

// Gateway is the subset of *xmrgateway.Gateway this adapter depends on.
// Declared locally (rather than importing the root package, which already
// imports this one) to keep the dependency direction a leaf package.
type Gateway interface {
	NewInvoice(amount, confirmationsRequired, expirationInBlocks uint64, description, callback string) (invoices.ID, error)
	RemoveInvoice(id invoices.ID) error
	InvoiceIDs() []invoices.ID
	GetInvoice(id invoices.ID) (*invoices.Invoice, bool)
	Subscribe(id invoices.ID) (Subscriber, bool)
}

// Subscriber is the subset of *pubsub.Subscriber this adapter needs to
// drive a WebSocket stream.
type Subscriber interface {
	BlockingRecv() (inv *invoices.Invoice, closed bool)
	Unsubscribe()
}

// Server is a net/http.Handler exposing the engine's invoice operations.
type Server struct {
	gw   Gateway
	auth *MacaroonAuth
	mux  *http.ServeMux

	upgrader websocket.Upgrader
}

// New builds a Server. auth may be nil, in which case every request is
// treated as carrying admin scope (intended only for tests or a gateway
// deliberately run with authorization disabled).
func New(gw Gateway, auth *MacaroonAuth, metricsHandler http.Handler) *Server {
	s := &Server{
		gw:   gw,
		auth: auth,
		mux:  http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.mux.HandleFunc("/invoices", s.handleInvoices)
	s.mux.HandleFunc("/invoices/", s.handleInvoice)
	if metricsHandler != nil {
		s.mux.Handle("/metrics", metricsHandler)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, required string) bool {
	if s.auth == nil {
		return true
	}
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
		return false
	}
	if err := s.auth.Authorize(token, required); err != nil {
		writeError(w, http.StatusForbidden, err)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// createInvoiceRequest is the POST /invoices request body.
type createInvoiceRequest struct {
	Amount                uint64 `json:"amount"`
	ConfirmationsRequired uint64 `json:"confirmations_required"`
	ExpirationInBlocks    uint64 `json:"expiration_in_blocks"`
	Description           string `json:"description"`
	Callback              string `json:"callback"`
}

// handleInvoices serves POST /invoices (create) and GET /invoices (list
// IDs); everything else is method-not-allowed.
func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !s.authorize(w, r, OpAdmin) {
			return
		}
		var req createInvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		id, err := s.gw.NewInvoice(req.Amount, req.ConfirmationsRequired,
			req.ExpirationInBlocks, req.Description, req.Callback)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		inv, _ := s.gw.GetInvoice(id)
		writeJSON(w, http.StatusCreated, inv)

	case http.MethodGet:
		if !s.authorize(w, r, OpRead) {
			return
		}
		ids := s.gw.InvoiceIDs()
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = id.String()
		}
		writeJSON(w, http.StatusOK, out)

	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("unsupported method"))
	}
}

// handleInvoice serves GET/DELETE /invoices/{id} and GET /invoices/{id}/ws
// (the WebSocket push stream).
func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/invoices/")
	if rest == "" {
		writeError(w, http.StatusNotFound, errors.New("missing invoice id"))
		return
	}

	idStr, sub, hasSub := strings.Cut(rest, "/")

	id, err := invoices.ParseID(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if hasSub && sub == "ws" {
		if !s.authorize(w, r, OpRead) {
			return
		}
		s.serveWS(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !s.authorize(w, r, OpRead) {
			return
		}
		inv, ok := s.gw.GetInvoice(id)
		if !ok {
			writeError(w, http.StatusNotFound, invoices.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, inv)

	case http.MethodDelete:
		if !s.authorize(w, r, OpAdmin) {
			return
		}
		if err := s.gw.RemoveInvoice(id); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("unsupported method"))
	}
}

// serveWS upgrades the connection and streams every update to id until the
// subscriber's topic closes or the client disconnects.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, id invoices.ID) {
	sub, ok := s.gw.Subscribe(id)
	if !ok {
		writeError(w, http.StatusNotFound, invoices.ErrNotFound)
		return
	}
	defer sub.Unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed for invoice %s: %v", id, err)
		return
	}
	defer conn.Close()

	// Reply once immediately with the invoice's current state, then block
	// for further updates; a subscriber that never changes again still
	// gets one message, rather than leaving the client waiting forever
	// for a push that may never come.
	if inv, ok := s.gw.GetInvoice(id); ok {
		if err := conn.WriteJSON(inv); err != nil {
			return
		}
	}

	for {
		inv, closed := sub.BlockingRecv()
		if closed {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "invoice removed"),
				time.Now().Add(time.Second))
			return
		}
		if err := conn.WriteJSON(inv); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
