package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmrgateway/xmrgateway/invoices"
)

// fakeGateway is a hand-rolled double for Gateway; httpapi declares its own
// narrow interfaces precisely so callers don't need the real engine to test
// the adapter.
type fakeGateway struct {
	mu    sync.Mutex
	invs  map[invoices.ID]*invoices.Invoice
	nextH uint64

	newInvoiceErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{invs: make(map[invoices.ID]*invoices.Invoice)}
}

func (g *fakeGateway) NewInvoice(amount, confirmationsRequired, expirationInBlocks uint64, description, callback string) (invoices.ID, error) {
	if g.newInvoiceErr != nil {
		return invoices.ID{}, g.newInvoiceErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextH++
	id := invoices.ID{
		Subaddress:     invoices.SubaddressIndex{Major: 0, Minor: uint32(g.nextH)},
		CreationHeight: g.nextH,
	}
	g.invs[id] = &invoices.Invoice{
		ID:                    id,
		Address:               "fake-subaddress",
		AmountRequested:       amount,
		ConfirmationsRequired: confirmationsRequired,
		ExpirationHeight:      g.nextH + expirationInBlocks,
		CreationHeight:        g.nextH,
		Description:           description,
		Callback:              callback,
	}
	return id, nil
}

func (g *fakeGateway) RemoveInvoice(id invoices.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.invs[id]; !ok {
		return invoices.ErrNotFound
	}
	delete(g.invs, id)
	return nil
}

func (g *fakeGateway) InvoiceIDs() []invoices.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]invoices.ID, 0, len(g.invs))
	for id := range g.invs {
		out = append(out, id)
	}
	return out
}

func (g *fakeGateway) GetInvoice(id invoices.ID) (*invoices.Invoice, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invs[id]
	return inv, ok
}

func (g *fakeGateway) Subscribe(id invoices.ID) (Subscriber, bool) {
	if _, ok := g.GetInvoice(id); !ok {
		return nil, false
	}
	return &fakeSubscriber{}, true
}

// fakeSubscriber blocks forever on BlockingRecv until Unsubscribe is called,
// standing in for a *pubsub.Subscriber whose topic never updates again.
type fakeSubscriber struct {
	mu     sync.Mutex
	closed bool
	ch     chan struct{}
}

func (s *fakeSubscriber) BlockingRecv() (*invoices.Invoice, bool) {
	s.mu.Lock()
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	ch := s.ch
	s.mu.Unlock()
	<-ch
	return nil, true
}

func (s *fakeSubscriber) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		if s.ch == nil {
			s.ch = make(chan struct{})
		}
		close(s.ch)
	}
}

func newTestServer(t *testing.T, auth *MacaroonAuth) (*httptest.Server, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	srv := New(gw, auth, nil)
	return httptest.NewServer(srv), gw
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestServerCreateAndGetInvoice(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodPost, "/invoices", "", map[string]interface{}{
		"amount":                 1000,
		"confirmations_required": 2,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created invoices.Invoice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.EqualValues(t, 1000, created.AmountRequested)

	getResp := doRequest(t, srv, http.MethodGet, "/invoices/"+created.ID.String(), "", nil)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var fetched invoices.Invoice
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&fetched))
	require.Equal(t, created.ID, fetched.ID)
}

func TestServerListAndRemoveInvoice(t *testing.T) {
	srv, gw := newTestServer(t, nil)
	defer srv.Close()

	id, err := gw.NewInvoice(500, 1, 10, "order-1", "")
	require.NoError(t, err)

	listResp := doRequest(t, srv, http.MethodGet, "/invoices", "", nil)
	defer listResp.Body.Close()
	var ids []string
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&ids))
	require.Contains(t, ids, id.String())

	delResp := doRequest(t, srv, http.MethodDelete, "/invoices/"+id.String(), "", nil)
	defer delResp.Body.Close()
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)

	_, ok := gw.GetInvoice(id)
	require.False(t, ok)
}

func TestServerUnknownInvoiceReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	defer srv.Close()

	fakeID := invoices.ID{Subaddress: invoices.SubaddressIndex{Major: 0, Minor: 99}, CreationHeight: 1}
	resp := doRequest(t, srv, http.MethodGet, "/invoices/"+fakeID.String(), "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerRequiresMacaroonWhenConfigured(t *testing.T) {
	auth := NewMacaroonAuth([]byte("test-root-key"))
	srv, _ := newTestServer(t, auth)
	defer srv.Close()

	unauth := doRequest(t, srv, http.MethodGet, "/invoices", "", nil)
	defer unauth.Body.Close()
	require.Equal(t, http.StatusUnauthorized, unauth.StatusCode)

	readToken, err := auth.Mint(OpRead)
	require.NoError(t, err)

	authed := doRequest(t, srv, http.MethodGet, "/invoices", readToken, nil)
	defer authed.Body.Close()
	require.Equal(t, http.StatusOK, authed.StatusCode)

	// A read-scoped token can't create invoices, which require admin scope.
	forbidden := doRequest(t, srv, http.MethodPost, "/invoices", readToken, map[string]interface{}{
		"amount": 1,
	})
	defer forbidden.Body.Close()
	require.Equal(t, http.StatusForbidden, forbidden.StatusCode)
}

func TestServerMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	defer srv.Close()

	resp := doRequest(t, srv, http.MethodPut, "/invoices", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
