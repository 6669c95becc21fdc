// Package syrvetest provides an in-memory Syrve Cloud API for tests.
package syrvetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Product is a nomenclature entry served by the fake.
type Product struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Item is an order line as received by the fake.
type Item struct {
	ProductID string  `json:"productId"`
	Type      string  `json:"type"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
}

// Discount is a discount line as received by the fake.
type Discount struct {
	DiscountTypeID string  `json:"discountTypeId"`
	Sum            float64 `json:"sum"`
	Type           string  `json:"type"`
}

// Payment is a payment line as received by the fake.
type Payment struct {
	PaymentTypeID   string  `json:"paymentTypeId"`
	PaymentTypeKind string  `json:"paymentTypeKind"`
	Sum             float64 `json:"sum"`
}

// Order is the fake's record of a created order.
type Order struct {
	ID              string
	OrganizationID  string
	TerminalGroupID string
	Items           []Item
	Discounts       []Discount
	Payments        []Payment
	Closed          bool
}

// Server is a fake Syrve API backed by httptest.
type Server struct {
	*httptest.Server

	Token      string
	OrgID      string
	TerminalID string

	mu       sync.Mutex
	products []Product
	orders   []*Order
	calls    map[string]int
	failures map[string]int
	seq      int
}

// NewServer starts a fake with one organization and one terminal.
func NewServer(products ...Product) *Server {
	s := &Server{
		Token:      "syrve-token",
		OrgID:      "org-1",
		TerminalID: "term-1",
		products:   products,
		calls:      make(map[string]int),
		failures:   make(map[string]int),
	}

	r := chi.NewRouter()
	r.Route("/api/1", func(r chi.Router) {
		r.Post("/access_token", s.accessToken)
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/organizations", s.organizations)
			r.Post("/terminal_groups", s.terminalGroups)
			r.Post("/nomenclature", s.nomenclature)
			r.Post("/order/create", s.createOrder)
			r.Post("/order/add_payments", s.addPayments)
			r.Post("/order/close", s.closeOrder)
			r.Post("/order/by_id", s.ordersByID)
		})
	})

	s.Server = httptest.NewServer(s.countAndFail(r))
	return s
}

// BaseURL returns the API root to configure clients with.
func (s *Server) BaseURL() string {
	return s.URL + "/api/1"
}

// Fail makes every call to endpoint (e.g. "order/close") answer with status.
// A zero status clears the failure.
func (s *Server) Fail(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, endpoint)
		return
	}
	s.failures[endpoint] = status
}

// Calls returns how many times endpoint was hit.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// WriteCalls sums the order mutation calls.
func (s *Server) WriteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls["order/create"] + s.calls["order/add_payments"] + s.calls["order/close"]
}

// Orders returns a copy of every order created so far.
func (s *Server) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

func (s *Server) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := strings.TrimPrefix(r.URL.Path, "/api/1/")

		s.mu.Lock()
		s.calls[endpoint]++
		status := s.failures[endpoint]
		s.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{
				"errorDescription": fmt.Sprintf("forced failure on %s", endpoint),
				"error":            "FORCED",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"errorDescription": "token is invalid"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APILogin string `json:"apiLogin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APILogin == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"errorDescription": "Login is not authorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"correlationId": s.nextID("corr"), "token": s.Token})
}

func (s *Server) organizations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"organizations": []map[string]string{{"id": s.OrgID, "name": "Test Org"}},
	})
}

func (s *Server) terminalGroups(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"terminalGroups": []map[string]any{{
			"organizationId": s.OrgID,
			"items":          []map[string]string{{"id": s.TerminalID, "name": "Main"}},
		}},
	})
}

func (s *Server) nomenclature(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	products := append([]Product(nil), s.products...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrganizationID  string `json:"organizationId"`
		TerminalGroupID string `json:"terminalGroupId"`
		Order           struct {
			Items         []Item `json:"items"`
			DiscountsInfo *struct {
				Discounts []Discount `json:"discounts"`
			} `json:"discountsInfo"`
		} `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorDescription": err.Error()})
		return
	}

	o := &Order{
		ID:              s.nextID("order"),
		OrganizationID:  req.OrganizationID,
		TerminalGroupID: req.TerminalGroupID,
		Items:           req.Order.Items,
	}
	if req.Order.DiscountsInfo != nil {
		o.Discounts = req.Order.DiscountsInfo.Discounts
	}

	s.mu.Lock()
	s.orders = append(s.orders, o)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"correlationId": s.nextID("corr"),
		"orderInfo": map[string]any{
			"id":             o.ID,
			"timestamp":      1748859300000,
			"creationStatus": "InProgress",
			"order":          map[string]any{"items": o.Items},
		},
	})
}

func (s *Server) addPayments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID  string    `json:"orderId"`
		Payments []Payment `json:"payments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorDescription": err.Error()})
		return
	}

	o := s.order(req.OrderID)
	if o == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorDescription": "order not found"})
		return
	}
	s.mu.Lock()
	o.Payments = append(o.Payments, req.Payments...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"correlationId": s.nextID("corr")})
}

func (s *Server) closeOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorDescription": err.Error()})
		return
	}

	o := s.order(req.OrderID)
	if o == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorDescription": "order not found"})
		return
	}
	s.mu.Lock()
	o.Closed = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"correlationId": s.nextID("corr")})
}

func (s *Server) ordersByID(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderIDs []string `json:"orderIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorDescription": err.Error()})
		return
	}

	orders := make([]map[string]any, 0, len(req.OrderIDs))
	for _, id := range req.OrderIDs {
		o := s.order(id)
		if o == nil {
			continue
		}
		s.mu.Lock()
		status := "New"
		if o.Closed {
			status = "Closed"
		}
		s.mu.Unlock()
		orders = append(orders, map[string]any{
			"id":             o.ID,
			"creationStatus": "Success",
			"order":          map[string]string{"status": status},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) order(id string) *Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (s *Server) nextID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
