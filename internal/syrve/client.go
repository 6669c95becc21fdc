// Package syrve is a client for the Syrve Cloud API.
package syrve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	apperrors "github.com/Swed0ua/Integration-SK-Surve/pkg/errors"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/httpclient"
)

const serviceName = "syrve"

// ErrNoOrganization is returned when the API login sees no organizations.
var ErrNoOrganization = errors.New("syrve: no organizations found")

// ErrNoTerminalGroup is returned when the organization has no terminals.
var ErrNoTerminalGroup = errors.New("syrve: no terminal groups found")

// Client talks to the Syrve Cloud API. All endpoints are POST with JSON bodies.
type Client struct {
	baseURL  string
	apiLogin string
	http     httpclient.Doer
	logger   *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a Syrve client on top of doer.
func NewClient(baseURL, apiLogin string, doer httpclient.Doer, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiLogin: apiLogin,
		http:     doer,
		logger:   logger,
	}
}

// Authenticate exchanges the API login for a bearer token.
func (c *Client) Authenticate(ctx context.Context) error {
	var resp accessTokenResponse
	if err := c.post(ctx, "access_token", accessTokenRequest{APILogin: c.apiLogin}, &resp, false); err != nil {
		return fmt.Errorf("syrve authenticate: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("syrve authenticate: %w", apperrors.Unauthorized("syrve: token not found in response"))
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "syrve token obtained")
	return nil
}

// OrganizationID returns the first organization visible to the API login.
func (c *Client) OrganizationID(ctx context.Context) (string, error) {
	var resp organizationsResponse
	if err := c.post(ctx, "organizations", struct{}{}, &resp, true); err != nil {
		return "", fmt.Errorf("syrve organizations: %w", err)
	}
	if len(resp.Organizations) == 0 || resp.Organizations[0].ID == "" {
		return "", ErrNoOrganization
	}
	return resp.Organizations[0].ID, nil
}

// TerminalGroupID returns the first terminal of the first terminal group.
func (c *Client) TerminalGroupID(ctx context.Context, orgID string) (string, error) {
	var resp terminalGroupsResponse
	if err := c.post(ctx, "terminal_groups", terminalGroupsRequest{OrganizationIDs: []string{orgID}}, &resp, true); err != nil {
		return "", fmt.Errorf("syrve terminal groups: %w", err)
	}
	if len(resp.TerminalGroups) == 0 || len(resp.TerminalGroups[0].Items) == 0 {
		return "", ErrNoTerminalGroup
	}
	return resp.TerminalGroups[0].Items[0].ID, nil
}

// Catalog fetches the organization's nomenclature.
func (c *Client) Catalog(ctx context.Context, orgID string) (*domain.Catalog, error) {
	var resp nomenclatureResponse
	if err := c.post(ctx, "nomenclature", nomenclatureRequest{OrganizationID: orgID}, &resp, true); err != nil {
		return nil, fmt.Errorf("syrve nomenclature: %w", err)
	}

	catalog := &domain.Catalog{Products: make([]domain.TargetProduct, 0, len(resp.Products))}
	for _, p := range resp.Products {
		tp := domain.TargetProduct{ID: p.ID, Name: p.Name}
		if p.Code != nil {
			tp.Code = *p.Code
		}
		catalog.Products = append(catalog.Products, tp)
	}
	return catalog, nil
}

// CreateOrder submits the mapped items and optional discount.
func (c *Client) CreateOrder(ctx context.Context, orgID, terminalGroupID string, draft domain.OrderDraft) (domain.CreatedOrder, error) {
	body := createOrderRequest{
		OrganizationID:  orgID,
		TerminalGroupID: terminalGroupID,
		Order:           orderBody{Items: make([]orderItem, 0, len(draft.Items))},
	}
	for _, it := range draft.Items {
		body.Order.Items = append(body.Order.Items, orderItem{
			ProductID: it.TargetProductID,
			Type:      it.Kind,
			Amount:    it.Amount.InexactFloat64(),
			Price:     it.Price.InexactFloat64(),
		})
	}
	if d := draft.Discount; d != nil {
		body.Order.DiscountsInfo = &discountsInfo{Discounts: []discountLine{{
			DiscountTypeID: d.TypeID,
			Sum:            d.Sum.InexactFloat64(),
			Type:           d.Type,
		}}}
	}

	var resp createOrderResponse
	if err := c.post(ctx, "order/create", body, &resp, true); err != nil {
		return domain.CreatedOrder{}, fmt.Errorf("syrve create order: %w", err)
	}
	if resp.OrderInfo == nil || resp.OrderInfo.ID == "" {
		return domain.CreatedOrder{}, fmt.Errorf("syrve create order: response has no order id (correlation %s)", resp.CorrelationID)
	}

	return domain.CreatedOrder{
		OrderID:        resp.OrderInfo.ID,
		CorrelationID:  resp.CorrelationID,
		CreationStatus: resp.OrderInfo.CreationStatus,
		Timestamp:      resp.OrderInfo.Timestamp,
		Order:          resp.OrderInfo.Order,
	}, nil
}

// AddPayments attaches payments to an existing order and returns the correlation id.
func (c *Client) AddPayments(ctx context.Context, orgID, orderID string, payments []domain.Payment) (string, error) {
	body := addPaymentsRequest{
		OrganizationID: orgID,
		OrderID:        orderID,
		Payments:       make([]paymentLine, 0, len(payments)),
	}
	for _, p := range payments {
		body.Payments = append(body.Payments, paymentLine{
			PaymentTypeID:   p.TypeID,
			PaymentTypeKind: string(p.Kind),
			Sum:             p.Sum.InexactFloat64(),
		})
	}

	var resp correlationResponse
	if err := c.post(ctx, "order/add_payments", body, &resp, true); err != nil {
		return "", fmt.Errorf("syrve add payments to %s: %w", orderID, err)
	}
	return resp.CorrelationID, nil
}

// CloseOrder closes an order and returns the correlation id.
func (c *Client) CloseOrder(ctx context.Context, orgID, orderID string) (string, error) {
	var resp correlationResponse
	if err := c.post(ctx, "order/close", closeOrderRequest{OrganizationID: orgID, OrderID: orderID}, &resp, true); err != nil {
		return "", fmt.Errorf("syrve close order %s: %w", orderID, err)
	}
	return resp.CorrelationID, nil
}

// OrderByID reads the current Syrve view of an order.
func (c *Client) OrderByID(ctx context.Context, orgID, orderID string) (domain.OrderStatus, error) {
	var resp ordersByIDResponse
	body := ordersByIDRequest{OrganizationIDs: []string{orgID}, OrderIDs: []string{orderID}}
	if err := c.post(ctx, "order/by_id", body, &resp, true); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("syrve order by id %s: %w", orderID, err)
	}

	for _, o := range resp.Orders {
		if o.ID != orderID {
			continue
		}
		st := domain.OrderStatus{OrderID: o.ID, CreationStatus: o.CreationStatus}
		if o.Order != nil {
			st.OrderStatus = o.Order.Status
		}
		if o.ErrorInfo != nil {
			st.ErrorMessage = o.ErrorInfo.Message
		}
		return st, nil
	}
	return domain.OrderStatus{}, apperrors.NotFound("syrve order", orderID)
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any, auth bool) error {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, c.baseURL+"/"+endpoint, in)
	if err != nil {
		return err
	}

	if auth {
		c.mu.RLock()
		token := c.token
		c.mu.RUnlock()
		if token == "" {
			return apperrors.Unauthorized("syrve: not authenticated")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.DebugContext(ctx, "syrve request", slog.String("endpoint", endpoint))

	raw, err := httpclient.DoJSON(ctx, c.http, req, out, serviceName)
	if err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "syrve response",
		slog.String("endpoint", endpoint),
		slog.String("body", string(raw)),
	)
	return nil
}
