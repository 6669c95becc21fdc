package syrve

import "encoding/json"

type accessTokenRequest struct {
	APILogin string `json:"apiLogin"`
}

type accessTokenResponse struct {
	CorrelationID string `json:"correlationId"`
	Token         string `json:"token"`
}

type organizationsResponse struct {
	Organizations []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"organizations"`
}

type terminalGroupsRequest struct {
	OrganizationIDs []string `json:"organizationIds"`
}

type terminalGroupsResponse struct {
	TerminalGroups []struct {
		OrganizationID string `json:"organizationId"`
		Items          []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"items"`
	} `json:"terminalGroups"`
}

type nomenclatureRequest struct {
	OrganizationID string `json:"organizationId"`
}

type nomenclatureResponse struct {
	Products []struct {
		ID   string  `json:"id"`
		Code *string `json:"code"`
		Name string  `json:"name"`
	} `json:"products"`
}

type orderItem struct {
	ProductID string  `json:"productId"`
	Type      string  `json:"type"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
}

type discountLine struct {
	DiscountTypeID string  `json:"discountTypeId"`
	Sum            float64 `json:"sum"`
	Type           string  `json:"type"`
}

type discountsInfo struct {
	Discounts []discountLine `json:"discounts"`
}

type orderBody struct {
	Items         []orderItem    `json:"items"`
	DiscountsInfo *discountsInfo `json:"discountsInfo,omitempty"`
}

type createOrderRequest struct {
	OrganizationID  string    `json:"organizationId"`
	TerminalGroupID string    `json:"terminalGroupId"`
	Order           orderBody `json:"order"`
}

type orderInfo struct {
	ID             string          `json:"id"`
	Timestamp      int64           `json:"timestamp"`
	CreationStatus string          `json:"creationStatus"`
	Order          json.RawMessage `json:"order"`
	ErrorInfo      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errorInfo"`
}

type createOrderResponse struct {
	CorrelationID string     `json:"correlationId"`
	OrderInfo     *orderInfo `json:"orderInfo"`
}

type paymentLine struct {
	PaymentTypeID   string  `json:"paymentTypeId"`
	PaymentTypeKind string  `json:"paymentTypeKind"`
	Sum             float64 `json:"sum"`
}

type addPaymentsRequest struct {
	OrganizationID string        `json:"organizationId"`
	OrderID        string        `json:"orderId"`
	Payments       []paymentLine `json:"payments"`
}

type closeOrderRequest struct {
	OrganizationID string `json:"organizationId"`
	OrderID        string `json:"orderId"`
}

type correlationResponse struct {
	CorrelationID string `json:"correlationId"`
}

type ordersByIDRequest struct {
	OrganizationIDs []string `json:"organizationIds"`
	OrderIDs        []string `json:"orderIds"`
}

type ordersByIDResponse struct {
	Orders []struct {
		ID             string `json:"id"`
		CreationStatus string `json:"creationStatus"`
		ErrorInfo      *struct {
			Message string `json:"message"`
		} `json:"errorInfo"`
		Order *struct {
			Status string `json:"status"`
		} `json:"order"`
	} `json:"orders"`
}
