package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/orders"
)

const stageDateLayout = "2006-01-02"

type loginRequestPayload struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type sessionPayload struct {
	Authenticated bool   `json:"authenticated"`
	Role          string `json:"role"`
	UserID        uint   `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Redirect      string `json:"redirect,omitempty"`
}

func newSessionPayload(identity auth.Identity) sessionPayload {
	payload := sessionPayload{
		Authenticated: identity.Authenticated(),
		Role:          string(identity.Role()),
	}
	if identity.Authenticated() {
		payload.UserID = identity.UserID
		payload.Email = identity.Email
		payload.Name = identity.Name
		payload.Redirect = identity.RedirectTarget()
	}
	return payload
}

type stageChangePayload struct {
	Status  string `json:"status"`
	Date    string `json:"date"`
	Remarks string `json:"remarks"`
}

type orderRequestPayload struct {
	OrderCode   string                        `json:"order_code"`
	ClientEmail string                        `json:"client_email"`
	StyleName   string                        `json:"style_name"`
	Quantity    int                           `json:"quantity"`
	Notes       string                        `json:"notes"`
	Stages      map[string]stageChangePayload `json:"stages"`
}

func (p orderRequestPayload) fields() orders.OrderFields {
	return orders.OrderFields{
		OrderCode:   p.OrderCode,
		ClientEmail: p.ClientEmail,
		StyleName:   p.StyleName,
		Quantity:    p.Quantity,
		Notes:       p.Notes,
	}
}

type bulkRequestPayload struct {
	Stages map[string]stageChangePayload `json:"stages"`
}

type orderPayload struct {
	ID          uint      `json:"id"`
	OrderCode   string    `json:"order_code"`
	ClientEmail string    `json:"client_email,omitempty"`
	StyleName   string    `json:"style_name"`
	Quantity    int       `json:"quantity"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newOrderPayload(order orders.Order) orderPayload {
	return orderPayload{
		ID:          order.ID,
		OrderCode:   order.OrderCode,
		ClientEmail: order.ClientEmail,
		StyleName:   order.StyleName,
		Quantity:    order.Quantity,
		Notes:       order.Notes,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

func newOrderPayloads(list []orders.Order) []orderPayload {
	payloads := make([]orderPayload, 0, len(list))
	for _, order := range list {
		payloads = append(payloads, newOrderPayload(order))
	}
	return payloads
}

type stagePayload struct {
	ID        uint   `json:"id"`
	Position  int    `json:"position"`
	StageName string `json:"stage_name"`
	Status    string `json:"status"`
	StageDate string `json:"stage_date"`
	Remarks   string `json:"remarks"`
}

type orderDetailPayload struct {
	Order      orderPayload   `json:"order"`
	Stages     []stagePayload `json:"stages"`
	DoneCount  int            `json:"done_count"`
	TotalCount int            `json:"total_count"`
	Percent    int            `json:"percent"`
	AdminView  bool           `json:"admin_view"`
	ViewerName string         `json:"viewer_name"`
}

func newOrderDetailPayload(detail orders.OrderDetail) orderDetailPayload {
	stages := make([]stagePayload, 0, len(detail.Stages))
	for _, stage := range detail.Stages {
		date := ""
		if stage.StageDate != nil {
			date = stage.StageDate.Format(stageDateLayout)
		}
		stages = append(stages, stagePayload{
			ID:        stage.ID,
			Position:  stage.Position,
			StageName: stage.StageName,
			Status:    string(stage.Status),
			StageDate: date,
			Remarks:   stage.Remarks,
		})
	}
	return orderDetailPayload{
		Order:      newOrderPayload(detail.Order),
		Stages:     stages,
		DoneCount:  detail.DoneCount,
		TotalCount: len(detail.Stages),
		Percent:    detail.Percent,
		AdminView:  detail.AdminView,
		ViewerName: detail.ViewerName,
	}
}

// orderSavePayload is the order detail returned by a save, plus any stage entries that were not applied.
type orderSavePayload struct {
	orderDetailPayload
	Skipped []skippedPayload `json:"skipped"`
}

type skippedPayload struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

type bulkResultPayload struct {
	UpdatedCount int              `json:"updated_count"`
	OrderIDs     []uint           `json:"order_ids"`
	Skipped      []skippedPayload `json:"skipped"`
}

type searchHitPayload struct {
	ID          uint      `json:"id"`
	OrderCode   string    `json:"order_code"`
	StyleName   string    `json:"style_name"`
	ClientEmail string    `json:"client_email,omitempty"`
	Quantity    int       `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newSearchHitPayloads(results []orders.SearchResult) []searchHitPayload {
	payloads := make([]searchHitPayload, 0, len(results))
	for _, result := range results {
		payloads = append(payloads, searchHitPayload{
			ID:          result.ID,
			OrderCode:   result.OrderCode,
			StyleName:   result.StyleName,
			ClientEmail: result.ClientEmail,
			Quantity:    result.Quantity,
			UpdatedAt:   result.UpdatedAt,
		})
	}
	return payloads
}

type commentRequestPayload struct {
	Comment  string `json:"comment"`
	UserName string `json:"user_name"`
}
