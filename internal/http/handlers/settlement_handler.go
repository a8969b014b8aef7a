// README: Settlement read handler: record, payment legs and ledger entries.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketpace/internal/modules/fees"
	"marketpace/internal/modules/settlement"
	"marketpace/internal/types"
)

type SettlementHandler struct {
	settlement *settlement.Service
}

func NewSettlementHandler(svc *settlement.Service) *SettlementHandler {
	return &SettlementHandler{settlement: svc}
}

type paymentView struct {
	Leg       string    `json:"leg"`
	PartyID   types.ID  `json:"party_id"`
	Amount    moneyView `json:"amount"`
	Reference string    `json:"reference,omitempty"`
}

type ledgerView struct {
	Account   string    `json:"account"`
	PartyID   types.ID  `json:"party_id,omitempty"`
	Amount    moneyView `json:"amount"`
	Memo      string    `json:"memo"`
	CreatedAt time.Time `json:"created_at"`
}

type settlementView struct {
	DeliveryID types.ID      `json:"delivery_id"`
	RouteID    types.ID      `json:"route_id"`
	OrderID    types.ID      `json:"order_id"`
	Kind       string        `json:"kind"`
	State      string        `json:"state"`
	Fees       fees.Display  `json:"fees"`
	Payments   []paymentView `json:"payments"`
	Ledger     []ledgerView  `json:"ledger"`
	Late       bool          `json:"late"`
	Attempts   int           `json:"attempts"`
	LastError  *string       `json:"last_error,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (h *SettlementHandler) Get(c *gin.Context) {
	rec, entries, err := h.settlement.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	v := settlementView{
		DeliveryID: rec.DeliveryID,
		RouteID:    rec.RouteID,
		OrderID:    rec.OrderID,
		Kind:       string(rec.Kind),
		State:      string(rec.State),
		Fees:       rec.Breakdown.Display(),
		Payments:   make([]paymentView, 0, len(rec.Payments)),
		Ledger:     make([]ledgerView, 0, len(entries)),
		Late:       rec.Late,
		Attempts:   rec.Attempts,
		LastError:  rec.LastError,
		UpdatedAt:  rec.UpdatedAt,
	}
	for _, p := range rec.Payments {
		v.Payments = append(v.Payments, paymentView{Leg: string(p.Leg), PartyID: p.PartyID, Amount: viewMoney(p.Amount), Reference: p.Reference})
	}
	for _, e := range entries {
		v.Ledger = append(v.Ledger, ledgerView{Account: e.Account, PartyID: e.PartyID, Amount: viewMoney(e.Amount), Memo: e.Memo, CreatedAt: e.CreatedAt})
	}
	writeJSON(c, http.StatusOK, v)
}
