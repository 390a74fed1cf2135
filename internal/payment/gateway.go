// Package payment 定義外部金流服務的介面；卡號、3-D Secure 等細節由金流商處理
package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Intent 金流商建立的付款意圖
type Intent struct {
	ID           string `json:"id"`
	BookingID    string `json:"booking_id"`
	Amount       int64  `json:"amount"`
	ClientSecret string `json:"client_secret"`
}

type Gateway interface {
	CreatePaymentIntent(ctx context.Context, bookingID string, amount int64) (*Intent, error)
}

// SandboxGateway 本地開發與測試用，不會真的扣款
type SandboxGateway struct {
	mu      sync.Mutex
	intents map[string]*Intent
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{intents: make(map[string]*Intent)}
}

func (g *SandboxGateway) CreatePaymentIntent(ctx context.Context, bookingID string, amount int64) (*Intent, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("invalid amount %d", amount)
	}
	id := "pi_" + uuid.NewString()
	intent := &Intent{
		ID:           id,
		BookingID:    bookingID,
		Amount:       amount,
		ClientSecret: id + "_secret_" + uuid.NewString(),
	}

	g.mu.Lock()
	g.intents[id] = intent
	g.mu.Unlock()

	return intent, nil
}

// Lookup 測試時取回建立過的 intent
func (g *SandboxGateway) Lookup(id string) (*Intent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	return intent, ok
}
