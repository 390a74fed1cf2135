package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RefundTier 距開演至少 MinLead 時退還 Percentage%
type RefundTier struct {
	MinLead    time.Duration
	Percentage int64
}

// RefundPolicy 取消退款階梯
type RefundPolicy struct {
	tiers []RefundTier
}

// NewRefundPolicy 依門檻由大到小排序
func NewRefundPolicy(tiers []RefundTier) *RefundPolicy {
	sorted := append([]RefundTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinLead > sorted[j].MinLead
	})
	return &RefundPolicy{tiers: sorted}
}

// DefaultRefundPolicy 48 小時前全退、2 小時前退一半、之後不退
func DefaultRefundPolicy() *RefundPolicy {
	return NewRefundPolicy([]RefundTier{
		{MinLead: 48 * time.Hour, Percentage: 100},
		{MinLead: 2 * time.Hour, Percentage: 50},
	})
}

// Percentage 取消當下可退的百分比
func (p *RefundPolicy) Percentage(now, showStart time.Time) int64 {
	lead := showStart.Sub(now)
	for _, tier := range p.tiers {
		if lead >= tier.MinLead {
			return tier.Percentage
		}
	}
	return 0
}

// Refund 退款金額，四捨五入到整數
func (p *RefundPolicy) Refund(totalAmount int64, now, showStart time.Time) int64 {
	pct := p.Percentage(now, showStart)
	if pct == 0 || totalAmount <= 0 {
		return 0
	}
	return decimal.NewFromInt(totalAmount).
		Mul(decimal.NewFromInt(pct)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
