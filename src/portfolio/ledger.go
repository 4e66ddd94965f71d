package portfolio

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidAllocation 目标配置长度不符、含负数或之和不为 1
	ErrInvalidAllocation = errors.New("invalid allocation")

	// ErrInvalidPrice 价格为负数或非有限值
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidFeeRate 手续费率不在 [0,1) 内
	ErrInvalidFeeRate = errors.New("invalid fee rate")
)

// AllocationTolerance 配置之和与 1 的允许偏差
const AllocationTolerance = 1e-6

// Ledger 多资产持仓账本：N 个资产的持有数量加现金。
// 非并发安全，由单个模拟器独占。
type Ledger struct {
	units   []float64
	cash    float64
	applied []float64 // 最近一次生效的目标配置，长度 N+1，最后一项为现金

	feesPaid float64
	trades   int
}

// NewLedger 创建全现金账本
func NewLedger(numAssets int, capital float64) *Ledger {
	l := &Ledger{
		units:   make([]float64, numAssets),
		applied: make([]float64, numAssets+1),
	}
	l.Reset(capital)
	return l
}

// Reset 清空持仓，恢复为全现金
func (l *Ledger) Reset(capital float64) {
	for i := range l.units {
		l.units[i] = 0
	}
	for i := range l.applied {
		l.applied[i] = 0
	}
	l.applied[len(l.applied)-1] = 1
	l.cash = capital
	l.feesPaid = 0
	l.trades = 0
}

// NumAssets 资产数量
func (l *Ledger) NumAssets() int {
	return len(l.units)
}

// Units 各资产持有数量的副本
func (l *Ledger) Units() []float64 {
	return append([]float64(nil), l.units...)
}

// Cash 现金余额
func (l *Ledger) Cash() float64 {
	return l.cash
}

// Allocation 当前生效的目标配置副本
func (l *Ledger) Allocation() []float64 {
	return append([]float64(nil), l.applied...)
}

// FeesPaid 累计因手续费损失的价值
func (l *Ledger) FeesPaid() float64 {
	return l.feesPaid
}

// Trades 累计成交笔数（每个资产每次调仓计一笔）
func (l *Ledger) Trades() int {
	return l.trades
}

// TotalValue 按给定价格计算总价值：Σ units·price + cash
func (l *Ledger) TotalValue(prices []float64) (float64, error) {
	if err := l.checkPrices(prices); err != nil {
		return 0, err
	}
	return l.value(prices), nil
}

// Weights 按给定价格计算实际持仓比例，长度 N+1
func (l *Ledger) Weights(prices []float64) ([]float64, error) {
	total, err := l.TotalValue(prices)
	if err != nil {
		return nil, err
	}

	weights := make([]float64, len(l.units)+1)
	if total <= 0 {
		return weights, nil
	}
	for i, u := range l.units {
		weights[i] = u * prices[i] / total
	}
	weights[len(l.units)] = l.cash / total
	return weights, nil
}

// Rebalance 按目标配置以给定价格调仓，手续费按比例收取。
//
// 卖出：卖出全部差额数量，到账现金扣除手续费。
// 买入：按 q = trade/(1-fee+fee·target[i]) 放大数量，消耗 q·price 现金，
// 到账 q·(1-fee) 单位。先卖后买；若买入所需现金超过可用现金，
// 所有买单按比例缩减，现金归零。
//
// 目标与当前生效配置完全相同时不做任何改动。
func (l *Ledger) Rebalance(target, prices []float64, feeRate float64) error {
	if err := ValidateAllocation(target, len(l.units)); err != nil {
		return err
	}
	if err := l.checkPrices(prices); err != nil {
		return err
	}
	if feeRate < 0 || feeRate >= 1 || math.IsNaN(feeRate) {
		return fmt.Errorf("%w: %v", ErrInvalidFeeRate, feeRate)
	}
	for i, p := range prices {
		if p == 0 && target[i] > 0 {
			return fmt.Errorf("%w: cannot allocate to asset %d at zero price", ErrInvalidPrice, i)
		}
	}

	if SameAllocation(target, l.applied) {
		return nil
	}

	before := l.value(prices)

	type buy struct {
		asset int
		qty   float64
	}
	var buys []buy
	available := l.cash
	required := 0.0

	for i, price := range prices {
		var trade float64
		if price == 0 {
			trade = -l.units[i]
		} else {
			trade = target[i]*before/price - l.units[i]
		}

		switch {
		case trade < 0:
			l.units[i] += trade
			if l.units[i] < 0 {
				l.units[i] = 0
			}
			available += -trade * price * (1 - feeRate)
			l.trades++
		case trade > 0:
			qty := trade / (1 - feeRate + feeRate*target[i])
			buys = append(buys, buy{asset: i, qty: qty})
			required += qty * price
		}
	}

	scale := 1.0
	if required > available {
		scale = available / required
		l.cash = 0
	} else {
		l.cash = available - required
	}
	for _, b := range buys {
		l.units[b.asset] += b.qty * scale * (1 - feeRate)
		l.trades++
	}

	copy(l.applied, target)

	if after := l.value(prices); before > after {
		l.feesPaid += before - after
	}
	return nil
}

func (l *Ledger) value(prices []float64) float64 {
	total := l.cash
	for i, u := range l.units {
		total += u * prices[i]
	}
	return total
}

func (l *Ledger) checkPrices(prices []float64) error {
	if len(prices) != len(l.units) {
		return fmt.Errorf("%w: got %d prices for %d assets", ErrInvalidPrice, len(prices), len(l.units))
	}
	for i, p := range prices {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: asset %d price %v", ErrInvalidPrice, i, p)
		}
	}
	return nil
}

// ValidateAllocation 检查配置长度为 N+1、各项在 [0,1] 且之和为 1
func ValidateAllocation(target []float64, numAssets int) error {
	if len(target) != numAssets+1 {
		return fmt.Errorf("%w: expected %d entries, got %d", ErrInvalidAllocation, numAssets+1, len(target))
	}

	sum := 0.0
	for i, w := range target {
		if w < 0 || w > 1 || math.IsNaN(w) {
			return fmt.Errorf("%w: entry %d is %v", ErrInvalidAllocation, i, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > AllocationTolerance {
		return fmt.Errorf("%w: entries sum to %v", ErrInvalidAllocation, sum)
	}
	return nil
}

// SameAllocation 两个配置逐项完全相等
func SameAllocation(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
