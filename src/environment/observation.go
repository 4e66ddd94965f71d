package environment

// Observation 观测值：无窗口时为当前一行，有窗口时为最近 W 行（旧在前）
type Observation struct {
	Rows     [][]float64 `json:"rows"`
	Windowed bool        `json:"windowed"`
}

// Shape 无窗口为 [F]，有窗口为 [W, F]
func (o Observation) Shape() []int {
	if len(o.Rows) == 0 {
		return nil
	}
	if !o.Windowed {
		return []int{len(o.Rows[0])}
	}
	return []int{len(o.Rows), len(o.Rows[0])}
}

// Flat 按行展开
func (o Observation) Flat() []float64 {
	if len(o.Rows) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(o.Rows)*len(o.Rows[0]))
	for _, row := range o.Rows {
		flat = append(flat, row...)
	}
	return flat
}

// Info 每步附带的诊断信息
type Info map[string]any
