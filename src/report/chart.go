package report

import (
	"errors"

	"github.com/vicanso/go-charts/v2"
)

// RenderEquityChart 绘制组合价值曲线，返回 PNG
func RenderEquityChart(points []EquityPoint, title string) ([]byte, error) {
	if len(points) < 2 {
		return nil, errors.New("not enough data points")
	}

	x := make([]string, len(points))
	values := make([]float64, len(points))
	yMin, yMax := points[0].Value, points[0].Value
	for i, p := range points {
		x[i] = p.Timestamp.UTC().Format("Jan 02 15:04")
		values[i] = p.Value
		yMin = min(yMin, p.Value)
		yMax = max(yMax, p.Value)
	}

	pad := (yMax - yMin) * 0.05
	if pad < yMax*0.002 {
		pad = yMax * 0.002
	}
	yMin = max(yMin-pad, 0)
	yMax += pad
	if yMax <= yMin {
		yMax = yMin + 1
	}

	painter, err := charts.LineRender([][]float64{values},
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: x, BoundaryGap: charts.FalseFlag(), SplitNumber: 10}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}
