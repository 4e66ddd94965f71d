package policy

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"stocksense/src/environment"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig 外部训练模型的推理配置
type ONNXConfig struct {
	ModelPath   string `conf:"model_path,ONNX 模型文件路径"`
	LibraryPath string `conf:"library_path,onnxruntime 动态库路径 - 为空时按系统选择默认值"`
	InputName   string `conf:"input_name,模型输入名"`
	OutputName  string `conf:"output_name,模型输出名"`
}

var (
	ortOnce sync.Once
	ortErr  error
)

// initializeORT 进程内只初始化一次 onnxruntime
func initializeORT(libPath string) error {
	ortOnce.Do(func() {
		if libPath == "" {
			switch runtime.GOOS {
			case "windows":
				libPath = "onnxruntime.dll"
			case "darwin":
				libPath = "libonnxruntime.dylib"
			default:
				libPath = "/usr/lib/libonnxruntime.so"
			}
		}
		ort.SetSharedLibraryPath(libPath)
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNX 用外部训练的模型推理动作。
// 输出长度为 N+1：离散空间取 argmax，连续空间取 softmax。
type ONNX struct {
	mu      sync.Mutex
	space   environment.ActionSpace
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNX 加载模型，obsShape 为单个观测的形状
func NewONNX(cfg ONNXConfig, obsShape []int, space environment.ActionSpace) (*ONNX, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx policy requires a model path")
	}
	if err := initializeORT(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}

	inputName, outputName := cfg.InputName, cfg.OutputName
	if inputName == "" {
		inputName = "input"
	}
	if outputName == "" {
		outputName = "output"
	}

	dims := []int64{1}
	size := 1
	for _, d := range obsShape {
		dims = append(dims, int64(d))
		size *= d
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(dims...), make([]float32, size))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(space.NumAssets()+1)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{inputName}, []string{outputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ONNX{
		space:   space,
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

func (p *ONNX) Name() string {
	return "onnx"
}

func (p *ONNX) Act(_ context.Context, obs environment.Observation) (environment.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := p.input.GetData()
	flat := obs.Flat()
	if len(flat) != len(data) {
		return environment.Action{}, fmt.Errorf("observation has %d values, model expects %d", len(flat), len(data))
	}
	for i, v := range flat {
		data[i] = float32(v)
	}

	if err := p.session.Run(); err != nil {
		return environment.Action{}, fmt.Errorf("inference failed: %w", err)
	}

	return DecodeOutput(p.output.GetData(), p.space), nil
}

// Close 释放会话与张量
func (p *ONNX) Close() {
	if p.session != nil {
		p.session.Destroy()
	}
	if p.input != nil {
		p.input.Destroy()
	}
	if p.output != nil {
		p.output.Destroy()
	}
}

// DecodeOutput 将模型输出转换为动作
func DecodeOutput(out []float32, space environment.ActionSpace) environment.Action {
	if _, ok := space.(*environment.ContinuousSpace); ok {
		return environment.ContinuousAction(Softmax(out))
	}
	return environment.DiscreteAction(Argmax(out))
}

// Argmax 最大值下标，并列时取第一个
func Argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// Softmax 数值稳定的 softmax
func Softmax(values []float32) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	m := float64(values[Argmax(values)])
	sum := 0.0
	for i, v := range values {
		out[i] = math.Exp(float64(v) - m)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
