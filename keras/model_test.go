package keras

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ray0809/onnx-to-keras/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reluModel() *Model {
	return &Model{
		Name:    "relu-net",
		Inputs:  []string{"x"},
		Outputs: []string{"y"},
		Layers: []Layer{
			&InputLayer{
				LayerBase:  LayerBase{LayerName: "x", OutputTensors: []string{"x"}},
				BatchShape: []int{-1, 3},
				DType:      tensor.Float32,
			},
			&ReLU{LayerBase: LayerBase{LayerName: "relu", InputTensors: []string{"x"}, OutputTensors: []string{"y"}}},
		},
	}
}

func TestModelPredict(t *testing.T) {
	m := reluModel()
	results, err := m.Predict(map[string]*tensor.Tensor{
		"x": tensor.FromFloat32s([]float32{-1, 0, 2}, 1, 3),
	})
	require.NoError(t, err)
	require.Contains(t, results, "y")
	assert.Equal(t, []float32{0, 0, 2}, results["y"].Float32s)
}

func TestModelPredictMissingFeed(t *testing.T) {
	_, err := reluModel().Predict(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing feed")
}

func TestModelPredictUnknownOutput(t *testing.T) {
	m := reluModel()
	m.Outputs = []string{"z"}
	_, err := m.Predict(map[string]*tensor.Tensor{
		"x": tensor.FromFloat32s([]float32{1}, 1, 1),
	})
	assert.Error(t, err)
}

func TestModelPredictConstantOperand(t *testing.T) {
	add, err := NewBinaryOp(LayerBase{
		LayerName:     "add",
		InputTensors:  []string{"x", "c"},
		OutputTensors: []string{"y"},
	}, "Add", nil, false)
	require.NoError(t, err)
	m := &Model{
		Name:    "const-net",
		Inputs:  []string{"x"},
		Outputs: []string{"y"},
		Layers: []Layer{
			&InputLayer{
				LayerBase:  LayerBase{LayerName: "x", OutputTensors: []string{"x"}},
				BatchShape: []int{-1, 2},
				DType:      tensor.Float32,
			},
			&Constant{
				LayerBase: LayerBase{LayerName: "c", OutputTensors: []string{"c"}},
				Value:     tensor.FromFloat32s([]float32{10, 20}, 2),
			},
			add,
		},
	}
	results, err := m.Predict(map[string]*tensor.Tensor{
		"x": tensor.FromFloat32s([]float32{1, 2}, 1, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22}, results["y"].Float32s)
}

func TestModelLayerLookup(t *testing.T) {
	m := reluModel()
	require.NotNil(t, m.Layer("relu"))
	assert.Equal(t, "ReLU", m.Layer("relu").ClassName())
	assert.Nil(t, m.Layer("missing"))
}

func TestModelSummary(t *testing.T) {
	var buf bytes.Buffer
	reluModel().Summary(&buf)
	out := buf.String()
	assert.Contains(t, out, "relu-net")
	assert.Contains(t, out, "InputLayer")
	assert.Contains(t, out, "ReLU")
	assert.Contains(t, strings.ToUpper(out), "TOTAL")
}
