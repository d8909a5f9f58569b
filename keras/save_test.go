package keras

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/ray0809/onnx-to-keras/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave(t *testing.T) {
	kernel := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, 3, 2)
	kernel.Name = "fc/kernel"
	m := &Model{
		Name:    "tiny",
		Inputs:  []string{"x"},
		Outputs: []string{"y"},
		Layers: []Layer{
			&InputLayer{
				LayerBase:  LayerBase{LayerName: "x", OutputTensors: []string{"x"}},
				BatchShape: []int{-1, 3},
				DType:      tensor.Float32,
			},
			&Dense{
				LayerBase: LayerBase{LayerName: "fc", InputTensors: []string{"x"}, OutputTensors: []string{"y"}},
				Units:     2,
				Kernel:    kernel,
			},
		},
	}

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, Save(m, path))

	var doc struct {
		Name    string   `json:"name"`
		Format  string   `json:"format"`
		Inputs  []string `json:"inputs"`
		Outputs []string `json:"outputs"`
		Layers  []struct {
			Name      string         `json:"name"`
			ClassName string         `json:"class_name"`
			Config    map[string]any `json:"config"`
			Inbound   []string       `json:"inbound"`
			Outbound  []string       `json:"outbound"`
			Weights   []struct {
				Name  string `json:"name"`
				DType string `json:"dtype"`
				Dims  []int  `json:"dims"`
				Data  string `json:"data"`
			} `json:"weights"`
		} `json:"layers"`
	}
	require.NoError(t, json.Unmarshal(must.M1(os.ReadFile(path)), &doc))

	assert.Equal(t, "tiny", doc.Name)
	assert.Equal(t, "onnx2keras/1", doc.Format)
	assert.Equal(t, []string{"x"}, doc.Inputs)
	assert.Equal(t, []string{"y"}, doc.Outputs)
	require.Len(t, doc.Layers, 2)

	input := doc.Layers[0]
	assert.Equal(t, "InputLayer", input.ClassName)
	assert.Equal(t, []string{"x"}, input.Outbound)
	assert.Empty(t, input.Weights)

	fc := doc.Layers[1]
	assert.Equal(t, "Dense", fc.ClassName)
	assert.Equal(t, []string{"x"}, fc.Inbound)
	assert.Equal(t, []string{"y"}, fc.Outbound)
	assert.EqualValues(t, 2, fc.Config["units"])
	require.Len(t, fc.Weights, 1)
	w := fc.Weights[0]
	assert.Equal(t, "fc/kernel", w.Name)
	assert.Equal(t, "float32", w.DType)
	assert.Equal(t, []int{3, 2}, w.Dims)

	raw := must.M1(base64.StdEncoding.DecodeString(w.Data))
	require.Len(t, raw, 4*6)
	for ii, want := range kernel.Float32s {
		got := math.Float32frombits(binary.LittleEndian.Uint32(raw[4*ii:]))
		assert.Equal(t, want, got)
	}
}
