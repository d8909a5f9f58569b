package keras

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// The export format is a single JSON document in the shape of a Keras model
// config: per-layer class name + config + connections, with the weight data
// inlined as base64 little-endian blobs.

type savedModel struct {
	Name    string       `json:"name"`
	Format  string       `json:"format"`
	Inputs  []string     `json:"inputs"`
	Outputs []string     `json:"outputs"`
	Layers  []savedLayer `json:"layers"`
}

type savedLayer struct {
	Name      string         `json:"name"`
	ClassName string         `json:"class_name"`
	Config    map[string]any `json:"config"`
	Inbound   []string       `json:"inbound"`
	Outbound  []string       `json:"outbound"`
	Weights   []savedWeight  `json:"weights,omitempty"`
}

type savedWeight struct {
	Name  string `json:"name,omitempty"`
	DType string `json:"dtype"`
	Dims  []int  `json:"dims"`
	Data  string `json:"data"` // base64, little-endian
}

const saveFormat = "onnx2keras/1"

// Save writes the model as JSON to path.
func Save(m *Model, path string) error {
	doc := savedModel{
		Name:    m.Name,
		Format:  saveFormat,
		Inputs:  m.Inputs,
		Outputs: m.Outputs,
		Layers:  make([]savedLayer, 0, len(m.Layers)),
	}
	for _, l := range m.Layers {
		sl := savedLayer{
			Name:      l.Name(),
			ClassName: l.ClassName(),
			Config:    l.Config(),
			Inbound:   l.Inbound(),
			Outbound:  l.Outbound(),
		}
		for _, w := range l.Weights() {
			sw, err := encodeWeight(w)
			if err != nil {
				return errors.WithMessagef(err, "while saving layer %q", l.Name())
			}
			sl.Weights = append(sl.Weights, sw)
		}
		doc.Layers = append(doc.Layers, sl)
	}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal model %q", m.Name)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write model to %q", path)
	}
	return nil
}

func encodeWeight(t *tensor.Tensor) (savedWeight, error) {
	raw, err := encodeRaw(t)
	if err != nil {
		return savedWeight{}, err
	}
	dims := t.Dims
	if dims == nil {
		dims = []int{}
	}
	return savedWeight{
		Name:  t.Name,
		DType: t.DType.String(),
		Dims:  dims,
		Data:  base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// encodeRaw serializes the normalized storage: float data as float32,
// integer data as int64, booleans as single bytes.
func encodeRaw(t *tensor.Tensor) ([]byte, error) {
	switch {
	case t.Float32s != nil:
		raw := make([]byte, 4*len(t.Float32s))
		for ii, v := range t.Float32s {
			binary.LittleEndian.PutUint32(raw[4*ii:], math.Float32bits(v))
		}
		return raw, nil
	case t.Float64s != nil:
		raw := make([]byte, 8*len(t.Float64s))
		for ii, v := range t.Float64s {
			binary.LittleEndian.PutUint64(raw[8*ii:], math.Float64bits(v))
		}
		return raw, nil
	case t.Int64s != nil:
		raw := make([]byte, 8*len(t.Int64s))
		for ii, v := range t.Int64s {
			binary.LittleEndian.PutUint64(raw[8*ii:], uint64(v))
		}
		return raw, nil
	case t.Bools != nil:
		raw := make([]byte, len(t.Bools))
		for ii, v := range t.Bools {
			if v {
				raw[ii] = 1
			}
		}
		return raw, nil
	case t.Size() == 0:
		return nil, nil
	}
	return nil, errors.Errorf("tensor %q %s has no data to serialize", t.Name, t)
}
