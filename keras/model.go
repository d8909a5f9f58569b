package keras

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// Model is a functional composition of layers wired by tensor name.
// Layers are stored in executable (topological) order.
type Model struct {
	Name    string
	Inputs  []string // tensor names fed by the caller
	Outputs []string // tensor names returned by Predict
	Layers  []Layer
}

// Layer returns the layer with the given name, or nil.
func (m *Model) Layer(name string) Layer {
	for _, l := range m.Layers {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

// Predict runs the reference kernels over the whole model. The feeds map is
// keyed by the model's input tensor names.
func (m *Model) Predict(feeds map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	values := make(map[string]*tensor.Tensor, len(m.Layers)+len(feeds))
	for _, name := range m.Inputs {
		t, ok := feeds[name]
		if !ok {
			return nil, errors.Errorf("model %q: missing feed for input %q", m.Name, name)
		}
		values[name] = t
	}
	for _, l := range m.Layers {
		if _, ok := l.(*InputLayer); ok {
			continue // placeholder, its tensor comes from the feeds
		}
		inputs := make([]*tensor.Tensor, len(l.Inbound()))
		for ii, name := range l.Inbound() {
			t, ok := values[name]
			if !ok {
				return nil, errors.Errorf("model %q: layer %q consumes unknown tensor %q", m.Name, l.Name(), name)
			}
			inputs[ii] = t
		}
		outputs, err := l.Call(inputs)
		if err != nil {
			return nil, err
		}
		if len(outputs) != len(l.Outbound()) {
			return nil, errors.Errorf("model %q: layer %q produced %d tensors, declares %d",
				m.Name, l.Name(), len(outputs), len(l.Outbound()))
		}
		for ii, name := range l.Outbound() {
			values[name] = outputs[ii]
		}
	}
	results := make(map[string]*tensor.Tensor, len(m.Outputs))
	for _, name := range m.Outputs {
		t, ok := values[name]
		if !ok {
			return nil, errors.Errorf("model %q: output tensor %q was never produced", m.Name, name)
		}
		results[name] = t
	}
	return results, nil
}

// Summary writes a per-layer table: name, class, connections and parameter
// count.
func (m *Model) Summary(w io.Writer) {
	fmt.Fprintf(w, "Model: %q\n", m.Name)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Layer", "Class", "Inputs", "Params"})
	table.SetAutoWrapText(false)
	var total int
	for _, l := range m.Layers {
		var params int
		for _, t := range l.Weights() {
			params += t.Size()
		}
		total += params
		table.Append([]string{
			l.Name(),
			l.ClassName(),
			strings.Join(l.Inbound(), ", "),
			fmt.Sprintf("%d", params),
		})
	}
	table.SetFooter([]string{"", "", "Total", fmt.Sprintf("%d", total)})
	table.Render()
	fmt.Fprintf(w, "Inputs: %s\nOutputs: %s\n",
		strings.Join(m.Inputs, ", "), strings.Join(m.Outputs, ", "))
}
