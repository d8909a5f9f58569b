package convert

import (
	"fmt"
	"sort"

	"github.com/ray0809/onnx-to-keras/internal/protos"
)

// translatorFunc converts one graph node into target layers, reading its
// inputs from the context and recording its outputs there. Translators
// signal failure by panicking with one of the typed errors; Convert runs
// them inside a recovery boundary.
type translatorFunc func(ctx *Context, node *protos.NodeProto)

// opRegistry maps operator type to its translation routine. It is written
// only by registerOp calls from package init functions and read-only
// afterwards, so concurrent conversions need no locking.
var opRegistry = map[string]translatorFunc{}

// registerOp installs a translation routine for an operator type. Adding
// support for a new operator means registering a new routine, never editing
// a central dispatch.
func registerOp(opType string, fn translatorFunc) {
	if _, found := opRegistry[opType]; found {
		panic(fmt.Sprintf("operator %q registered twice", opType))
	}
	opRegistry[opType] = fn
}

// SupportedOps lists the registered operator types, sorted.
func SupportedOps() []string {
	ops := make([]string, 0, len(opRegistry))
	for op := range opRegistry {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
