// onnx2keras converts ONNX model files to Keras-style layer models.
//
// Usage:
//
//	onnx2keras convert SRC.onnx DST.json
//	onnx2keras inspect SRC.onnx
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/ray0809/onnx-to-keras/convert"
	"github.com/ray0809/onnx-to-keras/keras"
	"github.com/ray0809/onnx-to-keras/onnx"
)

func main() {
	klog.InitFlags(nil)
	root := &cobra.Command{
		Use:          "onnx2keras",
		Short:        "Convert ONNX models to Keras-style layer models",
		SilenceUsage: true,
	}
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	root.AddCommand(newConvertCmd(), newInspectCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newConvertCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "convert SRC.onnx DST.json",
		Short: "Convert an ONNX model file and write the layer model as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := onnx.ReadFile(args[0])
			if err != nil {
				return err
			}
			converted, err := convert.Convert(model)
			if err != nil {
				return err
			}
			if err := keras.Save(converted, args[1]); err != nil {
				return err
			}
			if summary {
				converted.Summary(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d layers to %s\n", len(converted.Layers), args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print the converted model's layer table")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect SRC.onnx",
		Short: "Print model metadata and per-operator support",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := onnx.ReadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, model)

			supported := convert.SupportedOps()
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Op type", "Count", "Supported"})
			counts := model.OpTypeCounts()
			ops := make([]string, 0, len(counts))
			for op := range counts {
				ops = append(ops, op)
			}
			sort.Strings(ops)
			for _, op := range ops {
				mark := "no"
				if slices.Contains(supported, op) {
					mark = "yes"
				}
				table.Append([]string{op, fmt.Sprintf("%d", counts[op]), mark})
			}
			table.Render()
			return nil
		},
	}
}
