package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"infera/internal/common/fsutil"
	"infera/internal/manager"
	"infera/pkg/types"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		data     string
		blobPath string
		rows     int
		cols     int
	)
	cmd := &cobra.Command{
		Use:   "predict SOURCE",
		Short: "Load a model from a path or URL and run one prediction",
		Example: "  infera predict ./linear.onnx --data 1,2,3\n" +
			"  infera predict https://example.com/m.onnx --data 1,2,3,4,5,6 --rows 2\n" +
			"  infera predict ./linear.onnx --blob input.f32",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			cfg.AutoloadDir = ""
			rt, err := a.openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			name := fsutil.Stem(args[0])
			mgr := rt.Manager()
			if err := mgr.Load(cmd.Context(), name, args[0]); err != nil {
				return err
			}
			var out manager.Output
			if blobPath != "" {
				blob, err := os.ReadFile(blobPath)
				if err != nil {
					return err
				}
				out, err = mgr.PredictBlob(cmd.Context(), name, blob)
				if err != nil {
					return err
				}
			} else {
				values, err := parseFloats(data)
				if err != nil {
					return err
				}
				r, c, err := batchShape(len(values), rows, cols)
				if err != nil {
					return err
				}
				out, err = mgr.Predict(cmd.Context(), name, values, r, c)
				if err != nil {
					return err
				}
			}
			return a.printJSON(types.PredictResponse{Rows: out.Rows, Cols: out.Cols, Data: out.Data})
		},
	}
	f := cmd.Flags()
	f.StringVar(&data, "data", "", "Comma-separated row-major input values")
	f.StringVar(&blobPath, "blob", "", "File holding little-endian float32 input")
	f.IntVar(&rows, "rows", 0, "Input rows (derived from --cols when omitted)")
	f.IntVar(&cols, "cols", 0, "Input columns (derived from --rows when omitted)")
	cmd.MarkFlagsMutuallyExclusive("data", "blob")
	cmd.MarkFlagsOneRequired("data", "blob")
	return cmd
}

func parseFloats(s string) ([]float32, error) {
	parts := splitCSV(s)
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

// batchShape resolves rows x cols for n values. With neither given the input
// is a single row.
func batchShape(n, rows, cols int) (int, int, error) {
	if n == 0 {
		return 0, 0, errors.New("no input values")
	}
	switch {
	case rows <= 0 && cols <= 0:
		return 1, n, nil
	case rows <= 0:
		if n%cols != 0 {
			return 0, 0, fmt.Errorf("%d values do not split into rows of %d", n, cols)
		}
		return n / cols, cols, nil
	case cols <= 0:
		if n%rows != 0 {
			return 0, 0, fmt.Errorf("%d values do not split into %d rows", n, rows)
		}
		return rows, n / rows, nil
	}
	if rows*cols != n {
		return 0, 0, fmt.Errorf("rows*cols = %d, got %d values", rows*cols, n)
	}
	return rows, cols, nil
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect SOURCE",
		Short: "Load a model and print its shapes and tensor descriptors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			cfg.AutoloadDir = ""
			rt, err := a.openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			name := fsutil.Stem(args[0])
			mgr := rt.Manager()
			if err := mgr.Load(cmd.Context(), name, args[0]); err != nil {
				return err
			}
			info, err := mgr.Info(name)
			if err != nil {
				return err
			}
			md, err := mgr.Metadata(name)
			if err != nil {
				return err
			}
			return a.printJSON(struct {
				types.ModelInfo
				Metadata types.ModelMetadata `json:"metadata"`
			}{info, md})
		},
	}
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models found in the autoload directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.AutoloadDir == "" {
				return errors.New("no autoload dir configured (--autoload-dir or INFERA_AUTOLOAD_DIR)")
			}
			rt, err := a.openRuntime(a.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			mgr := rt.Manager()
			infos := make([]types.ModelInfo, 0)
			for _, name := range mgr.List() {
				if info, err := mgr.Info(name); err == nil {
					infos = append(infos, info)
				}
			}
			return a.printJSON(infos)
		},
	}
}

func newAutoloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "autoload DIR",
		Short: "Load every .onnx file of DIR and report per-file failures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			cfg.AutoloadDir = ""
			rt, err := a.openRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			res := rt.Manager().Autoload(cmd.Context(), args[0])
			if err := a.printJSON(res); err != nil {
				return err
			}
			if len(res.Loaded) == 0 && len(res.Errors) > 0 {
				return fmt.Errorf("no model loaded from %s", args[0])
			}
			return nil
		},
	}
}
