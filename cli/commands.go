package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zot/lensconv/internal/bundle"
	"github.com/zot/lensconv/internal/convert"
	"github.com/zot/lensconv/internal/history"
	"github.com/zot/lensconv/internal/mcp"
	"github.com/zot/lensconv/internal/watch"
)

func (a *app) rootCommand() *cobra.Command {
	var batch bool

	root := &cobra.Command{
		Use:   "lensconv <input> [-o dir] [--batch]",
		Short: "Convert Snap Camera lenses to OBS filter assets",
		Long: `lensconv converts Snap Camera lens archives (.lns, .zip) into OBS assets:
textures are copied or converted to png, GLSL shaders are rewritten for OBS,
and a main face-tracking filter plus lens_info.json manifest are generated.

With --batch the input is a directory; every archive in it is converted and
conversion_report.json is written into the output directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			if batch {
				return a.runBatch(cmd, args[0])
			}
			return a.runConvert(cmd, args[0])
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default: ./lensconv.toml if present)")
	pf.CountVarP(&a.verbosity, "verbose", "v", "Increase log verbosity (repeatable)")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.Flags().BoolVar(&batch, "batch", false, "Process all lenses in the input directory")
	addConvertFlags(root)

	root.AddCommand(
		a.batchCommand(),
		a.inspectCommand(),
		a.packCommand(),
		a.watchCommand(),
		a.historyCommand(),
		a.mcpCommand(),
		a.versionCommand(),
	)
	return root
}

// addConvertFlags adds the flags shared by every command that converts.
func addConvertFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("output", "o", "extracted", "Output directory")
	f.Int("workers", 0, "Concurrent conversions in batch mode")
	f.Duration("timeout", 0, "Per-package timeout (0 = none)")
	f.String("report-format", "json", "Batch report format: json or yaml")
	f.Bool("standalone", false, "Emit complete effect files for converted shaders")
	f.String("hook", "", "Lua hook script")
	f.Bool("keep-extracted", true, "Keep unpacked archive files next to obs_assets")
}

func (a *app) newConverter() (*convert.Converter, error) {
	return convert.New(a.cfg, a.log)
}

func (a *app) runConvert(cmd *cobra.Command, input string) error {
	conv, err := a.newConverter()
	if err != nil {
		return err
	}
	defer conv.Close()

	r := conv.Convert(cmd.Context(), input)
	if !r.Success {
		fmt.Fprintf(a.stderr, "Conversion failed: %v\n", r.Err)
		return errSilent
	}

	m := r.Metadata
	fmt.Fprintf(a.stdout, "\nConverted: %s\n", m.Name)
	fmt.Fprintf(a.stdout, "Author: %s\n", m.Author)
	fmt.Fprintf(a.stdout, "Face Tracking: %t\n", m.FaceTracking)
	fmt.Fprintf(a.stdout, "Output: %s\n", r.OutputDir(conv.OutputDir))
	return nil
}

// runBatch never fails because of a package or an unreadable input
// directory; only a report that cannot be written is an error.
func (a *app) runBatch(cmd *cobra.Command, dir string) error {
	conv, err := a.newConverter()
	if err != nil {
		return err
	}
	defer conv.Close()

	report, err := conv.Batch(cmd.Context(), dir)
	if err != nil {
		a.log.Error("cannot read input directory", zap.Error(err))
		report = convert.NewReport(nil)
	}

	path, err := convert.WriteReport(report, conv.OutputDir, a.cfg.Batch.ReportFormat)
	if err != nil {
		return err
	}
	a.log.Info("conversion complete", zap.String("report", path))
	fmt.Fprintf(a.stdout, "Converted %d of %d lenses (%d failed). Report: %s\n",
		report.Successful, report.Total, report.Failed, path)
	return nil
}

func (a *app) batchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Convert every lens archive in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args[0])
		},
	}
	addConvertFlags(cmd)
	return cmd
}

func (a *app) inspectCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect <archive|dir>",
		Short: "Show metadata, entries and shader uniforms without converting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := convert.Inspect(args[0])
			if err != nil {
				return err
			}
			return a.printStructured(in, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json")
	return cmd
}

func (a *app) printStructured(v any, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func (a *app) packCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "pack <dir> -o <file.lns>",
		Short: "Pack a lens directory into an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = filepath.Clean(args[0]) + ".lns"
			}
			if err := bundle.Pack(args[0], output); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Packed %s into %s\n", args[0], output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default: <dir>.lns)")
	return cmd
}

func (a *app) watchCommand() *cobra.Command {
	var existing bool
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Convert lens archives as they appear in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.newConverter()
			if err != nil {
				return err
			}
			defer conv.Close()

			w, err := watch.New(args[0], conv, a.cfg.Watch.Debounce.Duration(), a.log.Named("watch"))
			if err != nil {
				return err
			}
			w.OnResult = func(r convert.Result) {
				if r.Success {
					fmt.Fprintf(a.stdout, "Converted: %s -> %s\n", r.File, r.OutputDir(conv.OutputDir))
				} else {
					fmt.Fprintf(a.stdout, "Failed: %s: %v\n", r.File, r.Err)
				}
			}
			return w.Run(cmd.Context(), existing)
		},
	}
	addConvertFlags(cmd)
	cmd.Flags().BoolVar(&existing, "existing", false, "Also convert archives already in the directory")
	return cmd
}

func (a *app) historyCommand() *cobra.Command {
	var runID string
	var limit int
	var clearAll bool
	var format string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded conversions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := history.Open(a.cfg.History)
			if err != nil {
				return err
			}
			if backend == nil {
				return fmt.Errorf("history is disabled; set [history] type in the config")
			}
			defer backend.Close()

			if clearAll {
				if err := backend.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, "History cleared")
				return nil
			}

			records, err := backend.List(history.Query{RunID: runID, Limit: limit})
			if err != nil {
				return err
			}
			if format != "" {
				if records == nil {
					records = []*history.Record{}
				}
				return a.printStructured(records, format)
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tFILE\tNAME\tSTATUS\tRUN")
			for _, r := range records {
				status := "ok"
				if !r.Success {
					status = "failed: " + r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.ConvertedAt.Local().Format("2006-01-02 15:04:05"), r.File, r.Name, status, shortID(r.RunID))
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&runID, "run", "", "Only show one run")
	f.IntVar(&limit, "limit", 20, "Maximum records (0 = all)")
	f.BoolVar(&clearAll, "clear", false, "Delete all records")
	f.StringVar(&format, "format", "", "Output json or yaml instead of a table")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (a *app) mcpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve convert_lens, batch_convert and inspect_lens over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.newConverter()
			if err != nil {
				return err
			}
			defer conv.Close()

			s := mcp.NewServer(conv, a.cfg.Batch.ReportFormat, Version, a.log.Named("mcp"))
			return s.Serve(cmd.Context(), os.Stdin, a.stdout)
		},
	}
	addConvertFlags(cmd)
	return cmd
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.printVersion()
			return nil
		},
	}
}
