// Command fncall exercises the function-calling protocol from the shell: it extracts calls
// from model output, encodes prompts, composes followups and dispatches calls against
// functions declared in a YAML file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skosovsky/fncall"
	"github.com/skosovsky/fncall/remote/wsremote"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "fncall",
		Short:        "Function-calling protocol tools",
		Long:         "fncall encodes function schemas into prompts, extracts function calls from model output and dispatches them.",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "log diagnostics to stderr")
	root.PersistentFlags().StringP("functions", "f", "", "YAML file declaring the available functions")

	extractCmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Extract function calls from model output (file or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExtract,
	}
	extractCmd.Flags().Bool("repair", false, "repair malformed JSON blocks before giving up")
	extractCmd.Flags().Bool("legacy", false, "accept single-call shapes")
	root.AddCommand(extractCmd)

	encodeCmd := &cobra.Command{
		Use:   "encode [file]",
		Short: "Append function schemas and calling instructions to a prompt (file or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEncode,
	}
	encodeCmd.Flags().Bool("legacy", false, "advertise single-call shapes too")
	encodeCmd.Flags().Bool("compact", false, "render the schema list without indentation")
	root.AddCommand(encodeCmd)

	followupCmd := &cobra.Command{
		Use:   "followup",
		Short: "Compose the next prompt from the question, the previous response and dispatched calls",
		Args:  cobra.NoArgs,
		RunE:  runFollowup,
	}
	followupCmd.Flags().String("question", "", "original question")
	followupCmd.Flags().String("response", "", "previous model response")
	followupCmd.Flags().String("results", "", "JSON file with dispatched calls (output of dispatch)")
	followupCmd.Flags().String("format", "", `response format ("json" or free text)`)
	_ = followupCmd.MarkFlagRequired("question")
	root.AddCommand(followupCmd)

	dispatchCmd := &cobra.Command{
		Use:   "dispatch [file]",
		Short: "Extract function calls from model output and run them",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDispatch,
	}
	dispatchCmd.Flags().String("remote", "", "WebSocket URL of a tool server for remote functions")
	dispatchCmd.Flags().Duration("timeout", 30*time.Second, "per-call timeout")
	dispatchCmd.Flags().Int("concurrency", 1, "maximum calls running at once")
	dispatchCmd.Flags().Bool("approve", false, "approve functions marked dangerous")
	dispatchCmd.Flags().Bool("summary", false, "print a one-line summary per call instead of JSON")
	dispatchCmd.Flags().Bool("repair", false, "repair malformed JSON blocks before giving up")
	root.AddCommand(dispatchCmd)

	return root
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func functionsFlag(cmd *cobra.Command) ([]fncall.Function, error) {
	path, _ := cmd.Flags().GetString("functions")
	return loadFunctions(path)
}

func newExtractor(cmd *cobra.Command, logger *slog.Logger) *fncall.Extractor {
	opts := []fncall.ExtractorOption{fncall.WithExtractorLogger(logger)}
	if repair, _ := cmd.Flags().GetBool("repair"); repair {
		opts = append(opts, fncall.WithRepair())
	}
	if legacy, err := cmd.Flags().GetBool("legacy"); err == nil && legacy {
		opts = append(opts, fncall.WithLegacyShapes())
	}
	return fncall.NewExtractor(opts...)
}

func runExtract(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	calls := newExtractor(cmd, newLogger(cmd)).ExtractText(text)
	if calls == nil {
		calls = fncall.CallBatch{}
	}
	return writeJSON(cmd.OutOrStdout(), calls)
}

func runEncode(cmd *cobra.Command, args []string) error {
	prompt, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	fns, err := functionsFlag(cmd)
	if err != nil {
		return err
	}
	var opts []fncall.EncoderOption
	if legacy, _ := cmd.Flags().GetBool("legacy"); legacy {
		opts = append(opts, fncall.WithLegacyFormats())
	}
	if compact, _ := cmd.Flags().GetBool("compact"); compact {
		opts = append(opts, fncall.WithSchemaIndent(""))
	}
	fmt.Fprintln(cmd.OutOrStdout(), fncall.NewEncoder(opts...).Encode(strings.TrimRight(prompt, "\n"), fns))
	return nil
}

func runFollowup(cmd *cobra.Command, _ []string) error {
	question, _ := cmd.Flags().GetString("question")
	response, _ := cmd.Flags().GetString("response")
	resultsPath, _ := cmd.Flags().GetString("results")
	format, _ := cmd.Flags().GetString("format")

	var calls fncall.CallBatch
	if resultsPath != "" {
		data, err := os.ReadFile(resultsPath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &calls); err != nil {
			return fmt.Errorf("parse results: %w", err)
		}
	}
	out := fncall.EncodeFollowup(question, response, fncall.SummarizeResults(calls), fncall.ResponseFormat(format))
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func runDispatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cmd)
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	fns, err := functionsFlag(cmd)
	if err != nil {
		return err
	}
	reg, err := fncall.NewRegistry(fns, fncall.WithMiddleware(fncall.WithLogging(logger)))
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	approve, _ := cmd.Flags().GetBool("approve")
	opts := []fncall.DispatcherOption{
		fncall.WithCallTimeout(timeout),
		fncall.WithMaxConcurrency(concurrency),
		fncall.WithDispatcherLogger(logger),
		fncall.WithEventSink(logSink(logger)),
		fncall.WithApproval(func(context.Context, fncall.FunctionCall) bool { return approve }),
	}
	if url, _ := cmd.Flags().GetString("remote"); url != "" {
		client, err := wsremote.Dial(ctx, url, wsremote.WithLogger(logger))
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		opts = append(opts, fncall.WithRemoteTool(client))
	}

	calls := newExtractor(cmd, logger).ExtractText(text)
	out := fncall.NewDispatcher(opts...).Dispatch(ctx, calls, reg)
	if summary, _ := cmd.Flags().GetBool("summary"); summary {
		fmt.Fprintln(cmd.OutOrStdout(), fncall.SummarizeResults(out))
		return nil
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func logSink(logger *slog.Logger) fncall.EventSink {
	return fncall.EventSinkFunc(func(ctx context.Context, ev fncall.Event) {
		switch ev.Kind {
		case fncall.EventError:
			name := ""
			if ev.Call != nil {
				name = ev.Call.Name
			}
			logger.WarnContext(ctx, "function call failed", "function", name, "message", ev.Message)
		default:
			logger.DebugContext(ctx, string(ev.Kind), "calls", len(ev.Calls))
		}
	})
}
