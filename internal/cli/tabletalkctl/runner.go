// Package tabletalkctl is the operator client for the tabletalk HTTP API.
package tabletalkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// httpError is returned for responses with a 4xx or 5xx status.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

type control struct {
	opts Options

	flagBaseURL string
	flagAPIKey  string
	flagTimeout time.Duration
}

// Run executes the command line in args and returns the process exit code:
// 0 on success, 1 for a failed request and 2 for a usage error.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	root := NewCommand(opts)
	root.SetArgs(args)
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(opts.Stderr, err)
	var herr *httpError
	var uerr *usageError
	switch {
	case errors.As(err, &herr):
		return 1
	case errors.As(err, &uerr), strings.HasPrefix(err.Error(), "unknown command"):
		return 2
	default:
		return 1
	}
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{msg: err.Error()}
		}
		return nil
	}
}

func NewCommand(opts Options) *cobra.Command {
	c := &control{opts: opts}

	app := &cobra.Command{
		Use:               "tabletalkctl",
		Short:             "Ask questions about tabletalk tables and manage them",
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return &usageError{msg: "a command is required"}
		},
	}
	app.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})
	app.PersistentFlags().StringVar(&c.flagBaseURL, "base-url", firstNonEmpty(opts.BaseURL, "http://localhost:3000"), "tabletalk API base URL")
	app.PersistentFlags().StringVar(&c.flagAPIKey, "api-key", opts.APIKey, "API key for authenticated requests")
	app.PersistentFlags().DurationVar(&c.flagTimeout, "timeout", durationOr(opts.Timeout, 60*time.Second), "HTTP timeout")

	app.AddCommand(
		c.getCommand("health", "Check that the API is up", "/health"),
		c.getCommand("ready", "Check that the API can reach the database", "/ready"),
		c.questionCommand("ask", "Ask a question and print the answer", "/dbQuery"),
		c.questionCommand("show", "Print the rows that answer a question", "/dbQuery/show"),
		c.questionCommand("plot", "Print the chart descriptor and rows for a plot request", "/dbQuery/plot"),
		c.provisionCommand(),
		c.tableCommand("drop", "Drop a table and its registry entry", "/metaData/drop"),
		c.tableCommand("restore", "Recreate a table from its archived dataset", "/metaData/restore"),
	)
	return app
}

func (c *control) getCommand(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.do(cmd, http.MethodGet, path, nil)
		},
	}
}

func (c *control) questionCommand(use, short, path string) *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   use + " --table <name> <question>",
		Short: short,
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(table) == "" {
				return &usageError{msg: "--table is required"}
			}
			return c.do(cmd, http.MethodPost, path, map[string]string{
				"tableName": table,
				"question":  strings.Join(args, " "),
			})
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "table to query")
	return cmd
}

func (c *control) provisionCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "provision --file <document.json>",
		Short: "Create a table from a {tableName, metaData, data} document",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return &usageError{msg: "--file is required (use - for stdin)"}
			}
			doc, err := c.readDocument(file)
			if err != nil {
				return err
			}
			return c.do(cmd, http.MethodPost, "/metaData", map[string]string{"metaData": doc})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "document file, or - for stdin")
	return cmd
}

func (c *control) tableCommand(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <table>",
		Short: short,
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd, http.MethodPost, path, map[string]string{"tableName": args[0]})
		},
	}
}

func (c *control) readDocument(file string) (string, error) {
	var raw []byte
	var err error
	if file == "-" {
		raw, err = io.ReadAll(c.opts.Stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if !json.Valid(raw) {
		return "", &usageError{msg: "document is not valid JSON"}
	}
	return string(bytes.TrimSpace(raw)), nil
}

func (c *control) do(cmd *cobra.Command, method, path string, payload any) error {
	client := c.opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.flagTimeout}
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), method, strings.TrimRight(c.flagBaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(c.flagAPIKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(responseBody))}
	}

	out := cmd.OutOrStdout()
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(out, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(out, string(responseBody))
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
