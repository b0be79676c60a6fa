package tablecraftctl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	BaseURL  string
	APIKey   string
	TenantID string
	Timeout  time.Duration
	Format   string

	httpClient *http.Client
	client     *client
}

func newRootCommand(defaults Options) *cobra.Command {
	opts := &rootOptions{httpClient: defaults.HTTPClient}

	cmd := &cobra.Command{
		Use:           "tablecraftctl",
		Short:         "Command line client for the tablecraft API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			httpClient := opts.httpClient
			if httpClient == nil {
				httpClient = &http.Client{Timeout: opts.Timeout}
			}
			opts.client = &client{
				baseURL:  opts.BaseURL,
				apiKey:   opts.APIKey,
				tenantID: opts.TenantID,
				http:     httpClient,
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.BaseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "tablecraft API base URL")
	flags.StringVar(&opts.APIKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.StringVar(&opts.TenantID, "tenant-id", defaults.TenantID, "tenant ID header (used when auth is disabled)")
	flags.DurationVar(&opts.Timeout, "timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")
	flags.StringVar(&opts.Format, "format", "json", "output format (json|yaml)")

	cmd.AddCommand(
		simpleCommand(opts, "health", "Check API liveness", http.MethodGet, "/v1/health"),
		simpleCommand(opts, "ready", "Check API readiness", http.MethodGet, "/v1/ready"),
		newDatabasesCommand(opts),
		newTablesCommand(opts),
		newRowsCommand(opts),
		newQueryCommand(opts),
		newTranslateCommand(opts),
		newHistoryCommand(opts),
		newSnapshotsCommand(opts),
	)
	return cmd
}

// send performs one API call and renders its response.
func (o *rootOptions) send(cmd *cobra.Command, method, path string, body any) error {
	response, err := o.client.call(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), o.Format, response)
}

func simpleCommand(opts *rootOptions, use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.send(cmd, method, path, nil)
		},
	}
}

func databasePath(name string, parts ...string) string {
	path := "/v1/databases/" + url.PathEscape(name)
	for _, part := range parts {
		path += "/" + url.PathEscape(part)
	}
	return path
}

func withQuery(path string, values url.Values) string {
	if encoded := values.Encode(); encoded != "" {
		return path + "?" + encoded
	}
	return path
}

func newDatabasesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "databases", Short: "Manage databases"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List databases",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.send(cmd, http.MethodGet, "/v1/databases", nil)
			},
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a database",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.send(cmd, http.MethodPost, "/v1/databases", map[string]any{"name": args[0]})
			},
		},
		&cobra.Command{
			Use:   "drop <name>",
			Short: "Drop a database with its tables, history and snapshots",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.send(cmd, http.MethodDelete, databasePath(args[0]), nil)
			},
		},
	)
	return cmd
}

// parseColumn reads name:TYPE[:pk][:notnull][:unique].
func parseColumn(raw string) (map[string]any, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("column %q must look like name:TYPE[:pk][:notnull][:unique]", raw)
	}
	column := map[string]any{"name": parts[0], "type": parts[1]}
	for _, flag := range parts[2:] {
		switch strings.ToLower(flag) {
		case "pk":
			column["primary_key"] = true
		case "notnull":
			column["not_null"] = true
		case "unique":
			column["unique"] = true
		default:
			return nil, fmt.Errorf("column %q has unknown modifier %q", raw, flag)
		}
	}
	return column, nil
}

func newTablesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "tables", Short: "Manage tables"}

	var columns []string
	create := &cobra.Command{
		Use:   "create <database> <table>",
		Short: "Create a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := make([]map[string]any, 0, len(columns))
			for _, raw := range columns {
				spec, err := parseColumn(raw)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}
			return opts.send(cmd, http.MethodPost, databasePath(args[0], "tables"), map[string]any{
				"name":    args[1],
				"columns": specs,
			})
		},
	}
	create.Flags().StringArrayVar(&columns, "column", nil, "column as name:TYPE[:pk][:notnull][:unique], repeatable")
	_ = create.MarkFlagRequired("column")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <database>",
			Short: "List tables",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.send(cmd, http.MethodGet, databasePath(args[0], "tables"), nil)
			},
		},
		create,
		&cobra.Command{
			Use:   "describe <database> <table>",
			Short: "Show the columns of a table",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.send(cmd, http.MethodGet, databasePath(args[0], "tables", args[1]), nil)
			},
		},
		&cobra.Command{
			Use:   "drop <database> <table>",
			Short: "Drop a table",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.send(cmd, http.MethodDelete, databasePath(args[0], "tables", args[1]), nil)
			},
		},
	)
	return cmd
}

func newRowsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "rows", Short: "Read and write table rows"}

	var (
		limit   int
		offset  int
		orderBy string
		desc    bool
		where   []string
	)
	list := &cobra.Command{
		Use:   "list <database> <table>",
		Short: "Page through rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := url.Values{}
			if limit > 0 {
				values.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				values.Set("offset", strconv.Itoa(offset))
			}
			if orderBy != "" {
				values.Set("order_by", orderBy)
			}
			if desc {
				values.Set("desc", "true")
			}
			for _, raw := range where {
				column, value, found := strings.Cut(raw, "=")
				if !found || column == "" {
					return fmt.Errorf("filter %q must look like column=value", raw)
				}
				values.Set("where."+column, value)
			}
			return opts.send(cmd, http.MethodGet, withQuery(databasePath(args[0], "tables", args[1], "rows"), values), nil)
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "maximum rows to return")
	list.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	list.Flags().StringVar(&orderBy, "order-by", "", "column to sort by")
	list.Flags().BoolVar(&desc, "desc", false, "sort descending")
	list.Flags().StringArrayVar(&where, "where", nil, "equality filter column=value, repeatable")

	var rawValues string
	insert := &cobra.Command{
		Use:   "insert <database> <table>",
		Short: "Insert one row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var values map[string]any
			if err := json.Unmarshal([]byte(rawValues), &values); err != nil {
				return fmt.Errorf("invalid --values JSON: %w", err)
			}
			return opts.send(cmd, http.MethodPost, databasePath(args[0], "tables", args[1], "rows"), map[string]any{"values": values})
		},
	}
	insert.Flags().StringVar(&rawValues, "values", "{}", "row values as a JSON object")

	cmd.AddCommand(list, insert)
	return cmd
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var rowLimit int
	cmd := &cobra.Command{
		Use:   "query <database> <sql>",
		Short: "Run a SQL statement",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"sql": strings.Join(args[1:], " ")}
			if rowLimit > 0 {
				body["row_limit"] = rowLimit
			}
			return opts.send(cmd, http.MethodPost, databasePath(args[0], "query"), body)
		},
	}
	cmd.Flags().IntVar(&rowLimit, "row-limit", 0, "maximum rows to return")
	return cmd
}

func newTranslateCommand(opts *rootOptions) *cobra.Command {
	var (
		table   string
		execute bool
	)
	cmd := &cobra.Command{
		Use:   "translate <database> <prompt>",
		Short: "Translate a phrase into SQL",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"prompt": strings.Join(args[1:], " ")}
			if table != "" {
				body["table"] = table
			}
			if execute {
				body["execute"] = true
			}
			return opts.send(cmd, http.MethodPost, databasePath(args[0], "translate"), body)
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "table to translate against")
	cmd.Flags().BoolVar(&execute, "execute", false, "run the translated statement")
	return cmd
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		source string
	)
	cmd := &cobra.Command{
		Use:   "history <database>",
		Short: "Show recent statements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := url.Values{}
			if limit > 0 {
				values.Set("limit", strconv.Itoa(limit))
			}
			if source != "" {
				values.Set("source", source)
			}
			return opts.send(cmd, http.MethodGet, withQuery(databasePath(args[0], "history"), values), nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to return")
	cmd.Flags().StringVar(&source, "source", "", "only entries from sql, translate or snapshot")
	return cmd
}

func newSnapshotsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "snapshots", Short: "Export and query table snapshots"}

	var rowLimit int
	queryCmd := &cobra.Command{
		Use:   "query <database> <table> <snapshot-id> <sql>",
		Short: "Run a read-only statement against a snapshot",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[2], 10, 64); err != nil {
				return fmt.Errorf("snapshot id %q must be an integer", args[2])
			}
			body := map[string]any{"sql": strings.Join(args[3:], " ")}
			if rowLimit > 0 {
				body["row_limit"] = rowLimit
			}
			return opts.send(cmd, http.MethodPost, databasePath(args[0], "tables", args[1], "snapshots", args[2], "query"), body)
		},
	}
	queryCmd.Flags().IntVar(&rowLimit, "row-limit", 0, "maximum rows to return")

	var keep int
	pruneCmd := &cobra.Command{
		Use:   "prune <database> <table>",
		Short: "Delete all but the newest snapshots of a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if keep > 0 {
				body["keep"] = keep
			}
			return opts.send(cmd, http.MethodPost, databasePath(args[0], "tables", args[1], "snapshots", "prune"), body)
		},
	}
	pruneCmd.Flags().IntVar(&keep, "keep", 0, "snapshots to keep (server default when unset)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <database> <table>",
			Short: "List snapshots of a table",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.send(cmd, http.MethodGet, databasePath(args[0], "tables", args[1], "snapshots"), nil)
			},
		},
		&cobra.Command{
			Use:   "create <database> <table>",
			Short: "Export the current rows of a table",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.send(cmd, http.MethodPost, databasePath(args[0], "tables", args[1], "snapshots"), nil)
			},
		},
		&cobra.Command{
			Use:   "verify <database> <table>",
			Short: "Check that every snapshot file is present with its recorded size",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.send(cmd, http.MethodGet, databasePath(args[0], "tables", args[1], "snapshots", "integrity"), nil)
			},
		},
		queryCmd,
		pruneCmd,
	)
	return cmd
}
