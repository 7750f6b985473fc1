package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/rbacdash/internal/app"
	"github.com/foxzi/rbacdash/internal/audit"
	"github.com/foxzi/rbacdash/internal/collection"
	"github.com/foxzi/rbacdash/internal/export"
	"github.com/foxzi/rbacdash/internal/rbac"
	"github.com/foxzi/rbacdash/internal/store"
)

var (
	listSearch  string
	listSort    string
	listDir     string
	listFilters []string

	exportOutput string

	activityLimit int
)

var listCmd = &cobra.Command{
	Use:       "list <users|roles|permissions>",
	Short:     "List records of a collection",
	Args:      entityArg,
	ValidArgs: rbac.Entities,
	RunE:      runList,
}

var exportCmd = &cobra.Command{
	Use:       "export <users|roles|permissions>",
	Short:     "Export a collection as CSV",
	Args:      entityArg,
	ValidArgs: rbac.Entities,
	RunE:      runExport,
}

var activityCmd = &cobra.Command{
	Use:       "activity <users|roles|permissions>",
	Short:     "Show recent activity of a collection",
	Args:      entityArg,
	ValidArgs: rbac.Entities,
	RunE:      runActivity,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill an empty users collection from the user directory",
	RunE:  runSeed,
}

func init() {
	for _, cmd := range []*cobra.Command{listCmd, exportCmd} {
		cmd.Flags().StringVar(&listSearch, "search", "", "case-insensitive search term")
		cmd.Flags().StringVar(&listSort, "sort", "", "sort key")
		cmd.Flags().StringVar(&listDir, "dir", "asc", "sort direction (asc, desc)")
		cmd.Flags().StringArrayVar(&listFilters, "filter", nil, "filter as name=value, e.g. role=Admin (repeatable)")
	}
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file, - for stdout (default: generated file name)")
	activityCmd.Flags().IntVar(&activityLimit, "limit", 5, "number of entries to show")

	rootCmd.AddCommand(listCmd, exportCmd, activityCmd, seedCmd)
}

func entityArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	if !slices.Contains(rbac.Entities, args[0]) {
		return fmt.Errorf("unknown collection %q (must be one of %s)", args[0], strings.Join(rbac.Entities, ", "))
	}
	return nil
}

// openService opens the configured store and the collections on it
func openService(ctx context.Context) (*rbac.Service, store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	st, err := app.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	svc, err := rbac.Open(ctx, rbac.Options{
		Store:  st,
		Logger: app.NewLogger(cfg.Logging, os.Stderr),
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return svc, st, nil
}

// buildQuery turns the list flags into a projection query
func buildQuery(search, sortKey, dir string, filters []string) (collection.Query, error) {
	q := collection.Query{
		Search: search,
		Sort:   collection.Sort{Key: sortKey, Direction: collection.ParseDirection(dir)},
	}
	for _, f := range filters {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return q, fmt.Errorf("invalid filter %q (want name=value)", f)
		}
		if q.Filters == nil {
			q.Filters = make(map[string]string)
		}
		q.Filters[name] = value
	}
	return q, nil
}

func runList(cmd *cobra.Command, args []string) error {
	q, err := buildQuery(listSearch, listSort, listDir, listFilters)
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, st, err := openService(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case rbac.Users:
		return listTable(os.Stdout, svc.Users, rbac.UserColumns, q)
	case rbac.Roles:
		return listTable(os.Stdout, svc.Roles, rbac.RoleColumns, q)
	default:
		return listTable(os.Stdout, svc.Permissions, rbac.PermissionColumns, q)
	}
}

// listTable prints the projection of m selected by q with the export columns
func listTable[T any](out io.Writer, m *collection.Manager[T], columns []export.Column[T], q collection.Query) error {
	rows, err := m.View(q)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(out, "No %s found\n", m.Schema().Plural)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = strings.ToUpper(c.Header)
	}
	fmt.Fprintln(w, "ID\t"+strings.Join(headers, "\t"))

	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			cells[i] = c.Value(row)
		}
		fmt.Fprintf(w, "%d\t%s\n", m.Schema().ID(row), strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d of %d %s\n", len(rows), m.Len(), m.Schema().Plural)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	q, err := buildQuery(listSearch, listSort, listDir, listFilters)
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, st, err := openService(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var buf bytes.Buffer
	name, err := svc.Export(ctx, args[0], q, &buf)
	if err != nil {
		return err
	}

	if exportOutput == "-" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}

	path := exportOutput
	if path == "" {
		path = name
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Exported %s to %s\n", args[0], path)
	return nil
}

func runActivity(cmd *cobra.Command, args []string) error {
	if activityLimit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	ctx := context.Background()
	svc, st, err := openService(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := svc.Activity(args[0], activityLimit)
	if err != nil {
		return err
	}
	return printActivity(os.Stdout, entries)
}

func printActivity(out io.Writer, entries audit.Log) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No activity recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action)
	}
	return w.Flush()
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Directory.IsEnabled() {
		return fmt.Errorf("user directory is disabled in the configuration")
	}

	ctx := context.Background()
	svc, st, err := openService(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	boot := app.NewBootstrapper(cfg.Directory, svc, app.NewLogger(cfg.Logging, os.Stderr))
	status, err := boot.Run(ctx)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	if status.Loaded == 0 {
		fmt.Printf("Users already present (%d), nothing to do\n", svc.Users.Len())
		return nil
	}
	fmt.Printf("Loaded %d users, rejected %d upstream records\n", status.Loaded, status.Rejected)
	return nil
}
