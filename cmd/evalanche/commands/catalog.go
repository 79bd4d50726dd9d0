package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teranos/evalanche/display"
	"github.com/teranos/evalanche/session"
	"github.com/teranos/evalanche/sym"
)

// CatalogCmd lists what can be selected
var CatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: sym.Catalog + " List schemas, tables, columns and routines",
	Long: sym.Catalog + ` catalog — List what a selection can read

Tables are named catalog.schema.table. The catalog is database.catalog
(default EVAL); schemas are "main" plus every [database.attach] entry.

Examples:
  evalanche catalog schemas
  evalanche catalog tables main
  evalanche catalog columns EVAL.main.questions
  evalanche catalog routines`,
}

var catalogSchemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List schemas",
	Args:  cobra.NoArgs,
	RunE:  runCatalogSchemas,
}

var catalogTablesCmd = &cobra.Command{
	Use:   "tables <schema>",
	Short: "List the tables and views of a schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogTables,
}

var catalogColumnsCmd = &cobra.Command{
	Use:   "columns <catalog.schema.table>",
	Short: "List the columns of a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogColumns,
}

var catalogRoutinesCmd = &cobra.Command{
	Use:   "routines",
	Short: "List the routines a pipeline can invoke",
	Args:  cobra.NoArgs,
	RunE:  runCatalogRoutines,
}

func init() {
	CatalogCmd.AddCommand(catalogSchemasCmd)
	CatalogCmd.AddCommand(catalogTablesCmd)
	CatalogCmd.AddCommand(catalogColumnsCmd)
	CatalogCmd.AddCommand(catalogRoutinesCmd)
}

func runCatalogSchemas(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	schemas, err := ws.session.Schemas(cmd.Context())
	if err != nil {
		return err
	}
	return outputList(cmd, "schema", schemas)
}

func runCatalogTables(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	tables, err := ws.session.Tables(cmd.Context(), ws.session.Catalog(), args[0])
	if err != nil {
		return err
	}
	return outputList(cmd, "table", tables)
}

func runCatalogColumns(cmd *cobra.Command, args []string) error {
	ref, err := session.ParseTableRef(args[0])
	if err != nil {
		return err
	}

	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	columns, err := ws.session.Columns(cmd.Context(), ref)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(columns)
	}

	rows := make([][]string, len(columns))
	for i, c := range columns {
		rows[i] = []string{strconv.Itoa(i + 1), c.Name, c.Type}
	}
	out, err := display.Table([]string{"#", "column", "type"}, rows)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func runCatalogRoutines(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	list := ws.routines.List()
	if display.ShouldOutputJSON(cmd) {
		type routineInfo struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		infos := make([]routineInfo, len(list))
		for i, r := range list {
			infos[i] = routineInfo{Name: r.Name, Description: r.Description}
		}
		return display.OutputJSON(infos)
	}

	rows := make([][]string, len(list))
	for i, r := range list {
		rows[i] = []string{sym.Routine + " " + r.Name, r.Description}
	}
	out, err := display.Table([]string{"routine", "description"}, rows)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// outputList prints values as JSON or as a one-column table
func outputList(cmd *cobra.Command, header string, values []string) error {
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(values)
	}
	out, err := display.ListTable(header, values)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
