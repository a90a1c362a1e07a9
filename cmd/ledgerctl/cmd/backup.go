package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ukydev/vehicle-ledger/internal/backup"
)

func newExportCmd(e *env) *cobra.Command {
	var (
		format     string
		output     string
		collection string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the whole ledger",
		Long: `Export every collection, the profile and settings.

Formats:
- json: the bundle accepted by import
- csv:  one section per collection, or a single collection with --collection
- xlsx: one sheet per collection

Example:
  ledgerctl export --format csv --collection fuel -o fuel.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "json", "csv", "xlsx":
			default:
				return fmt.Errorf("unknown format %q (json, csv or xlsx)", format)
			}
			if collection != "" {
				if _, err := e.store.Collection(collection); err != nil {
					return err
				}
			}
			bundle, err := e.ledger.ExportAll(cmd.Context())
			if err != nil {
				return err
			}

			if output == "" {
				output = backup.FileName(time.Now(), format)
			}
			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			switch format {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				err = enc.Encode(bundle)
			case "csv":
				if collection != "" {
					err = backup.WriteCollectionCSV(w, bundle, collection)
				} else {
					err = backup.WriteCSV(w, bundle)
				}
			case "xlsx":
				err = backup.WriteXLSX(w, bundle)
			}
			if err != nil {
				return fmt.Errorf("writing %s export: %w", format, err)
			}

			log.WithFields(log.Fields{
				"format":    format,
				"output":    output,
				"export_id": bundle.Meta.ExportID,
			}).Info("Ledger exported")
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "json, csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file ("-" for stdout, default vehicle-ledger-DATE.EXT)`)
	cmd.Flags().StringVar(&collection, "collection", "", "limit a csv export to one collection")
	return cmd
}

func newImportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Restore a JSON export",
		Long: `Restore a JSON bundle. Each collection present in the file replaces the
stored one; collections missing from the file are left untouched. Use "-"
to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			report, err := e.ledger.ImportAll(cmd.Context(), raw)
			if report == nil {
				return err
			}

			out := cmd.OutOrStdout()
			if e.asJSON {
				if err := json.NewEncoder(out).Encode(report); err != nil {
					return err
				}
			} else {
				for _, name := range sortedKeys(report.Succeeded) {
					fmt.Fprintf(out, "restored  %-12s %d\n", name, report.Succeeded[name])
				}
				for _, name := range report.FailedCollections() {
					fmt.Fprintf(out, "FAILED    %-12s %v\n", name, report.Failed[name])
				}
				for _, name := range report.Skipped {
					fmt.Fprintf(out, "skipped   %s\n", name)
				}
				if len(report.DanglingLinks) > 0 {
					fmt.Fprintf(out, "expenses with a missing maintenance link: %v\n", report.DanglingLinks)
				}
			}

			if err != nil {
				return fmt.Errorf("import incomplete: %w", err)
			}
			if !report.OK() {
				return fmt.Errorf("%d collection(s) failed to import", len(report.Failed))
			}
			return nil
		},
	}
}
