package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edubill-dev/edubill/internal/importer"
	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store/memory"
	"github.com/edubill-dev/edubill/internal/store/postgres"
)

func newImportChargesCommand(g *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import-charges",
		Short: "Load fee-run charge files from import/",
		Long: `Reads every CSV in <dir>/import/, stores charges not seen before and moves
each file to import/processed/. Charges already stored are left unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parser := importer.DefaultRegistry().Get(format)
			if parser == nil {
				return model.Invalid("format", fmt.Sprintf("unknown import format %q", format))
			}

			var processed []string
			err := withApp(cmd.Context(), g, func(a *app) error {
				files, err := importer.Scan(a.root)
				if err != nil {
					return err
				}
				if len(files) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No files to import.")
					return nil
				}

				stores := a.backend.Stores()
				lookup := importer.Lookup{Accounts: stores.Accounts, Courses: stores.Courses, Charges: stores.Charges}
				for _, f := range files {
					charges, err := importer.ParseFile(parser, f.Path)
					if err != nil {
						return err
					}
					res, err := importer.Check(cmd.Context(), lookup, charges)
					if err != nil {
						return fmt.Errorf("%s: %w", f.Name, err)
					}
					if err := storeCharges(cmd.Context(), a, res.New); err != nil {
						return fmt.Errorf("%s: %w", f.Name, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d new, %d already stored\n", f.Name, len(res.New), len(res.Duplicates))
					a.logger.Info("charges imported", "file", f.Name, "new", len(res.New), "duplicates", len(res.Duplicates))
					processed = append(processed, f.Name)
				}
				return nil
			})
			if err != nil {
				return err
			}

			root, err := workspaceRoot(g)
			if err != nil {
				return err
			}
			for _, name := range processed {
				if err := importer.MarkProcessed(root, name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "feerun", "import file format")
	return cmd
}

func storeCharges(ctx context.Context, a *app, charges []model.OutstandingCharge) error {
	if len(charges) == 0 {
		return nil
	}
	switch b := a.backend.(type) {
	case *memory.Store:
		for _, c := range charges {
			b.PutCharge(c)
		}
		return nil
	case *postgres.Store:
		_, err := b.Import(ctx, memory.Snapshot{Charges: charges})
		return err
	}
	return fmt.Errorf("backend %T cannot store imported charges", a.backend)
}
