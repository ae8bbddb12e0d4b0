package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docsynth/internal/auth"
	"docsynth/internal/seed"
	"docsynth/internal/synthesis"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			log.Printf("migrate: %s schema is up to date", globalOpts.dbType)
			return nil
		},
	}
}

func synthesizeCmd() *cobra.Command {
	var req synthesis.Request

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Synthesize one foundational document and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			svc, err := a.newService(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Synthesize(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}

	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&req.DocumentType, "type", "", "document type")
	cmd.Flags().StringSliceVar(&req.SourceDocumentIDs, "doc", nil, "restrict to these source document ids (repeatable)")
	cmd.Flags().BoolVar(&req.Force, "force", false, "regenerate even when sources are unchanged")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

type refreshOutcome struct {
	DocumentType string            `json:"documentType"`
	Result       *synthesis.Result `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func refreshCmd() *cobra.Command {
	var (
		tenantID string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Synthesize every document type assigned to a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.store.GetTenant(ctx, tenantID); err != nil {
				return fmt.Errorf("load tenant %s: %w", tenantID, err)
			}
			types, err := a.store.AssignedDocumentTypes(ctx, tenantID)
			if err != nil {
				return err
			}
			svc, err := a.newService(ctx)
			if err != nil {
				return err
			}

			// types are independent, so each gets its own goroutine up to worker_count
			outcomes := make([]refreshOutcome, len(types))
			var g errgroup.Group
			g.SetLimit(a.cfg.BasicConfig.WorkerCount)
			for i, docType := range types {
				g.Go(func() error {
					outcomes[i].DocumentType = docType
					res, err := svc.Synthesize(ctx, synthesis.Request{TenantID: tenantID, DocumentType: docType, Force: force})
					if err != nil {
						outcomes[i].Error = err.Error()
						return nil
					}
					outcomes[i].Result = res
					return nil
				})
			}
			_ = g.Wait()

			failed := 0
			for _, o := range outcomes {
				if o.Error != "" {
					failed++
				}
			}
			if err := printJSON(outcomes); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d document types failed", failed, len(types))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate even when sources are unchanged")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail running jobs older than stale_job_minutes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			sweeper := synthesis.NewSweeper(a.store, a.jobCache, a.cfg.SweepInterval(), a.cfg.StaleJobAge())
			n, err := sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("swept %d stale job(s)\n", n)
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load tenants, schemas, transformers and documents from a YAML fixture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := seed.LoadFixtures(file)
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			summary, err := seed.Apply(cmd.Context(), a.store, fx)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}

	cmd.Flags().StringVar(&file, "file", "fixtures.yaml", "fixture file")
	return cmd
}

func importCmd() *cobra.Command {
	var tenantID, docType string

	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import local files as source documents assigned to a document type",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.store.GetTenant(ctx, tenantID); err != nil {
				return fmt.Errorf("load tenant %s: %w", tenantID, err)
			}
			importer, err := seed.NewImporter(ctx, a.store)
			if err != nil {
				return err
			}
			docs, err := importer.Import(ctx, tenantID, docType, args)
			if err != nil {
				return err
			}
			for _, d := range docs {
				fmt.Printf("%s\t%s\t%d bytes\n", d.ID, d.Title, len(d.Content))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&docType, "type", "", "document type to assign the files to")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Generate a random API token for basic_config.api_tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateToken()
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
