package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	ingestion "github.com/markdave123-py/studybuddy/internal/core/ingestion_engine"
	"github.com/markdave123-py/studybuddy/internal/models"
	"github.com/markdave123-py/studybuddy/internal/services"
)

// Backend is what lecturectl drives; the app's services satisfy it.
type Backend interface {
	Sync(ctx context.Context, courseID string) (*ingestion.IngestionReport, error)
	Status(ctx context.Context) (*models.SyncStatus, error)
	GetRecommendations(ctx context.Context, subjectID string) ([]models.RecommendationCacheEntry, error)
	Refresh(ctx context.Context, subjectID string) ([]models.RecommendationCacheEntry, error)
	RefreshAll(ctx context.Context) (services.RefreshSummary, error)
}

// NewRootCmd builds the lecturectl command tree. backend is resolved lazily so
// that --help works without a database.
func NewRootCmd(backend func(ctx context.Context) (Backend, error)) *cobra.Command {
	var asJSON bool

	root := &cobra.Command{
		Use:           "lecturectl",
		Short:         "Operate the lecture ingestion and recommendation pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON")

	withBackend := func(run func(cmd *cobra.Command, b Backend, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			b, err := backend(cmd.Context())
			if err != nil {
				return err
			}
			return run(cmd, b, args)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "sync <courseId>",
		Short: "Ingest every new lecture of a course",
		Args:  cobra.ExactArgs(1),
		RunE: withBackend(func(cmd *cobra.Command, b Backend, args []string) error {
			report, err := b.Sync(cmd.Context(), args[0])
			if report != nil {
				if asJSON {
					_ = printJSON(cmd.OutOrStdout(), report)
				} else {
					printReport(cmd.OutOrStdout(), report)
				}
			}
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show ingestion bookkeeping",
		Args:  cobra.NoArgs,
		RunE: withBackend(func(cmd *cobra.Command, b Backend, _ []string) error {
			status, err := b.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), status)
			}
			cmd.Printf("Processed documents: %d\n", status.TotalProcessed)
			for _, d := range status.RecentDocuments {
				cmd.Printf("  %s  %-40s  %s\n", d.ProcessedAt.Format("2006-01-02 15:04"), d.Title, d.SubjectID)
			}
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "recommendations <subjectId>",
		Short: "Print the cached video recommendations of a subject",
		Args:  cobra.ExactArgs(1),
		RunE: withBackend(func(cmd *cobra.Command, b Backend, args []string) error {
			entries, err := b.GetRecommendations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printEntries(cmd, entries, asJSON)
		}),
	})

	var all bool
	refresh := &cobra.Command{
		Use:   "refresh [subjectId]",
		Short: "Look up recommendations for uncached topics",
		Args: func(_ *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give exactly one of <subjectId> or --all")
			}
			return nil
		},
		RunE: withBackend(func(cmd *cobra.Command, b Backend, args []string) error {
			if all {
				summary, err := b.RefreshAll(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), summary)
				}
				cmd.Printf("Refreshed %d subjects, %d failed\n", summary.Subjects, len(summary.Failed))
				for _, s := range summary.Failed {
					cmd.Printf("  failed: %s\n", s)
				}
				return nil
			}
			entries, err := b.Refresh(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printEntries(cmd, entries, asJSON)
		}),
	}
	refresh.Flags().BoolVar(&all, "all", false, "refresh every subject with processed documents")
	root.AddCommand(refresh)

	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, r *ingestion.IngestionReport) {
	fmt.Fprintf(w, "Run %s  course=%s subject=%s\n", r.RunID, r.CourseID, r.SubjectID)
	fmt.Fprintf(w, "total=%d withAsset=%d alreadyProcessed=%d new=%d failed=%d\n",
		r.Total, r.WithAsset, r.AlreadyProcessed, r.NewlyProcessed, r.Failed)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, res := range r.Results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", res.State, res.Title, res.VectorCount, res.Error)
	}
	_ = tw.Flush()
}

func printEntries(cmd *cobra.Command, entries []models.RecommendationCacheEntry, asJSON bool) error {
	if asJSON {
		if entries == nil {
			entries = []models.RecommendationCacheEntry{}
		}
		return printJSON(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		cmd.Println("No recommendations.")
		return nil
	}
	for _, e := range entries {
		cmd.Printf("%s (%d)\n", e.TopicTitle, len(e.Recommendations))
		for _, v := range e.Recommendations {
			cmd.Printf("  %.2f  %s  %s\n", v.SimilarityScore, v.Title, v.URL)
		}
	}
	return nil
}
