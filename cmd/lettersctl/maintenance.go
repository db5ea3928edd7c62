package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/di/providers"
	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/search"
	"github.com/armyletters/letters-server/internal/service"
	"github.com/armyletters/letters-server/internal/store"
)

// withStore opens the local store for one maintenance command.
func (a *app) withStore(fn func(cfg *config.Config, st store.LetterStore) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	st, err := providers.OpenStore(cfg, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			a.log.Warn("failed to close store", "error", err)
		}
	}()
	return fn(cfg, st)
}

// withSearch opens the store and the search index together, with new
// writes indexed as they happen.
func (a *app) withSearch(fn func(st store.LetterStore, svc *service.SearchService) error) error {
	return a.withStore(func(cfg *config.Config, st store.LetterStore) error {
		index, err := search.NewSearchIndex(search.Options{
			DataPath: cfg.SearchIndexPath(),
			Logger:   a.log.Component("search").Logger,
		})
		if err != nil {
			return err
		}
		defer index.Close()

		svc := service.NewSearchService(index, st, a.log.Component("search").Logger)
		st.SetSearchIndexer(svc)
		return fn(st, svc)
	})
}

func newSeedCmd(a *app) *cobra.Command {
	var noIndex bool
	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Import letters from a YAML fixture into the local store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadFixture(args[0])
			if err != nil {
				return err
			}
			letters, err := f.letters(time.Now())
			if err != nil {
				return err
			}

			importInto := func(st store.LetterStore) (int, error) {
				return st.ImportLetters(cmd.Context(), letters)
			}
			out := cmd.OutOrStdout()
			if noIndex {
				return a.withStore(func(_ *config.Config, st store.LetterStore) error {
					n, err := importInto(st)
					fmt.Fprintf(out, "Imported %d letters\n", n)
					return err
				})
			}
			return a.withSearch(func(st store.LetterStore, svc *service.SearchService) error {
				n, err := importInto(st)
				fmt.Fprintf(out, "Imported %d letters\n", n)
				if err != nil {
					return err
				}
				return svc.EnsureIndexed(cmd.Context())
			})
		},
	}
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "skip updating the search index")
	return cmd
}

func newBackfillCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Repair like counters and colours in the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(_ *config.Config, st store.LetterStore) error {
				res, err := st.Backfill(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d letters, repaired %d\n", res.Scanned, res.Repaired)
				return nil
			})
		},
	}
}

func newReindexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSearch(func(_ store.LetterStore, svc *service.SearchService) error {
				n, err := svc.Reindex(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d letters\n", n)
				return nil
			})
		},
	}
}

func newInspectCmd(a *app) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarise the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(cfg *config.Config, st store.LetterStore) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Store: %s (%s)\n", cfg.Store.Path, cfg.Store.Driver)
				return inspect(cmd.Context(), cmd.OutOrStdout(), st, top)
			})
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "number of most liked letters to list")
	return cmd
}

func inspect(ctx context.Context, out io.Writer, st store.LetterStore, top int) error {
	letters, err := st.ListAllLetters(ctx)
	if err != nil {
		return err
	}

	perMember := make(map[domain.Member]int, len(domain.Members))
	likes, drifted := 0, 0
	for _, l := range letters {
		perMember[l.Member]++
		likes += l.Likes
		if l.Likes != len(l.LikedBy) {
			drifted++
		}
	}

	fmt.Fprintf(out, "Letters: %d  Likes: %d\n", len(letters), likes)
	if drifted > 0 {
		fmt.Fprintf(out, "Drifted counters: %d (run backfill)\n", drifted)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MEMBER\tLETTERS")
	for _, m := range domain.Members {
		fmt.Fprintf(tw, "%s\t%d\n", m, perMember[m])
	}
	_ = tw.Flush()

	if top <= 0 || len(letters) == 0 {
		return nil
	}
	sorted := slices.Clone(letters)
	slices.SortFunc(sorted, func(x, y *domain.Letter) int {
		if c := cmp.Compare(y.Likes, x.Likes); c != 0 {
			return c
		}
		return domain.SortNewest.Compare(x, y)
	})
	fmt.Fprintln(out, "\nMost liked:")
	printLetters(out, sorted[:min(top, len(sorted))])
	return nil
}
