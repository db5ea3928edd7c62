package main

import (
	"github.com/spf13/cobra"

	"github.com/armyletters/letters-server/internal/di/providers"
	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/feed"
	"github.com/armyletters/letters-server/internal/identity"
	"github.com/armyletters/letters-server/internal/profanity"
	"github.com/armyletters/letters-server/internal/tui"
)

type feedOptions struct {
	local        bool
	member       string
	sort         string
	pageSize     int
	requireTrack bool
}

func newFeedCmd(a *app) *cobra.Command {
	var opts feedOptions
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Open the interactive letter feed",
		Long: `Open the interactive letter feed. Letters update live; press n to write one,
l to like, / to search by name and f or s to change filter and sort.

With --local the feed reads the store under --data-path instead of a server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFeed(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.local, "local", false, "read the local store instead of the server")
	cmd.Flags().StringVar(&opts.member, "member", "", "start filtered to this member")
	cmd.Flags().StringVar(&opts.sort, "sort", string(domain.SortNewest), "newest, oldest or most-liked")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "letters per page (default: server page size)")
	cmd.Flags().BoolVar(&opts.requireTrack, "require-song", false, "require a song on new letters")
	return cmd
}

func (a *app) runFeed(cmd *cobra.Command, opts feedOptions) error {
	query, err := parseQuery(opts.member, opts.sort)
	if err != nil {
		return err
	}

	kv, err := a.identityKV()
	if err != nil {
		return err
	}
	log := a.log.Component("feed").Logger
	identityID := identity.NewProvider(kv, log).GetOrCreateID()
	liked := identity.LoadLikedSet(kv, log)

	var (
		adapter feed.Adapter
		songs   feed.SongSearcher
	)
	if opts.local {
		cfg, err := a.config()
		if err != nil {
			return err
		}
		st, err := providers.OpenStore(cfg, a.log)
		if err != nil {
			return err
		}
		defer st.Close()
		adapter = st
	} else {
		c := a.client()
		adapter = c
		songs = feed.SongSearcherFunc(c.SearchSongs)
	}

	ctrl := feed.New(adapter, feed.Options{
		IdentityID: identityID,
		Liked:      liked,
		PageSize:   opts.pageSize,
		Query:      query,
		Logger:     log,
	})
	defer ctrl.Close()

	composer := feed.NewComposer(adapter, songs, feed.ComposerOptions{
		RequireTrack: opts.requireTrack,
		Checker:      profanity.Default,
		Logger:       a.log.Component("composer").Logger,
	})
	defer composer.Close()

	return tui.Run(cmd.Context(), ctrl, composer)
}
