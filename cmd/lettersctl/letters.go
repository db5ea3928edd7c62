package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/feed"
	"github.com/armyletters/letters-server/internal/identity"
	"github.com/armyletters/letters-server/internal/profanity"
	"github.com/armyletters/letters-server/internal/validation"
)

// parseQuery resolves the --member and --sort flags.
func parseQuery(member, sortOrder string) (domain.Query, error) {
	f, ok := domain.ParseFilter(member)
	if !ok {
		return domain.Query{}, fmt.Errorf("unknown member %q", member)
	}
	s, ok := domain.ParseSortOrder(sortOrder)
	if !ok {
		return domain.Query{}, fmt.Errorf("unknown sort %q (newest, oldest or most-liked)", sortOrder)
	}
	return domain.Query{Filter: f, Sort: s}, nil
}

type sendOptions struct {
	name    string
	member  string
	message string
	country string
	song    string
}

func newSendCmd(a *app) *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a letter",
		Example: `  lettersctl send --name Ana --member Jimin --message "Thank you" --country Peru
  lettersctl send --name Ana --member BTS --message "Borahae" --song "Spring Day"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSend(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "your name")
	cmd.Flags().StringVar(&opts.member, "member", "", "addressee")
	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "letter text")
	cmd.Flags().StringVar(&opts.country, "country", "", "your country")
	cmd.Flags().StringVar(&opts.song, "song", "", "attach the first song matching this search")
	return cmd
}

func (a *app) runSend(cmd *cobra.Command, opts sendOptions) error {
	ctx := cmd.Context()
	c := a.client()

	member := domain.Member(opts.member)
	if m, ok := domain.ParseMember(opts.member); ok {
		member = m
	}

	var songs feed.SongSearcher
	if opts.song != "" {
		songs = feed.SongSearcherFunc(c.SearchSongs)
	}
	composer := feed.NewComposer(c, songs, feed.ComposerOptions{
		Checker: profanity.Default,
		Logger:  a.log.Component("composer").Logger,
	})
	defer composer.Close()

	composer.Update(func(d *domain.Draft) {
		d.Name = opts.name
		d.Member = member
		d.Message = opts.message
		d.Country = opts.country
	})

	if opts.song != "" {
		tracks, err := c.SearchSongs(ctx, opts.song)
		if err != nil {
			return fmt.Errorf("song search: %w", err)
		}
		if len(tracks) == 0 {
			return fmt.Errorf("no songs match %q", opts.song)
		}
		composer.SelectTrack(&tracks[0])
	}

	letterID, err := composer.Submit(ctx)
	if err != nil {
		return fmt.Errorf("letter not sent: %w", describeDraftError(err))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Letter sent: %s\n", letterID)
	if shared, err := c.Share(ctx, letterID); err == nil {
		fmt.Fprintf(out, "Share: %s\n", shared.Links.URL)
	} else {
		a.log.Warn("share links unavailable", "letter_id", letterID, "error", err)
	}
	return nil
}

// describeDraftError flattens validation failures into one readable error.
func describeDraftError(err error) error {
	fields, blocked, ok := validation.Details(err)
	if !ok {
		return err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	if len(blocked) > 0 {
		parts = append(parts, "blocked words: "+strings.Join(blocked, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

func newLikeCmd(a *app) *cobra.Command {
	var unlike bool
	cmd := &cobra.Command{
		Use:   "like <letter-id>",
		Short: "Like or unlike a letter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLike(cmd, args[0], unlike)
		},
	}
	cmd.Flags().BoolVar(&unlike, "unlike", false, "remove your like")
	return cmd
}

func (a *app) runLike(cmd *cobra.Command, letterID string, unlike bool) error {
	kv, err := a.identityKV()
	if err != nil {
		return err
	}
	log := a.log.Component("identity").Logger
	identityID := identity.NewProvider(kv, log).GetOrCreateID()
	liked := identity.LoadLikedSet(kv, log)

	// The toggle is relative to the server's view of this identity, so the
	// request names the state the caller wants to leave.
	currentlyLiked := unlike
	l, err := a.client().ToggleLike(cmd.Context(), letterID, identityID, currentlyLiked)
	if err != nil {
		return err
	}
	liked.Set(l.ID, l.HasLiked(identityID))

	verb := "Unliked"
	if l.HasLiked(identityID) {
		verb = "Liked"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d likes)\n", verb, l.ID, l.Likes)
	return nil
}

type listOptions struct {
	member string
	sort   string
	limit  int
	cursor string
}

func newListCmd(a *app) *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := parseQuery(opts.member, opts.sort)
			if err != nil {
				return err
			}
			page, err := a.client().QueryPage(cmd.Context(), q, opts.cursor, opts.limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printLetters(out, page.Items)
			if page.HasMore {
				fmt.Fprintf(out, "\nMore: --cursor %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.member, "member", "", "only letters to this member")
	cmd.Flags().StringVar(&opts.sort, "sort", string(domain.SortNewest), "newest, oldest or most-liked")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "letters per page")
	cmd.Flags().StringVar(&opts.cursor, "cursor", "", "continue after this cursor")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		member string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Full-text search over letters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, ok := domain.ParseFilter(member)
			if !ok {
				return fmt.Errorf("unknown member %q", member)
			}
			res, err := a.client().SearchLetters(cmd.Context(), strings.Join(args, " "), f.Member, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d matches for %q\n\n", res.Total, res.Query)
			printLetters(out, res.Letters)
			return nil
		},
	}
	cmd.Flags().StringVar(&member, "member", "", "only letters to this member")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum results")
	return cmd
}

func printLetters(out io.Writer, letters []*domain.Letter) {
	if len(letters) == 0 {
		fmt.Fprintln(out, "No letters.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTO\tFROM\tLIKES\tSENT\tMESSAGE")
	for _, l := range letters {
		from := l.Name
		if l.Country != "" {
			from += ", " + l.Country
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			l.ID, l.Member, from, l.Likes, l.Timestamp.Local().Format(time.DateTime), excerpt(l.Message, 40))
	}
	_ = tw.Flush()
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
