// Command lettersctl is the terminal client and maintenance tool for the
// letters server.
//
//	lettersctl feed                      browse, like and write letters
//	lettersctl send --name Ana --member Jin --message "..."
//	lettersctl like ltr-abc
//	lettersctl seed fixtures.yaml        import letters into the local store
//	lettersctl backfill | reindex | inspect
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/armyletters/letters-server/internal/client"
	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/identity"
	"github.com/armyletters/letters-server/internal/logger"
)

const defaultServer = "http://localhost:8080"

// app carries the global flags and the pieces commands share.
type app struct {
	server       string
	identityFile string
	logFile      string
	verbose      bool

	// Local store flags, forwarded to the server configuration loader.
	dataPath    string
	storeDriver string
	storePath   string

	out    io.Writer
	log    *logger.Logger
	closer io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "lettersctl",
		Short: "Read, like and write fan letters from the terminal",
		Long: `lettersctl talks to a letters server over HTTP. The feed command opens an
interactive view with live updates; the maintenance commands work on the
local store directly and must not run while the server holds it open.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setupLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.closer != nil {
				_ = a.closer.Close()
			}
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.server, "server", envOr("LETTERS_SERVER", defaultServer), "letters server base URL")
	flags.StringVar(&a.identityFile, "identity-file", "", "identity and liked-set file (default: user config dir)")
	flags.StringVar(&a.logFile, "log-file", "", "write logs to this file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&a.dataPath, "data-path", "", "local data directory (maintenance commands)")
	flags.StringVar(&a.storeDriver, "store-driver", "", "local store driver: badger or sqlite")
	flags.StringVar(&a.storePath, "store-path", "", "local store location")

	root.AddCommand(
		newFeedCmd(a),
		newSendCmd(a),
		newLikeCmd(a),
		newListCmd(a),
		newSearchCmd(a),
		newSeedCmd(a),
		newBackfillCmd(a),
		newReindexCmd(a),
		newInspectCmd(a),
	)
	return root
}

// setupLogger logs to --log-file when given and drops logs otherwise, so
// output never interleaves with the terminal view.
func (a *app) setupLogger() error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	if a.logFile == "" {
		a.log = logger.Discard()
		if a.verbose {
			a.log = logger.New(logger.Config{Writer: os.Stderr, Format: logger.FormatPretty, Level: level})
		}
		return nil
	}
	log, f, err := logger.OpenFile(a.logFile, logger.Config{Format: logger.FormatPretty, Level: level})
	if err != nil {
		return err
	}
	a.log, a.closer = log, f
	return nil
}

func (a *app) client() *client.Client {
	return client.New(a.server, client.WithLogger(a.log.Component("client").Logger))
}

// identityKV returns the file backing the identity and the liked set.
func (a *app) identityKV() (identity.KV, error) {
	path := a.identityFile
	if path == "" {
		var err error
		if path, err = identity.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return identity.NewFileKV(path), nil
}

// config loads the server configuration with the local store flags on top.
func (a *app) config() (*config.Config, error) {
	var args []string
	add := func(flag, value string) {
		if value != "" {
			args = append(args, "-"+flag, value)
		}
	}
	add("data-path", a.dataPath)
	add("store-driver", a.storeDriver)
	add("store-path", a.storePath)
	if a.verbose {
		add("log-level", "debug")
	}
	return config.Load(args)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
