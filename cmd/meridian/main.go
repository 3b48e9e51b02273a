// Meridian CLI - sync Google Calendar and Gmail into a local cache and
// query it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-hq/meridian/internal/api"
	"github.com/meridian-hq/meridian/internal/config"
	"github.com/meridian-hq/meridian/internal/core"
	"github.com/meridian-hq/meridian/internal/logging"
	"github.com/meridian-hq/meridian/internal/normalize"
	"github.com/meridian-hq/meridian/internal/providers/gcal"
	"github.com/meridian-hq/meridian/internal/providers/gmail"
	"github.com/meridian-hq/meridian/internal/providers/google"
	"github.com/meridian-hq/meridian/internal/recurrence"
	"github.com/meridian-hq/meridian/internal/storage"
	"github.com/meridian-hq/meridian/internal/syncer"
	"github.com/meridian-hq/meridian/internal/transport"
)

const (
	tokenProvider = "google"
	authPort      = 8765
)

var (
	configPath string

	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "meridian",
		Short: "Meridian - local calendar and mail sync",
		Long: `Meridian syncs Google Calendar events and Gmail threads into a
local SQLite cache, keeps them fresh with incremental sync, and serves
them over a small HTTP API.`,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(threadsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles everything a command needs.
type app struct {
	cfg     *config.Config
	db      *storage.DB
	events  *storage.EventStore
	threads *storage.ThreadStore
	cursors *storage.CursorStore
	tokens  *storage.TokenStore
}

func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Debug {
		logging.SetLevel(logging.DEBUG)
	}

	db, err := storage.Open(storage.Config{Path: cfg.DatabasePath()})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		db:      db,
		events:  storage.NewEventStore(db),
		threads: storage.NewThreadStore(db),
		cursors: storage.NewCursorStore(db),
		tokens:  storage.NewTokenStore(db),
	}, nil
}

func (a *app) close() {
	a.db.Close()
}

// oauthClient builds the Google OAuth client from config.
func (a *app) oauthClient() (*google.OAuthClient, error) {
	oc := google.OAuthConfig{
		ClientID:     a.cfg.Google.ClientID,
		ClientSecret: a.cfg.Google.ClientSecret,
		RedirectURL:  a.cfg.Google.RedirectURL,
	}
	if oc.ClientID == "" || oc.ClientSecret == "" {
		return nil, fmt.Errorf("google credentials missing: set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
	}
	return google.NewOAuthClient(oc), nil
}

// syncService wires readers and stores into the sync service. Requires
// a stored token.
func (a *app) syncService(ctx context.Context) (*syncer.Service, error) {
	oc, err := a.oauthClient()
	if err != nil {
		return nil, err
	}
	tok, err := a.tokens.Get(tokenProvider)
	if err != nil {
		if errors.Is(err, core.ErrNotConnected) {
			return nil, fmt.Errorf("%w: run 'meridian auth google' first", err)
		}
		return nil, err
	}

	exec := transport.NewExecutor(transport.RetryConfig{
		MaxAttempts: a.cfg.Retry.MaxAttempts,
		BaseDelay:   a.cfg.Retry.BaseDelay(),
		Cap:         a.cfg.Retry.MaxDelay(),
	}, nil, nil)
	pacer := transport.NewPacer(a.cfg.Retry.PacingMin(), a.cfg.Retry.PacingMax(), nil)
	norm := normalize.New(nil, nil)

	calSvc, err := oc.CalendarService(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("calendar client: %w", err)
	}
	mailSvc, err := oc.GmailService(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("gmail client: %w", err)
	}

	calReader := gcal.NewReader(gcal.NewAPI(calSvc), exec, norm, gcal.Config{
		DefaultCalendarID: a.cfg.Google.CalendarID,
		PageSize:          int64(a.cfg.Sync.PageSize),
	}, nil)
	mailReader := gmail.NewReader(gmail.NewAPI(mailSvc), exec, pacer, norm, gmail.Config{
		PageSize: int64(a.cfg.Sync.PageSize),
	}, nil)

	return syncer.New(calReader, mailReader, a.events, a.threads, a.cursors, syncer.Config{
		CalendarID: a.cfg.Google.CalendarID,
		MailLimit:  a.cfg.Sync.MailLimit,
	}, nil), nil
}

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Connect provider accounts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "google",
		Short: "Authorize Google Calendar and Gmail access",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			oc, err := a.oauthClient()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			tok, err := oc.Authorize(ctx, authPort)
			if err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}
			if err := a.tokens.Save(tokenProvider, tok); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Println("Google account connected.")
			return nil
		},
	})
	return cmd
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sync [calendar|mail|all]",
		Short:     "Sync providers into the local cache",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"calendar", "mail", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "all"
			if len(args) == 1 {
				target = args[0]
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			svc, err := a.syncService(ctx)
			if err != nil {
				return err
			}

			var results []*syncer.Result
			switch target {
			case "calendar":
				res, err := svc.SyncCalendar(ctx)
				if err != nil {
					return err
				}
				results = append(results, res)
			case "mail":
				res, err := svc.SyncMail(ctx)
				if err != nil {
					return err
				}
				results = append(results, res)
			default:
				results, err = svc.SyncAll(ctx)
				if err != nil {
					return err
				}
			}

			for _, res := range results {
				fmt.Printf("%s: %s sync, %d synced, %d removed (%s)\n",
					res.Provider, res.Mode, res.Synced, res.Removed, res.Took.Round(time.Millisecond))
			}
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	var (
		days     int
		fromFlag string
		toFlag   string
		expand   bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List cached events",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			from := time.Now()
			to := from.AddDate(0, 0, days)
			if fromFlag != "" {
				if from, err = time.Parse(time.RFC3339, fromFlag); err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
				to = from.AddDate(0, 0, days)
			}
			if toFlag != "" {
				if to, err = time.Parse(time.RFC3339, toFlag); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}
			if !to.After(from) {
				return fmt.Errorf("--to must be after --from")
			}

			events, err := a.events.Between(from, to)
			if err != nil {
				return err
			}
			if expand {
				events = expandSeries(events, from, to)
			}
			if len(events) == 0 {
				fmt.Println("No events in window. Run 'meridian sync calendar'?")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "START\tEND\tTITLE")
			for _, ev := range events {
				layout := "Mon Jan 2 15:04"
				if ev.AllDay {
					layout = "Mon Jan 2"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					ev.Start.Local().Format(layout),
					ev.End.Local().Format(layout),
					ev.Title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "window size in days")
	cmd.Flags().StringVar(&fromFlag, "from", "", "window start (RFC 3339, default now)")
	cmd.Flags().StringVar(&toFlag, "to", "", "window end (RFC 3339, default start plus --days)")
	cmd.Flags().BoolVar(&expand, "expand", false, "expand cached recurring series into occurrences")
	return cmd
}

// expandSeries replaces recurring-series masters with their concrete
// occurrences inside [from, to), sorted back into start order.
func expandSeries(events []core.EventSummary, from, to time.Time) []core.EventSummary {
	out := make([]core.EventSummary, 0, len(events))
	for _, ev := range events {
		if !ev.IsRecurringSeries || ev.Recurrence == nil {
			out = append(out, ev)
			continue
		}
		starts, err := recurrence.Expand(ev.Recurrence, ev.Start, 0)
		if err != nil {
			logging.Debug("cannot expand series %s: %v", ev.ID, err)
			out = append(out, ev)
			continue
		}
		length := ev.End.Sub(ev.Start)
		for _, start := range starts {
			if !start.Before(to) {
				break
			}
			if start.Add(length).Before(from) {
				continue
			}
			inst := ev
			inst.Start = start
			inst.End = start.Add(length)
			inst.IsRecurringSeries = false
			inst.SeriesID = ev.ID
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func threadsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List cached mail threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			threads, err := a.threads.Recent(limit)
			if err != nil {
				return err
			}
			if len(threads) == 0 {
				fmt.Println("No threads cached. Run 'meridian sync mail'?")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UPDATED\tMSGS\tSUBJECT")
			for _, t := range threads {
				subject := t.Subject
				if subject == "" {
					subject = "(no subject)"
				}
				marker := " "
				if t.Unread {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%d\t%s%s\n",
					t.LastUpdated.Local().Format("Jan 2 15:04"),
					len(t.MessageIDs), marker, subject)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 25, "max threads to show")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			// The server works from the cache alone when no account is
			// connected; sync endpoints then answer 503.
			svc, err := a.syncService(ctx)
			if err != nil {
				logging.Warn("sync unavailable: %v", err)
			}

			server := api.NewServer(api.Config{
				Host:    a.cfg.Server.Host,
				Port:    a.cfg.Server.Port,
				Events:  a.events,
				Threads: a.threads,
				Syncer:  svc,
			})

			go func() {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				server.Stop(shutdownCtx)
			}()

			return server.Start()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("meridian %s\n", version)
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
