package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	fp "path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/bmyte/jagcache/core/codec"
	"github.com/bmyte/jagcache/core/disk"
	"github.com/bmyte/jagcache/core/model"
	"github.com/bmyte/jagcache/core/remote"
	"github.com/bmyte/jagcache/core/state"
	"github.com/bmyte/jagcache/core/updater"
	"github.com/bmyte/jagcache/lib/logger"
	"github.com/bmyte/jagcache/lib/metrics"
	"github.com/bmyte/jagcache/lib/xtea"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func newApp(cfg *Config) *cli.App {
	return &cli.App{
		Name:  "jagcache",
		Usage: "Keep a local group cache in sync with a remote cache server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Value: cfg.Remote.Host,
				Usage: "Address of the cache server",
			},
			&cli.IntFlag{
				Name:  "port",
				Value: cfg.Remote.Port,
				Usage: "Port of the cache server",
			},
			&cli.UintFlag{
				Name:  "revision",
				Value: cfg.Remote.Revision,
				Usage: "Revision expected by the server",
			},
			&cli.DurationFlag{
				Name:  "read-timeout",
				Value: cfg.Remote.ReadTimeout,
				Usage: "Maximum wait for a single response",
			},
			&cli.DurationFlag{
				Name:  "dial-timeout",
				Value: cfg.Remote.DialTimeout,
				Usage: "Maximum wait for the connection to be established",
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Value: cfg.Cache.Dir,
				Usage: "Location of the local cache",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: cfg.Log.Level,
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Before: func(ctx *cli.Context) error {
			return logger.SetLevel(ctx.String("log-level"))
		},
		Commands: []*cli.Command{
			syncCmd(cfg),
			statusCmd,
			extractCmd,
		},
	}
}

func syncCmd(cfg *Config) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch every group that changed on the server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "archive",
				Value: -1,
				Usage: "Refetch the catalog of this archive only, ignoring the master catalog",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Value: cfg.Metrics.Addr,
				Usage: "Serve prometheus metrics on this address while syncing",
			},
		},
		Action: func(ctx *cli.Context) error {
			cctx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr := ctx.String("metrics-addr"); addr != "" {
				srv := serveMetrics(addr)
				defer srv.Shutdown(context.Background())
			}

			store, err := disk.Open(ctx.String("cache-dir"))
			if err != nil {
				return err
			}
			defer store.Close()

			journal, err := state.Open(store.Dir())
			if err != nil {
				return err
			}
			defer journal.Close()

			addr := net.JoinHostPort(ctx.String("host"), strconv.Itoa(ctx.Int("port")))
			log.Infow("sync", "status", "connecting", "addr", addr, "revision", ctx.Uint("revision"))

			client, err := remote.Dial(cctx, addr, uint32(ctx.Uint("revision")),
				remote.WithReadTimeout(ctx.Duration("read-timeout")),
				remote.WithDialTimeout(ctx.Duration("dial-timeout")))
			if err != nil {
				return err
			}
			defer client.Close()

			u := updater.New(store, client, updater.WithJournal(journal))

			var rep *updater.Report
			if archive := ctx.Int("archive"); archive >= 0 {
				rep, err = u.UpdateArchive(cctx, archive)
			} else {
				rep, err = u.Update(cctx)
			}
			if err != nil {
				return err
			}

			log.Infow("sync", "status", "completed",
				"run", rep.RunID,
				"archives", len(rep.Archives),
				"groups", rep.GroupsFetched(),
				"size", humanize.Bytes(uint64(rep.Bytes())),
				"duration", rep.Duration().Round(time.Millisecond))
			return nil
		},
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Infow("metrics", "status", "listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics", "error", err)
		}
	}()
	return srv
}

var statusCmd = &cli.Command{
	Name:  "status",
	Usage: "Show the last sync run and the state of every archive",
	Action: func(ctx *cli.Context) error {
		dir := ctx.String("cache-dir")

		store, err := disk.Open(dir)
		if err != nil {
			return err
		}
		defer store.Close()

		count, err := store.ArchiveCount()
		if err != nil {
			return err
		}

		journal, err := state.Open(store.Dir())
		if err != nil {
			return err
		}
		defer journal.Close()

		w := ctx.App.Writer
		fmt.Fprintf(w, "cache:    %s (%d archives)\n", dir, count)

		last, err := journal.LastRun(ctx.Context)
		switch {
		case errors.Is(err, state.ErrNotFound):
			fmt.Fprintln(w, "last run: never")
		case err != nil:
			return err
		default:
			fmt.Fprintf(w, "last run: %s %s, %d archives, %d groups, %s\n",
				last.RunID, humanize.Time(last.Finished), len(last.Archives),
				last.GroupsFetched(), humanize.Bytes(uint64(last.Bytes())))
		}

		archives, err := journal.Archives(ctx.Context)
		if err != nil {
			return err
		}
		if len(archives) == 0 {
			return nil
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ARCHIVE\tVERSION\tCRC32\tGROUPS\tFETCHED\tSIZE\tUPDATED")
		for _, a := range archives {
			fmt.Fprintf(tw, "%d\t%d\t%08x\t%d\t%d\t%s\t%s\n",
				a.Archive, a.CatalogVersion, a.CatalogCRC32, a.Groups, a.GroupsFetched,
				humanize.Bytes(uint64(a.Bytes)), humanize.Time(a.UpdatedAt))
		}
		return tw.Flush()
	},
}

var extractCmd = &cli.Command{
	Name:  "extract",
	Usage: "Decode a stored group and write its files",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:     "archive",
			Required: true,
		},
		&cli.IntFlag{
			Name:     "group",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "key",
			Usage: "XTEA key as four comma separated words",
		},
		&cli.StringFlag{
			Name:  "out",
			Value: ".",
			Usage: "Directory the files are written to",
		},
	},
	Action: func(ctx *cli.Context) error {
		archive, group := ctx.Int("archive"), ctx.Int("group")

		var key *xtea.Key
		if s := ctx.String("key"); s != "" {
			k, err := xtea.ParseKey(s)
			if err != nil {
				return err
			}
			key = &k
		}

		store, err := disk.Open(ctx.String("cache-dir"))
		if err != nil {
			return err
		}
		defer store.Close()

		files, err := extractGroup(store, archive, group, key)
		if err != nil {
			return err
		}

		dir := fp.Join(ctx.String("out"), strconv.Itoa(archive), strconv.Itoa(group))
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}

		var total uint64
		for id, data := range files {
			if err := os.WriteFile(fp.Join(dir, strconv.Itoa(int(id))), data, 0640); err != nil {
				return err
			}
			total += uint64(len(data))
		}

		log.Infow("extract", "archive", archive, "group", group,
			"files", len(files), "size", humanize.Bytes(total), "dir", dir)
		return nil
	},
}

// extractGroup decodes a stored group and splits it into its files, keyed
// by file id. Without a stored catalog the group is one file with id 0.
func extractGroup(local updater.LocalCache, archive, group int, key *xtea.Key) (map[uint32][]byte, error) {
	c, ok, err := updater.LocalGroup(local, archive, group, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("group (%d, %d) is not in the cache", archive, group)
	}

	ids := []uint32{0}
	if archive != model.MasterArchive {
		cat, ok, err := updater.LocalCatalog(local, archive)
		if err != nil {
			return nil, err
		}
		if ok {
			if g, found := cat.Group(uint32(group)); found && len(g.Files) > 0 {
				ids = ids[:0]
				for _, f := range g.Files {
					ids = append(ids, f.ID)
				}
			}
		}
	}

	parts, err := codec.Split(c.Data, len(ids))
	if err != nil {
		return nil, err
	}

	files := make(map[uint32][]byte, len(ids))
	for i, id := range ids {
		files[id] = parts[i]
	}
	return files, nil
}
