// Package main provides a CLI tool to inspect the snapshot cache file the
// monitor writes after every listing fetch.
//
// Usage:
//
//	snapshot-inspect [--path FILE] [--user ID] [--json] [--limit N]
//
// Flags:
//
//	--path:  cache file (default: $SNAPSHOT_CACHE_PATH or data/snapshot.json)
//	--user:  show only the room of this account id
//	--json:  print rooms as JSON instead of a table
//	--limit: print at most N rooms (0 = all)
//
// Example:
//
//	./snapshot-inspect --user A123
//	./snapshot-inspect --json --limit 5 | jq .
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/onnwee/live-signal/listing"
	"github.com/onnwee/live-signal/monitor"
)

// errUserNotFound is returned when --user names an account absent from the snapshot.
var errUserNotFound = errors.New("account not in snapshot")

func main() {
	if err := run(os.Args[1:], afero.NewOsFs(), os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, fs afero.Fs, out io.Writer) error {
	path := os.Getenv("SNAPSHOT_CACHE_PATH")
	if path == "" {
		path = "data/snapshot.json"
	}
	var user string
	var asJSON bool
	var limit int

	flagSet := pflag.NewFlagSet("snapshot-inspect", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVar(&path, "path", path, "snapshot cache file")
	flagSet.StringVar(&user, "user", "", "show only this account id")
	flagSet.BoolVar(&asJSON, "json", false, "print rooms as JSON")
	flagSet.IntVar(&limit, "limit", 0, "print at most N rooms (0 = all)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}

	snap, err := listing.ReadCache(fs, path)
	if err != nil {
		return err
	}

	rooms := snap.Entries
	if user != "" {
		e, ok := snap.Lookup(user)
		if !ok {
			return fmt.Errorf("%s: %w", user, errUserNotFound)
		}
		rooms = []listing.Entry{e}
	}
	if limit > 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rooms)
	}

	fmt.Fprintf(out, "fetched:  %s (%s ago)\n", snap.FetchedAt.Format(time.RFC3339), time.Since(snap.FetchedAt).Round(time.Second))
	fmt.Fprintf(out, "rooms:    %d of %d reported, %d pages", snap.Len(), snap.Total, snap.Pages)
	if snap.Partial {
		fmt.Fprint(out, " (partial)")
	}
	fmt.Fprint(out, "\n\n")

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tUSER\tNICK\tSTARTED\tTITLE")
	for _, e := range rooms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Code, e.UserID, e.UserNick, e.StartTime, monitor.ComposeTitle(e))
	}
	return tw.Flush()
}
