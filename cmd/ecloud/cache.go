package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fruitsalade/ecloud/pkg/cache"
	"github.com/fruitsalade/ecloud/pkg/models"
)

func cmdCache(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	clearAll := fs.Bool("clear", false, "Remove every unpinned entry")
	evict := fs.String("evict", "", "Remove one entry, pinned or not")
	fs.Parse(args)

	c, err := cache.New(a.cfg.CacheDir, a.cfg.CacheMax)
	if err != nil {
		return err
	}

	switch {
	case *evict != "":
		// Entries pinned by a preview that never closed stay pinned on disk.
		if err := c.Unpin(*evict); err != nil {
			return err
		}
		if err := c.Evict(*evict); err != nil {
			return err
		}
		fmt.Printf("Evicted %s\n", *evict)
		return nil
	case *clearAll:
		fmt.Printf("Removed %d entries\n", c.Clear())
		return nil
	}

	size, maxSize, count := c.Stats()
	fmt.Printf("Cache directory: %s\n", c.Dir())
	fmt.Printf("Cached files:    %d\n", count)
	fmt.Printf("Cache size:      %s\n", models.FormatSize(size))
	fmt.Printf("Max size:        %s\n", models.FormatSize(maxSize))

	entries := c.List()
	if len(entries) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE\tTYPE\tLAST USED\tPINNED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n", e.Key, models.FormatSize(e.Size), e.ContentType, e.LastAccess.Format(time.DateTime), e.Pinned)
	}
	return w.Flush()
}
