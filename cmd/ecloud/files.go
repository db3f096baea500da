package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fruitsalade/ecloud/internal/browser"
	"github.com/fruitsalade/ecloud/internal/dashboard"
	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/internal/newfolder"
	"github.com/fruitsalade/ecloud/internal/overview"
	"github.com/fruitsalade/ecloud/internal/preview"
	"github.com/fruitsalade/ecloud/internal/session"
	"github.com/fruitsalade/ecloud/internal/upload"
	"github.com/fruitsalade/ecloud/pkg/cache"
	"github.com/fruitsalade/ecloud/pkg/models"
)

func cmdList(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	grid := fs.Bool("grid", false, "Show names only")
	fs.Parse(args)

	sh, err := a.shell(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if *grid {
		sh.SetViewMode(browser.ViewGrid)
	} else {
		sh.SetViewMode(browser.ViewList)
	}
	printListing(sh)
	return nil
}

func printListing(sh *dashboard.Shell) {
	var path string
	for i, c := range sh.Breadcrumbs() {
		if i > 0 {
			path += " / "
		}
		path += c.Name
	}
	fmt.Println(path)

	nodes := sh.View().Nodes()
	if len(nodes) == 0 {
		fmt.Println("This folder is empty.")
		return
	}
	if sh.ViewMode() == browser.ViewGrid {
		for _, n := range nodes {
			name := n.Name
			if n.IsFolder() {
				name += "/"
			}
			fmt.Print(name, "  ")
		}
		fmt.Println()
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSIZE\tMODIFIED\tNAME")
	for _, n := range nodes {
		size := "-"
		if !n.IsFolder() {
			size = models.FormatSize(n.Size)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n.ID, n.Kind(), size, n.UpdatedAt.Format(time.DateTime), n.Name)
	}
	w.Flush()
}

func cmdStats(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	recursive := fs.Bool("r", false, "Include nested folders")
	fs.Parse(args)

	ov := overview.New(a.session, a.client, a.bus)
	ov.Recursive = *recursive
	report, err := ov.Load(ctx, models.FolderFromRoute(fs.Arg(0)))
	printReport(report)
	return err
}

func printReport(r overview.Report) {
	s := r.Summary
	fmt.Printf("Items:   %d\n", s.TotalItems)
	fmt.Printf("Files:   %d (%s)\n", s.Files, models.FormatSize(s.Bytes))
	fmt.Printf("Folders: %d\n", s.Folders)
	for _, seg := range r.Segments {
		fmt.Printf("  %-10s %s\n", seg.Category, seg.Label())
	}
}

func cmdMkdir(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("mkdir", flag.ExitOnError)
	parent := fs.String("parent", "root", "Parent folder id")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: ecloud mkdir [-parent id] <name>")
	}

	m := newfolder.NewModal(a.session, a.client, a.bus)
	m.Open(*parent)
	m.SetName(fs.Arg(0))
	node, err := m.Create(ctx)
	if err != nil {
		if msg := m.Error(); msg != "" {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return err
	}
	m.Close()
	fmt.Printf("Created %s (%s)\n", node.Name, node.ID)
	return nil
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	parent := fs.String("parent", "root", "Destination folder id")
	zip := fs.Bool("zip", false, "Extract zip archives on the server")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: ecloud upload [-zip] [-parent id] <files...>")
	}

	m, err := upload.NewModal(a.session, a.client, a.bus)
	if err != nil {
		return err
	}
	mode := upload.ModePlain
	if *zip {
		mode = upload.ModeZip
	}
	m.Open(*parent, mode)

	var sources []upload.Source
	for _, path := range fs.Args() {
		src, err := upload.FileSource(path)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}
	m.Add(ctx, sources...)
	m.Wait()

	var errs []error
	for _, t := range m.Tasks() {
		switch t.Status {
		case upload.StatusCompleted:
			fmt.Printf("%-40s %10s  done\n", t.Name, models.FormatSize(t.Size))
		default:
			fmt.Printf("%-40s %10s  failed: %v\n", t.Name, models.FormatSize(t.Size), t.Err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, t.Err))
		}
	}
	m.Close()
	return errors.Join(errs...)
}

func cmdMove(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("mv", flag.ExitOnError)
	from := fs.String("from", "root", "Folder holding the nodes")
	to := fs.String("to", "", "Destination folder id (required)")
	fs.Parse(args)
	if *to == "" || fs.NArg() < 1 {
		return errors.New("usage: ecloud mv [-from id] -to <id> <ids...>")
	}

	sh, err := a.shell(ctx, *from)
	if err != nil {
		return err
	}
	res, err := sh.View().Move(ctx, *to, fs.Args())
	for _, id := range res.Moved {
		fmt.Printf("Moved %s\n", id)
	}
	return err
}

func cmdRemove(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	in := fs.String("in", "root", "Folder holding the nodes")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: ecloud rm [-in id] <ids...>")
	}

	sh, err := a.shell(ctx, *in)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range fs.Args() {
		if err := sh.View().Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		fmt.Printf("Deleted %s\n", id)
	}
	return errors.Join(errs...)
}

func cmdPreview(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	out := fs.String("o", "", "Save the content to this file")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errors.New("usage: ecloud preview [-o file] <folder> <id>")
	}

	sh, err := a.shell(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	node := sh.View().Node(fs.Arg(1))
	if node == nil {
		return fmt.Errorf("%s is not in this folder", fs.Arg(1))
	}

	blobs, err := cache.New(a.cfg.CacheDir, a.cfg.CacheMax)
	if err != nil {
		return err
	}
	p := preview.NewPreviewer(a.session, a.client, blobs)
	defer p.Teardown()
	p.SetList(sh.View().Previewable())
	if err := p.Open(ctx, node); err != nil {
		return err
	}

	st := p.State()
	fmt.Printf("%s (%s, %s)\n", node.Name, st.View, models.FormatSize(node.Size))
	if st.Count > 0 {
		fmt.Printf("Item %d of %d\n", st.Index+1, st.Count)
	}

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		if _, err := p.Download(f); err != nil {
			f.Close()
			return err
		}
		fmt.Printf("Saved to %s\n", *out)
		return f.Close()
	}

	switch st.View {
	case preview.ViewText:
		fmt.Println(st.Text)
	case preview.ViewDownload:
		fmt.Println("No preview available. Use -o to download.")
	default:
		fmt.Printf("Cached at %s (%s)\n", st.BlobPath, st.ContentType)
	}
	return nil
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", 10*time.Second, "Poll interval")
	fs.Parse(args)

	sh, err := a.shell(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	a.session.KeepAlive(ctx, time.Minute, 2*time.Minute)
	go sh.Watch(ctx)

	folderID := sh.FolderID()
	ov := overview.New(a.session, a.client, a.bus)
	go ov.Watch(ctx, folderID, func(r overview.Report, err error) {
		if err == nil {
			fmt.Printf("%d items, %s\n", r.Summary.TotalItems, models.FormatSize(r.Summary.Bytes))
		}
	})

	printListing(sh)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	last := len(sh.View().Nodes())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sh.Invalidate(events.FolderChanged(folderID))
			if sh.State() == dashboard.StateRedirectAuth {
				return session.ErrUnauthorized
			}
			if n := len(sh.View().Nodes()); n != last {
				last = n
				printListing(sh)
			}
		}
	}
}
