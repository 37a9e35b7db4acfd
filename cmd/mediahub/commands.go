package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Sternrassler/mediahub-client/pkg/admin"
	"github.com/Sternrassler/mediahub-client/pkg/auth"
	"github.com/Sternrassler/mediahub-client/pkg/catalog"
	"github.com/Sternrassler/mediahub-client/pkg/notice"
	"github.com/Sternrassler/mediahub-client/pkg/pagination"
)

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

// report prints n and turns a failed operation into errReported.
func (a *app) report(n notice.Notice, err error) error {
	fmt.Fprintln(a.out, n)
	if err != nil {
		return fmt.Errorf("%w: %w", errReported, err)
	}
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "login")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	passwordStdin := fs.Bool("password-stdin", false, "read the password from the first line of stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *passwordStdin {
		line, err := bufio.NewReader(a.in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}
	return a.report(a.auth.Login(ctx, *username, *password))
}

func runLogout(_ context.Context, a *app, args []string) error {
	if err := newFlagSet(a, "logout").Parse(args); err != nil {
		return err
	}
	return a.report(a.auth.Logout())
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "whoami")
	verify := fs.Bool("verify", false, "ask the backend whether the session is still valid")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, ok := a.auth.Whoami()
	if !ok {
		fmt.Fprintln(a.out, "not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "signed in as %s (since %s)\n", sess.Username, sess.CreatedAt.Format("2006-01-02 15:04"))

	if !*verify {
		return nil
	}
	valid, err := a.auth.Verify(ctx)
	switch {
	case auth.IsNoSession(err):
		fmt.Fprintln(a.out, "not signed in")
		return nil
	case err != nil:
		return a.report(notice.FromError(notice.TitleError, err, "Could not verify the session"), err)
	case valid:
		fmt.Fprintln(a.out, "session is valid")
	default:
		fmt.Fprintln(a.out, "session was rejected by the server")
	}
	return nil
}

// imageFlags collects repeated -image values.
type imageFlags []string

func (f *imageFlags) String() string { return strings.Join(*f, ",") }

func (f *imageFlags) Set(v string) error {
	if len(*f) >= admin.ImageCount {
		return fmt.Errorf("at most %d images", admin.ImageCount)
	}
	*f = append(*f, v)
	return nil
}

func runAddItem(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "add-item")
	title := fs.String("title", "", "item title")
	tags := fs.String("tags", "", "comma-separated tags")
	link := fs.String("link", "", "destination link")
	var images imageFlags
	fs.Var(&images, "image", fmt.Sprintf("image URL, repeat %d times", admin.ImageCount))
	if err := fs.Parse(args); err != nil {
		return err
	}

	form := admin.NewItemForm(a.client)
	form.SetInput(admin.ItemInput{Title: *title, Tags: *tags, Link: *link, Images: make([]string, admin.ImageCount)})
	for i, img := range images {
		if err := form.SetImage(i, img); err != nil {
			return err
		}
	}
	return a.report(form.Submit(ctx))
}

func runCreateUser(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "create-user")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	form := admin.NewUserForm(a.client)
	form.SetInput(admin.UserInput{Username: *username, Password: *password})
	return a.report(form.Submit(ctx))
}

// exportDocument is the JSON written by export.
type exportDocument struct {
	Tag        string         `json:"tag,omitempty"`
	TotalPages int            `json:"total_pages"`
	AllTags    []string       `json:"all_tags"`
	Items      []catalog.Item `json:"items"`
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "export")
	tag := fs.String("tag", "", "only export items with this tag")
	out := fs.String("out", "-", "output file, - for stdout")
	workers := fs.Int("concurrency", pagination.DefaultConfig().MaxConcurrency, "parallel page fetches")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var allTags []string
	fetch := func(ctx context.Context, page int) ([]catalog.Item, int, error) {
		p, err := a.client.FetchCatalog(ctx, catalog.Query{Tag: *tag, Page: page, PageSize: a.cfg.PageSize})
		if err != nil {
			return nil, 0, err
		}
		if page == 1 {
			allTags = p.AllTags
		}
		return p.Items, p.TotalPages, nil
	}

	bfCfg := pagination.DefaultConfig()
	bfCfg.MaxConcurrency = *workers
	bfCfg.Timeout = a.cfg.Timeout
	pages, err := pagination.NewBatchFetcher(fetch, bfCfg).FetchAllPages(ctx)
	if err != nil {
		return a.report(notice.FromError(notice.TitleError, err, "Could not export the catalog"), err)
	}

	doc := exportDocument{Tag: *tag, TotalPages: len(pages), AllTags: allTags, Items: []catalog.Item{}}
	for p := 1; p <= len(pages); p++ {
		doc.Items = append(doc.Items, pages[p]...)
	}
	if doc.AllTags == nil {
		doc.AllTags = []string{}
	}

	w := a.out
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if *out != "-" {
		fmt.Fprintf(a.out, "exported %d items to %s\n", len(doc.Items), *out)
	}
	return nil
}
