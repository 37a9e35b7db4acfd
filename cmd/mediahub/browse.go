package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Sternrassler/mediahub-client/pkg/catalog"
	"github.com/Sternrassler/mediahub-client/pkg/notice"
	"github.com/Sternrassler/mediahub-client/pkg/pagination"
)

const browseHelp = `commands: tags, tag <name>, all, page <n>, next, prev, open <id>, retry, help, quit`

func runBrowse(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "browse")
	tag := fs.String("tag", "", "initial tag filter")
	page := fs.Int("page", 1, "initial page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctrl := catalog.NewController(a.client, a.store, a.cfg.Controller())
	defer ctrl.Close()

	ctrl.Load()
	ctrl.Wait()
	if *tag != "" {
		ctrl.SelectTag(*tag)
		ctrl.Wait()
	}
	if *page > 1 {
		ctrl.SelectPage(*page)
		ctrl.Wait()
	}
	a.render(ctrl.Snapshot())
	fmt.Fprintln(a.out, browseHelp)

	lines, inputErr := readLines(ctx, a.in)
	for {
		fmt.Fprint(a.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(a.out)
				return inputErr()
			}
			line = l
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		arg = strings.TrimSpace(arg)

		changed := false
		switch cmd {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		case "help":
			fmt.Fprintln(a.out, browseHelp)
			continue
		case "tags":
			a.renderTags(ctrl.Snapshot())
			continue
		case "tag":
			if arg == "" {
				fmt.Fprintln(a.out, "usage: tag <name>")
				continue
			}
			changed = ctrl.SelectTag(arg)
		case "all":
			changed = ctrl.ClearTag()
		case "page":
			n, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Fprintln(a.out, "usage: page <n>")
				continue
			}
			changed = ctrl.SelectPage(n)
		case "next":
			changed = ctrl.NextPage()
		case "prev":
			changed = ctrl.PrevPage()
		case "retry":
			ctrl.Retry()
			changed = true
		case "open":
			a.open(ctrl, arg)
			continue
		default:
			fmt.Fprintf(a.out, "unknown command %q\n%s\n", cmd, browseHelp)
			continue
		}

		if changed {
			ctrl.Wait()
		}
		a.render(ctrl.Snapshot())
	}
}

// readLines scans r on its own goroutine so the caller can stop waiting for
// input when ctx is cancelled. The channel is closed at EOF; the returned func
// reports the scan error once it is.
func readLines(ctx context.Context, r io.Reader) (<-chan string, func() error) {
	lines := make(chan string)
	var scanErr error
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = scanner.Err()
	}()
	return lines, func() error { return scanErr }
}

func (a *app) open(ctrl *catalog.Controller, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Fprintln(a.out, "usage: open <id>")
		return
	}
	item, ok := ctrl.Item(id)
	if !ok {
		fmt.Fprintf(a.out, "item %d is not on this page\n", id)
		return
	}

	action := ctrl.SelectItem(item)
	switch action.Kind {
	case catalog.ActionOpenExternal:
		fmt.Fprintf(a.out, "open %s\n", action.Link)
	case catalog.ActionRedirectToPaywall:
		fmt.Fprintf(a.out, "subscription required: %s\n", action.Link)
	}
}

func (a *app) render(s catalog.State) {
	if s.Err != nil {
		fmt.Fprintln(a.out, notice.FromError(notice.TitleError, s.Err, "Could not load the catalog"))
		fmt.Fprintln(a.out, "type retry to try again")
	}

	filter := "all"
	if s.Tag != "" {
		filter = s.Tag
	}
	fmt.Fprintf(a.out, "catalog [%s]\n", filter)
	if len(s.Items) == 0 {
		fmt.Fprintln(a.out, "  no items")
	}
	for _, it := range s.Items {
		fmt.Fprintf(a.out, "  #%d %s", it.ID, it.Title)
		if len(it.Tags) > 0 {
			fmt.Fprintf(a.out, " (%s)", strings.Join(it.Tags, ", "))
		}
		fmt.Fprintln(a.out)
	}
	fmt.Fprintln(a.out, pageLine(s.Controls(a.cfg.Controller().WindowSize)))
}

func (a *app) renderTags(s catalog.State) {
	var b strings.Builder
	b.WriteString("tags:")
	if s.Tag == "" {
		b.WriteString(" *all")
	} else {
		b.WriteString(" all")
	}
	for _, t := range s.AllTags {
		b.WriteByte(' ')
		if t == s.Tag {
			b.WriteByte('*')
		}
		b.WriteString(t)
	}
	fmt.Fprintln(a.out, b.String())
}

// pageLine renders e.g. "page 2/3  < 1 [2] 3 >".
func pageLine(c pagination.Controls) string {
	var b strings.Builder
	fmt.Fprintf(&b, "page %d/%d  ", c.Current, c.Total)
	if c.HasPrev {
		b.WriteString("< ")
	}
	for i, p := range c.Window {
		if i > 0 {
			b.WriteByte(' ')
		}
		if p == c.Current {
			fmt.Fprintf(&b, "[%d]", p)
		} else {
			b.WriteString(strconv.Itoa(p))
		}
	}
	if c.HasNext {
		b.WriteString(" >")
	}
	return b.String()
}
