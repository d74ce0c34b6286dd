package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) printIdea(opts *ideaOptions, verb string, i *idea.Idea) error {
	if opts.outputJSON {
		return a.printJSON(i)
	}
	_, _ = fmt.Fprintf(a.stdout, "%s idea %s\n", verb, i.ID)
	a.writeIdea(i)
	return nil
}

func (a *App) writeIdea(i *idea.Idea) {
	_, _ = fmt.Fprintf(a.stdout, "  Title:   %s\n", i.Title)
	if i.Description != "" {
		_, _ = fmt.Fprintf(a.stdout, "  Description: %s\n", i.Description)
	}
	_, _ = fmt.Fprintf(a.stdout, "  Status:  %s\n", i.Status)
	_, _ = fmt.Fprintf(a.stdout, "  Version: %d\n", i.Version)
	if i.Owner != "" {
		_, _ = fmt.Fprintf(a.stdout, "  Owner:   %s\n", i.Owner)
	}
	if len(i.Tags) > 0 {
		_, _ = fmt.Fprintf(a.stdout, "  Tags:    %s\n", strings.Join(i.Tags, ", "))
	}
	_, _ = fmt.Fprintf(a.stdout, "  Updated: %s\n", i.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func (a *App) writeNext(s idea.Status) {
	next := idea.Lifecycle().AllowedTransitions(s)
	if len(next) == 0 {
		_, _ = fmt.Fprintf(a.stdout, "  Next:    none (terminal)\n")
		return
	}
	labels := make([]string, len(next))
	for i, n := range next {
		labels[i] = string(n)
	}
	_, _ = fmt.Fprintf(a.stdout, "  Next:    %s\n", strings.Join(labels, ", "))
}
