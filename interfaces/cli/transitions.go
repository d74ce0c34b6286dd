package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

type transitionsOptions struct {
	outputJSON bool
	dot        bool
}

func (a *App) newTransitionsCmd() *cobra.Command {
	opts := &transitionsOptions{}

	cmd := &cobra.Command{
		Use:   "transitions",
		Short: "Print the idea lifecycle graph",
		Long: `Print every lifecycle status with the statuses it may move to.

Examples:
  ideaflow transitions
  ideaflow transitions --json
  ideaflow transitions --dot | dot -Tpng > lifecycle.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printTransitions(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.outputJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.dot, "dot", false, "Output as a Graphviz digraph")

	return cmd
}

func (a *App) printTransitions(opts *transitionsOptions) error {
	sm := idea.Lifecycle()
	states := lifecycleOrder()

	switch {
	case opts.outputJSON:
		graph := make(map[idea.Status][]idea.Status, len(states))
		for _, s := range states {
			graph[s] = sm.AllowedTransitions(s)
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(graph)

	case opts.dot:
		_, _ = fmt.Fprintln(a.stdout, "digraph idea {")
		for _, s := range states {
			if sm.IsTerminal(s) {
				_, _ = fmt.Fprintf(a.stdout, "  %q [shape=doublecircle];\n", s)
			}
			for _, next := range sm.AllowedTransitions(s) {
				_, _ = fmt.Fprintf(a.stdout, "  %q -> %q;\n", s, next)
			}
		}
		_, _ = fmt.Fprintln(a.stdout, "}")
		return nil
	}

	for _, s := range states {
		next := sm.AllowedTransitions(s)
		if len(next) == 0 {
			_, _ = fmt.Fprintf(a.stdout, "  %-11s (terminal)\n", s)
			continue
		}
		labels := make([]string, len(next))
		for i, n := range next {
			labels[i] = string(n)
		}
		_, _ = fmt.Fprintf(a.stdout, "  %-11s -> %s\n", s, strings.Join(labels, ", "))
	}
	return nil
}

// lifecycleOrder lists statuses breadth-first from draft, followed by any
// status draft cannot reach.
func lifecycleOrder() []idea.Status {
	sm := idea.Lifecycle()
	seen := map[idea.Status]bool{idea.StatusDraft: true}
	order := []idea.Status{idea.StatusDraft}
	for i := 0; i < len(order); i++ {
		for _, next := range sm.AllowedTransitions(order[i]) {
			if !seen[next] {
				seen[next] = true
				order = append(order, next)
			}
		}
	}
	for _, s := range sm.States() {
		if !seen[s] {
			order = append(order, s)
		}
	}
	return order
}
