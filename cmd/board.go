package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/pmdash/internal/board"
	"github.com/joescharf/pmdash/internal/client"
	"github.com/joescharf/pmdash/internal/collection"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/output"
	"github.com/joescharf/pmdash/internal/store"
)

var (
	boardSearch   string
	boardPriority string
	boardAssignee string
	boardProject  string
	boardSort     string
	boardNoHold   bool
	moveYes       bool
)

// promptIn is where confirmation answers are read from; tests replace it.
var promptIn io.Reader = os.Stdin

var boardCmd = &cobra.Command{
	Use:     "board",
	Aliases: []string{"b"},
	Short:   "Show the task board",
	Long: `Show tasks grouped into status columns.

Filters combine: a task is shown only when it matches every one given.
--search matches title, description or assignee name, ignoring case.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardShowRun()
	},
}

var boardMoveCmd = &cobra.Command{
	Use:   "move <task> <status>",
	Short: "Move a task to another column",
	Long: `Move a task to another column after confirmation.

Status is one of: todo, progress, testing, hold, completed.
Moving a task to the column it is already in does nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardMoveRun(args[0], args[1])
	},
}

var boardMenuCmd = &cobra.Command{
	Use:   "menu <task>",
	Short: "List the columns a task can move to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardMenuRun(args[0])
	},
}

var boardWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Redraw the board whenever a running server reports a change",
	Long: `Connect to a running 'pmdash serve' and redraw the board after every
task change. The server is taken from server_url, then from a local
'pmdash serve start', then localhost on the configured port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardWatchRun(cmd.Context())
	},
}

func init() {
	for _, c := range []*cobra.Command{boardCmd, boardWatchCmd} {
		c.Flags().StringVarP(&boardSearch, "search", "s", "", "Search title, description and assignee")
		c.Flags().StringVar(&boardPriority, "priority", "", "Filter by priority: high, medium, low")
		c.Flags().StringVar(&boardAssignee, "assignee", "", "Filter by assignee name or ID")
		c.Flags().StringVar(&boardProject, "project", "", "Filter by project name or ID")
		c.Flags().StringVar(&boardSort, "sort", "", "Sort by: created (default), due_date, priority, title")
		c.Flags().BoolVar(&boardNoHold, "no-hold", false, "Hide the hold column")
	}
	boardMoveCmd.Flags().BoolVarP(&moveYes, "yes", "y", false, "Skip the confirmation prompt")
	boardMoveCmd.Flags().BoolVar(&boardNoHold, "no-hold", false, "Use the board without a hold column")
	boardMenuCmd.Flags().BoolVar(&boardNoHold, "no-hold", false, "Use the board without a hold column")

	boardCmd.AddCommand(boardMoveCmd)
	boardCmd.AddCommand(boardMenuCmd)
	boardCmd.AddCommand(boardWatchCmd)
	rootCmd.AddCommand(boardCmd)
}

// boardOptions turns the flags into board options, resolving assignee and
// project names to IDs through s. With a nil s the flags are taken as IDs.
func boardOptions(ctx context.Context, s store.Store) (board.Options, error) {
	key, err := board.ParseSortKey(boardSort)
	if err != nil {
		return board.Options{}, err
	}
	f := board.Filter{Search: boardSearch, Priority: boardPriority}
	if boardPriority != "" && boardPriority != board.All {
		if p := models.ParsePriority(boardPriority); p == models.PriorityUnknown {
			return board.Options{}, fmt.Errorf("unknown priority %q (want high, medium or low)", boardPriority)
		}
	}
	if s != nil {
		if f.AssigneeID, err = memberID(ctx, s, boardAssignee); err != nil {
			return board.Options{}, err
		}
		if f.ProjectID, err = projectID(ctx, s, boardProject); err != nil {
			return board.Options{}, err
		}
	} else {
		f.AssigneeID, f.ProjectID = boardAssignee, boardProject
	}
	return board.Options{Filter: f, Sort: key, Layout: board.LayoutFor(!boardNoHold)}, nil
}

func boardShowRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	opts, err := boardOptions(ctx, s)
	if err != nil {
		return err
	}
	tasks, err := s.ListTasks(ctx, store.TaskListFilter{})
	if err != nil {
		return err
	}

	renderBoard(ui.Out, board.Build(tasks, opts))
	return nil
}

// renderBoard prints each column as a titled list.
func renderBoard(w io.Writer, b board.Board) {
	for _, col := range b.Columns {
		fmt.Fprintf(w, "%s (%d)\n", output.StatusColor(string(col.Status))+" "+col.Label, len(col.Tasks))
		if len(col.Tasks) == 0 {
			fmt.Fprintln(w, "  -")
		}
		for _, t := range col.Tasks {
			fmt.Fprintf(w, "  %s  %s", shortID(t.ID), t.Title)
			var meta []string
			if t.Priority != models.PriorityUnknown {
				meta = append(meta, output.PriorityColor(string(t.Priority)))
			}
			if name := t.AssigneeName(); name != "" {
				meta = append(meta, "@"+name)
			}
			if t.DueDate != nil {
				meta = append(meta, "due "+t.DueDate.String())
			}
			if len(t.Tags) > 0 {
				meta = append(meta, "#"+strings.Join(t.Tags, " #"))
			}
			if len(meta) > 0 {
				fmt.Fprintf(w, "  [%s]", strings.Join(meta, ", "))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	if len(b.Unrecognized) > 0 {
		fmt.Fprintf(w, "%s (%d)\n", output.Red("Unrecognized status"), len(b.Unrecognized))
		for _, t := range b.Unrecognized {
			raw := t.StatusRaw
			if raw == "" {
				raw = string(t.Status)
			}
			fmt.Fprintf(w, "  %s  %s  [status %q]\n", shortID(t.ID), t.Title, raw)
		}
		fmt.Fprintln(w)
	}
}

// confirm asks question on the terminal; only y/yes accepts.
func confirm(question string) bool {
	fmt.Fprintf(ui.Out, "%s [y/N] ", question)
	line, err := bufio.NewReader(promptIn).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func boardMoveRun(taskRef, status string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	task, err := findTask(ctx, s, taskRef)
	if err != nil {
		return err
	}
	layout := board.LayoutFor(!boardNoHold)
	pending, err := board.RequestMove(task, models.ParseTaskStatus(status), layout)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would move %q from %s to %s", task.Title, task.Status.Label(), pending.To.Label())
		return nil
	}
	if !moveYes && pending.To != task.Status && !confirm(pending.Prompt()) {
		pending.Cancel()
		ui.Info("Move cancelled")
		return nil
	}

	mover := &board.Mover{
		Updater:  s,
		Notifier: uiNotifier{},
		Refetch: func(ctx context.Context) error {
			t, err := s.GetTask(ctx, task.ID)
			if err != nil {
				return err
			}
			task = t
			return nil
		},
		Logger: newLogger(),
	}
	result, err := pending.Confirm(ctx, mover, cliIdentity())
	if err != nil {
		return err
	}
	if result == board.ResultNoop {
		ui.VerboseLog("%q is already in %s", task.Title, task.Status.Label())
	}
	return nil
}

func boardMenuRun(taskRef string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	task, err := findTask(context.Background(), s, taskRef)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s  (%s)\n", shortID(task.ID), task.Title, task.Status.Label())
	for _, opt := range board.MenuOptions(task, board.LayoutFor(!boardNoHold)) {
		if opt.Disabled {
			fmt.Fprintf(ui.Out, "  %s  %s\n", output.Yellow("-"), opt.Label+" (current)")
			continue
		}
		fmt.Fprintf(ui.Out, "  %s  %s\n", output.Green(string(opt.Status)), opt.Label)
	}
	return nil
}

// watchServerURL is server_url, else the URL a local background server
// recorded, else localhost on the configured port.
func watchServerURL() string {
	if u := viper.GetString("server_url"); u != "" {
		return u
	}
	if rec, err := pidFile().Load(); err == nil && rec.URL != "" {
		if _, running := pidFile().IsRunning(); running {
			return rec.URL
		}
	}
	return fmt.Sprintf("http://localhost:%d", viper.GetInt("port"))
}

func boardWatchRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	// Names are resolved by the server's IDs, so filters here take IDs.
	opts, err := boardOptions(ctx, nil)
	if err != nil {
		return err
	}

	c := client.New(watchServerURL(), viper.GetString("token"))
	if err := c.HealthCheck(ctx); err != nil {
		return fmt.Errorf("server not reachable at %s: %w", c.BaseURL, err)
	}

	tasks := collection.Tasks(c, c, opts.Filter.ProjectID, newLogger())
	if err := tasks.Mount(ctx); err != nil {
		return err
	}
	defer tasks.Unmount()

	draw := func() {
		fmt.Fprint(ui.Out, "\033[H\033[2J")
		fmt.Fprintf(ui.Out, "%s  %s\n\n", output.Cyan("pmdash board"), c.BaseURL)
		renderBoard(ui.Out, board.Build(tasks.Items(), opts))
		if err := tasks.Err(); err != nil {
			ui.Warning("Last refresh failed: %v", err)
		}
	}
	draw()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tasks.Changes():
			draw()
		}
	}
}
