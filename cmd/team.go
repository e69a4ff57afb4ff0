package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/health"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/output"
	"github.com/joescharf/pmdash/internal/store"
)

var (
	memberRole     string
	memberAvatar   string
	memberCapacity int
	memberSkills   []string
	memberStatus   string
	workloadProj   string
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage the team roster",
	Long:  "Add, edit and list team members and see their workload.",
}

var teamAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a team member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return teamAddRun(cmd, args[0])
	},
}

var teamEditCmd = &cobra.Command{
	Use:   "edit <member>",
	Short: "Update a team member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return teamEditRun(cmd, args[0])
	},
}

var teamListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List team members",
	RunE: func(cmd *cobra.Command, args []string) error {
		return teamListRun()
	},
}

var teamRemoveCmd = &cobra.Command{
	Use:     "remove <member>",
	Aliases: []string{"rm"},
	Short:   "Remove a team member",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return teamRemoveRun(args[0])
	},
}

var teamWorkloadCmd = &cobra.Command{
	Use:   "workload",
	Short: "Show each member's active tasks against capacity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return teamWorkloadRun()
	},
}

func init() {
	for _, c := range []*cobra.Command{teamAddCmd, teamEditCmd} {
		c.Flags().StringVar(&memberRole, "role", "", "Role: Dev (default), QA, UI/UX, BA")
		c.Flags().StringVar(&memberAvatar, "avatar", "", "Avatar URL")
		c.Flags().IntVar(&memberCapacity, "capacity", 0, fmt.Sprintf("Max concurrent tasks (default %d)", models.DefaultMaxCapacity))
		c.Flags().StringSliceVar(&memberSkills, "skill", nil, "Skill (repeatable)")
		c.Flags().StringVar(&memberStatus, "status", "", "Status: available, busy, overloaded")
	}
	teamEditCmd.Flags().String("name", "", "New name")
	teamWorkloadCmd.Flags().StringVar(&workloadProj, "project", "", "Only count this project's tasks and team")

	teamCmd.AddCommand(teamAddCmd)
	teamCmd.AddCommand(teamEditCmd)
	teamCmd.AddCommand(teamListCmd)
	teamCmd.AddCommand(teamRemoveCmd)
	teamCmd.AddCommand(teamWorkloadCmd)
	rootCmd.AddCommand(teamCmd)
}

func applyMemberFlags(cmd *cobra.Command, in *forms.MemberInput) {
	flags := cmd.Flags()
	if flags.Changed("name") {
		in.Name, _ = flags.GetString("name")
	}
	if flags.Changed("role") {
		in.Role = memberRole
	}
	if flags.Changed("avatar") {
		in.AvatarURL = memberAvatar
	}
	if flags.Changed("capacity") {
		in.MaxCapacity = memberCapacity
	}
	if flags.Changed("skill") {
		in.Skills = memberSkills
	}
	if flags.Changed("status") {
		in.Status = memberStatus
	}
}

func teamAddRun(cmd *cobra.Command, name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	in := forms.MemberInput{Name: name}
	applyMemberFlags(cmd, &in)

	if dryRun {
		ui.DryRunMsg("Would add team member: %s", name)
		return nil
	}

	m, err := newSubmitter(s).SaveTeamMember(context.Background(), cliIdentity(), in)
	if err != nil {
		return err
	}
	ui.VerboseLog("ID: %s", m.ID)
	return nil
}

func teamEditRun(cmd *cobra.Command, ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	m, err := findMember(ctx, s, ref)
	if err != nil {
		return err
	}
	in := forms.EditTeamMember(m)
	applyMemberFlags(cmd, &in)

	if dryRun {
		ui.DryRunMsg("Would update team member: %s", m.Name)
		return nil
	}

	_, err = newSubmitter(s).SaveTeamMember(ctx, cliIdentity(), in)
	return err
}

func teamListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	members, err := s.ListTeamMembers(context.Background())
	if err != nil {
		return err
	}
	if len(members) == 0 {
		ui.Info("No team members yet. Use 'pmdash team add <name>' to add one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Role", "Status", "Capacity", "Skills"})
	for _, m := range members {
		_ = table.Append([]string{
			shortID(m.ID),
			m.Name,
			string(m.Role),
			output.LoadColor(string(m.Status)),
			fmt.Sprintf("%d", m.MaxCapacity),
			strings.Join(m.Skills, ", "),
		})
	}
	return table.Render()
}

func teamRemoveRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	m, err := findMember(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove team member: %s", m.Name)
		return nil
	}

	if err := s.DeleteTeamMember(ctx, m.ID); err != nil {
		return fmt.Errorf("remove team member: %w", err)
	}
	ui.Success("Removed team member: %s", m.Name)
	return nil
}

func teamWorkloadRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	pid, err := projectID(ctx, s, workloadProj)
	if err != nil {
		return err
	}
	members, err := s.ListTeamMembers(ctx)
	if err != nil {
		return err
	}
	if pid != "" {
		roster, err := s.ListProjectMembers(ctx, pid)
		if err != nil {
			return err
		}
		members = make([]*models.TeamMember, 0, len(roster))
		for _, ptm := range roster {
			if ptm.Member != nil {
				members = append(members, ptm.Member)
			}
		}
	}
	tasks, err := s.ListTasks(ctx, store.TaskListFilter{ProjectID: pid})
	if err != nil {
		return err
	}

	loads := health.ComputeWorkload(members, tasks)
	if len(loads) == 0 {
		ui.Info("No team members")
		return nil
	}

	table := ui.Table([]string{"Name", "Role", "Active", "Load", "Status", "Reported"})
	for _, w := range loads {
		_ = table.Append([]string{
			w.Name,
			string(w.Role),
			fmt.Sprintf("%d/%d", w.ActiveTasks, w.Capacity),
			output.ProgressBar(int(w.Ratio*100), 10),
			output.LoadColor(string(w.Status)),
			string(w.Reported),
		})
	}
	return table.Render()
}
