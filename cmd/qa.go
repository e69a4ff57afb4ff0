package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/pmdash/internal/blob"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/llm"
	"github.com/joescharf/pmdash/internal/models"
	"github.com/joescharf/pmdash/internal/output"
)

var (
	qaDescription string
	qaSeverity    string
	qaStatus      string
	qaTester      string
	qaProject     string
	qaExpected    string
	qaActual      string
	qaSteps       string
	qaIssueType   string
	qaScreenshot  string
	qaClassify    bool
	qaApply       bool

	testType  string
	testNotes string
)

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "Track QA issues and test cases",
}

var qaIssueCmd = &cobra.Command{
	Use:     "issue",
	Aliases: []string{"issues", "i"},
	Short:   "Manage QA issues",
}

var qaIssueAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Report a QA issue",
	Long: `Report a QA issue. Team members named as @Name in the description are
recorded as mentions.

With --classify, an empty severity and issue type are inferred from the title.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaIssueAddRun(cmd, args[0])
	},
}

var qaIssueEditCmd = &cobra.Command{
	Use:   "edit <issue>",
	Short: "Update a QA issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaIssueEditRun(cmd, args[0])
	},
}

var qaIssueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List QA issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaIssueListRun()
	},
}

var qaIssueShowCmd = &cobra.Command{
	Use:   "show <issue>",
	Short: "Show a QA issue with attachments and mentions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaIssueShowRun(args[0])
	},
}

var qaIssueRemoveCmd = &cobra.Command{
	Use:     "remove <issue>",
	Aliases: []string{"rm"},
	Short:   "Delete a QA issue and its attachments",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaIssueRemoveRun(args[0])
	},
}

var qaIssueAttachCmd = &cobra.Command{
	Use:   "attach <issue> <file>",
	Short: "Attach a file to a QA issue",
	Long:  "Attach an image, PDF, Word or text file (10 MB limit by default) to a QA issue.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaIssueAttachRun(args[0], args[1])
	},
}

var qaIssueEnrichCmd = &cobra.Command{
	Use:   "enrich <issue>",
	Short: "Fill out a QA issue report with an LLM",
	Long: `Ask the LLM to write the description, reproduction steps, expected and
actual results from what the issue already says. Use --apply to save them.

Requires ANTHROPIC_API_KEY or anthropic.api_key in config.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaIssueEnrichRun(cmd.Context(), args[0])
	},
}

var qaTestCmd = &cobra.Command{
	Use:     "test",
	Aliases: []string{"tests"},
	Short:   "Manage test cases",
}

var qaTestAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a test case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaTestAddRun(cmd, args[0])
	},
}

var qaTestEditCmd = &cobra.Command{
	Use:   "edit <test>",
	Short: "Update a test case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaTestEditRun(cmd, args[0])
	},
}

var qaTestListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List test cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaTestListRun()
	},
}

var qaTestStatusCmd = &cobra.Command{
	Use:   "status <test> <status>",
	Short: "Record a test result: pending, pass, fail, retest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaTestStatusRun(args[0], args[1])
	},
}

var qaTestRemoveCmd = &cobra.Command{
	Use:     "remove <test>",
	Aliases: []string{"rm"},
	Short:   "Delete a test case",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return qaTestRemoveRun(args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{qaIssueAddCmd, qaIssueEditCmd} {
		c.Flags().StringVarP(&qaDescription, "description", "d", "", "Description; @Name mentions a team member")
		c.Flags().StringVar(&qaSeverity, "severity", "", "Severity: critical, high, medium (default), low")
		c.Flags().StringVar(&qaStatus, "status", "", "Status: open, in-progress, resolved, cant-reproduce, rejected")
		c.Flags().StringVar(&qaTester, "tester", "", "Assigned tester name or ID")
		c.Flags().StringVar(&qaProject, "project", "", "Project name or ID")
		c.Flags().StringVar(&qaExpected, "expected", "", "Expected result")
		c.Flags().StringVar(&qaActual, "actual", "", "Actual result")
		c.Flags().StringVar(&qaSteps, "steps", "", "Steps to reproduce")
		c.Flags().StringVar(&qaIssueType, "type", "", "Issue type: bug, ui, performance, security, functional")
		c.Flags().StringVar(&qaScreenshot, "screenshot", "", "Screenshot URL")
	}
	qaIssueAddCmd.Flags().BoolVar(&qaClassify, "classify", false, "Infer severity and type from the title")
	qaIssueEditCmd.Flags().String("title", "", "New title")
	qaIssueListCmd.Flags().StringVar(&qaProject, "project", "", "Only this project's issues")
	qaIssueListCmd.Flags().StringVar(&qaStatus, "status", "", "Only issues with this status")
	qaIssueEnrichCmd.Flags().BoolVar(&qaApply, "apply", false, "Save the generated fields on the issue")

	for _, c := range []*cobra.Command{qaTestAddCmd, qaTestEditCmd} {
		c.Flags().StringVar(&testType, "type", "", "Type: functional (default), ui, api, integration, performance")
		c.Flags().StringVar(&qaSeverity, "severity", "", "Severity: critical, high, medium (default), low")
		c.Flags().StringVar(&qaStatus, "status", "", "Status: pending (default), pass, fail, retest")
		c.Flags().StringVar(&qaTester, "tester", "", "Assigned tester name or ID")
		c.Flags().StringVar(&qaProject, "project", "", "Project name or ID")
		c.Flags().StringVar(&testNotes, "notes", "", "Notes")
		c.Flags().StringVar(&qaScreenshot, "screenshot", "", "Screenshot URL")
	}
	qaTestEditCmd.Flags().String("title", "", "New title")
	qaTestListCmd.Flags().StringVar(&qaProject, "project", "", "Only this project's test cases")

	qaIssueCmd.AddCommand(qaIssueAddCmd)
	qaIssueCmd.AddCommand(qaIssueEditCmd)
	qaIssueCmd.AddCommand(qaIssueListCmd)
	qaIssueCmd.AddCommand(qaIssueShowCmd)
	qaIssueCmd.AddCommand(qaIssueRemoveCmd)
	qaIssueCmd.AddCommand(qaIssueAttachCmd)
	qaIssueCmd.AddCommand(qaIssueEnrichCmd)

	qaTestCmd.AddCommand(qaTestAddCmd)
	qaTestCmd.AddCommand(qaTestEditCmd)
	qaTestCmd.AddCommand(qaTestListCmd)
	qaTestCmd.AddCommand(qaTestStatusCmd)
	qaTestCmd.AddCommand(qaTestRemoveCmd)

	qaCmd.AddCommand(qaIssueCmd)
	qaCmd.AddCommand(qaTestCmd)
	rootCmd.AddCommand(qaCmd)
}

// --- Issues ---

func applyQAIssueFlags(ctx context.Context, cmd *cobra.Command, in *forms.QAIssueInput) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	if flags.Changed("title") {
		in.Title, _ = flags.GetString("title")
	}
	set("description", &in.Description, qaDescription)
	set("severity", &in.Severity, qaSeverity)
	set("status", &in.Status, qaStatus)
	set("expected", &in.ExpectedResult, qaExpected)
	set("actual", &in.ActualResult, qaActual)
	set("steps", &in.StepsToReproduce, qaSteps)
	set("type", &in.IssueType, qaIssueType)
	set("screenshot", &in.ScreenshotURL, qaScreenshot)
	if flags.Changed("tester") {
		if in.AssignedTesterID, err = memberID(ctx, s, qaTester); err != nil {
			return err
		}
	}
	if flags.Changed("project") {
		if in.ProjectID, err = projectID(ctx, s, qaProject); err != nil {
			return err
		}
	}
	return nil
}

func qaIssueAddRun(cmd *cobra.Command, title string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	in := forms.QAIssueInput{Title: title, Classify: qaClassify}
	if err := applyQAIssueFlags(ctx, cmd, &in); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would report QA issue: %s", title)
		return nil
	}

	q, err := newSubmitter(s).SaveQAIssue(ctx, cliIdentity(), in)
	if err != nil {
		return err
	}
	ui.VerboseLog("ID: %s  severity: %s  type: %s", q.ID, q.Severity, q.IssueType)
	for _, m := range q.Mentions {
		ui.VerboseLog("Mentioned: %s", m.MentionedUserID)
	}
	return nil
}

func qaIssueEditRun(cmd *cobra.Command, ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	q, err := findQAIssue(ctx, s, ref)
	if err != nil {
		return err
	}
	in := forms.EditQAIssue(q)
	if err := applyQAIssueFlags(ctx, cmd, &in); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update QA issue: %s", q.Title)
		return nil
	}

	_, err = newSubmitter(s).SaveQAIssue(ctx, cliIdentity(), in)
	return err
}

func qaIssueListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	pid, err := projectID(ctx, s, qaProject)
	if err != nil {
		return err
	}
	var want models.QAStatus
	if qaStatus != "" {
		if want = models.ParseQAStatus(qaStatus); want == models.QAStatusUnknown {
			return fmt.Errorf("unknown QA status %q", qaStatus)
		}
	}

	issues, err := s.ListQAIssues(ctx, pid)
	if err != nil {
		return err
	}

	table := ui.Table([]string{"ID", "Title", "Severity", "Status", "Type", "Tester", "Files"})
	shown := 0
	for _, q := range issues {
		if want != "" && q.Status != want {
			continue
		}
		tester := "-"
		if q.Tester != nil {
			tester = q.Tester.Name
		}
		_ = table.Append([]string{
			shortID(q.ID),
			q.Title,
			output.PriorityColor(string(q.Severity)),
			output.StatusColor(string(q.Status)),
			q.IssueType,
			tester,
			fmt.Sprintf("%d", len(q.Attachments)),
		})
		shown++
	}
	if shown == 0 {
		ui.Info("No QA issues found")
		return nil
	}
	return table.Render()
}

func qaIssueShowRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	q, err := findQAIssue(ctx, s, ref)
	if err != nil {
		return err
	}
	if q.Mentions == nil {
		if q.Mentions, err = s.ListQAMentions(ctx, q.ID); err != nil {
			return err
		}
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(q.Title), q.ID)
	if q.Description != "" {
		fmt.Fprintf(ui.Out, "  %s\n", q.Description)
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "  Severity:  %s\n", output.PriorityColor(string(q.Severity)))
	fmt.Fprintf(ui.Out, "  Status:    %s\n", output.StatusColor(string(q.Status)))
	if q.IssueType != "" {
		fmt.Fprintf(ui.Out, "  Type:      %s\n", q.IssueType)
	}
	if q.Tester != nil {
		fmt.Fprintf(ui.Out, "  Tester:    %s\n", q.Tester.Name)
	}
	for _, f := range []struct{ label, value string }{
		{"Steps to reproduce", q.StepsToReproduce},
		{"Expected", q.ExpectedResult},
		{"Actual", q.ActualResult},
	} {
		if f.value != "" {
			fmt.Fprintf(ui.Out, "\n  %s:\n    %s\n", f.label, f.value)
		}
	}

	if len(q.Attachments) > 0 {
		fmt.Fprintf(ui.Out, "\n  Attachments:\n")
		for _, a := range q.Attachments {
			fmt.Fprintf(ui.Out, "    %s  %s  %s  %s\n", shortID(a.ID), a.FileName, formatBytes(a.FileSize), a.FileURL)
		}
	}
	if len(q.Mentions) > 0 {
		fmt.Fprintf(ui.Out, "\n  Mentions:\n")
		for _, m := range q.Mentions {
			name := m.MentionedUserID
			if member, err := s.GetTeamMember(ctx, m.MentionedUserID); err == nil {
				name = member.Name
			}
			fmt.Fprintf(ui.Out, "    @%s  %s\n", name, timeAgo(m.CreatedAt))
		}
	}
	fmt.Fprintf(ui.Out, "\n  Reported:  %s\n", timeAgo(q.CreatedAt))
	return nil
}

func qaIssueRemoveRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	q, err := findQAIssue(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete QA issue: %s (%d attachments)", q.Title, len(q.Attachments))
		return nil
	}

	if err := s.DeleteQAIssue(ctx, q.ID); err != nil {
		ui.Error("Failed to delete QA issue")
		return fmt.Errorf("delete qa issue: %w", err)
	}

	if len(q.Attachments) > 0 {
		if blobs, err := newBlobStore(); err == nil {
			for _, a := range q.Attachments {
				if rel, ok := blobs.PathFromURL(a.FileURL); ok {
					if err := blobs.Delete(rel); err != nil {
						ui.Warning("Could not remove %s: %v", a.FileName, err)
					}
				}
			}
		}
	}
	ui.Success("Deleted QA issue: %s", q.Title)
	return nil
}

// newBlobStore opens the attachment store from config.
func newBlobStore() (*blob.Store, error) {
	maxSize := int64(viper.GetInt("blob.max_size_mb")) << 20
	return blob.NewStore(viper.GetString("blob_dir"), serveURL(), maxSize, newLogger())
}

func qaIssueAttachRun(ref, path string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	q, err := findQAIssue(ctx, s, ref)
	if err != nil {
		return err
	}
	id := cliIdentity()
	if err := id.Require(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	if dryRun {
		ui.DryRunMsg("Would attach %s to %s", path, q.Title)
		return nil
	}

	blobs, err := newBlobStore()
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	obj, err := blobs.Put(ctx, id.UserID, name, f)
	if err != nil {
		ui.Error("Failed to upload %s", name)
		return err
	}

	att := &models.QAAttachment{
		QAIssueID:  q.ID,
		FileName:   name,
		FileType:   obj.ContentType,
		FileSize:   obj.Size,
		FileURL:    obj.URL,
		UploadedBy: id.UserID,
	}
	if err := s.AddQAAttachment(ctx, att); err != nil {
		_ = blobs.Delete(obj.Path)
		return fmt.Errorf("record attachment: %w", err)
	}
	ui.Success("Attached %s (%s) to %s", name, formatBytes(obj.Size), q.Title)
	ui.VerboseLog("URL: %s", obj.URL)
	return nil
}

func qaIssueEnrichRun(ctx context.Context, ref string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client := newLLMClient()
	if client == nil {
		return fmt.Errorf("ANTHROPIC_API_KEY not set (set env var or anthropic.api_key in config)")
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	q, err := findQAIssue(ctx, s, ref)
	if err != nil {
		return err
	}

	ui.Info("Enriching %q with LLM (%s)...", q.Title, viper.GetString("anthropic.model"))
	enriched, err := client.EnrichQAIssue(ctx, llm.QAIssueDraft{
		Title:            q.Title,
		Description:      q.Description,
		StepsToReproduce: q.StepsToReproduce,
		ExpectedResult:   q.ExpectedResult,
		ActualResult:     q.ActualResult,
	})
	if err != nil {
		return fmt.Errorf("enrich qa issue: %w", err)
	}

	fmt.Fprintf(ui.Out, "\nDescription:\n  %s\n", enriched.Description)
	fmt.Fprintf(ui.Out, "\nSteps to reproduce:\n  %s\n", enriched.StepsToReproduce)
	fmt.Fprintf(ui.Out, "\nExpected:\n  %s\n", enriched.ExpectedResult)
	fmt.Fprintf(ui.Out, "\nActual:\n  %s\n\n", enriched.ActualResult)

	if !qaApply || dryRun {
		if qaApply {
			ui.DryRunMsg("Would save enriched fields on %s", q.Title)
		}
		return nil
	}

	in := forms.EditQAIssue(q)
	in.Description = enriched.Description
	in.StepsToReproduce = enriched.StepsToReproduce
	in.ExpectedResult = enriched.ExpectedResult
	in.ActualResult = enriched.ActualResult
	_, err = newSubmitter(s).SaveQAIssue(ctx, cliIdentity(), in)
	return err
}

// --- Test cases ---

func applyTestCaseFlags(ctx context.Context, cmd *cobra.Command, in *forms.TestCaseInput) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("title") {
		in.Title, _ = flags.GetString("title")
	}
	if flags.Changed("type") {
		in.TestType = testType
	}
	if flags.Changed("severity") {
		in.Severity = qaSeverity
	}
	if flags.Changed("status") {
		in.Status = qaStatus
	}
	if flags.Changed("notes") {
		in.Notes = testNotes
	}
	if flags.Changed("screenshot") {
		in.ScreenshotURL = qaScreenshot
	}
	if flags.Changed("tester") {
		if in.AssignedTesterID, err = memberID(ctx, s, qaTester); err != nil {
			return err
		}
	}
	if flags.Changed("project") {
		if in.ProjectID, err = projectID(ctx, s, qaProject); err != nil {
			return err
		}
	}
	return nil
}

func qaTestAddRun(cmd *cobra.Command, title string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	in := forms.TestCaseInput{Title: title}
	if err := applyTestCaseFlags(ctx, cmd, &in); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create test case: %s", title)
		return nil
	}

	_, err = newSubmitter(s).SaveTestCase(ctx, cliIdentity(), in)
	return err
}

func qaTestEditRun(cmd *cobra.Command, ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	tc, err := findTestCase(ctx, s, ref)
	if err != nil {
		return err
	}
	in := forms.EditTestCase(tc)
	if err := applyTestCaseFlags(ctx, cmd, &in); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update test case: %s", tc.Title)
		return nil
	}

	_, err = newSubmitter(s).SaveTestCase(ctx, cliIdentity(), in)
	return err
}

func qaTestListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	pid, err := projectID(ctx, s, qaProject)
	if err != nil {
		return err
	}
	cases, err := s.ListTestCases(ctx, pid)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		ui.Info("No test cases found")
		return nil
	}

	counts := make(map[models.TestStatus]int)
	table := ui.Table([]string{"ID", "Title", "Type", "Severity", "Status"})
	for _, tc := range cases {
		counts[tc.Status]++
		_ = table.Append([]string{
			shortID(tc.ID),
			tc.Title,
			string(tc.TestType),
			output.PriorityColor(string(tc.Severity)),
			output.StatusColor(string(tc.Status)),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "\n%s pass, %s fail, %d pending, %d retest\n",
		output.Green(fmt.Sprintf("%d", counts[models.TestPass])),
		output.Red(fmt.Sprintf("%d", counts[models.TestFail])),
		counts[models.TestPending], counts[models.TestRetest])
	return nil
}

func qaTestStatusRun(ref, status string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	tc, err := findTestCase(ctx, s, ref)
	if err != nil {
		return err
	}
	want := models.ParseTestStatus(status)
	if want == models.TestStatusUnknown {
		return fmt.Errorf("unknown test status %q (want pending, pass, fail or retest)", status)
	}
	if want == tc.Status {
		ui.VerboseLog("%q is already %s", tc.Title, want)
		return nil
	}
	if err := cliIdentity().Require(); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would mark %q as %s", tc.Title, want)
		return nil
	}

	if err := s.UpdateTestCaseStatus(ctx, tc.ID, want); err != nil {
		ui.Error("Failed to update test status")
		return fmt.Errorf("update test status: %w", err)
	}
	ui.Success("Test %q marked %s", tc.Title, output.StatusColor(string(want)))
	return nil
}

func qaTestRemoveRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	tc, err := findTestCase(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete test case: %s", tc.Title)
		return nil
	}

	if err := s.DeleteTestCase(ctx, tc.ID); err != nil {
		return fmt.Errorf("delete test case: %w", err)
	}
	ui.Success("Deleted test case: %s", tc.Title)
	return nil
}
