package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-marks-api/internal/models"
	"github.com/noah-isme/sma-marks-api/internal/repository"
	"github.com/noah-isme/sma-marks-api/internal/service"
	"github.com/noah-isme/sma-marks-api/pkg/config"
	"github.com/noah-isme/sma-marks-api/pkg/logger"
)

const defaultDataFile = "studentMarks.txt"

// cli carries the state shared by every subcommand.
type cli struct {
	out      io.Writer
	filePath string
	logLevel string

	logger *zap.Logger
	store  *service.RecordStore
	loaded *models.LoadResult
}

func newRootCmd(out io.Writer) *cobra.Command {
	app := &cli{out: out}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Manage a student marks data file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "help":
				return nil
			}
			return app.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}
	cmd.SetOut(out)
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVar(&app.filePath, "file", "", "Data file (default: MARKS_DATA_FILE or ./studentMarks.txt)")
	cmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		app.listCmd(),
		app.addCmd(),
		app.editCmd(),
		app.deleteCmd(),
		app.findCmd(),
		app.searchCmd(),
		app.sortCmd(),
		app.extremeCmd("best", models.ExtremeMax, "Show the highest scoring student"),
		app.extremeCmd("worst", models.ExtremeMin, "Show the lowest scoring student"),
		app.summaryCmd(),
		app.exportCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

// resolvePath applies --file, then MARKS_DATA_FILE, then the working directory default.
func (a *cli) resolvePath() string {
	if strings.TrimSpace(a.filePath) != "" {
		return a.filePath
	}
	if cfg, err := config.Load(); err == nil && strings.TrimSpace(cfg.Store.DataFile) != "" {
		return cfg.Store.DataFile
	}
	return defaultDataFile
}

func (a *cli) open(ctx context.Context) error {
	log, err := logger.NewCLI(a.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", a.logLevel, err)
	}
	a.logger = log
	a.store = service.NewRecordStore(repository.NewRecordFileRepository(log), nil, log, nil)

	result, err := a.store.Load(ctx, a.resolvePath())
	if err != nil {
		return err
	}
	a.loaded = result
	if result.Corrupted > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d lines looked wrong and were ignored.\n", result.Corrupted)
	}
	return nil
}

func (a *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every record in file order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records := a.store.Records()
			if len(records) == 0 {
				fmt.Fprintln(a.out, "No students on file.")
				return nil
			}
			a.printRecords(records)
			return nil
		},
	}
}

func (a *cli) addCmd() *cobra.Command {
	var req service.AddRecordRequest
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a student record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.store.AddRecord(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added %s (%s).\n", rec.Name, rec.Code)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Code, "code", "", "Four digit student code")
	cmd.Flags().StringVar(&req.Name, "name", "", "Student name")
	marksFlags(cmd, &req.CW1, &req.CW2, &req.CW3, &req.Exam)
	return cmd
}

func (a *cli) editCmd() *cobra.Command {
	var req service.EditMarksRequest
	cmd := &cobra.Command{
		Use:   "edit <code>",
		Short: "Replace the marks of a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.store.EditRecord(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Updated %s (%s).\n", rec.Name, rec.Code)
			return nil
		},
	}
	marksFlags(cmd, &req.CW1, &req.CW2, &req.CW3, &req.Exam)
	for _, name := range []string{"cw1", "cw2", "cw3", "exam"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func marksFlags(cmd *cobra.Command, cw1, cw2, cw3, exam *int) {
	cmd.Flags().IntVar(cw1, "cw1", 0, "Coursework 1 mark (0-20)")
	cmd.Flags().IntVar(cw2, "cw2", 0, "Coursework 2 mark (0-20)")
	cmd.Flags().IntVar(cw3, "cw3", 0, "Coursework 3 mark (0-20)")
	cmd.Flags().IntVar(exam, "exam", 0, "Exam mark (0-100)")
}

func (a *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code>",
		Short: "Delete a student record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.DeleteRecord(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %s.\n", args[0])
			return nil
		},
	}
}

func (a *cli) findCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <code>",
		Short: "Show one student by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.store.FindByCode(args[0])
			if err != nil {
				return err
			}
			a.printRecord(rec)
			return nil
		},
	}
}

func (a *cli) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search by code, exact name, then partial name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.store.Search(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(result.Records) == 0 {
				fmt.Fprintf(a.out, "No student matches %q.\n", result.Query)
				return nil
			}
			a.printRecords(result.Records)
			return nil
		},
	}
}

func (a *cli) sortCmd() *cobra.Command {
	var (
		field string
		desc  bool
	)
	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Reorder the file by a field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := models.SortAsc
			if desc {
				direction = models.SortDesc
			}
			if err := a.store.SortBy(cmd.Context(), models.SortField(strings.ToLower(field)), direction); err != nil {
				return err
			}
			a.printRecords(a.store.Records())
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "by", string(models.SortByPercent), "Field: code, name, coursework, exam, percent, grade")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort in descending order")
	return cmd
}

func (a *cli) extremeCmd(use string, mode models.ExtremeMode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.store.Extreme(mode)
			if err != nil {
				return err
			}
			a.printRecord(rec)
			return nil
		},
	}
}

func (a *cli) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Class size, average percentage and grade counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary := a.store.ClassSummary()
			if summary.Empty {
				fmt.Fprintln(a.out, summary.Message)
				return nil
			}
			fmt.Fprintf(a.out, "Students: %d\nAverage: %.2f%%\n", summary.Count, summary.Average)
			dist := a.store.GradeDistribution()
			for _, grade := range models.Grades {
				fmt.Fprintf(a.out, "%s: %d\n", grade, dist[grade])
			}
			return nil
		},
	}
}

func (a *cli) exportCmd() *cobra.Command {
	var (
		format string
		theme  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the records as csv, pdf or xlsx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, resolved, err := service.RenderRecords(a.store.Records(), models.ExportFormat(format), models.ParseTheme(theme))
			if err != nil {
				return err
			}
			if output == "" {
				output = "student-marks." + string(resolved)
			}
			if err := os.WriteFile(output, payload, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(a.out, "Wrote %d records to %s.\n", a.store.Len(), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(models.ExportFormatCSV), "Output format: csv, pdf, xlsx")
	cmd.Flags().StringVar(&theme, "theme", string(models.ThemeBright), "Colour theme: bright, dark")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: student-marks.<format>)")
	return cmd
}

func (a *cli) printRecords(records []models.StudentRecord) {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tCW1\tCW2\tCW3\tCOURSEWORK\tEXAM\tPERCENT\tGRADE")
	for _, rec := range records {
		view := rec.View()
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%.2f\t%s\n",
			rec.Code, rec.Name, rec.CW1, rec.CW2, rec.CW3, view.CourseworkTotal, rec.Exam, view.OverallPercent, view.Grade)
	}
	_ = tw.Flush()
}

func (a *cli) printRecord(rec models.StudentRecord) {
	view := rec.View()
	fmt.Fprintf(a.out, "Name: %s\nCode: %s\nCoursework: %d/60\nExam: %d/100\nOverall: %.2f%%\nGrade: %s\n",
		rec.Name, rec.Code, view.CourseworkTotal, rec.Exam, view.OverallPercent, view.Grade)
}
