package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/familytree/modules/family/domain/aggregates/member"
	"github.com/iota-uz/familytree/modules/family/infrastructure/persistence"
	"github.com/iota-uz/familytree/modules/family/services"
	"github.com/iota-uz/familytree/pkg/configuration"
	"github.com/iota-uz/familytree/pkg/spreadsheet"
)

type importOptions struct {
	file        string
	sheet       string
	backend     string
	match       string
	apply       bool
	outputDir   string
	metricsFile string
}

func newImportCmd(c *cli) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import family members from a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := c.config()
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), cmd.OutOrStdout(), conf, commandLogger(conf), opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Spreadsheet to import, .xlsx or .csv (default: SOURCE_FILE)")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "Workbook sheet (default: SHEET_NAME, else the first sheet)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Backend: mongo|postgres (default: STORAGE_BACKEND)")
	cmd.Flags().StringVar(&opts.match, "match", "", "Match mode: fallback|exact (default: MATCH_MODE)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write to the backend (default is dry-run)")
	cmd.Flags().StringVar(&opts.outputDir, "output", "", "Directory for the import manifest (apply only)")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus text metrics to this path")

	return cmd
}

type importManifestV1 struct {
	Version    int       `json:"version"`
	RunID      uuid.UUID `json:"run_id"`
	Backend    string    `json:"backend"`
	MatchMode  string    `json:"match_mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Input      struct {
		File  string `json:"file"`
		Sheet string `json:"sheet"`
	} `json:"input"`
	Inserted []member.ID  `json:"inserted"`
	Updated  []member.ID  `json:"updated"`
	Summary  importCounts `json:"summary"`
}

type importCounts struct {
	Rows        int `json:"rows"`
	SkippedRows int `json:"skipped_rows"`
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	SpouseLinks int `json:"spouse_links"`
	ChildLinks  int `json:"child_links"`
}

type importSummary struct {
	Status    string       `json:"status"`
	RunID     string       `json:"run_id"`
	Backend   string       `json:"backend"`
	MatchMode string       `json:"match_mode"`
	Apply     bool         `json:"apply"`
	File      string       `json:"file"`
	Sheet     string       `json:"sheet"`
	OutputDir string       `json:"output_dir,omitempty"`
	Manifest  string       `json:"manifest,omitempty"`
	Counts    importCounts `json:"counts"`
}

func countsOf(r services.Report) importCounts {
	return importCounts{
		Rows:        r.Rows,
		SkippedRows: r.SkippedRows,
		Inserted:    r.Inserted,
		Updated:     r.Updated,
		SpouseLinks: r.SpouseLinks,
		ChildLinks:  r.ChildLinks,
	}
}

func runImport(ctx context.Context, out io.Writer, conf *configuration.Configuration, log *logrus.Entry, opts importOptions) error {
	if opts.file == "" {
		opts.file = conf.Import.SourceFile
	}
	if strings.TrimSpace(opts.file) == "" {
		return withCode(exitUsage, fmt.Errorf("--file is required (or set SOURCE_FILE)"))
	}
	if opts.sheet == "" {
		opts.sheet = conf.Import.SheetName
	}
	backend, err := resolveBackend(opts.backend, conf)
	if err != nil {
		return err
	}
	if opts.match == "" {
		opts.match = conf.Import.MatchMode
	}
	match, err := configuration.NormalizeMatchMode(opts.match)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("invalid --match %q: %w", opts.match, err))
	}
	if opts.outputDir != "" && !opts.apply {
		log.Warn("--output is ignored without --apply")
	}

	startedAt := time.Now().UTC()
	runID := uuid.New()
	log = log.WithField("run_id", runID.String())

	sheet, err := spreadsheet.Open(opts.file, opts.sheet)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return withCode(exitUsage, fmt.Errorf("open %s: %w", opts.file, err))
		}
		return withCode(exitValidation, fmt.Errorf("read %s: %w", opts.file, err))
	}

	var store persistence.Store = persistence.NewMemoryRepository()
	if opts.apply {
		store, err = openStore(ctx, conf, log, storeOptions{backend: backend, migrate: true})
		if err != nil {
			return err
		}
	}
	defer closeStore(store, log)

	svc := services.NewImportService(store, services.ImportOptions{
		MatchMode: services.MatchMode(match),
		Logger:    log,
	})
	report, importErr := svc.Import(ctx, sheet)

	if opts.metricsFile != "" {
		if err := svc.Metrics().WriteTextfile(opts.metricsFile); err != nil {
			log.WithError(err).Warn("write metrics file")
		}
	}
	if importErr != nil {
		return withCode(importErrorCode(importErr), importErr)
	}

	summary := importSummary{
		Status:    "dry_run",
		RunID:     runID.String(),
		Backend:   backend,
		MatchMode: match,
		Apply:     opts.apply,
		File:      opts.file,
		Sheet:     sheet.Name,
		OutputDir: opts.outputDir,
		Counts:    countsOf(report),
	}
	if !opts.apply {
		return writeJSONLine(out, summary)
	}

	summary.Status = "applied"
	if opts.outputDir != "" {
		manifest := &importManifestV1{
			Version:    1,
			RunID:      runID,
			Backend:    backend,
			MatchMode:  match,
			StartedAt:  startedAt,
			FinishedAt: time.Now().UTC(),
			Inserted:   report.InsertedIDs,
			Updated:    report.UpdatedIDs,
			Summary:    countsOf(report),
		}
		manifest.Input.File = opts.file
		manifest.Input.Sheet = sheet.Name
		path, err := writeManifest(opts.outputDir, manifest)
		if err != nil {
			return err
		}
		summary.Manifest = path
	}
	return writeJSONLine(out, summary)
}

// importErrorCode tells failed lookups and interrupted runs apart from failed
// writes.
func importErrorCode(err error) int {
	var readErr *services.ReadError
	switch {
	case errors.As(err, &readErr),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return exitDB
	default:
		return exitDBWrite
	}
}

func writeManifest(outputDir string, manifest *importManifestV1) (string, error) {
	ts := manifest.FinishedAt.Format("20060102T150405Z")
	name := fmt.Sprintf("import_manifest_%s_%s.json", ts, manifest.RunID.String())
	path := filepath.Join(outputDir, name)
	if err := writeJSONFile(path, manifest); err != nil {
		return "", err
	}
	return path, nil
}
