package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/familytree/modules/family/infrastructure/persistence"
	"github.com/iota-uz/familytree/modules/family/services"
	"github.com/iota-uz/familytree/pkg/configuration"
	"github.com/iota-uz/familytree/pkg/logging"
)

func testConfig() *configuration.Configuration {
	return &configuration.Configuration{
		StorageBackend: configuration.BackendMongo,
		Import:         configuration.ImportOptions{MatchMode: configuration.MatchFallback},
	}
}

func writeFamilyCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "family.csv")
	body := "Name1,Date of Birth1,Phone1,Name2,Phone2,Name3,Address\n" +
		"Anna,12/05/1950,9876543210.0,Ben,NIL,Cara,\"1. Rose Villa 2. Rose Villa\"\n" +
		",,,,,,\n" +
		",,,Dan,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, exitOK, exitCode(nil))
	require.Equal(t, 1, exitCode(errors.New("boom")))
	require.Equal(t, exitDBWrite, exitCode(withCode(exitDBWrite, errors.New("boom"))))
	wrapped := fmt.Errorf("outer: %w", withCode(exitValidation, errors.New("bad sheet")))
	require.Equal(t, exitValidation, exitCode(wrapped))
	require.NoError(t, withCode(exitDB, nil))
}

func TestRunImport_DryRunPrintsSummary(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := runImport(context.Background(), &out, testConfig(), logging.Nop(), importOptions{file: writeFamilyCSV(t)})
	require.NoError(t, err)

	var got importSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "dry_run", got.Status)
	require.Equal(t, configuration.BackendMongo, got.Backend)
	require.Equal(t, configuration.MatchFallback, got.MatchMode)
	require.Equal(t, "family", got.Sheet)
	require.False(t, got.Apply)
	require.NotEmpty(t, got.RunID)
	require.Equal(t, importCounts{
		Rows:        2,
		SkippedRows: 1,
		Inserted:    3,
		SpouseLinks: 1,
		ChildLinks:  2,
	}, got.Counts)
}

func TestRunImport_WritesMetricsFile(t *testing.T) {
	t.Parallel()

	metricsPath := filepath.Join(t.TempDir(), "family_import.prom")
	var out bytes.Buffer
	err := runImport(context.Background(), &out, testConfig(), logging.Nop(), importOptions{
		file:        writeFamilyCSV(t),
		metricsFile: metricsPath,
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), `family_import_members_total{action="inserted"} 3`)
}

func TestRunImport_UsesConfiguredSourceFile(t *testing.T) {
	t.Parallel()

	conf := testConfig()
	conf.Import.SourceFile = writeFamilyCSV(t)
	conf.Import.MatchMode = configuration.MatchExact

	var out bytes.Buffer
	require.NoError(t, runImport(context.Background(), &out, conf, logging.Nop(), importOptions{}))

	var got importSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, conf.Import.SourceFile, got.File)
	require.Equal(t, configuration.MatchExact, got.MatchMode)
}

func TestRunImport_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	badPath := filepath.Join(dir, "family.txt")
	require.NoError(t, os.WriteFile(badPath, []byte("Name1\nAnna\n"), 0o644))

	cases := []struct {
		name string
		opts importOptions
		code int
	}{
		{name: "no file", opts: importOptions{}, code: exitUsage},
		{name: "missing file", opts: importOptions{file: filepath.Join(dir, "nope.csv")}, code: exitUsage},
		{name: "unsupported format", opts: importOptions{file: badPath}, code: exitValidation},
		{name: "bad backend", opts: importOptions{file: badPath, backend: "sqlite"}, code: exitUsage},
		{name: "bad match", opts: importOptions{file: badPath, match: "fuzzy"}, code: exitUsage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			err := runImport(context.Background(), &out, testConfig(), logging.Nop(), tc.opts)
			require.Error(t, err)
			require.Equal(t, tc.code, exitCode(err), err.Error())
			require.Zero(t, out.Len())
		})
	}
}

func TestRunImport_ApplyWithoutMongoURI(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := runImport(context.Background(), &out, testConfig(), logging.Nop(), importOptions{
		file:  writeFamilyCSV(t),
		apply: true,
	})
	require.Error(t, err)
	require.Equal(t, exitUsage, exitCode(err))
}

func TestImportErrorCode(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "write", err: fmt.Errorf("row 2: %w", boom), code: exitDBWrite},
		{name: "read", err: fmt.Errorf("row 2: %w", &services.ReadError{Err: boom}), code: exitDB},
		{name: "cancelled", err: context.Canceled, code: exitDB},
		{name: "deadline", err: fmt.Errorf("row 4: %w", context.DeadlineExceeded), code: exitDB},
	}
	for _, tc := range cases {
		require.Equal(t, tc.code, importErrorCode(tc.err), tc.name)
	}
}

func TestRunImport_CancelledRunIsDBError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := runImport(ctx, &out, testConfig(), logging.Nop(), importOptions{file: writeFamilyCSV(t)})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, exitDB, exitCode(err))
}

func TestCLI_LoadsConfigOnceAndUnloadsIt(t *testing.T) {
	t.Parallel()

	loads := 0
	c := &cli{load: func() (*configuration.Configuration, error) {
		loads++
		return testConfig(), nil
	}}

	cmd := newRootCmd(c)
	cmd.SetArgs([]string{"ping", "--backend", "sqlite"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Equal(t, exitUsage, exitCode(err))

	_, err = c.config()
	require.NoError(t, err)
	require.Equal(t, 1, loads)

	c.close()
	require.Nil(t, c.conf)
	c.close()
}

func TestWriteManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := &importManifestV1{Version: 1, Backend: configuration.BackendMongo}
	path, err := writeManifest(dir, m)
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(path))
	require.Regexp(t, `^import_manifest_\d{8}T\d{6}Z_[0-9a-f-]{36}\.json$`, filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got importManifestV1
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, 1, got.Version)
}

func TestPing_MemoryStore(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, ping(context.Background(), &out, persistence.NewMemoryRepository()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "ok", got["status"])
	require.Equal(t, persistence.BackendMemory, got["backend"])
	require.EqualValues(t, 0, got["members"])
}

type downPinger struct{ persistence.Pinger }

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestPing_FailureIsDBError(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := ping(context.Background(), &out, downPinger{})
	require.Equal(t, exitDB, exitCode(err))
}
