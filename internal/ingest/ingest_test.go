// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-ingest/internal/classify"
	"github.com/pdiddy/paper-ingest/internal/store"
	"github.com/pdiddy/paper-ingest/pkg/types"
)

func newIngestor(t *testing.T) *Ingestor {
	t.Helper()
	root := t.TempDir()

	st, err := store.Open(filepath.Join(root, "working.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return &Ingestor{
		IngestDir:  filepath.Join(root, "drop"),
		StagingDir: filepath.Join(root, "staging"),
		Store:      st,
		Classifier: classify.New(nil),
		RunID:      "2026-03-15 10:30:07",
	}
}

func drop(t *testing.T, in *Ingestor, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(in.IngestDir, 0o755))
	path := filepath.Join(in.IngestDir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return path
}

func TestScanSkipsHiddenAndNonPDF(t *testing.T) {
	in := newIngestor(t)
	drop(t, in, "paper_one.pdf")
	drop(t, in, ".hidden.pdf")
	drop(t, in, "~temp.pdf")
	drop(t, in, "notes.txt")

	pdfs, err := in.Scan()
	require.NoError(t, err)
	require.Len(t, pdfs, 1)
	assert.Equal(t, "paper_one.pdf", filepath.Base(pdfs[0]))
}

func TestScanMissingFolder(t *testing.T) {
	in := newIngestor(t)
	pdfs, err := in.Scan()
	require.NoError(t, err)
	assert.Empty(t, pdfs)
}

func TestRunStagesAndRecords(t *testing.T) {
	in := newIngestor(t)
	dropped := drop(t, in, "agentic_planning_survey.pdf")

	stats, err := in.Run(types.ModeDaily)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Zero(t, stats.Errors)

	papers, err := in.Store.AllPapers()
	require.NoError(t, err)
	require.Len(t, papers, 1)
	p := papers[0]
	assert.Equal(t, "agentic planning survey", p.Title)
	assert.Equal(t, "user_ingest", p.Source)
	assert.Equal(t, in.RunID, p.RunID)
	assert.FileExists(t, p.PDFPath)
	assert.Contains(t, p.PDFPath, in.StagingDir)

	// Source file moved out of the drop folder.
	assert.NoFileExists(t, dropped)
	assert.FileExists(t, filepath.Join(in.IngestDir, "processed", "agentic_planning_survey.pdf"))
}

func TestRunTestModeOnlyCounts(t *testing.T) {
	in := newIngestor(t)
	dropped := drop(t, in, "paper.pdf")

	stats, err := in.Run(types.ModeTest)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	papers, err := in.Store.AllPapers()
	require.NoError(t, err)
	assert.Empty(t, papers)
	assert.FileExists(t, dropped)
}

func TestRunRenamesStagingCollision(t *testing.T) {
	in := newIngestor(t)
	drop(t, in, "duplicate_name.pdf")

	// Plant a same-named file in staging with no matching store row.
	category := in.Classifier.Classify("duplicate name", "", "")
	pre := filepath.Join(in.StagingDir, category, "Duplicate Name.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(pre), 0o755))
	require.NoError(t, os.WriteFile(pre, []byte("existing"), 0o644))

	stats, err := in.Run(types.ModeDaily)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	papers, err := in.Store.AllPapers()
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.NotEqual(t, pre, papers[0].PDFPath)
	assert.FileExists(t, papers[0].PDFPath)

	data, err := os.ReadFile(pre)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestTitleFromFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/drop/agentic_planning.pdf", "agentic planning"},
		{"/drop/Simple.PDF", "Simple"},
		{"/drop/ trimmed_name .pdf", "trimmed name"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, titleFromFilename(c.in))
	}
}
