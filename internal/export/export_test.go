// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"encoding/csv"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-ingest/pkg/types"
)

func samplePapers() []types.Paper {
	return []types.Paper{
		{
			ID:             1,
			Title:          "Scaling Oversight",
			PublishedDate:  "2026-01-10",
			Authors:        "Ada Lovelace",
			Abstract:       "A study of oversight, with \"quotes\" and, commas.",
			SourceURL:      "https://arxiv.org/abs/2601.00001",
			PDFPath:        "/library/Alignment/Scaling Oversight.pdf",
			DownloadedDate: "2026-03-15 10:30:07",
			Source:         "arxiv",
		},
		{
			ID:            2,
			Title:         "Agent Benchmarks",
			PublishedDate: "2026-02-01",
			Authors:       "Alan Turing",
			SourceURL:     "https://openreview.net/forum?id=abc",
			Source:        "openreview",
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportCSVCreatesLog(t *testing.T) {
	e := &Exporter{Dir: t.TempDir(), Format: FormatCSV}

	covered, err := e.Export(samplePapers())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, covered)

	records := readCSV(t, e.Path())
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "Scaling Oversight", records[1][1])
	assert.Equal(t, "A study of oversight, with \"quotes\" and, commas.", records[1][4])
	assert.Equal(t, "2", records[2][0])
}

func TestExportCSVAppendsWithoutDuplicates(t *testing.T) {
	e := &Exporter{Dir: t.TempDir(), Format: FormatCSV}
	papers := samplePapers()

	_, err := e.Export(papers[:1])
	require.NoError(t, err)

	// Second pass re-offers row 1 alongside the new row 2.
	covered, err := e.Export(papers)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, covered)

	records := readCSV(t, e.Path())
	require.Len(t, records, 3)
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "2", records[2][0])
}

func TestExportYAMLRoundTrip(t *testing.T) {
	e := &Exporter{Dir: t.TempDir(), Format: FormatYAML}
	papers := samplePapers()

	_, err := e.Export(papers[:1])
	require.NoError(t, err)
	covered, err := e.Export(papers)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, covered)

	data, err := os.ReadFile(e.Path())
	require.NoError(t, err)

	var log []types.Paper
	require.NoError(t, yaml.Unmarshal(data, &log))
	require.Len(t, log, 2)
	assert.Equal(t, "Scaling Oversight", log[0].Title)
	assert.Equal(t, "Agent Benchmarks", log[1].Title)
}

func TestExportNothing(t *testing.T) {
	e := &Exporter{Dir: t.TempDir()}
	covered, err := e.Export(nil)
	require.NoError(t, err)
	assert.Empty(t, covered)
	assert.NoFileExists(t, e.Path())
}

func TestPathFollowsFormat(t *testing.T) {
	assert.Equal(t, "out/research_log.csv", (&Exporter{Dir: "out"}).Path())
	assert.Equal(t, "out/research_log.yaml", (&Exporter{Dir: "out", Format: FormatYAML}).Path())
}
