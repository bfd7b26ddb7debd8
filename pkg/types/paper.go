// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RejectedPDFPath marks a user-rejected paper that is retained in the
// store for deduplication only. Rows carrying it are never promoted to
// the production store.
const RejectedPDFPath = "REJECTED"

// Paper is the unit of record in the metadata store.
type Paper struct {
	// ID is the monotonic integer assigned at insertion.
	ID int64 `json:"id" yaml:"id"`

	// PaperHash is the stable 64-bit hash of the normalized primary
	// source URL. Unique across the store; 0 iff the paper has no URL.
	PaperHash int64 `json:"paper_hash" yaml:"paper_hash"`

	// TitleHash is the stable 64-bit hash of the normalized title
	// (lower-cased, non-alphanumerics removed). Secondary dedup key.
	TitleHash int64 `json:"title_hash" yaml:"title_hash"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract or summary.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors is a comma-separated author list in source order.
	Authors string `json:"authors" yaml:"authors"`

	// PublishedDate is the publication date (ISO 8601 date or bare year).
	PublishedDate string `json:"published_date" yaml:"published_date"`

	// PDFPath is the absolute path of the PDF in staging or in the
	// library, or RejectedPDFPath for a rejected row.
	PDFPath string `json:"pdf_path" yaml:"pdf_path"`

	// SourceURL is a semicolon-separated list of original URLs, one per
	// source, parallel to Source.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// DownloadedDate records when the paper was downloaded; workers set
	// it to the run ID timestamp.
	DownloadedDate string `json:"downloaded_date" yaml:"downloaded_date"`

	// Source is a comma-separated list of adapter names ordered by
	// first-seen.
	Source string `json:"source" yaml:"source"`

	// SyncedToCloud is set only after successful promotion to the library.
	SyncedToCloud bool `json:"synced_to_cloud" yaml:"synced_to_cloud"`

	// Language is the detected content language (e.g. "en").
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// Category is the classifier output (e.g. "Red Teaming").
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// RunID identifies the run that produced this row.
	RunID string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}

// Candidate is one search hit yielded by a source adapter before it is
// filtered, downloaded, and stored.
type Candidate struct {
	// SourceID is the source-local identifier (e.g. an arXiv ID or a
	// post slug).
	SourceID string `json:"id" yaml:"id"`

	Title         string `json:"title" yaml:"title"`
	Authors       string `json:"authors" yaml:"authors"`
	PublishedDate string `json:"published_date" yaml:"published_date"`
	Abstract      string `json:"abstract" yaml:"abstract"`

	// SourceURL is the canonical page for the work at this source.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// PDFURL is a direct PDF link when the source provides one.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// Source is the adapter name that produced this candidate.
	Source string `json:"source" yaml:"source"`

	// RawHTML holds page content for adapters that synthesize a PDF
	// instead of downloading one.
	RawHTML string `json:"-" yaml:"-"`
}

// Mode selects how a run treats downloads and limits.
type Mode string

const (
	// ModeTest searches and filters but neither downloads nor writes.
	ModeTest Mode = "TEST"
	// ModeDaily ingests papers published since the latest stored date.
	ModeDaily Mode = "DAILY"
	// ModeBackfill ingests the full history; a worker that produces
	// neither new papers nor duplicates fails the run.
	ModeBackfill Mode = "BACKFILL"
)
