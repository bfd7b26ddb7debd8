// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aclSampleCollection = `<?xml version="1.0" encoding="UTF-8"?>
<collection id="2026.acl">
  <volume id="long">
    <meta><year>2026</year></meta>
    <paper id="12">
      <title>Robustness of Safety Classifiers</title>
      <abstract>We probe safety classifiers under distribution shift.</abstract>
      <author><first>Ada</first><last>Lovelace</last></author>
      <author><first>Alan</first><last>Turing</last></author>
      <language>eng</language>
    </paper>
    <paper id="13">
      <title>Morphology of Finnish Compounds</title>
      <abstract>A study of compounding.</abstract>
      <author><first>Someone</first><last>Else</last></author>
    </paper>
  </volume>
</collection>`

const aclOldCollection = `<?xml version="1.0" encoding="UTF-8"?>
<collection id="2019.acl">
  <volume id="short">
    <meta><year>2019</year></meta>
    <paper id="1">
      <title>Early Safety Work</title>
      <abstract>Safety before it was popular.</abstract>
      <author><first>Old</first><last>Timer</last></author>
    </paper>
  </volume>
</collection>`

func writeACLMetadata(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2026.acl.xml"), []byte(aclSampleCollection), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2019.acl.xml"), []byte(aclOldCollection), 0o644))
	return dir
}

func TestACLSearch(t *testing.T) {
	a := NewACL(testOptions(t), writeACLMetadata(t))

	results, err := a.Search(context.Background(), `("safety")`, time.Time{}, 10)
	require.NoError(t, err)

	// Both safety papers match; the newer volume comes first.
	require.Len(t, results, 2)
	c := results[0]
	assert.Equal(t, "2026.acl-long.12", c.SourceID)
	assert.Equal(t, "Robustness of Safety Classifiers", c.Title)
	assert.Equal(t, "Ada Lovelace, Alan Turing", c.Authors)
	assert.Equal(t, "2026-01-01", c.PublishedDate)
	assert.Equal(t, "https://aclanthology.org/2026.acl-long.12", c.SourceURL)
	assert.Equal(t, "https://aclanthology.org/2026.acl-long.12.pdf", c.PDFURL)
	assert.Equal(t, "en", c.Language)
	assert.Equal(t, "acl_anthology", c.Source)

	assert.Equal(t, "2019.acl-short.1", results[1].SourceID)
}

func TestACLSearchDateFilter(t *testing.T) {
	a := NewACL(testOptions(t), writeACLMetadata(t))

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	results, err := a.Search(context.Background(), `("safety")`, start, 10)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "2026.acl-long.12", results[0].SourceID)
}

func TestACLSearchMissingMetadataDir(t *testing.T) {
	a := NewACL(testOptions(t), filepath.Join(t.TempDir(), "absent"))
	_, err := a.Search(context.Background(), `("safety")`, time.Time{}, 10)
	assert.ErrorIs(t, err, ErrAdapter)
}
