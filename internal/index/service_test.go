package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mcplucene/mcplucene/internal/analysis"
	"github.com/mcplucene/mcplucene/internal/config"
	"github.com/mcplucene/mcplucene/internal/document"
	"github.com/mcplucene/mcplucene/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Index.Path = t.TempDir()
	require.NoError(t, analysis.Setup(cfg.Analysis.LemmaLanguages, cfg.Analysis.LemmaCacheSize))
	return cfg
}

func openService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc, err := Open(cfg, logging.Nop())
	require.NoError(t, err)
	return svc
}

func docFields(t *testing.T, path, lang, text string, modified time.Time) (string, map[string]interface{}) {
	t.Helper()
	id, fields := document.Build(document.Source{
		Path:     path,
		Size:     int64(len(text)),
		Created:  modified.Add(-time.Hour),
		Modified: modified,
		MIME:     "text/plain",
		Language: lang,
		Text:     text,
	}, time.Now())
	return id, fields
}

func TestOpenStampsMetadata(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := testConfig(t)

	svc := openService(t, cfg)
	// A brand-new index has no committed schema version, which demands
	// a full reindex.
	require.True(t, svc.SchemaUpgradeRequired())

	schema, software, err := svc.Meta()
	require.NoError(t, err)
	require.Equal(t, "5", schema)
	require.NotEmpty(t, software)
	require.NoError(t, svc.Close())

	// Reopening finds the stamped version and needs no upgrade.
	svc2 := openService(t, cfg)
	require.False(t, svc2.SchemaUpgradeRequired())
	require.NoError(t, svc2.Close())
}

func TestOpenRefusesSecondWriter(t *testing.T) {
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	_, err := Open(cfg, logging.Nop())
	require.Error(t, err)
}

func TestUpsertReplacesByPath(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	id, fields := docFields(t, "/docs/a.txt", "en", "first version", time.Now())
	require.NoError(t, svc.Upsert(id, fields))

	id, fields = docFields(t, "/docs/a.txt", "en", "second version", time.Now())
	require.NoError(t, svc.Upsert(id, fields))

	count, err := svc.DocCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
}

func TestPathSnapshotAndContentHash(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	modified := time.UnixMilli(1650000000000)
	id, fields := docFields(t, "/docs/a.txt", "en", "hello", modified)
	require.NoError(t, svc.Upsert(id, fields))
	id2, fields2 := docFields(t, "/docs/b.txt", "en", "world", modified.Add(time.Minute))
	require.NoError(t, svc.Upsert(id2, fields2))

	snap, err := svc.PathSnapshot()
	require.NoError(t, err)
	require.Len(t, snap, 2)
	require.Equal(t, modified.UnixMilli(), snap["/docs/a.txt"])

	hash, err := svc.StoredContentHash("/docs/a.txt")
	require.NoError(t, err)
	require.Equal(t, document.ContentHash("hello"), hash)

	hash, err = svc.StoredContentHash("/docs/missing.txt")
	require.NoError(t, err)
	require.Empty(t, hash)
}

func TestDeleteAllKeepsDirectory(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	for _, path := range []string{"/a.txt", "/b.txt", "/c.txt"} {
		id, fields := docFields(t, path, "en", "text of "+path, time.Now())
		require.NoError(t, svc.Upsert(id, fields))
	}

	deleted, err := svc.DeleteAll()
	require.NoError(t, err)
	require.Equal(t, uint64(3), deleted)

	count, err := svc.DocCount()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestLanguageDistributionRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	for i, lang := range []string{"en", "en", "en", "de"} {
		id, fields := docFields(t, "/d"+string(rune('0'+i))+".txt", lang, "text", time.Now())
		require.NoError(t, svc.Upsert(id, fields))
	}
	svc.RefreshDerived()

	dist := svc.LanguageDistribution()
	require.Equal(t, uint64(4), dist.TotalDocs)
	require.InDelta(t, 0.75, dist.Share("en"), 0.001)
	require.InDelta(t, 0.25, dist.Share("de"), 0.001)
	require.Zero(t, dist.Share("fr"))
}
