package mcp

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Purging and recrawling the unchanged directory restores the original
// document set.
func TestPurgeThenRecrawlRestoresDocumentSet(t *testing.T) {
	s, root := newTestServer(t)
	seedCorpus(t, s, root)

	before := indexedPaths(t, s)
	require.Len(t, before, 3)

	payload := call(t, s.handlePurgeIndex, PurgeParams{Confirm: true, FullPurge: true})
	require.Equal(t, true, payload["success"])

	require.Eventually(t, func() bool {
		stats := call(t, s.handleGetIndexStats, struct{}{})
		return stats["documentCount"] == float64(0)
	}, 15*time.Second, 100*time.Millisecond)

	payload = call(t, s.handleStartCrawl, StartCrawlParams{})
	require.Equal(t, true, payload["success"])
	require.True(t, s.crawler.WaitIdle(30*time.Second))

	require.Equal(t, before, indexedPaths(t, s))
}

// A second crawl over an unchanged tree indexes nothing.
func TestRecrawlWithoutChangesIndexesNothing(t *testing.T) {
	s, root := newTestServer(t)
	seedCorpus(t, s, root)

	payload := call(t, s.handleStartCrawl, StartCrawlParams{})
	require.Equal(t, true, payload["success"])
	require.True(t, s.crawler.WaitIdle(30*time.Second))

	stats := call(t, s.handleGetCrawlerStats, struct{}{})
	inner, _ := stats["stats"].(map[string]interface{})
	require.Equal(t, float64(0), inner["filesIndexed"])
}

func TestCrawlerStatusTransitions(t *testing.T) {
	s, root := newTestServer(t)

	payload := call(t, s.handleGetCrawlerStatus, struct{}{})
	require.Equal(t, "Idle", payload["state"])

	seedCorpus(t, s, root)
	payload = call(t, s.handleGetCrawlerStatus, struct{}{})
	require.Equal(t, "Idle", payload["state"])

	// Pause and resume outside a crawl are typed failures, not crashes.
	payload = call(t, s.handlePauseCrawler, struct{}{})
	require.Equal(t, false, payload["success"])
	payload = call(t, s.handleResumeCrawler, struct{}{})
	require.Equal(t, false, payload["success"])
}

func indexedPaths(t *testing.T, s *Server) []string {
	t.Helper()
	snap, err := s.svc.PathSnapshot()
	require.NoError(t, err)
	out := make([]string, 0, len(snap))
	for path := range snap {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
