package search

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"teamdesk/api/internal/store"
)

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	projectID := store.NewRef()
	if err := s.InsertProject(ctx, store.Project{ID: projectID, Name: "Website Redesign", Description: "New landing pages", Status: "todo"}); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := s.InsertTask(ctx, store.Task{ID: store.NewRef(), ProjectID: projectID, Title: "Design hero section", Status: "todo"}); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	if err := s.InsertAnnouncement(ctx, store.Announcement{ID: store.NewRef(), Title: "Office closed", Message: "The office is closed for redesign work", SendTo: "all"}); err != nil {
		t.Fatalf("insert announcement: %v", err)
	}
	return s
}

func TestStoreSearchAcrossTypes(t *testing.T) {
	searcher := NewStoreSearch(seededStore(t))

	results, total, err := searcher.Search(context.Background(), Query{Text: "REDESIGN"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Fatalf("expected project and announcement hits, got %d: %+v", total, results)
	}
	if results[0].Type != ResultProject || results[1].Type != ResultAnnouncement {
		t.Fatalf("unexpected result order: %+v", results)
	}
}

func TestStoreSearchFilterAndPaging(t *testing.T) {
	searcher := NewStoreSearch(seededStore(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		query Query
		want  int
	}{
		{name: "tasks only", query: Query{Text: "design", FilterType: ResultTask}, want: 1},
		{name: "blank text", query: Query{Text: "   "}, want: 0},
		{name: "limit", query: Query{Text: "e", Limit: 1}, want: 1},
		{name: "offset past end", query: Query{Text: "redesign", Offset: 5}, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			results, _, err := searcher.Search(ctx, tc.query)
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if len(results) != tc.want {
				t.Fatalf("expected %d results, got %d: %+v", tc.want, len(results), results)
			}
		})
	}
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	svc := NewService(nil, NewStoreSearch(seededStore(t)), zerolog.Nop())

	resp := svc.Search(context.Background(), Query{Text: "hero"})
	if resp.Backend != "store" || resp.Total != 1 || resp.Results[0].Type != ResultTask {
		t.Fatalf("unexpected response %+v", resp)
	}

	// Index writes are no-ops without Meilisearch.
	svc.IndexProject(ProjectRecord{ID: "p1"})
	svc.DeleteTask("t1")
}

func TestParseResultType(t *testing.T) {
	if ParseResultType("task") != ResultTask || ParseResultType("thread") != "" {
		t.Fatalf("unexpected parse results")
	}
}
