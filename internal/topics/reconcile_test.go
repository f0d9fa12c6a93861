package topics_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/internal/topics"
	"github.com/harishm17/study-buddy/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Memory Leaks", "memory leaks"},
		{"  C++ / Pointers!! ", "c pointers"},
		{"Big-O   Notation", "big o notation"},
		{"Über Größe", "über größe"},
		{"---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, topics.Normalize(tt.in))
		})
	}
}

func TestSimilar(t *testing.T) {
	tests := []struct {
		name string
		a, b topics.Candidate
		want bool
	}{
		{"equal after normalization", topics.Candidate{Name: "Hash Tables"}, topics.Candidate{Name: "hash-tables"}, true},
		{"substring", topics.Candidate{Name: "Sorting"}, topics.Candidate{Name: "Sorting Algorithms"}, true},
		{"jaccard", topics.Candidate{Name: "binary search trees"}, topics.Candidate{Name: "balanced search trees"}, true},
		{"min overlap", topics.Candidate{Name: "graph traversal bfs dfs"}, topics.Candidate{Name: "dfs bfs graph"}, true},
		{
			"keyword overlap",
			topics.Candidate{Name: "Memory Leaks", Keywords: []string{"leak", "heap", "malloc"}},
			topics.Candidate{Name: "Memory Leak Errors", Keywords: []string{"Leak", "Heap", "valgrind"}},
			true,
		},
		{
			"unrelated",
			topics.Candidate{Name: "Photosynthesis", Keywords: []string{"chlorophyll"}},
			topics.Candidate{Name: "Cell Division", Keywords: []string{"mitosis"}},
			false,
		},
		{"empty name", topics.Candidate{Name: "!!"}, topics.Candidate{Name: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, topics.Similar(tt.a, tt.b))
			assert.Equal(t, tt.want, topics.Similar(tt.b, tt.a))
		})
	}
}

func TestDedupe_MergesMemoryLeaks(t *testing.T) {
	got := topics.Dedupe([]topics.Candidate{
		{Name: "Memory Leak Errors", Description: "Short.", Keywords: []string{"leak", "heap", "malloc"}},
		{Name: "Memory Leaks", Description: "Memory that is allocated and never freed.", Keywords: []string{"Leak", "heap", "valgrind"}},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "Memory Leaks", got[0].Name)
	assert.Equal(t, "Memory that is allocated and never freed.", got[0].Description)
	assert.Equal(t, []string{"leak", "heap", "malloc", "valgrind"}, got[0].Keywords)
}

func TestDedupe_KeepsOrderAndDistinctTopics(t *testing.T) {
	got := topics.Dedupe([]topics.Candidate{
		{Name: "Stacks"},
		{Name: "Queues"},
		{Name: "stacks"},
		{Name: "  "},
		{Name: "Heaps"},
	})

	require.Len(t, got, 3)
	assert.Equal(t, "Stacks", got[0].Name)
	assert.Equal(t, "Queues", got[1].Name)
	assert.Equal(t, "Heaps", got[2].Name)
}

func TestMerge_KeywordCap(t *testing.T) {
	a := topics.Candidate{Name: "A", Keywords: []string{"1", "2", "3", "4", "5"}}
	b := topics.Candidate{Name: "A", Keywords: []string{"4", "5", "6", "7", "8", "9", "10"}}

	got := topics.Merge(a, b)
	assert.Len(t, got.Keywords, models.MaxTopicKeywords)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8"}, got.Keywords)
}

func TestMerge_KeepsBaseNameWhenNotContained(t *testing.T) {
	got := topics.Merge(
		topics.Candidate{Name: "Dynamic Programming"},
		topics.Candidate{Name: "Memoization"},
	)
	assert.Equal(t, "Dynamic Programming", got.Name)
}

func TestBand(t *testing.T) {
	tests := []struct {
		materials int
		lo, hi    int
	}{
		{0, 3, 4},
		{1, 3, 4},
		{2, 3, 5},
		{3, 3, 5},
		{4, 4, 6},
		{6, 4, 6},
		{7, 6, 8},
		{40, 6, 8},
	}
	for _, tt := range tests {
		lo, hi := topics.Band(tt.materials)
		assert.Equal(t, tt.lo, lo, "materials=%d", tt.materials)
		assert.Equal(t, tt.hi, hi, "materials=%d", tt.materials)
	}
}

func TestSelect_TruncatesToBand(t *testing.T) {
	var cands []topics.Candidate
	for _, n := range []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot"} {
		cands = append(cands, topics.Candidate{Name: n})
	}

	assert.Len(t, topics.Select(cands, 1), 4)
	assert.Len(t, topics.Select(cands, 2), 5)
	assert.Len(t, topics.Select(cands, 10), 6)
}

func TestCleanKeywords(t *testing.T) {
	got := topics.CleanKeywords([]string{" Heap ", "heap", "", "Stack", "HEAP"})
	assert.Equal(t, []string{"Heap", "Stack"}, got)
}

func TestReconcile_UpdatesInsertsAndPrunes(t *testing.T) {
	projectID := uuid.New()
	kept := &models.Topic{ID: uuid.New(), ProjectID: projectID, Name: "Memory Leaks", Description: "old", UserConfirmed: true, OrderIndex: 5}
	staleUnconfirmed := &models.Topic{ID: uuid.New(), ProjectID: projectID, Name: "Old Topic"}
	staleConfirmed := &models.Topic{ID: uuid.New(), ProjectID: projectID, Name: "Pinned Topic", UserConfirmed: true}
	materialIDs := []uuid.UUID{uuid.New()}

	plan := topics.Reconcile(projectID,
		[]topics.Candidate{
			{Name: "New Topic", Description: "fresh", Keywords: []string{"x", "X"}},
			{Name: "memory-leaks", Description: "new description", Keywords: []string{"leak"}},
		},
		[]*models.Topic{kept, staleUnconfirmed, staleConfirmed},
		materialIDs,
	)

	require.Len(t, plan.Updates, 1)
	upd := plan.Updates[0]
	assert.Equal(t, kept.ID, upd.ID)
	assert.Equal(t, "Memory Leaks", upd.Name)
	assert.True(t, upd.UserConfirmed)
	assert.Equal(t, "new description", upd.Description)
	assert.Equal(t, []string{"leak"}, upd.Keywords)
	assert.Equal(t, 1, upd.OrderIndex)
	assert.Equal(t, materialIDs, upd.SourceMaterialIDs)
	assert.Equal(t, "old", kept.Description, "existing topic must not be mutated")

	require.Len(t, plan.Inserts, 1)
	ins := plan.Inserts[0]
	assert.NotEqual(t, uuid.Nil, ins.ID)
	assert.Equal(t, projectID, ins.ProjectID)
	assert.False(t, ins.UserConfirmed)
	assert.Equal(t, 0, ins.OrderIndex)
	assert.Equal(t, []string{"x"}, ins.Keywords)

	assert.Equal(t, []uuid.UUID{staleUnconfirmed.ID}, plan.Deletes)

	require.Len(t, plan.Kept, 2)
	assert.Equal(t, ins.ID, plan.Kept[0].ID)
	assert.Equal(t, kept.ID, plan.Kept[1].ID)
}

func TestReconcile_EmptyRunPrunesUnconfirmedOnly(t *testing.T) {
	confirmed := &models.Topic{ID: uuid.New(), Name: "A", UserConfirmed: true}
	unconfirmed := &models.Topic{ID: uuid.New(), Name: "B"}

	plan := topics.Reconcile(uuid.New(), nil, []*models.Topic{confirmed, unconfirmed}, nil)
	assert.Empty(t, plan.Updates)
	assert.Empty(t, plan.Inserts)
	assert.Equal(t, []uuid.UUID{unconfirmed.ID}, plan.Deletes)
}
