package adminqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type primary struct {
	ID    int
	Owner *string
}

type related struct {
	Key  string
	Name string
}

func strPtr(s string) *string { return &s }

func TestPaginateTwentyThreeRows(t *testing.T) {
	items := make([]int, 23)
	for i := range items {
		items[i] = i
	}

	first := Paginate(items, 1, DefaultPageSize)
	require.Equal(t, 3, first.TotalPages)
	require.Equal(t, 23, first.Total)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, first.Items)

	last := Paginate(items, 3, DefaultPageSize)
	require.Equal(t, []int{20, 21, 22}, last.Items)

	beyond := Paginate(items, 4, DefaultPageSize)
	require.NotNil(t, beyond.Items)
	require.Empty(t, beyond.Items)
	require.Equal(t, 3, beyond.TotalPages)
}

func TestPaginateDefaults(t *testing.T) {
	p := Paginate([]string{"a"}, 0, 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, DefaultPageSize, p.PageSize)
	require.Equal(t, []string{"a"}, p.Items)

	empty := Paginate([]string{}, 1, 10)
	require.Zero(t, empty.TotalPages)
	require.Empty(t, empty.Items)
}

func TestEnrichAttachesRelatedAndToleratesMissing(t *testing.T) {
	rows := []primary{
		{ID: 1, Owner: strPtr("a")},
		{ID: 2, Owner: strPtr("missing")},
		{ID: 3},
		{ID: 4, Owner: strPtr("a")},
	}
	var fetchedKeys []string
	fetch := func(_ context.Context, keys []string) ([]related, error) {
		fetchedKeys = keys
		return []related{{Key: "a", Name: "Alice"}}, nil
	}
	out, err := Enrich(context.Background(), rows,
		func(p primary) (string, bool) {
			if p.Owner == nil {
				return "", false
			}
			return *p.Owner, true
		},
		fetch,
		func(r related) string { return r.Key },
	)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "missing"}, fetchedKeys)
	require.Len(t, out, 4)
	require.Equal(t, "Alice", out[0].Related.Name)
	require.Nil(t, out[1].Related)
	require.Nil(t, out[2].Related)
	require.Equal(t, "Alice", out[3].Related.Name)
	require.Equal(t, 3, out[2].Row.ID)

	// related rows are copies; mutating one does not leak into another
	out[0].Related.Name = "changed"
	require.Equal(t, "Alice", out[3].Related.Name)
}

func TestEnrichSkipsFetchWithoutKeys(t *testing.T) {
	called := false
	out, err := Enrich(context.Background(), []primary{{ID: 1}},
		func(p primary) (string, bool) { return "", false },
		func(context.Context, []string) ([]related, error) { called = true; return nil, nil },
		func(r related) string { return r.Key },
	)
	require.NoError(t, err)
	require.False(t, called)
	require.Len(t, out, 1)
}

func TestEnrichPropagatesFetchError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Enrich(context.Background(), []primary{{ID: 1, Owner: strPtr("a")}},
		func(p primary) (string, bool) { return *p.Owner, true },
		func(context.Context, []string) ([]related, error) { return nil, boom },
		func(r related) string { return r.Key },
	)
	require.ErrorIs(t, err, boom)
}
