package merge

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms_mirror/internal/domain"
)

func resource(moduleID, path string, updated time.Time) domain.ResourceState {
	return domain.ResourceState{ModuleID: moduleID, Path: path, LastUpdated: updated}
}

func downloaded(r domain.ResourceState, localPath string, when time.Time) domain.ResourceState {
	r.DownloadPath = &localPath
	r.DownloadTime = &when
	return r
}

func resourceItems(updated time.Time, resources ...domain.ResourceState) domain.DataItems[domain.ResourceState] {
	return domain.NewDataItems(resources, updated)
}

func TestResources_DownloadedFileSurvivesRefetch(t *testing.T) {
	t0, t1 := at(0), at(1)
	existing := resourceItems(t0, downloaded(resource("10", "a.pdf", t0), "a.pdf", t0))
	incoming := resourceItems(t1, resource("10", "a.pdf", t1))

	Resources(&existing, incoming)

	require.Len(t, existing.Items, 1)
	got := existing.Items[0]
	assert.Equal(t, "10", got.ModuleID)
	assert.Equal(t, "a.pdf", got.Path)
	assert.Equal(t, t1, got.LastUpdated)
	require.NotNil(t, got.DownloadPath)
	assert.Equal(t, "a.pdf", *got.DownloadPath)
	require.NotNil(t, got.DownloadTime)
	assert.Equal(t, t0, *got.DownloadTime)
	assert.Equal(t, t1, existing.LastUpdated)
}

func TestResources_ExistingOnlyResourcesAreRetained(t *testing.T) {
	existing := resourceItems(at(0),
		resource("10", "a.pdf", at(0)),
		resource("10", "gone.pdf", at(0)),
	)
	incoming := resourceItems(at(1), resource("10", "a.pdf", at(1)))

	Resources(&existing, incoming)

	require.Len(t, existing.Items, 2)
	assert.Equal(t, "gone.pdf", existing.Items[1].Path)
	assert.Equal(t, at(0), existing.Items[1].LastUpdated)
}

func TestResources_RemoteHandle(t *testing.T) {
	testCases := []struct {
		name       string
		existing   any
		incoming   any
		wantRemote any
	}{
		{name: "newer handle replaces older", existing: "old", incoming: "new", wantRemote: "new"},
		{name: "absent handle never overwrites present one", existing: "old", incoming: nil, wantRemote: "old"},
		{name: "handle adopted when keeper had none", existing: nil, incoming: "new", wantRemote: "new"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			old := resource("10", "a.pdf", at(0))
			old.Remote = tc.existing
			fresh := resource("10", "a.pdf", at(1))
			fresh.Remote = tc.incoming

			existing := resourceItems(at(0), old)
			Resources(&existing, resourceItems(at(1), fresh))

			require.Len(t, existing.Items, 1)
			assert.Equal(t, tc.wantRemote, existing.Items[0].Remote)
		})
	}
}

func TestResources_TieKeepsDownloadedRecord(t *testing.T) {
	existing := resourceItems(at(1), downloaded(resource("10", "a.pdf", at(1)), "Files/a.pdf", at(1)))
	Resources(&existing, resourceItems(at(1), resource("10", "a.pdf", at(1))))

	require.Len(t, existing.Items, 1)
	assert.True(t, existing.Items[0].IsDownloaded())
}

func TestResources_NewestDownloadMetadataWins(t *testing.T) {
	existing := resourceItems(at(0), downloaded(resource("10", "a.pdf", at(0)), "old/a.pdf", at(0)))
	incoming := resourceItems(at(1), downloaded(resource("10", "a.pdf", at(1)), "new/a.pdf", at(2)))

	Resources(&existing, incoming)

	require.Len(t, existing.Items, 1)
	assert.Equal(t, "new/a.pdf", *existing.Items[0].DownloadPath)
}

func TestResources_ManyDuplicatesCollapseToOne(t *testing.T) {
	existing := resourceItems(at(0), downloaded(resource("10", "a.pdf", at(0)), "a.pdf", at(0)))
	incoming := resourceItems(at(3),
		resource("10", "a.pdf", at(2)),
		resource("10", "a.pdf", at(3)),
		resource("10", "a.pdf", at(1)),
	)

	Resources(&existing, incoming)

	require.Len(t, existing.Items, 1)
	assert.Equal(t, at(3), existing.Items[0].LastUpdated)
	assert.True(t, existing.Items[0].IsDownloaded())
}

func TestResources_KeepsInFlightDownloadStatus(t *testing.T) {
	busy := resource("10", "a.pdf", at(0))
	busy.DownloadStatus = domain.DownloadFetching

	existing := resourceItems(at(0), busy)
	Resources(&existing, resourceItems(at(1), resource("10", "a.pdf", at(1))))

	assert.Equal(t, domain.DownloadFetching, existing.Items[0].DownloadStatus)
}

func TestResources_SamePathInDifferentModulesIsDistinct(t *testing.T) {
	existing := resourceItems(at(0), resource("20", "notes.pdf", at(0)))
	Resources(&existing, resourceItems(at(1), resource("10", "notes.pdf", at(1))))

	require.Len(t, existing.Items, 2)
	assert.Equal(t, "10", existing.Items[0].ModuleID)
	assert.Equal(t, "20", existing.Items[1].ModuleID)
}

func TestResources_EmptyIncomingIsNoop(t *testing.T) {
	existing := resourceItems(at(0),
		downloaded(resource("10", "a.pdf", at(0)), "a.pdf", at(0)),
		resource("10", "b.pdf", at(0)),
	)
	before := existing.Clone()

	Resources(&existing, resourceItems(at(5)))

	assert.Equal(t, before.Items, existing.Items)
	assert.Equal(t, at(5), existing.LastUpdated)
}

func TestResources_ResultIndependentOfInputOrder(t *testing.T) {
	batch := []domain.ResourceState{
		downloaded(resource("10", "a.pdf", at(0)), "a.pdf", at(0)),
		resource("10", "a.pdf", at(4)),
		resource("10", "a.pdf", at(2)),
		resource("10", "b/c.pdf", at(1)),
		resource("11", "a.pdf", at(3)),
		resource("11", "a.pdf", at(6)),
	}

	want := domain.DataItems[domain.ResourceState]{}
	Resources(&want, resourceItems(at(9), batch...))
	require.Len(t, want.Items, 3)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]domain.ResourceState, len(batch))
		copy(shuffled, batch)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := domain.DataItems[domain.ResourceState]{}
		Resources(&got, resourceItems(at(9), shuffled...))

		assert.Equal(t, want.Items, got.Items)
	}
}

func TestResources_DropsRecordsWithoutPath(t *testing.T) {
	existing := resourceItems(at(0), domain.EmptyResource())
	incoming := resourceItems(at(1), resource("10", "", at(1)), resource("10", "a.pdf", at(1)))

	Resources(&existing, incoming)

	require.Len(t, existing.Items, 1)
	assert.Equal(t, "a.pdf", existing.Items[0].Path)
}
