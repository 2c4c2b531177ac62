package version

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuild(t *testing.T, v, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, Commit, BuildTime
	Version, Commit, BuildTime = v, commit, built
	t.Cleanup(func() { Version, Commit, BuildTime = oldV, oldC, oldB })
}

func TestGet_UnreleasedBuild(t *testing.T) {
	info := Get()
	assert.Equal(t, "feedbackhub", info.Name)
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.BuildTime)
	assert.Equal(t, "feedbackhub dev (dev, built unknown)", info.String())
}

func TestGet_LinkerOverrides(t *testing.T) {
	withBuild(t, "v1.4.0", "3f2a9c1", "2026-10-01T08:00:00Z")

	info := Get()
	assert.Equal(t, "feedbackhub v1.4.0 (3f2a9c1, built 2026-10-01T08:00:00Z)", info.String())

	fields := info.LogFields()
	assert.Equal(t, "feedbackhub", fields["app"])
	assert.Equal(t, "v1.4.0", fields["version"])
	assert.Equal(t, "3f2a9c1", fields["commit"])
}

func TestInfo_RouteListingPayload(t *testing.T) {
	withBuild(t, "v1.4.0", "3f2a9c1", "2026-10-01T08:00:00Z")

	raw, err := json.Marshal(Get())
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"feedbackhub","version":"v1.4.0","commit":"3f2a9c1","build_time":"2026-10-01T08:00:00Z"}`, string(raw))
}
