package homeconnect

import (
	"context"
	"testing"

	"homelink/pkg/host"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateUniqueID(t *testing.T) {
	custom := []SuffixPair{{Old: "old_suffix_1", New: "new_suffix_1"}}

	tests := []struct {
		name  string
		id    string
		pairs []SuffixPair
		want  string
	}{
		{"custom pair", "abc-old_suffix_1", custom, "abc-new_suffix_1"},
		{"no match", "abc-other", custom, ""},
		{"needs dash", "abcold_suffix_1", custom, ""},
		{"earlier occurrences kept", "old_suffix_1-abc-old_suffix_1", custom, "old_suffix_1-abc-new_suffix_1"},
		{"child lock", "SIEMENS-1-ChildLock", OldNewUniqueIDSuffixes, "SIEMENS-1-BSH.Common.Setting.ChildLock"},
		{"operation state", "SIEMENS-1-Operation State", OldNewUniqueIDSuffixes, "SIEMENS-1-BSH.Common.Status.OperationState"},
		{"already migrated", "SIEMENS-1-BSH.Common.Setting.ChildLock", OldNewUniqueIDSuffixes, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MigrateUniqueID(tt.id, tt.pairs))
		})
	}
}

func TestMigrateUniqueID_Idempotent(t *testing.T) {
	for _, p := range OldNewUniqueIDSuffixes {
		migrated := MigrateUniqueID("HAID-"+p.Old, OldNewUniqueIDSuffixes)
		require.NotEmpty(t, migrated, p.Old)
		assert.Empty(t, MigrateUniqueID(migrated, OldNewUniqueIDSuffixes), "%s migrated twice", p.Old)
	}
}

func registerEntity(t *testing.T, env *testEnv, entryID, uniqueID string, platform host.Platform) *host.EntityEntry {
	t.Helper()
	e, err := env.hass.EntityRegistry().Register(host.EntityEntry{
		UniqueID:      uniqueID,
		Integration:   Domain,
		Platform:      platform,
		ConfigEntryID: entryID,
	})
	require.NoError(t, err)
	return e
}

func TestMigrateEntry_FromMinorVersionOne(t *testing.T) {
	env := newTestEnv(t)
	env.sessions["Account"] = &fakeSession{}

	entry, err := env.hass.Entries().Add(&host.ConfigEntry{Domain: Domain, Title: "Account", Version: 1, MinorVersion: 1})
	require.NoError(t, err)
	lock := registerEntity(t, env, entry.EntryID, "SIEMENS-1-ChildLock", host.PlatformSwitch)
	state := registerEntity(t, env, entry.EntryID, "SIEMENS-1-Operation State", host.PlatformSensor)
	other := registerEntity(t, env, entry.EntryID, "SIEMENS-1-BSH.Common.Setting.PowerState", host.PlatformSwitch)

	require.NoError(t, env.hass.Entries().Setup(context.Background(), entry.EntryID))

	assert.Equal(t, host.StateLoaded, entry.State)
	assert.Equal(t, 2, entry.MinorVersion)

	got, ok := env.hass.EntityRegistry().Get(lock.EntityID)
	require.True(t, ok)
	assert.Equal(t, "SIEMENS-1-BSH.Common.Setting.ChildLock", got.UniqueID)

	got, ok = env.hass.EntityRegistry().Get(state.EntityID)
	require.True(t, ok)
	assert.Equal(t, "SIEMENS-1-BSH.Common.Status.OperationState", got.UniqueID)

	got, ok = env.hass.EntityRegistry().Get(other.EntityID)
	require.True(t, ok)
	assert.Equal(t, "SIEMENS-1-BSH.Common.Setting.PowerState", got.UniqueID)

	// Running the migration again changes nothing.
	require.NoError(t, env.integ.MigrateEntry(context.Background(), entry))
	got, _ = env.hass.EntityRegistry().Get(lock.EntityID)
	assert.Equal(t, "SIEMENS-1-BSH.Common.Setting.ChildLock", got.UniqueID)
}

func TestMigrateEntry_OtherVersionsAreNoOps(t *testing.T) {
	for _, minor := range []int{0, 2} {
		env := newTestEnv(t)
		entry, err := env.hass.Entries().Add(&host.ConfigEntry{Domain: Domain, Title: "Account", Version: 1, MinorVersion: minor})
		require.NoError(t, err)
		lock := registerEntity(t, env, entry.EntryID, "SIEMENS-1-ChildLock", host.PlatformSwitch)

		require.NoError(t, env.integ.MigrateEntry(context.Background(), entry))

		assert.Equal(t, minor, entry.MinorVersion)
		got, ok := env.hass.EntityRegistry().Get(lock.EntityID)
		require.True(t, ok)
		assert.Equal(t, "SIEMENS-1-ChildLock", got.UniqueID)
	}
}

func TestMigrateEntry_ConflictFailsSetup(t *testing.T) {
	env := newTestEnv(t)
	env.sessions["Account"] = &fakeSession{}

	entry, err := env.hass.Entries().Add(&host.ConfigEntry{Domain: Domain, Title: "Account", Version: 1, MinorVersion: 1})
	require.NoError(t, err)
	registerEntity(t, env, entry.EntryID, "SIEMENS-1-ChildLock", host.PlatformSwitch)
	registerEntity(t, env, entry.EntryID, "SIEMENS-1-BSH.Common.Setting.ChildLock", host.PlatformSwitch)

	err = env.hass.Entries().Setup(context.Background(), entry.EntryID)
	assert.ErrorIs(t, err, host.ErrUniqueIDConflict)
	assert.Equal(t, host.StateMigrationError, entry.State)
	assert.Equal(t, 1, entry.MinorVersion)
}
