package homeconnect

import (
	"context"
	"fmt"
	"strings"

	"homelink/pkg/host"

	"go.uber.org/zap"
)

// MigrateEntry rewrites entity unique IDs of a 1.1 entry to the new
// suffixes and bumps it to 1.2. Entries at any other version are left
// alone; migration does not chain from 1.0.
func (i *Integration) MigrateEntry(ctx context.Context, entry *host.ConfigEntry) error {
	i.logger.Debug("Migrating from version",
		zap.Int("version", entry.Version),
		zap.Int("minor_version", entry.MinorVersion))

	if entry.Version == 1 && entry.MinorVersion == 1 {
		err := i.hass.EntityRegistry().MigrateEntries(ctx, entry.EntryID, func(e *host.EntityEntry) string {
			return MigrateUniqueID(e.UniqueID, OldNewUniqueIDSuffixes)
		})
		if err != nil {
			return fmt.Errorf("migrate unique ids: %w", err)
		}

		minor := EntryMinorVersion
		if err := i.hass.ConfigEntries().UpdateEntry(entry, host.EntryUpdate{MinorVersion: &minor}); err != nil {
			return err
		}
	}

	i.logger.Debug("Migration successful",
		zap.Int("version", entry.Version),
		zap.Int("minor_version", entry.MinorVersion))
	return nil
}

// MigrateUniqueID returns uniqueID with the first matching "-{old}" suffix
// replaced by "-{new}", or "" if no suffix matches. Only the trailing
// suffix is rewritten: an old key appearing earlier in the ID, e.g. inside
// the appliance part, is left as it is, unlike a replace of every
// occurrence.
func MigrateUniqueID(uniqueID string, pairs []SuffixPair) string {
	for _, p := range pairs {
		suffix := "-" + p.Old
		if strings.HasSuffix(uniqueID, suffix) {
			return strings.TrimSuffix(uniqueID, suffix) + "-" + p.New
		}
	}
	return ""
}
