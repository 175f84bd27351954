package sync

import (
	"context"
	"fmt"

	"contact-manager/feature/sync/directory"

	"go.uber.org/zap"
)

// ShareCleaner removes a revoked recipient's directory entries. Shared
// records surface on the directory under a per-recipient collection; the
// cleanup is best effort since the authoritative removal already happened in
// the shared copy store.
type ShareCleaner struct {
	dir      directory.Client
	profiles []directory.Profile
	logger   *zap.Logger
}

// NewShareCleaner creates a cleaner over the configured profiles.
func NewShareCleaner(dir directory.Client, profiles []directory.Profile, logger *zap.Logger) *ShareCleaner {
	return &ShareCleaner{dir: dir, profiles: profiles, logger: logger}
}

// CleanupShare deletes the recipient's entry for the contact on every
// profile. Missing entries are fine; other failures are logged per profile
// and the last one is returned.
func (c *ShareCleaner) CleanupShare(ctx context.Context, recipient, contactID string) error {
	href := fmt.Sprintf("/shared/%s/%s.vcf", recipient, contactID)

	var lastErr error
	for _, p := range c.profiles {
		if err := c.dir.Delete(ctx, p, href); err != nil {
			c.logger.Warn("Failed to clean recipient directory entry",
				zap.String("profile", p.Name),
				zap.String("recipient", recipient),
				zap.String("contact_id", contactID),
				zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}
