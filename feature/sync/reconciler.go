package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"contact-manager/feature/contacts"
	"contact-manager/feature/contacts/models"
	"contact-manager/feature/dedupe"
	"contact-manager/feature/sharing"
	"contact-manager/feature/sync/directory"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler keeps one logical contact consistent across the owner's private
// store, the per-recipient shared copies and the external directory servers.
//
// Local edits always win inside the protection window: an inbound change for
// a record edited locally less than the window ago is skipped so the edit
// can be pushed out first. Ownership flags are fixed at creation and are
// never rewritten by inbound data.
type Reconciler struct {
	contacts *contacts.Service
	sharing  *sharing.Service
	dedupe   *dedupe.Service
	dir      directory.Client
	profiles []directory.Profile
	window   time.Duration
	owner    string
	logger   *zap.Logger
	now      func() time.Time

	// known holds the per-sharer contact id sets observed in the previous
	// share listing. Revocations are derived by diffing against it; the
	// first listing only establishes the baseline. viewPushes remembers the
	// last content mirrored per (profile, view) so unchanged views are not
	// re-pushed every sweep.
	mu         sync.Mutex
	known      map[string]map[string]struct{}
	baselined  bool
	viewPushes map[string]pushedView
}

// pushedView is the last directory mirror written for one received view.
type pushedView struct {
	etag  string
	vcard string
}

// NewReconciler creates the reconciler. sharing, dedupe and dir may each be
// nil; the corresponding source is then skipped.
func NewReconciler(contactSvc *contacts.Service, sharingSvc *sharing.Service, dedupeSvc *dedupe.Service, dir directory.Client, profiles []directory.Profile, window time.Duration, owner string, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		contacts:   contactSvc,
		sharing:    sharingSvc,
		dedupe:     dedupeSvc,
		dir:        dir,
		profiles:   profiles,
		window:     window,
		owner:      owner,
		logger:     logger,
		now:        time.Now,
		known:      make(map[string]map[string]struct{}),
		viewPushes: make(map[string]pushedView),
	}
}

// MergeReport summarizes one inbound merge from a directory profile.
type MergeReport struct {
	Profile           string   `json:"profile"`
	Created           int      `json:"created"`
	Updated           int      `json:"updated"`
	Unchanged         int      `json:"unchanged"`
	SkippedConflicts  int      `json:"skipped_conflicts"`
	FlaggedDuplicates int      `json:"flagged_duplicates"`
	Errors            []string `json:"errors,omitempty"`
}

// PullDirectory queries every configured profile and merges the results.
// Profiles are isolated: one failing endpoint never blocks the others.
func (r *Reconciler) PullDirectory(ctx context.Context) []*MergeReport {
	reports := make([]*MergeReport, 0, len(r.profiles))
	for _, p := range r.profiles {
		records, err := r.dir.Report(ctx, p)
		if err != nil {
			r.logger.Warn("Directory pull failed", zap.String("profile", p.Name), zap.Error(err))
			reports = append(reports, &MergeReport{
				Profile: p.Name,
				Errors:  []string{err.Error()},
			})
			continue
		}
		reports = append(reports, r.MergeInbound(ctx, p.Name, records))
	}
	return reports
}

// MergeInbound applies one profile's pulled records to the local store.
func (r *Reconciler) MergeInbound(ctx context.Context, profile string, records []directory.InboundRecord) *MergeReport {
	report := &MergeReport{Profile: profile}
	now := r.now()

	for _, rec := range records {
		local, ok := r.contacts.Store().FindByExternalID(rec.ExternalID)
		if !ok {
			if err := r.createFromInbound(ctx, profile, rec, now, report); err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
			continue
		}

		if r.pendingLocalEdit(local, now) {
			report.SkippedConflicts++
			r.contacts.Store().Emit(contacts.Event{
				Type:      contacts.EventSyncConflictSkipped,
				ContactID: local.ContactID,
			})
			r.logger.Info("Inbound change skipped, local changes pending",
				zap.String("contact_id", local.ContactID),
				zap.String("profile", profile))
			continue
		}

		if es := local.Metadata.ExternalSync; es != nil && es.ETag != "" && es.ETag == rec.ETag {
			report.Unchanged++
			continue
		}

		if err := r.applyInbound(ctx, profile, local, rec, now); err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.Updated++
	}

	r.logger.Info("Inbound merge finished",
		zap.String("profile", profile),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("skipped_conflicts", report.SkippedConflicts),
		zap.Int("errors", len(report.Errors)))
	return report
}

// pendingLocalEdit reports whether the contact was edited locally after its
// last sync and recently enough that the edit still deserves protection.
func (r *Reconciler) pendingLocalEdit(c *models.Contact, now time.Time) bool {
	lastUpdated := c.Metadata.Sync.LastUpdatedAt
	lastSynced := c.Metadata.Sync.LastSyncedAt
	return lastUpdated.After(lastSynced) && now.Sub(lastUpdated) <= r.window
}

func (r *Reconciler) createFromInbound(ctx context.Context, profile string, rec directory.InboundRecord, now time.Time, report *MergeReport) error {
	snap := contacts.ExtractSnapshot("", rec.Payload)
	name := snap.Name
	if name == "" {
		name = rec.ExternalID
	}

	c := &models.Contact{
		ContactID: uuid.NewString(),
		CardName:  name,
		VCard:     rec.Payload,
		Metadata: models.Metadata{
			IsOwned:    true,
			IsImported: true,
			Sync: models.SyncInfo{
				Version:      1,
				LastSyncedAt: now,
			},
			ExternalSync: &models.ExternalSyncInfo{
				Profile:      profile,
				ETag:         rec.ETag,
				Href:         rec.Href,
				Addressbook:  rec.Addressbook,
				LastSyncedAt: now,
			},
		},
	}

	// Inbound records are flagged as likely duplicates, never blocked:
	// blocking would desynchronize the directory.
	if r.dedupe != nil {
		if matches := r.dedupe.Duplicates(snap); len(matches) > 0 {
			report.FlaggedDuplicates++
			r.logger.Warn("Inbound record looks like a duplicate",
				zap.String("contact_id", c.ContactID),
				zap.String("card_name", c.CardName),
				zap.String("duplicate_of", matches[0].ContactID))
		}
	}

	if err := r.contacts.SaveOwned(ctx, c); err != nil {
		return fmt.Errorf("failed to store inbound record %s: %w", rec.ExternalID, err)
	}
	report.Created++
	return nil
}

// applyInbound replaces the card content of a matched local record.
// Ownership flags stay exactly as they are: inbound data edits content,
// never identity.
func (r *Reconciler) applyInbound(ctx context.Context, profile string, local *models.Contact, rec directory.InboundRecord, now time.Time) error {
	if snap := contacts.ExtractSnapshot("", rec.Payload); snap.Name != "" {
		local.CardName = snap.Name
	}
	local.VCard = rec.Payload
	local.Metadata.Sync.LastSyncedAt = now
	local.Metadata.ExternalSync = &models.ExternalSyncInfo{
		Profile:      profile,
		ETag:         rec.ETag,
		Href:         rec.Href,
		Addressbook:  rec.Addressbook,
		LastSyncedAt: now,
	}

	if err := r.contacts.SaveOwned(ctx, local); err != nil {
		return fmt.Errorf("failed to apply inbound record %s: %w", rec.ExternalID, err)
	}
	return nil
}

// ShareReport summarizes one pull of the incoming shared copies.
type ShareReport struct {
	Sharers  int `json:"sharers"`
	Upserted int `json:"upserted"`
	Revoked  int `json:"revoked"`
}

// PullShares lists everything shared to the acting user and reconciles the
// received views. Access removal is derived: an id present in the previous
// listing but missing now means the sharer revoked it. The first listing
// only establishes the baseline, and a failed listing revokes nothing.
func (r *Reconciler) PullShares(ctx context.Context) (*ShareReport, error) {
	if r.sharing == nil {
		return &ShareReport{}, nil
	}

	byOwner, err := r.sharing.Strategy().ListIncoming(ctx, r.owner)
	if err != nil {
		return nil, fmt.Errorf("share listing failed, keeping current views: %w", err)
	}

	now := r.now()
	report := &ShareReport{Sharers: len(byOwner)}
	current := make(map[string]map[string]struct{}, len(byOwner))

	for sharer, envelopes := range byOwner {
		ids := make(map[string]struct{}, len(envelopes))
		for _, env := range envelopes {
			ids[env.ContactID] = struct{}{}
			r.contacts.Store().UpsertView(env.ToView(now))
			report.Upserted++
		}
		current[sharer] = ids
	}

	type revokedView struct{ sharer, id string }
	var revoked []revokedView

	r.mu.Lock()
	if r.baselined {
		for sharer, previous := range r.known {
			for id := range previous {
				if _, still := current[sharer][id]; !still {
					revoked = append(revoked, revokedView{sharer: sharer, id: id})
				}
			}
		}
	}
	r.known = current
	r.baselined = true
	r.mu.Unlock()

	for _, rv := range revoked {
		r.contacts.Store().RemoveView(models.ViewKey(rv.sharer, rv.id))
		report.Revoked++
		// The directory may still mirror the withdrawn copy; drop it on
		// every profile, each failure isolated.
		for _, p := range r.profiles {
			href := fmt.Sprintf("/shared/%s/%s.vcf", rv.sharer, rv.id)
			if err := r.dir.Delete(ctx, p, href); err != nil {
				r.logger.Warn("Failed to drop revoked view from directory",
					zap.String("profile", p.Name),
					zap.String("sharer", rv.sharer),
					zap.String("contact_id", rv.id),
					zap.Error(err))
			}
		}
	}

	r.logger.Info("Share pull finished",
		zap.Int("sharers", report.Sharers),
		zap.Int("upserted", report.Upserted),
		zap.Int("revoked", report.Revoked))
	return report, nil
}

// PushReport summarizes one outbound push across all profiles.
type PushReport struct {
	Pushed    int      `json:"pushed"`
	Deleted   int      `json:"deleted"`
	Skipped   int      `json:"skipped"`
	Conflicts int      `json:"conflicts"`
	Errors    []string `json:"errors,omitempty"`
}

// PendingOutbound counts what PushOutbound would send without touching the
// directory. Pushed and Deleted carry the pending counts; the other fields
// stay zero.
func (r *Reconciler) PendingOutbound(ctx context.Context) *PushReport {
	report := &PushReport{}
	if len(r.profiles) == 0 {
		return report
	}
	for _, c := range r.contacts.Store().All() {
		if !c.Metadata.IsOwned {
			continue
		}
		switch {
		case c.Metadata.IsDeleted:
			if c.Metadata.ExternalSync != nil {
				report.Deleted++
			}
		case c.Metadata.IsArchived:
			report.Skipped++
		default:
			if es := c.Metadata.ExternalSync; es != nil && !c.Metadata.Sync.LastUpdatedAt.After(es.LastSyncedAt) {
				report.Skipped++
				continue
			}
			report.Pushed++
		}
	}

	for _, v := range r.contacts.Store().Views() {
		if v.Archived {
			report.Skipped++
			continue
		}
		for _, p := range r.profiles {
			if r.viewMirrorCurrent(p.Name, v) {
				report.Skipped++
				continue
			}
			report.Pushed++
		}
	}
	return report
}

// PushOutbound writes local changes to the directory. A contact binds to the
// profile it was imported from; locally created contacts go to the first
// configured profile. Received views are mirrored to every profile under
// shared/<sharer>, the collection the revocation cleanups target. Every
// record failure is isolated.
func (r *Reconciler) PushOutbound(ctx context.Context) *PushReport {
	report := &PushReport{}
	if len(r.profiles) == 0 {
		return report
	}
	now := r.now()

	for _, c := range r.contacts.Store().All() {
		if !c.Metadata.IsOwned {
			continue
		}

		if c.Metadata.IsDeleted {
			hadBinding := c.Metadata.ExternalSync != nil
			if err := r.pushDeletion(ctx, c); err != nil {
				report.Errors = append(report.Errors, err.Error())
				continue
			}
			if hadBinding {
				report.Deleted++
			}
			continue
		}
		if c.Metadata.IsArchived {
			report.Skipped++
			continue
		}
		// Already in sync with the directory.
		if es := c.Metadata.ExternalSync; es != nil && !c.Metadata.Sync.LastUpdatedAt.After(es.LastSyncedAt) {
			report.Skipped++
			continue
		}

		profile := r.profileFor(c)
		uid := contacts.ExtractUID(c.VCard)
		if uid == "" {
			uid = c.ContactID
		}

		rec := directory.OutboundRecord{UID: uid, VCard: c.VCard}
		if es := c.Metadata.ExternalSync; es != nil {
			rec.ETag = es.ETag
		}

		result, err := r.dir.Push(ctx, profile, rec)
		if err != nil {
			if isPrecondition(err) {
				// The server copy moved on; the next pull resolves it.
				report.Conflicts++
				r.logger.Info("Push deferred, server copy changed",
					zap.String("contact_id", c.ContactID),
					zap.String("profile", profile.Name))
				continue
			}
			report.Errors = append(report.Errors, err.Error())
			continue
		}

		c.Metadata.Sync.LastSyncedAt = now
		c.Metadata.ExternalSync = &models.ExternalSyncInfo{
			Profile:      profile.Name,
			ETag:         result.ETag,
			Href:         result.Href,
			Addressbook:  profile.Addressbook,
			LastSyncedAt: now,
		}
		if err := r.contacts.SaveOwned(ctx, c); err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.Pushed++
	}

	r.pushViews(ctx, report)

	r.logger.Info("Outbound push finished",
		zap.Int("pushed", report.Pushed),
		zap.Int("deleted", report.Deleted),
		zap.Int("skipped", report.Skipped),
		zap.Int("conflicts", report.Conflicts),
		zap.Int("errors", len(report.Errors)))
	return report
}

// pushViews mirrors the non-archived received views to the directory so the
// shared-but-locally-held records stay visible externally. Each (view,
// profile) pair fails independently of the others.
func (r *Reconciler) pushViews(ctx context.Context, report *PushReport) {
	for _, v := range r.contacts.Store().Views() {
		if v.Archived {
			report.Skipped++
			continue
		}

		for _, p := range r.profiles {
			key := viewPushKey(p.Name, v.Key)
			r.mu.Lock()
			prev, seen := r.viewPushes[key]
			r.mu.Unlock()
			if seen && prev.vcard == v.VCard {
				report.Skipped++
				continue
			}

			rec := directory.OutboundRecord{
				UID:        v.OriginalContactID,
				VCard:      v.VCard,
				ETag:       prev.etag,
				Collection: "shared/" + v.SharedBy,
			}
			result, err := r.dir.Push(ctx, p, rec)
			if err != nil {
				if isPrecondition(err) {
					// Forget the stale guard; the mirror is derived from
					// the shared copy, so the next push may overwrite.
					report.Conflicts++
					r.mu.Lock()
					delete(r.viewPushes, key)
					r.mu.Unlock()
					continue
				}
				report.Errors = append(report.Errors, err.Error())
				continue
			}

			r.mu.Lock()
			r.viewPushes[key] = pushedView{etag: result.ETag, vcard: v.VCard}
			r.mu.Unlock()
			report.Pushed++
		}
	}
}

// viewMirrorCurrent reports whether the profile already mirrors the view's
// current content.
func (r *Reconciler) viewMirrorCurrent(profile string, v *models.SharedContactView) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, seen := r.viewPushes[viewPushKey(profile, v.Key)]
	return seen && prev.vcard == v.VCard
}

func viewPushKey(profile, viewKey string) string {
	return profile + "|" + viewKey
}

// pushDeletion propagates a local soft-delete to the directory and drops the
// external binding once the server entry is gone.
func (r *Reconciler) pushDeletion(ctx context.Context, c *models.Contact) error {
	es := c.Metadata.ExternalSync
	if es == nil {
		return nil
	}
	if err := r.dir.Delete(ctx, r.profileFor(c), es.Href); err != nil {
		return fmt.Errorf("failed to propagate deletion of %s: %w", c.ContactID, err)
	}
	c.Metadata.ExternalSync = nil
	return r.contacts.SaveOwned(ctx, c)
}

func (r *Reconciler) profileFor(c *models.Contact) directory.Profile {
	if es := c.Metadata.ExternalSync; es != nil && es.Profile != "" {
		for _, p := range r.profiles {
			if p.Name == es.Profile {
				return p
			}
		}
	}
	return r.profiles[0]
}

func isPrecondition(err error) bool {
	return errors.Is(err, directory.ErrPreconditionFailed)
}
