package sharing_test

import (
	"context"
	"testing"

	"contact-manager/feature/contacts"
	"contact-manager/feature/contacts/models"
	"contact-manager/feature/sharing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolverParsing(t *testing.T) {
	r, err := sharing.NewResolver("family:bob,carol;work:dave, erin ,dave")
	require.NoError(t, err)

	members, ok := r.Resolve("family")
	assert.True(t, ok)
	assert.Equal(t, []string{"bob", "carol"}, members)

	// Whitespace is trimmed and duplicate members collapse.
	members, ok = r.Resolve("work")
	assert.True(t, ok)
	assert.Equal(t, []string{"dave", "erin"}, members)

	_, ok = r.Resolve("unknown")
	assert.False(t, ok)

	lists := r.Lists()
	require.Len(t, lists, 2)
	assert.Equal(t, "family", lists[0].Name)
	assert.Equal(t, "work", lists[1].Name)
}

func TestResolverParsingErrors(t *testing.T) {
	_, err := sharing.NewResolver("no-colon-here")
	assert.Error(t, err)

	_, err = sharing.NewResolver(":bob")
	assert.Error(t, err)

	// Empty definitions are fine.
	r, err := sharing.NewResolver("")
	require.NoError(t, err)
	assert.Empty(t, r.Lists())
}

func TestResolverMembership(t *testing.T) {
	r, err := sharing.NewResolver("family:bob")
	require.NoError(t, err)

	assert.True(t, r.AddMember("family", "carol"))
	assert.False(t, r.AddMember("family", "carol"))
	members, _ := r.Resolve("family")
	assert.Equal(t, []string{"bob", "carol"}, members)

	assert.True(t, r.RemoveMember("family", "bob"))
	assert.False(t, r.RemoveMember("family", "bob"))
	assert.False(t, r.RemoveMember("unknown", "bob"))
}

func newSharingService(t *testing.T, lists string) (*sharing.Service, *contacts.Service, *fakeStore) {
	t.Helper()
	logger := zap.NewNop()
	store := contacts.NewStore(logger)
	contactSvc := contacts.NewService(store, nil, nil, logger)

	resolver, err := sharing.NewResolver(lists)
	require.NoError(t, err)

	fake := newFakeStore()
	strategy := sharing.NewStrategy(fake, "contacts", "alice", logger)
	svc := sharing.NewService(contactSvc, strategy, resolver, nil, "alice", 4, logger)
	return svc, contactSvc, fake
}

func createContact(t *testing.T, svc *contacts.Service, name string) *models.Contact {
	t.Helper()
	c, _, err := svc.Create(context.Background(), contacts.CreateInput{
		CardName: name,
		VCard:    "BEGIN:VCARD\nVERSION:3.0\nFN:" + name + "\nEND:VCARD",
	})
	require.NoError(t, err)
	return c
}

func TestShareWithList(t *testing.T) {
	svc, contactSvc, _ := newSharingService(t, "family:bob,carol,alice")
	ctx := context.Background()

	c := createContact(t, contactSvc, "John Doe")

	result, err := svc.ShareWithList(ctx, c.ContactID, "family", readPerm())
	require.NoError(t, err)
	// The acting owner is silently skipped during list expansion.
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 0, result.ErrorCount)

	got, _ := contactSvc.Store().Get(c.ContactID)
	assert.True(t, got.Metadata.Sharing.IsSharedWith("bob"))
	assert.True(t, got.Metadata.Sharing.IsSharedWith("carol"))
	assert.False(t, got.Metadata.Sharing.IsSharedWith("alice"))

	// Sharing the list again reports already_shared, not failure.
	result, err = svc.ShareWithList(ctx, c.ContactID, "family", readPerm())
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 2, result.AlreadySharedCount)

	_, err = svc.ShareWithList(ctx, c.ContactID, "unknown", readPerm())
	assert.ErrorIs(t, err, sharing.ErrUnknownList)
}

func TestOnMemberAddedRetroactiveShare(t *testing.T) {
	svc, contactSvc, fake := newSharingService(t, "family:bob,carol")
	ctx := context.Background()

	listShared := createContact(t, contactSvc, "Shared With Family")
	unrelated := createContact(t, contactSvc, "Private Contact")

	_, err := svc.ShareWithList(ctx, listShared.ContactID, "family", readPerm())
	require.NoError(t, err)

	shared, err := svc.OnMemberAdded(ctx, "family", "dave")
	require.NoError(t, err)
	assert.Equal(t, 1, shared)

	got, _ := contactSvc.Store().Get(listShared.ContactID)
	assert.True(t, got.Metadata.Sharing.IsSharedWith("dave"))
	assert.True(t, fake.has(sharing.IncomingKey("dave", "alice", listShared.ContactID)))

	// The contact never shared with the list stays private.
	got, _ = contactSvc.Store().Get(unrelated.ContactID)
	assert.Empty(t, got.Metadata.Sharing.SharedWith)

	// Re-adding the same member changes nothing.
	shared, err = svc.OnMemberAdded(ctx, "family", "dave")
	require.NoError(t, err)
	assert.Equal(t, 0, shared)
}

func TestOnMemberAddedSingleGrantedMemberSuffices(t *testing.T) {
	svc, contactSvc, fake := newSharingService(t, "family:bob,carol")
	ctx := context.Background()

	// Shared with bob directly, never with carol: one granted member still
	// ties the contact to the list.
	c := createContact(t, contactSvc, "Shared With Bob Only")
	_, err := svc.Share(ctx, c.ContactID, []string{"bob"}, models.SharePermission{Level: models.PermissionWrite})
	require.NoError(t, err)

	shared, err := svc.OnMemberAdded(ctx, "family", "dave")
	require.NoError(t, err)
	assert.Equal(t, 1, shared)

	got, _ := contactSvc.Store().Get(c.ContactID)
	assert.True(t, got.Metadata.Sharing.IsSharedWith("dave"))
	// The new member inherits the granted member's permission level.
	assert.Equal(t, models.PermissionWrite, got.Metadata.Sharing.Permissions["dave"].Level)
	assert.False(t, got.Metadata.Sharing.IsSharedWith("carol"))
	assert.True(t, fake.has(sharing.IncomingKey("dave", "alice", c.ContactID)))
}

func TestOnMemberRemovedRetroactiveRevoke(t *testing.T) {
	svc, contactSvc, fake := newSharingService(t, "family:bob,carol,dave")
	ctx := context.Background()

	c := createContact(t, contactSvc, "Shared With Family")
	_, err := svc.ShareWithList(ctx, c.ContactID, "family", readPerm())
	require.NoError(t, err)

	revoked, err := svc.OnMemberRemoved(ctx, "family", "dave")
	require.NoError(t, err)
	assert.Equal(t, 1, revoked)

	got, _ := contactSvc.Store().Get(c.ContactID)
	assert.False(t, got.Metadata.Sharing.IsSharedWith("dave"))
	assert.True(t, got.Metadata.Sharing.IsSharedWith("bob"))
	assert.False(t, fake.has(sharing.IncomingKey("dave", "alice", c.ContactID)))
}

func TestOnMemberRemovedSingleGrantedMemberSuffices(t *testing.T) {
	svc, contactSvc, fake := newSharingService(t, "family:bob,carol,dave")
	ctx := context.Background()

	c := createContact(t, contactSvc, "Shared With Bob And Dave")
	_, err := svc.Share(ctx, c.ContactID, []string{"bob", "dave"}, readPerm())
	require.NoError(t, err)

	// carol never got a grant; the overlap through bob is enough for the
	// departing dave to lose access.
	revoked, err := svc.OnMemberRemoved(ctx, "family", "dave")
	require.NoError(t, err)
	assert.Equal(t, 1, revoked)

	got, _ := contactSvc.Store().Get(c.ContactID)
	assert.False(t, got.Metadata.Sharing.IsSharedWith("dave"))
	assert.True(t, got.Metadata.Sharing.IsSharedWith("bob"))
	assert.False(t, fake.has(sharing.IncomingKey("dave", "alice", c.ContactID)))
}

func TestEditRefreshesSharedCopies(t *testing.T) {
	svc, contactSvc, fake := newSharingService(t, "")
	ctx := context.Background()

	c := createContact(t, contactSvc, "John Doe")
	_, err := svc.Share(ctx, c.ContactID, []string{"bob"}, readPerm())
	require.NoError(t, err)

	updated, err := contactSvc.Update(ctx, c.ContactID, contacts.UpdateInput{
		CardName: "Johnny Doe",
		VCard:    "BEGIN:VCARD\nVERSION:3.0\nFN:Johnny Doe\nTEL:555-0100\nEND:VCARD",
	})
	require.NoError(t, err)

	// Bob's copy carries the edited card without a new sync run.
	data, ok := fake.get(sharing.IncomingKey("bob", "alice", c.ContactID))
	require.True(t, ok)
	env, err := sharing.DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, updated.VCard, env.VCard)
	assert.Equal(t, "Johnny Doe", env.CardName)
	assert.Equal(t, models.PermissionRead, env.Permission.Level)
}

func TestRestoreShares(t *testing.T) {
	svc, contactSvc, fake := newSharingService(t, "")
	ctx := context.Background()

	c := createContact(t, contactSvc, "John Doe")
	_, err := svc.Share(ctx, c.ContactID, []string{"bob", "carol"}, readPerm())
	require.NoError(t, err)

	events := contactSvc.Store().Subscribe(8)

	fake.drop(sharing.IncomingKey("bob", "alice", c.ContactID))
	repaired, err := svc.RestoreShares(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.True(t, fake.has(sharing.IncomingKey("bob", "alice", c.ContactID)))

	// Permissions survive restoration untouched.
	got, _ := contactSvc.Store().Get(c.ContactID)
	assert.Len(t, got.Metadata.Sharing.SharedWith, 2)

	var sawCompletion bool
	for len(events) > 0 {
		if ev := <-events; ev.Type == contacts.EventRestorationComplete {
			sawCompletion = true
		}
	}
	assert.True(t, sawCompletion)
}
