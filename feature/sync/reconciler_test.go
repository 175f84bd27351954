package sync

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"contact-manager/feature/contacts"
	"contact-manager/feature/contacts/models"
	"contact-manager/feature/sharing"
	"contact-manager/feature/sync/directory"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDirectory is a scripted directory.Client.
type fakeDirectory struct {
	records   []directory.InboundRecord
	reportErr error
	pushErr   error
	pushes    []directory.OutboundRecord
	deletes   []string
	etag      string
}

func (f *fakeDirectory) Push(ctx context.Context, p directory.Profile, rec directory.OutboundRecord) (directory.PushResult, error) {
	if f.pushErr != nil {
		return directory.PushResult{}, f.pushErr
	}
	f.pushes = append(f.pushes, rec)
	collection := p.Addressbook
	if rec.Collection != "" {
		collection = rec.Collection
	}
	return directory.PushResult{
		ETag: f.etag,
		Href: "/" + collection + "/" + rec.UID + ".vcf",
	}, nil
}

func (f *fakeDirectory) Delete(ctx context.Context, p directory.Profile, href string) error {
	f.deletes = append(f.deletes, href)
	return nil
}

func (f *fakeDirectory) Report(ctx context.Context, p directory.Profile) ([]directory.InboundRecord, error) {
	return f.records, f.reportErr
}

// fakeObjects is an in-memory storage.Client for share listings.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	listErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return true, nil
}

func (f *fakeObjects) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return nil
}

func (f *fakeObjects) PutObject(ctx context.Context, bucket, name string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	f.objects[name] = data
	f.mu.Unlock()
	return minio.UploadInfo{Key: name}, nil
}

func (f *fakeObjects) GetObject(ctx context.Context, bucket, name string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	data, ok := f.objects[name]
	f.mu.Unlock()
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) StatObject(ctx context.Context, bucket, name string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	_, ok := f.objects[name]
	f.mu.Unlock()
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return minio.ObjectInfo{Key: name}, nil
}

func (f *fakeObjects) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo)
	// Snapshot under the lock, then send unlocked: the consumer may call
	// GetObject (which takes f.mu) between receives.
	f.mu.Lock()
	listErr := f.listErr
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, opts.Prefix) {
			keys = append(keys, key)
		}
	}
	f.mu.Unlock()
	go func() {
		defer close(ch)
		if listErr != nil {
			ch <- minio.ObjectInfo{Err: listErr}
			return
		}
		for _, key := range keys {
			ch <- minio.ObjectInfo{Key: key}
		}
	}()
	return ch
}

func (f *fakeObjects) RemoveObject(ctx context.Context, bucket, name string, opts minio.RemoveObjectOptions) error {
	f.mu.Lock()
	delete(f.objects, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeObjects) RemoveObjects(ctx context.Context, bucket string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError {
	errCh := make(chan minio.RemoveObjectError)
	go func() {
		defer close(errCh)
		for obj := range objectsCh {
			f.mu.Lock()
			delete(f.objects, obj.Key)
			f.mu.Unlock()
		}
	}()
	return errCh
}

func (f *fakeObjects) drop(key string) {
	f.mu.Lock()
	delete(f.objects, key)
	f.mu.Unlock()
}

var testProfile = directory.Profile{
	Name:        "personal",
	BaseURL:     "https://dav.example.com",
	Addressbook: "my-contacts",
}

func newTestReconciler(t *testing.T, dir directory.Client) (*Reconciler, *contacts.Service) {
	t.Helper()
	logger := zap.NewNop()
	store := contacts.NewStore(logger)
	contactSvc := contacts.NewService(store, nil, nil, logger)
	r := NewReconciler(contactSvc, nil, nil, dir, []directory.Profile{testProfile}, 2*time.Minute, "alice", logger)
	return r, contactSvc
}

func inbound(uid, name string) directory.InboundRecord {
	return directory.InboundRecord{
		ExternalID:  uid,
		Href:        "/my-contacts/" + uid + ".vcf",
		ETag:        "etag-1",
		Addressbook: "my-contacts",
		Payload:     "BEGIN:VCARD\nVERSION:3.0\nUID:" + uid + "\nFN:" + name + "\nEND:VCARD",
	}
}

func TestMergeInboundCreatesImportedRecord(t *testing.T) {
	r, contactSvc := newTestReconciler(t, &fakeDirectory{})

	report := r.MergeInbound(context.Background(), "personal", []directory.InboundRecord{
		inbound("uid-1", "Jane Roe"),
	})
	assert.Equal(t, 1, report.Created)
	assert.Empty(t, report.Errors)

	c, ok := contactSvc.Store().FindByExternalID("uid-1")
	require.True(t, ok)
	assert.Equal(t, "Jane Roe", c.CardName)
	assert.True(t, c.Metadata.IsOwned)
	assert.True(t, c.Metadata.IsImported)
	require.NotNil(t, c.Metadata.ExternalSync)
	assert.Equal(t, "personal", c.Metadata.ExternalSync.Profile)
	assert.Equal(t, "etag-1", c.Metadata.ExternalSync.ETag)
}

func TestMergeInboundConflictWindow(t *testing.T) {
	tests := []struct {
		name        string
		editedAgo   time.Duration
		wantSkipped bool
	}{
		{"edited 30s ago", 30 * time.Second, true},
		{"edited 60s ago", 60 * time.Second, true},
		{"edited 5m ago", 5 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, contactSvc := newTestReconciler(t, &fakeDirectory{})
			now := time.Now()
			r.now = func() time.Time { return now }

			local := &models.Contact{
				ContactID: "c1",
				CardName:  "Local Name",
				VCard:     "BEGIN:VCARD\nVERSION:3.0\nUID:uid-1\nFN:Local Name\nEND:VCARD",
				Metadata: models.Metadata{
					IsOwned: true,
					Sync: models.SyncInfo{
						Version:       3,
						LastSyncedAt:  now.Add(-time.Hour),
						LastUpdatedAt: now.Add(-tt.editedAgo),
					},
				},
			}
			contactSvc.Store().Put(local)
			events := contactSvc.Store().Subscribe(4)

			report := r.MergeInbound(context.Background(), "personal", []directory.InboundRecord{
				inbound("uid-1", "Server Name"),
			})

			got, _ := contactSvc.Store().Get("c1")
			if tt.wantSkipped {
				assert.Equal(t, 1, report.SkippedConflicts)
				assert.Equal(t, "Local Name", got.CardName)
				ev := <-events
				assert.Equal(t, contacts.EventSyncConflictSkipped, ev.Type)
			} else {
				assert.Equal(t, 1, report.Updated)
				assert.Equal(t, "Server Name", got.CardName)
			}
		})
	}
}

func TestMergeInboundPreservesOwnershipFlags(t *testing.T) {
	r, contactSvc := newTestReconciler(t, &fakeDirectory{})

	local := &models.Contact{
		ContactID: "c1",
		CardName:  "Old Name",
		VCard:     "BEGIN:VCARD\nVERSION:3.0\nUID:uid-1\nFN:Old Name\nEND:VCARD",
		Metadata: models.Metadata{
			IsOwned:    true,
			IsImported: false,
			Sync: models.SyncInfo{
				Version:       2,
				LastSyncedAt:  time.Now().Add(-time.Minute),
				LastUpdatedAt: time.Now().Add(-time.Hour),
			},
		},
	}
	local.Metadata.Sharing.AddGrant("bob", models.SharePermission{Level: models.PermissionRead})
	contactSvc.Store().Put(local)

	report := r.MergeInbound(context.Background(), "personal", []directory.InboundRecord{
		inbound("uid-1", "New Name"),
	})
	assert.Equal(t, 1, report.Updated)

	got, _ := contactSvc.Store().Get("c1")
	assert.Equal(t, "New Name", got.CardName)
	// Content changed; identity and grants did not.
	assert.True(t, got.Metadata.IsOwned)
	assert.False(t, got.Metadata.IsImported)
	assert.True(t, got.Metadata.Sharing.IsSharedWith("bob"))
	assert.Equal(t, int64(2), got.Metadata.Sync.Version)
}

func TestMergeInboundUnchangedETag(t *testing.T) {
	r, contactSvc := newTestReconciler(t, &fakeDirectory{})

	local := &models.Contact{
		ContactID: "c1",
		CardName:  "Same",
		VCard:     "BEGIN:VCARD\nVERSION:3.0\nUID:uid-1\nFN:Same\nEND:VCARD",
		Metadata: models.Metadata{
			IsOwned: true,
			ExternalSync: &models.ExternalSyncInfo{
				Profile: "personal",
				ETag:    "etag-1",
			},
		},
	}
	contactSvc.Store().Put(local)

	report := r.MergeInbound(context.Background(), "personal", []directory.InboundRecord{
		inbound("uid-1", "Same"),
	})
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 0, report.Updated)
}

func newShareReconciler(t *testing.T) (*Reconciler, *contacts.Service, *sharing.Strategy, *fakeObjects) {
	t.Helper()
	logger := zap.NewNop()

	store := contacts.NewStore(logger)
	contactSvc := contacts.NewService(store, nil, nil, logger)

	objects := newFakeObjects()
	// Bob shares into the store; Alice is the acting local user pulling.
	bobStrategy := sharing.NewStrategy(objects, "contacts", "bob", logger)

	resolver, err := sharing.NewResolver("")
	require.NoError(t, err)
	aliceStrategy := sharing.NewStrategy(objects, "contacts", "alice", logger)
	sharingSvc := sharing.NewService(contactSvc, aliceStrategy, resolver, nil, "alice", 4, logger)

	r := NewReconciler(contactSvc, sharingSvc, nil, nil, nil, 2*time.Minute, "alice", logger)
	return r, contactSvc, bobStrategy, objects
}

func sharedContact(id, name string) *models.Contact {
	c := &models.Contact{
		ContactID: id,
		CardName:  name,
		VCard:     "BEGIN:VCARD\nVERSION:3.0\nFN:" + name + "\nEND:VCARD",
		Metadata:  models.Metadata{IsOwned: true},
	}
	c.Touch(time.Now())
	return c
}

func TestPullSharesRevocationByDiff(t *testing.T) {
	r, contactSvc, bob, objects := newShareReconciler(t)
	ctx := context.Background()

	a := sharedContact("ca", "Contact A")
	b := sharedContact("cb", "Contact B")
	_, err := bob.Share(ctx, a, "alice", models.SharePermission{Level: models.PermissionRead})
	require.NoError(t, err)
	_, err = bob.Share(ctx, b, "alice", models.SharePermission{Level: models.PermissionRead})
	require.NoError(t, err)

	// First listing establishes the baseline {A, B}; nothing is revoked.
	report, err := r.PullShares(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Upserted)
	assert.Equal(t, 0, report.Revoked)
	assert.Len(t, contactSvc.Store().Views(), 2)

	// Bob revokes B: its copies disappear from the listing.
	objects.drop(sharing.OutgoingKey("bob", "alice", "cb"))
	objects.drop(sharing.IncomingKey("alice", "bob", "cb"))

	report, err = r.PullShares(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Revoked)

	views := contactSvc.Store().Views()
	require.Len(t, views, 1)
	assert.Equal(t, "ca", views[0].OriginalContactID)
}

func TestPullSharesRevocationCleansDirectory(t *testing.T) {
	r, _, bob, objects := newShareReconciler(t)
	dir := &fakeDirectory{}
	r.dir = dir
	r.profiles = []directory.Profile{testProfile}
	ctx := context.Background()

	_, err := bob.Share(ctx, sharedContact("cb", "Contact B"), "alice", models.SharePermission{Level: models.PermissionRead})
	require.NoError(t, err)

	_, err = r.PullShares(ctx)
	require.NoError(t, err)

	objects.drop(sharing.OutgoingKey("bob", "alice", "cb"))
	objects.drop(sharing.IncomingKey("alice", "bob", "cb"))

	report, err := r.PullShares(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Revoked)

	// The revoked view's directory mirror was dropped on the profile too.
	assert.Equal(t, []string{"/shared/bob/cb.vcf"}, dir.deletes)
}

func TestPushOutboundMirrorsReceivedViews(t *testing.T) {
	r, _, bob, _ := newShareReconciler(t)
	dir := &fakeDirectory{etag: "etag-v1"}
	r.dir = dir
	r.profiles = []directory.Profile{testProfile}
	ctx := context.Background()

	c := sharedContact("cb", "Contact B")
	_, err := bob.Share(ctx, c, "alice", models.SharePermission{Level: models.PermissionRead})
	require.NoError(t, err)
	_, err = r.PullShares(ctx)
	require.NoError(t, err)

	pending := r.PendingOutbound(ctx)
	assert.Equal(t, 1, pending.Pushed)

	// The received view is mirrored under the sharer's shared collection,
	// the href the revocation cleanup targets.
	report := r.PushOutbound(ctx)
	assert.Equal(t, 1, report.Pushed)
	require.Len(t, dir.pushes, 1)
	assert.Equal(t, "cb", dir.pushes[0].UID)
	assert.Equal(t, "shared/bob", dir.pushes[0].Collection)
	assert.Equal(t, c.VCard, dir.pushes[0].VCard)

	// An unchanged view is not re-pushed on the next sweep.
	report = r.PushOutbound(ctx)
	assert.Equal(t, 0, report.Pushed)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, dir.pushes, 1)

	// Bob edits the card; the refreshed view goes out again, guarded by
	// the etag from the previous mirror.
	c.VCard = "BEGIN:VCARD\nVERSION:3.0\nFN:Contact B Renamed\nEND:VCARD"
	c.Touch(time.Now())
	require.NoError(t, bob.Refresh(ctx, c))
	_, err = r.PullShares(ctx)
	require.NoError(t, err)

	report = r.PushOutbound(ctx)
	assert.Equal(t, 1, report.Pushed)
	require.Len(t, dir.pushes, 2)
	assert.Equal(t, "etag-v1", dir.pushes[1].ETag)
	assert.Equal(t, c.VCard, dir.pushes[1].VCard)
}

func TestPushOutboundSkipsArchivedViews(t *testing.T) {
	r, contactSvc, bob, _ := newShareReconciler(t)
	dir := &fakeDirectory{}
	r.dir = dir
	r.profiles = []directory.Profile{testProfile}
	ctx := context.Background()

	_, err := bob.Share(ctx, sharedContact("cb", "Contact B"), "alice", models.SharePermission{Level: models.PermissionRead})
	require.NoError(t, err)
	_, err = r.PullShares(ctx)
	require.NoError(t, err)

	require.True(t, contactSvc.Store().ArchiveView(models.ViewKey("bob", "cb"), true))

	report := r.PushOutbound(ctx)
	assert.Equal(t, 0, report.Pushed)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, dir.pushes)
}

func TestPullSharesListingFailureRevokesNothing(t *testing.T) {
	r, contactSvc, bob, objects := newShareReconciler(t)
	ctx := context.Background()

	_, err := bob.Share(ctx, sharedContact("ca", "Contact A"), "alice", models.SharePermission{Level: models.PermissionRead})
	require.NoError(t, err)

	_, err = r.PullShares(ctx)
	require.NoError(t, err)
	require.Len(t, contactSvc.Store().Views(), 1)

	// A failed listing must never masquerade as a mass revocation.
	objects.listErr = assert.AnError
	_, err = r.PullShares(ctx)
	assert.Error(t, err)
	assert.Len(t, contactSvc.Store().Views(), 1)

	// Recovery: the next successful listing still sees the share.
	objects.listErr = nil
	report, err := r.PullShares(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Revoked)
	assert.Len(t, contactSvc.Store().Views(), 1)
}

func TestPullSharesPreservesLocalOverlay(t *testing.T) {
	r, contactSvc, bob, _ := newShareReconciler(t)
	ctx := context.Background()

	c := sharedContact("ca", "Contact A")
	_, err := bob.Share(ctx, c, "alice", models.SharePermission{Level: models.PermissionRead})
	require.NoError(t, err)

	_, err = r.PullShares(ctx)
	require.NoError(t, err)

	key := models.ViewKey("bob", "ca")
	require.True(t, contactSvc.Store().ArchiveView(key, true))

	// Bob edits the contact and the copies refresh.
	c.CardName = "Contact A Renamed"
	c.Touch(time.Now())
	require.NoError(t, bob.Refresh(ctx, c))

	_, err = r.PullShares(ctx)
	require.NoError(t, err)

	v, ok := contactSvc.Store().View(key)
	require.True(t, ok)
	assert.Equal(t, "Contact A Renamed", v.CardName)
	assert.True(t, v.Archived)
}

func TestPushOutbound(t *testing.T) {
	dir := &fakeDirectory{etag: "etag-2"}
	r, contactSvc := newTestReconciler(t, dir)
	ctx := context.Background()

	edited := &models.Contact{
		ContactID: "c1",
		CardName:  "Edited",
		VCard:     "BEGIN:VCARD\nVERSION:3.0\nUID:uid-1\nFN:Edited\nEND:VCARD",
		Metadata: models.Metadata{
			IsOwned: true,
			Sync: models.SyncInfo{
				Version:       2,
				LastUpdatedAt: time.Now(),
			},
			ExternalSync: &models.ExternalSyncInfo{
				Profile:      "personal",
				ETag:         "etag-1",
				Href:         "/my-contacts/uid-1.vcf",
				LastSyncedAt: time.Now().Add(-time.Hour),
			},
		},
	}
	archived := sharedContact("c2", "Archived")
	archived.Metadata.IsArchived = true
	deleted := &models.Contact{
		ContactID: "c3",
		CardName:  "Deleted",
		VCard:     "BEGIN:VCARD\nVERSION:3.0\nUID:uid-3\nFN:Deleted\nEND:VCARD",
		Metadata: models.Metadata{
			IsOwned:   true,
			IsDeleted: true,
			ExternalSync: &models.ExternalSyncInfo{
				Profile: "personal",
				Href:    "/my-contacts/uid-3.vcf",
			},
		},
	}

	contactSvc.Store().Put(edited)
	contactSvc.Store().Put(archived)
	contactSvc.Store().Put(deleted)

	report := r.PushOutbound(ctx)
	assert.Equal(t, 1, report.Pushed)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Errors)

	require.Len(t, dir.pushes, 1)
	assert.Equal(t, "uid-1", dir.pushes[0].UID)
	assert.Equal(t, "etag-1", dir.pushes[0].ETag)
	assert.Equal(t, []string{"/my-contacts/uid-3.vcf"}, dir.deletes)

	got, _ := contactSvc.Store().Get("c1")
	assert.Equal(t, "etag-2", got.Metadata.ExternalSync.ETag)

	got, _ = contactSvc.Store().Get("c3")
	assert.Nil(t, got.Metadata.ExternalSync)
}

func TestPushOutboundPreconditionConflict(t *testing.T) {
	dir := &fakeDirectory{pushErr: directory.ErrPreconditionFailed}
	r, contactSvc := newTestReconciler(t, dir)

	c := sharedContact("c1", "Edited")
	contactSvc.Store().Put(c)

	report := r.PushOutbound(context.Background())
	assert.Equal(t, 1, report.Conflicts)
	assert.Equal(t, 0, report.Pushed)
	assert.Empty(t, report.Errors)
}
