package directory_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"contact-manager/feature/sync/directory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseProfiles(t *testing.T) {
	profiles, err := directory.ParseProfiles(
		"personal=https://dav.example.com/u1/, work = https://dav.corp.example.com",
		"alice", "secret", "my-contacts")
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	assert.Equal(t, "personal", profiles[0].Name)
	// Trailing slashes are stripped so hrefs concatenate cleanly.
	assert.Equal(t, "https://dav.example.com/u1", profiles[0].BaseURL)
	assert.Equal(t, "work", profiles[1].Name)
	assert.Equal(t, "alice", profiles[0].Username)
	assert.Equal(t, "my-contacts", profiles[0].Addressbook)

	profiles, err = directory.ParseProfiles("", "", "", "my-contacts")
	require.NoError(t, err)
	assert.Empty(t, profiles)

	_, err = directory.ParseProfiles("no-equals-here", "", "", "my-contacts")
	assert.Error(t, err)
}

func TestExternalIDFromHref(t *testing.T) {
	assert.Equal(t, "uid-123", directory.ExternalIDFromHref("/addressbooks/alice/my-contacts/uid-123.vcf"))
	assert.Equal(t, "uid-123", directory.ExternalIDFromHref("uid-123.vcf"))
}

func testProfile(baseURL string) directory.Profile {
	return directory.Profile{
		Name:        "test",
		BaseURL:     baseURL,
		Username:    "alice",
		Token:       "secret",
		Addressbook: "my-contacts",
	}
}

func TestPush(t *testing.T) {
	var gotIfMatch, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/my-contacts/uid-1.vcf", r.URL.Path)
		gotIfMatch = r.Header.Get("If-Match")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("ETag", `"etag-2"`)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := directory.NewHTTPClient(5*time.Second, zap.NewNop())
	result, err := client.Push(context.Background(), testProfile(server.URL), directory.OutboundRecord{
		UID:   "uid-1",
		VCard: "BEGIN:VCARD\nUID:uid-1\nEND:VCARD",
		ETag:  "etag-1",
	})
	require.NoError(t, err)
	assert.Equal(t, `"etag-2"`, result.ETag)
	assert.Equal(t, "/my-contacts/uid-1.vcf", result.Href)
	assert.Equal(t, "etag-1", gotIfMatch)
	assert.NotEmpty(t, gotAuth)
}

func TestPushCollectionOverride(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := directory.NewHTTPClient(5*time.Second, zap.NewNop())
	result, err := client.Push(context.Background(), testProfile(server.URL), directory.OutboundRecord{
		UID:        "uid-1",
		VCard:      "BEGIN:VCARD\nUID:uid-1\nEND:VCARD",
		Collection: "shared/bob",
	})
	require.NoError(t, err)
	assert.Equal(t, "/shared/bob/uid-1.vcf", gotPath)
	assert.Equal(t, "/shared/bob/uid-1.vcf", result.Href)
}

func TestPushPreconditionFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer server.Close()

	client := directory.NewHTTPClient(5*time.Second, zap.NewNop())
	_, err := client.Push(context.Background(), testProfile(server.URL), directory.OutboundRecord{
		UID:  "uid-1",
		ETag: "stale",
	})
	assert.ErrorIs(t, err, directory.ErrPreconditionFailed)
}

func TestDelete(t *testing.T) {
	status := http.StatusNoContent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := directory.NewHTTPClient(5*time.Second, zap.NewNop())
	p := testProfile(server.URL)

	assert.NoError(t, client.Delete(context.Background(), p, "/my-contacts/uid-1.vcf"))

	// Deleting an already-deleted entry is the desired end state.
	status = http.StatusNotFound
	assert.NoError(t, client.Delete(context.Background(), p, "/my-contacts/uid-1.vcf"))

	status = http.StatusForbidden
	assert.Error(t, client.Delete(context.Background(), p, "/my-contacts/uid-1.vcf"))
}

const multistatusBody = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
  <D:response>
    <D:href>/my-contacts/</D:href>
  </D:response>
  <D:response>
    <D:href>/my-contacts/uid-1.vcf</D:href>
    <D:propstat>
      <D:status>HTTP/1.1 200 OK</D:status>
      <D:prop>
        <D:getetag>"etag-1"</D:getetag>
        <C:address-data>BEGIN:VCARD
VERSION:3.0
UID:uid-1
FN:Jane Roe
END:VCARD</C:address-data>
      </D:prop>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/my-contacts/uid-2.vcf</D:href>
    <D:propstat>
      <D:status>HTTP/1.1 404 Not Found</D:status>
      <D:prop/>
    </D:propstat>
  </D:response>
</D:multistatus>`

func TestReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "REPORT", r.Method)
		assert.Equal(t, "/my-contacts/", r.URL.Path)
		assert.Equal(t, "1", r.Header.Get("Depth"))
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(multistatusBody))
	}))
	defer server.Close()

	client := directory.NewHTTPClient(5*time.Second, zap.NewNop())
	records, err := client.Report(context.Background(), testProfile(server.URL))
	require.NoError(t, err)

	// The collection itself and the 404 entry are skipped.
	require.Len(t, records, 1)
	assert.Equal(t, "uid-1", records[0].ExternalID)
	assert.Equal(t, "/my-contacts/uid-1.vcf", records[0].Href)
	assert.Equal(t, "etag-1", records[0].ETag)
	assert.Contains(t, records[0].Payload, "FN:Jane Roe")
}

func TestReportServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := directory.NewHTTPClient(5*time.Second, zap.NewNop())
	_, err := client.Report(context.Background(), testProfile(server.URL))
	assert.Error(t, err)
}
