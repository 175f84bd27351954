package directory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Profile is one connected directory server endpoint.
type Profile struct {
	Name        string
	BaseURL     string
	Username    string
	Token       string
	Addressbook string
}

// ParseProfiles parses the configured endpoint list, given as comma-separated
// name=baseURL pairs. All profiles share the configured credentials and
// addressbook collection.
func ParseProfiles(endpoints, username, token, addressbook string) ([]Profile, error) {
	var profiles []Profile
	for _, entry := range strings.Split(endpoints, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		sep := strings.IndexByte(entry, '=')
		if sep <= 0 {
			return nil, fmt.Errorf("malformed directory endpoint %q, want name=baseURL", entry)
		}
		profiles = append(profiles, Profile{
			Name:        strings.TrimSpace(entry[:sep]),
			BaseURL:     strings.TrimRight(strings.TrimSpace(entry[sep+1:]), "/"),
			Username:    username,
			Token:       token,
			Addressbook: addressbook,
		})
	}
	return profiles, nil
}

// OutboundRecord is a local contact being pushed to the directory.
type OutboundRecord struct {
	// UID is the external identity of the record; hrefs end in "<uid>.vcf".
	UID   string
	VCard string
	// ETag guards the write: when set, the push only succeeds if the server
	// copy still carries it.
	ETag string
	// Collection overrides the profile's addressbook as the target
	// collection. Shared copies received from other users live under
	// "shared/<sharer>" instead of the owner's addressbook.
	Collection string
}

// PushResult reports a successful push.
type PushResult struct {
	ETag string
	Href string
}

// InboundRecord is one directory entry pulled during reconciliation.
type InboundRecord struct {
	// ExternalID is the trailing href segment without the .vcf suffix.
	ExternalID  string
	Href        string
	ETag        string
	Addressbook string
	Payload     string
}

// ErrPreconditionFailed reports a push rejected because the server copy
// changed since the guarded etag was read.
var ErrPreconditionFailed = fmt.Errorf("directory precondition failed")

// ErrNotFound reports a missing directory entry.
var ErrNotFound = fmt.Errorf("directory entry not found")

// Client talks to an external directory server.
type Client interface {
	// Push writes a record. The returned etag supersedes the guarded one.
	Push(ctx context.Context, p Profile, rec OutboundRecord) (PushResult, error)
	// Delete removes a record by href. Deleting a missing href is not an error.
	Delete(ctx context.Context, p Profile, href string) error
	// Report pulls the addressbook contents for reconciliation.
	Report(ctx context.Context, p Profile) ([]InboundRecord, error)
}

// HTTPClient is the HTTP implementation of Client against CardDAV-style
// directory servers.
type HTTPClient struct {
	http   *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates a directory client with the given request timeout.
func NewHTTPClient(timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Push uploads the record with PUT, guarded by If-Match when an etag is held.
func (c *HTTPClient) Push(ctx context.Context, p Profile, rec OutboundRecord) (PushResult, error) {
	href := recordPath(p, rec)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.BaseURL+href, strings.NewReader(rec.VCard))
	if err != nil {
		return PushResult{}, err
	}
	req.Header.Set("Content-Type", "text/vcard; charset=utf-8")
	if rec.ETag != "" {
		req.Header.Set("If-Match", rec.ETag)
	}
	c.authorize(req, p)

	resp, err := c.http.Do(req)
	if err != nil {
		return PushResult{}, fmt.Errorf("failed to push %s to %s: %w", rec.UID, p.Name, err)
	}
	defer drainBody(resp)

	switch {
	case resp.StatusCode == http.StatusPreconditionFailed:
		return PushResult{}, fmt.Errorf("%w: %s on %s", ErrPreconditionFailed, rec.UID, p.Name)
	case resp.StatusCode >= 300:
		return PushResult{}, fmt.Errorf("push %s to %s: unexpected status %d", rec.UID, p.Name, resp.StatusCode)
	}

	return PushResult{
		ETag: resp.Header.Get("ETag"),
		Href: href,
	}, nil
}

// Delete removes the record at the given href.
func (c *HTTPClient) Delete(ctx context.Context, p Profile, href string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.BaseURL+href, nil)
	if err != nil {
		return err
	}
	c.authorize(req, p)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete %s on %s: %w", href, p.Name, err)
	}
	defer drainBody(resp)

	// An already-deleted entry is the desired end state.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete %s on %s: unexpected status %d", href, p.Name, resp.StatusCode)
	}
	return nil
}

// Report pulls every record of the profile's addressbook collection.
func (c *HTTPClient) Report(ctx context.Context, p Profile) ([]InboundRecord, error) {
	body := `<?xml version="1.0" encoding="utf-8"?>
<C:addressbook-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
  <D:prop>
    <D:getetag/>
    <C:address-data/>
  </D:prop>
</C:addressbook-query>`

	url := fmt.Sprintf("%s/%s/", p.BaseURL, p.Addressbook)
	req, err := http.NewRequestWithContext(ctx, "REPORT", url, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", "1")
	c.authorize(req, p)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", p.Name, err)
	}
	defer drainBody(resp)

	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: unexpected status %d", p.Name, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", p.Name, err)
	}

	records, err := parseMultistatus(data, p.Addressbook)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", p.Name, err)
	}
	c.logger.Debug("Directory report finished",
		zap.String("profile", p.Name),
		zap.Int("records", len(records)))
	return records, nil
}

func (c *HTTPClient) authorize(req *http.Request, p Profile) {
	if p.Username != "" {
		req.SetBasicAuth(p.Username, p.Token)
	} else if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}
}

func recordPath(p Profile, rec OutboundRecord) string {
	collection := p.Addressbook
	if rec.Collection != "" {
		collection = rec.Collection
	}
	return fmt.Sprintf("/%s/%s.vcf", collection, rec.UID)
}

// ExternalIDFromHref extracts the record identity from a directory href;
// hrefs end in "<uid>.vcf".
func ExternalIDFromHref(href string) string {
	tail := href
	if i := strings.LastIndexByte(tail, '/'); i >= 0 {
		tail = tail[i+1:]
	}
	return strings.TrimSuffix(tail, ".vcf")
}

func drainBody(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
