package contacts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"contact-manager/feature/contacts"
	"contact-manager/feature/dedupe"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T) (*fiber.App, *contacts.Service) {
	t.Helper()
	logger := zap.NewNop()
	store := contacts.NewStore(logger)
	dedupeSvc := dedupe.NewService(contacts.NewCandidateSource(store), logger)
	svc := contacts.NewService(store, nil, dedupeSvc, logger)

	app := fiber.New()
	contacts.NewHandler(svc, logger).RegisterRoutes(app)
	return app, svc
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestHandleCreateContact(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := doJSON(t, app, "POST", "/contacts", contacts.CreateInput{
		CardName: "John Doe",
		VCard:    "BEGIN:VCARD\nVERSION:3.0\nFN:John Doe\nEND:VCARD",
	})
	assert.Equal(t, fiber.StatusCreated, status)
	assert.NotNil(t, body["contact"])
}

func TestHandleCreateContactValidation(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := doJSON(t, app, "POST", "/contacts", contacts.CreateInput{
		VCard: "BEGIN:VCARD\nEND:VCARD",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.NotEmpty(t, body["error"])
}

func TestHandleCreateContactDuplicate(t *testing.T) {
	app, _ := newTestApp(t)

	in := contacts.CreateInput{
		CardName: "John Doe",
		VCard:    "BEGIN:VCARD\nVERSION:3.0\nFN:John Doe\nTEL:555-123-4567\nEND:VCARD",
	}
	status, _ := doJSON(t, app, "POST", "/contacts", in)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := doJSON(t, app, "POST", "/contacts", in)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.NotEmpty(t, body["matches"])

	in.AllowDuplicate = true
	status, _ = doJSON(t, app, "POST", "/contacts", in)
	assert.Equal(t, fiber.StatusCreated, status)
}

func TestHandleGetContact(t *testing.T) {
	app, svc := newTestApp(t)

	c, _, err := svc.Create(context.Background(), contacts.CreateInput{
		CardName: "John Doe",
		VCard:    "BEGIN:VCARD\nVERSION:3.0\nFN:John Doe\nEND:VCARD",
	})
	require.NoError(t, err)

	status, body := doJSON(t, app, "GET", "/contacts/"+c.ContactID, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.NotNil(t, body["contact"])

	status, _ = doJSON(t, app, "GET", "/contacts/missing", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	// A read counts as an access.
	got, _ := svc.Store().Get(c.ContactID)
	assert.Equal(t, 1, got.Metadata.Usage.AccessCount)
}

func TestHandleLifecycleRoutes(t *testing.T) {
	app, svc := newTestApp(t)

	c, _, err := svc.Create(context.Background(), contacts.CreateInput{
		CardName: "John Doe",
		VCard:    "BEGIN:VCARD\nVERSION:3.0\nFN:John Doe\nEND:VCARD",
	})
	require.NoError(t, err)

	status, _ := doJSON(t, app, "POST", "/contacts/"+c.ContactID+"/archive", nil)
	assert.Equal(t, fiber.StatusOK, status)
	got, _ := svc.Store().Get(c.ContactID)
	assert.True(t, got.Metadata.IsArchived)

	status, _ = doJSON(t, app, "POST", "/contacts/"+c.ContactID+"/restore", nil)
	assert.Equal(t, fiber.StatusOK, status)
	got, _ = svc.Store().Get(c.ContactID)
	assert.False(t, got.Metadata.IsArchived)

	status, _ = doJSON(t, app, "DELETE", "/contacts/"+c.ContactID, nil)
	assert.Equal(t, fiber.StatusOK, status)
	got, _ = svc.Store().Get(c.ContactID)
	assert.True(t, got.Metadata.IsDeleted)

	status, _ = doJSON(t, app, "POST", "/contacts/missing/archive", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHandleListContacts(t *testing.T) {
	app, svc := newTestApp(t)

	_, _, err := svc.Create(context.Background(), contacts.CreateInput{
		CardName: "John Doe",
		VCard:    "BEGIN:VCARD\nVERSION:3.0\nFN:John Doe\nEND:VCARD",
	})
	require.NoError(t, err)

	status, body := doJSON(t, app, "GET", "/contacts", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["contacts"], 1)
}
