package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/perch-social/satchel/internal/boot"
	"github.com/perch-social/satchel/internal/mirror"
	"github.com/perch-social/satchel/internal/model"
	"github.com/perch-social/satchel/internal/queuestore"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func newStores(t *testing.T) (*queuestore.Store, *mirror.Store) {
	t.Helper()
	config := &boot.Config{DataDirectory: t.TempDir()}

	queue, err := queuestore.New(config)
	if err != nil {
		t.Fatalf("creating queue store: %+v", err)
	}
	t.Cleanup(func() { queue.Close() })

	records, err := mirror.New(config)
	if err != nil {
		t.Fatalf("creating mirror store: %+v", err)
	}
	t.Cleanup(func() { records.Close() })

	return queue, records
}

func TestEnqueueAction(t *testing.T) {
	assert := assert.New(t)
	queue, records := newStores(t)

	server := echo.New()
	body := `{"type":"send_message","payload":{"receiver_id":"42","text":"hi"}}`
	req := httptest.NewRequest(http.MethodPost, "/actions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := server.NewContext(req, rec)

	err := EnqueueAction(queue, records)(c)
	assert.Nil(err)
	assert.Equal(http.StatusAccepted, rec.Code)

	response := enqueueResponse{}
	assert.Nil(json.Unmarshal(rec.Body.Bytes(), &response))
	assert.NotZero(response.ActionID)
	assert.NotEmpty(response.LocalID)

	t.Run("Action queued", func(t *testing.T) {
		pending, err := queue.ListByStatus(model.ActionStatusPending)
		assert.Nil(err)
		if assert.Len(pending, 1) {
			assert.Equal(model.ActionSendMessage, pending[0].ActionType)
		}
	})

	t.Run("Optimistic record written", func(t *testing.T) {
		record, err := records.Get(response.LocalID)
		assert.Nil(err)
		assert.Equal(model.RecordKindMessage, record.Kind)
		assert.Equal("hi", record.Body)
		assert.Equal("42", record.ThreadKey)
		assert.Equal(model.SyncStatusPending, record.SyncStatus)
		assert.True(record.CreatedOffline)
	})
}

func TestEnqueueUnknownType(t *testing.T) {
	assert := assert.New(t)
	queue, records := newStores(t)

	server := echo.New()
	body := `{"type":"reticulate_splines","payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/actions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := server.NewContext(req, rec)

	err := EnqueueAction(queue, records)(c)
	httpErr := &echo.HTTPError{}
	if assert.ErrorAs(err, &httpErr) {
		assert.Equal(http.StatusBadRequest, httpErr.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	assert := assert.New(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), 10)
	assert.Nil(err)

	server := echo.New()
	next := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	guarded := AdminAuth(string(hash))(next)

	t.Run("Missing password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/sync/run", nil)
		rec := httptest.NewRecorder()
		c := server.NewContext(req, rec)

		err := guarded(c)
		httpErr := &echo.HTTPError{}
		if assert.ErrorAs(err, &httpErr) {
			assert.Equal(http.StatusUnauthorized, httpErr.Code)
		}
	})

	t.Run("Correct password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/sync/run", nil)
		req.Header.Set(AdminPasswordHeader, "s3cret")
		rec := httptest.NewRecorder()
		c := server.NewContext(req, rec)

		assert.Nil(guarded(c))
		assert.Equal(http.StatusOK, rec.Code)
	})

	t.Run("No hash configured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/sync/run", nil)
		rec := httptest.NewRecorder()
		c := server.NewContext(req, rec)

		assert.Nil(AdminAuth("")(next)(c))
		assert.Equal(http.StatusOK, rec.Code)
	})
}
