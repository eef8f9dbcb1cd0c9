package importer

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avni/avni-server/internal/domain/observation"
)

func newTestHandler() *Handler {
	f := newFixture()
	log := zerolog.Nop()
	svc := NewService(f.store, testHierarchy(), f.coercer, observation.NewService(log), 4, log)
	return NewHandler(svc)
}

func uploadRequest(t *testing.T, target, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "rows.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	return req
}

func TestHandler_Import(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := uploadRequest(t, "/", "First Name,Weight\nAsha,12\nRavi,heavy\n")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("formType")
	c.SetParamValues("IndividualProfile")

	require.NoError(t, h.Import(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Invalid answer 'heavy' for 'Weight'", res.Rows[1].Error)
}

func TestHandler_Import_ErrorsCSV(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := uploadRequest(t, "/?format=errors", "Weight\nheavy\n")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("formType")
	c.SetParamValues("IndividualProfile")

	require.NoError(t, h.Import(c))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Weight,Errors\n"))
	assert.Contains(t, rec.Body.String(), "heavy,Invalid answer 'heavy' for 'Weight'")
}

func TestHandler_Import_BadFormType(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := uploadRequest(t, "/", "Weight\n1\n")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("formType")
	c.SetParamValues("Checklist")

	err := h.Import(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}
