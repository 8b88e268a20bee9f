package investors

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	invsvc "unitfund-backend/internal/application/investors"
	"unitfund-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupInvestorsTest(t *testing.T) *fiber.App {
	t.Helper()
	h := &Handlers{Service: &invsvc.Service{DB: testutil.NewDB(t)}}
	app := fiber.New()
	app.Post("/api/v1/investors", h.Create)
	app.Get("/api/v1/investors/:investor_id", h.Get)
	app.Put("/api/v1/investors/:investor_id/kyc", h.SetKYC)
	return app
}

func call(t *testing.T, app *fiber.App, method, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestCreateAndVerifyInvestor(t *testing.T) {
	app := setupInvestorsTest(t)

	status, out := call(t, app, "POST", "/api/v1/investors", map[string]string{"email": "Ada@Example.com", "full_name": "ada lovelace"})
	require.Equal(t, fiber.StatusCreated, status)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "ada@example.com", data["email"])
	assert.Equal(t, "unverified", data["kyc_status"])
	id := data["id"].(string)

	status, out = call(t, app, "PUT", "/api/v1/investors/"+id+"/kyc", map[string]string{"kyc_status": "verified"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "verified", out["data"].(map[string]interface{})["kyc_status"])

	status, out = call(t, app, "GET", "/api/v1/investors/"+id, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "verified", out["data"].(map[string]interface{})["kyc_status"])
}

func TestCreateInvestor_Errors(t *testing.T) {
	app := setupInvestorsTest(t)

	status, _ := call(t, app, "POST", "/api/v1/investors", map[string]string{"full_name": "No Email"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, "POST", "/api/v1/investors", map[string]string{"email": "not-an-email"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, "POST", "/api/v1/investors", map[string]string{"email": "dup@example.com"})
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = call(t, app, "POST", "/api/v1/investors", map[string]string{"email": "dup@example.com"})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestSetKYC_Errors(t *testing.T) {
	app := setupInvestorsTest(t)

	status, _ := call(t, app, "PUT", "/api/v1/investors/"+uuid.NewString()+"/kyc", map[string]string{"kyc_status": "verified"})
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = call(t, app, "PUT", "/api/v1/investors/"+uuid.NewString()+"/kyc", map[string]string{"kyc_status": "approved"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, "GET", "/api/v1/investors/abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
