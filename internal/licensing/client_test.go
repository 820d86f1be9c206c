package licensing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverReturning(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
}

func TestActivateSuccess(t *testing.T) {
	srv := serverReturning(t, http.StatusOK, ActivationResponse{
		InstanceID: "inst-1",
		User:       "ada@example.com",
		Mode:       "licensed",
		AIMode:     "saas",
	})
	defer srv.Close()

	resp, err := NewClient(srv.URL).Activate(context.Background(), "laptop", "KEY-123")
	require.NoError(t, err)
	assert.Equal(t, "inst-1", resp.InstanceID)
	assert.Equal(t, "licensed", resp.Mode)
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrActivationFailed},
		{http.StatusForbidden, ErrTrialAlreadyUsed},
		{http.StatusNotFound, ErrLicenseNotFound},
		{http.StatusConflict, ErrLicenseAlreadyActivated},
		{http.StatusServiceUnavailable, ErrServiceUnavailable},
	}
	for _, tc := range cases {
		srv := serverReturning(t, tc.status, nil)
		_, err := NewClient(srv.URL).Activate(context.Background(), "laptop", "KEY-123")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		srv.Close()
	}
}

func TestTrialAndValidatePayloads(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = nil
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(ActivationResponse{Mode: "trial"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Trial(context.Background(), "laptop", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "/v1/trial", gotPath)
	assert.Equal(t, map[string]string{"instanceName": "laptop", "email": "ada@example.com"}, gotBody)

	_, err = c.Validate(context.Background(), "KEY-9")
	require.NoError(t, err)
	assert.Equal(t, "/v1/validate", gotPath)
	assert.Equal(t, map[string]string{"licenseKey": "KEY-9"}, gotBody)
}

func TestUnreachableServerIsServiceUnavailable(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1").Activate(context.Background(), "laptop", "K")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "ABCD************WXYZ", MaskKey("ABCD1234567890EFWXYZ"))
	assert.Equal(t, "****", MaskKey("1234"))
}
