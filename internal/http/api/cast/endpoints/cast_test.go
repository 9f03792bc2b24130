package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/marquee/internal/cast"
	"github.com/Nixie-Tech-LLC/marquee/internal/engine"
	"github.com/Nixie-Tech-LLC/marquee/internal/http/api"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	devices []cast.Device
	err     error
}

func (f *fakeEngine) Discover(context.Context) ([]cast.Device, error) {
	return f.devices, f.err
}

func get(e Engine, path string) *httptest.ResponseRecorder {
	r := gin.New()
	api.MountGroup(r, api.GroupConfig{Prefix: "/api"}, CastModule(e))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListDevices(t *testing.T) {
	fe := &fakeEngine{devices: []cast.Device{{ID: "uuid-lobby", Name: "Lobby TV", Address: "10.0.0.5", Port: 8009}}}

	rec := get(fe, "/api/cast/devices")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Devices []cast.Device `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Devices, 1)
	assert.Equal(t, "uuid-lobby", body.Devices[0].ID)
	assert.Equal(t, 8009, body.Devices[0].Port)
}

func TestListDevicesEmpty(t *testing.T) {
	rec := get(&fakeEngine{devices: []cast.Device{}}, "/api/cast/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"devices":[]}`, rec.Body.String())
}

func TestListDevicesCastDisabled(t *testing.T) {
	rec := get(&fakeEngine{err: engine.ErrCastDisabled}, "/api/cast/devices")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListDevicesDiscoveryFailure(t *testing.T) {
	rec := get(&fakeEngine{err: errors.New("mdns browse: network is unreachable")}, "/api/cast/devices")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "unreachable")
}
