package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wisp-sensor/wisp/internal/ports"
)

func TestBuildEnvelopeDeviceUsesMACField(t *testing.T) {
	rssi := -42
	e := ports.Event{Type: "device_discovered", Timestamp: "2026-07-30T00:00:00Z", MAC: "aa:bb:cc:dd:ee:ff", RSSI: &rssi, Vendor: "Acme"}
	env := buildEnvelope(e, "msg-1")

	assert.Equal(t, "aa:bb:cc:dd:ee:ff", env.MAC)
	assert.Empty(t, env.BSSID)
	assert.Equal(t, "msg-1", env.MessageID)
	if assert.NotNil(t, env.RSSI) {
		assert.Equal(t, -42, *env.RSSI)
	}
}

func TestBuildEnvelopeAPUsesBSSIDField(t *testing.T) {
	e := ports.Event{Type: "ap_discovered", Timestamp: "2026-07-30T00:00:00Z", MAC: "11:22:33:44:55:66", SSID: "home"}
	env := buildEnvelope(e, "msg-2")

	assert.Equal(t, "11:22:33:44:55:66", env.BSSID)
	assert.Empty(t, env.MAC)
}
