package glaas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBody_EmptyIsEmptyObject(t *testing.T) {
	out, err := decodeBody([]byte("   \n  "))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}

func TestDecodeBody_UnwrapsEnvelope(t *testing.T) {
	out, err := decodeBody([]byte(`{"success":true,"data":{"id":"abc"}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc"}`, string(out))
}

func TestDecodeBody_HTMLIsError(t *testing.T) {
	_, err := decodeBody([]byte("<!DOCTYPE html><html><body>502</body></html>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTML")
}

func TestDecodeBody_InvalidJSONReportsOffset(t *testing.T) {
	_, err := decodeBody([]byte(`{"a": }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte")
}

func TestDecodeBody_NonEnvelopePassesThrough(t *testing.T) {
	out, err := decodeBody([]byte(`[1,2,3]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(out))
}

func TestClassifyStatus(t *testing.T) {
	assert.Contains(t, classifyStatus(401, nil).Error(), "authentication")
	assert.Contains(t, classifyStatus(404, nil).Error(), "not found")
	assert.Contains(t, classifyStatus(413, nil).Error(), "too large")
	assert.Contains(t, classifyStatus(403, []byte("<html>blocked</html>")).Error(), "proxy")
	assert.Contains(t, classifyStatus(502, []byte("entity too large")).Error(), "too large")
	assert.Contains(t, classifyStatus(500, []byte("boom")).Error(), "server error")
}

func TestFingerprint_Format(t *testing.T) {
	fp := fingerprint([]byte("ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAItest user@host\n"))
	assert.Regexp(t, `^SHA256:[A-Za-z0-9+/=]+$`, fp)
}

func TestExtractArmor_StripsMarkers(t *testing.T) {
	pem := "-----BEGIN SSH SIGNATURE-----\nAAAA\nBBBB\n-----END SSH SIGNATURE-----\n"
	assert.Equal(t, "AAAABBBB", extractArmor(pem))
}
