package dsig

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestPrivateKeyPEM(t *testing.T, priv *rsa.PrivateKey) string {
	t.Helper()
	der := x509.MarshalPKCS1PrivateKey(priv)
	block := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})

	dir := t.TempDir()
	path := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(path, block, 0o600))
	return path
}

func TestSignThenVerifyRoundTrip(t *testing.T) {
	priv, cert, certPEM := generateTestCertificate(t)
	keyPath := writeTestPrivateKeyPEM(t, priv)

	doc, err := ParseXML([]byte(`<Invoice><Total>100.00</Total></Invoice>`))
	require.NoError(t, err)

	signed, err := Sign(doc, KeySpecFromPath(keyPath), certPEM, "", DefaultSignOptions())
	require.NoError(t, err)

	sigEl := signed.FindElement("//Signature")
	require.NotNil(t, sigEl)
	require.NotEmpty(t, sigEl.FindElement(SignatureValueTag).Text())

	ok, err := Verify(signed, KeySpecFromFingerprint(fingerprint(cert.Raw)), DefaultVerifyOptions())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyNoSignatureReturnsFalse(t *testing.T) {
	doc, err := ParseXML([]byte(`<Invoice><Total>100.00</Total></Invoice>`))
	require.NoError(t, err)

	ok, err := Verify(doc, KeySpecFromPEM(""), DefaultVerifyOptions())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifySignatureMethodHashMismatchFails(t *testing.T) {
	priv, cert, certPEM := generateTestCertificate(t)
	keyPath := writeTestPrivateKeyPEM(t, priv)

	doc, err := ParseXML([]byte(`<Invoice><Total>100.00</Total></Invoice>`))
	require.NoError(t, err)

	signed, err := Sign(doc, KeySpecFromPath(keyPath), certPEM, "", DefaultSignOptions())
	require.NoError(t, err)

	sm := signed.FindElement("//SignatureMethod")
	require.NotNil(t, sm)
	sm.CreateAttr(AlgorithmAttr, RSASHA256SignatureMethod)

	_, err = Verify(signed, KeySpecFromFingerprint(fingerprint(cert.Raw)), DefaultVerifyOptions())
	require.Error(t, err)
	require.ErrorIs(t, err, InconsistentHash)
}

func TestVerifyTamperedDocumentFails(t *testing.T) {
	priv, cert, certPEM := generateTestCertificate(t)
	keyPath := writeTestPrivateKeyPEM(t, priv)

	doc, err := ParseXML([]byte(`<Invoice><Total>100.00</Total></Invoice>`))
	require.NoError(t, err)

	signed, err := Sign(doc, KeySpecFromPath(keyPath), certPEM, "", DefaultSignOptions())
	require.NoError(t, err)

	signed.FindElement("//Total").SetText("999.99")

	_, err = Verify(signed, KeySpecFromFingerprint(fingerprint(cert.Raw)), DefaultVerifyOptions())
	require.Error(t, err)
	require.ErrorIs(t, err, SignatureMismatch)
}
