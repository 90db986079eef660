package dsig

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func generateTestCertificate(t *testing.T) (*rsa.PrivateKey, *x509.Certificate, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "dsig-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	certPEM := b642pem(base64.StdEncoding.EncodeToString(der))
	return key, cert, certPEM
}

func TestFingerprintFormat(t *testing.T) {
	_, cert, _ := generateTestCertificate(t)
	fp := fingerprint(cert.Raw)

	require.Len(t, fp, 59) // 20 bytes * 2 hex chars + 19 separators
	require.Regexp(t, `^([0-9a-f]{2}:){19}[0-9a-f]{2}$`, fp)
}

func TestBuildCertificateIndexAndResolveByFingerprint(t *testing.T) {
	_, cert, certPEM := generateTestCertificate(t)
	fp := fingerprint(cert.Raw)

	doc, err := ParseXML([]byte(`<Doc><ds:KeyInfo xmlns:ds="` + Namespace + `"><ds:X509Data><ds:X509Certificate>` + pem2b64(certPEM) + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo></Doc>`))
	require.NoError(t, err)

	index, err := buildCertificateIndex(doc)
	require.NoError(t, err)
	require.Contains(t, index, fp)

	resolved, err := resolveCertPEM(fp, index)
	require.NoError(t, err)

	reparsed, err := parseCertificatePEM(resolved)
	require.NoError(t, err)
	require.Equal(t, cert.Raw, reparsed.Raw)
}

func TestResolveCertPEMUnknownFingerprintErrors(t *testing.T) {
	_, err := resolveCertPEM("aa:bb:cc", CertificateIndex{})
	require.Error(t, err)
	require.ErrorIs(t, err, KeyNotFound)
}
