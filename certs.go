package dsig

import (
	"crypto/sha1" // #nosec G505 -- fingerprint algorithm is fixed by XML-DSig/X.509 convention, not used for security
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/beevik/etree"
)

// CertificateIndex maps a colon-lowercased SHA-1 fingerprint of a
// certificate's DER body to that certificate's base64 PEM body text
// (without armor).
type CertificateIndex map[string]string

// buildCertificateIndex scans doc for every {xmldsig}X509Certificate
// element and indexes its base64 body text by the fingerprint of the
// decoded DER.
func buildCertificateIndex(doc *etree.Document) (CertificateIndex, error) {
	index := CertificateIndex{}

	root := doc.Root()
	if root == nil {
		return index, nil
	}

	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		if el.Tag == X509CertificateTag {
			body := strings.TrimSpace(el.Text())
			if der, err := base64.StdEncoding.DecodeString(stripWhitespace(body)); err == nil {
				index[fingerprint(der)] = body
			}
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(root)

	return index, nil
}

// fingerprint returns the SHA-1 fingerprint of der rendered as 40
// lowercase hex digits, colon-separated in byte pairs.
func fingerprint(der []byte) string {
	sum := sha1.Sum(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// resolveCertPEM resolves a keyspec string and the certificate index
// built from a specific signature's document into a PEM-armored
// certificate.
func resolveCertPEM(keyspec string, index CertificateIndex) (string, error) {
	if info, err := os.Stat(keyspec); err == nil && !info.IsDir() {
		data, err := os.ReadFile(keyspec)
		if err != nil {
			return "", wrapErr(err, KeyNotFound, "failed to read keyspec file %q", keyspec)
		}
		return string(data), nil
	}

	if strings.Contains(keyspec, ":") {
		body, ok := index[strings.ToLower(keyspec)]
		if !ok {
			return "", newErr(KeyNotFound, "no certificate in document matches fingerprint %q", keyspec)
		}
		return b642pem(body), nil
	}

	if strings.Contains(keyspec, "BEGIN CERTIFICATE") {
		return keyspec, nil
	}

	return "", newErr(KeyNotFound, "unable to resolve anything useful from keyspec")
}

// pem2b64 strips PEM armor, returning the base64 body joined without
// embedded newlines.
func pem2b64(pem string) string {
	lines := strings.Split(strings.TrimSpace(pem), "\n")
	if len(lines) >= 2 {
		lines = lines[1 : len(lines)-1]
	}
	return strings.Join(lines, "")
}

// b642pem re-wraps a base64 certificate body in PEM armor, 64 columns
// per line.
func b642pem(body string) string {
	body = stripWhitespace(body)
	var out strings.Builder
	out.WriteString("-----BEGIN CERTIFICATE-----\n")
	for len(body) > 64 {
		out.WriteString(body[:64])
		out.WriteByte('\n')
		body = body[64:]
	}
	out.WriteString(body)
	out.WriteByte('\n')
	out.WriteString("-----END CERTIFICATE-----")
	return out.String()
}
