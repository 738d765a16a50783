package directory

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"time"
)

// selfSignedTLSConfig mints a throwaway ECDSA certificate so the QUIC
// transport has something to negotiate with. The directory is
// unauthenticated by design (§9's accepted trust scope limit) so
// InsecureSkipVerify on the client side is intentional, not an
// oversight.
//
// Grounded on netquic/node.go's generateTLSConfig: identical shape
// (ECDSA P-256 key, one self-signed cert, a fixed ALPN string), renamed
// to the directory's own ALPN protocol name.
func selfSignedTLSConfig() *tls.Config {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		panic(err)
	}

	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"orbitmesh-directory"},
		Certificates:       []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: priv}},
	}
}
