package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// newCertCmd generates a self-signed certificate pair for --tls-cert and
// --tls-key, for local or LAN deployments without a real CA.
func newCertCmd() *cobra.Command {
	var (
		certPath string
		keyPath  string
		hostname string
		validity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Generate a self-signed TLS certificate pair.",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			fingerprint, err := writeSelfSignedCert(certPath, keyPath, hostname, validity)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s and %s\n", certPath, keyPath)
			fmt.Printf("SHA-256 fingerprint: %s\n", fingerprint)
			return nil
		},
	}

	cmd.Flags().StringVar(&certPath, "cert", "cert.pem", "output certificate path")
	cmd.Flags().StringVar(&keyPath, "key", "key.pem", "output private key path")
	cmd.Flags().StringVar(&hostname, "hostname", "", "extra DNS SAN besides localhost")
	cmd.Flags().DurationVar(&validity, "validity", 365*24*time.Hour, "certificate validity period")

	return cmd
}

// writeSelfSignedCert creates an ECDSA P-256 certificate and writes the PEM
// pair to disk. Returns the certificate's SHA-256 fingerprint.
func writeSelfSignedCert(certPath, keyPath, hostname string, validity time.Duration) (string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", fmt.Errorf("generate serial: %w", err)
	}

	cn := "amadeus"
	if hostname != "" {
		cn = hostname
	}
	sans := []string{"localhost"}
	if hostname != "" && hostname != "localhost" {
		sans = append(sans, hostname)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              sans,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return "", fmt.Errorf("create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return "", fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return "", fmt.Errorf("write private key: %w", err)
	}

	fp := sha256.Sum256(certDER)
	return hex.EncodeToString(fp[:]), nil
}
