package network

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yndnr/nodemesh-go/internal/infra/tlsroots"
)

// ALPN identifies NodeMesh traffic. QUIC refuses a handshake without it.
const ALPN = "nodemesh/1"

// TLSOptions describes the certificates a node presents and trusts.
type TLSOptions struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	// CAFile enables mutual TLS: peers must present a certificate signed
	// by one of these roots.
	CAFile     string
	ServerName string
	// InsecureSkipVerify disables verification of the remote certificate.
	InsecureSkipVerify bool
	// SelfSigned generates an ephemeral certificate when no files are set.
	SelfSigned bool
	// Hosts are the names written into a self-signed certificate.
	Hosts []string
}

// TLSBundle holds the server and client configurations of one node. Close
// stops the certificate watcher, if any.
type TLSBundle struct {
	Server *tls.Config
	Client *tls.Config

	watcher *tlsroots.Watcher
}

// Close stops certificate reloading.
func (b *TLSBundle) Close() {
	if b != nil && b.watcher != nil {
		b.watcher.Stop()
	}
}

// BuildTLS creates the server and client configurations for opts. It
// returns nil when TLS is disabled.
func BuildTLS(opts TLSOptions, logger *slog.Logger) (*TLSBundle, error) {
	if !opts.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := &tls.Config{MinVersion: tls.VersionTLS13, NextProtos: []string{ALPN}}
	client := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		NextProtos:         []string{ALPN},
		ServerName:         opts.ServerName,
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // operator choice
	}
	bundle := &TLSBundle{Server: server, Client: client}

	var certFiles tlsroots.Files
	switch {
	case opts.CertFile != "" && opts.KeyFile != "":
		certFiles.CertFile, certFiles.KeyFile = opts.CertFile, opts.KeyFile
	case opts.SelfSigned:
		cert, err := tlsroots.GenerateSelfSigned(opts.Hosts, 0)
		if err != nil {
			return nil, fmt.Errorf("generate self-signed certificate: %w", err)
		}
		logger.Warn("using an ephemeral self-signed certificate")
		server.Certificates = []tls.Certificate{cert}
		client.Certificates = []tls.Certificate{cert}
	default:
		return nil, errors.New("tls enabled without certificate: set cert_file and key_file or self_signed")
	}
	certFiles.CAFile = opts.CAFile
	if certFiles.CertFile == "" && certFiles.CAFile == "" {
		return bundle, nil
	}

	w, err := tlsroots.NewWatcher(certFiles, tlsroots.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("load node certificates: %w", err)
	}
	w.StartAsync()
	bundle.watcher = w

	if certFiles.CertFile != "" {
		server.GetCertificate = w.GetCertificate
		client.GetClientCertificate = w.GetClientCertificate
	}
	if certFiles.CAFile != "" {
		// Both directions verify against the CA pool current at handshake
		// time, so a rotated bundle applies to new channels.
		server.ClientAuth = tls.RequireAnyClientCert
		server.VerifyConnection = func(cs tls.ConnectionState) error {
			return w.VerifyPeer(cs, x509.ExtKeyUsageClientAuth, "")
		}
		if !opts.InsecureSkipVerify {
			client.InsecureSkipVerify = true //nolint:gosec // verified in VerifyConnection
			client.VerifyConnection = func(cs tls.ConnectionState) error {
				return w.VerifyPeer(cs, x509.ExtKeyUsageServerAuth, opts.ServerName)
			}
		}
	}
	return bundle, nil
}
