package network

import (
	"context"
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/nodemesh-go/internal/infra/tlsroots"
)

func startServer(t *testing.T, transport Transport, tlsConf *tls.Config) *Server {
	t.Helper()
	srv := NewServer(ServerConfig{
		Transport: transport,
		Addresses: []string{"127.0.0.1:0"},
		TLSConfig: tlsConf,
	}, newTestHandler(installEcho))

	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func roundTrip(t *testing.T, client *Client, addr string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := client.Connect(ctx, addr)
	require.NoError(t, err)

	reply, err := ch.SendQuery(ctx, query("over the wire"))
	require.NoError(t, err)
	assert.Equal(t, "echo:over the wire", reply.Body.ReadString())
}

func selfSignedTLS(t *testing.T) (*tls.Config, *tls.Config) {
	t.Helper()
	cert, err := tlsroots.GenerateSelfSigned([]string{"127.0.0.1"}, time.Hour)
	require.NoError(t, err)
	server := &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{ALPN}, MinVersion: tls.VersionTLS13}
	client := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{ALPN}, MinVersion: tls.VersionTLS13} //nolint:gosec // test
	return server, client
}

func TestServer_TCP(t *testing.T) {
	srv := startServer(t, TransportTCP, nil)
	client := NewClient(ClientConfig{Transport: TransportTCP}, nil)
	defer client.Close()

	roundTrip(t, client, srv.Addrs()[0].String())
	assert.Len(t, srv.Channels(), 1)
}

func TestServer_TCPWithTLS(t *testing.T) {
	serverTLS, clientTLS := selfSignedTLS(t)
	srv := startServer(t, TransportTCP, serverTLS)
	client := NewClient(ClientConfig{Transport: TransportTCP, TLSConfig: clientTLS}, nil)
	defer client.Close()

	roundTrip(t, client, srv.Addrs()[0].String())
}

func TestServer_QUIC(t *testing.T) {
	serverTLS, clientTLS := selfSignedTLS(t)
	srv := startServer(t, TransportQUIC, serverTLS)
	client := NewClient(ClientConfig{Transport: TransportQUIC, TLSConfig: clientTLS}, nil)
	defer client.Close()

	roundTrip(t, client, srv.Addrs()[0].String())
}

func TestServer_QUICRequiresTLS(t *testing.T) {
	srv := NewServer(ServerConfig{Transport: TransportQUIC, Addresses: []string{"127.0.0.1:0"}}, nil)
	assert.Error(t, srv.Start(context.Background()))
}

func TestServer_ShutdownClosesChannels(t *testing.T) {
	srv := NewServer(ServerConfig{Transport: TransportTCP, Addresses: []string{"127.0.0.1:0"}}, newTestHandler(installEcho))
	require.NoError(t, srv.Start(context.Background()))

	clientHandler := newTestHandler(nil)
	client := NewClient(ClientConfig{}, clientHandler)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := client.Connect(ctx, srv.Addrs()[0].String())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(srv.Channels()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, srv.Shutdown(ctx))
	select {
	case <-clientHandler.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("client channel not closed after server shutdown")
	}
	assert.True(t, ch.Closed())
	assert.Empty(t, srv.Channels())
}

func TestServer_NoAddress(t *testing.T) {
	srv := NewServer(ServerConfig{}, nil)
	assert.ErrorIs(t, srv.Start(context.Background()), ErrNoAddress)
}

func TestClient_ConnectRefused(t *testing.T) {
	client := NewClient(ClientConfig{DialTimeout: time.Second}, nil)
	_, err := client.Connect(context.Background(), "127.0.0.1:1")
	assert.Error(t, err)

	_, err = client.Connect(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestParseTransport(t *testing.T) {
	for in, want := range map[string]Transport{"": TransportTCP, "TCP": TransportTCP, " quic ": TransportQUIC} {
		got, err := ParseTransport(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTransport("sctp")
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestHostAndPort(t *testing.T) {
	hp, err := ParseHostAndPort("10.0.0.1:1410")
	require.NoError(t, err)
	assert.Equal(t, HostAndPort{Host: "10.0.0.1", Port: 1410}, hp)
	assert.Equal(t, "10.0.0.1:1410", hp.String())

	v6, err := ParseHostAndPort("[::1]:80")
	require.NoError(t, err)
	assert.Equal(t, "[::1]:80", v6.String())

	_, err = ParseHostAndPort("no-port")
	assert.Error(t, err)
	_, err = ParseHostAndPort("h:99999")
	assert.Error(t, err)

	assert.True(t, HostAndPort{}.IsZero())
}

func TestBuildTLS(t *testing.T) {
	b, err := BuildTLS(TLSOptions{}, nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = BuildTLS(TLSOptions{Enabled: true}, nil)
	assert.Error(t, err)

	b, err = BuildTLS(TLSOptions{Enabled: true, SelfSigned: true, InsecureSkipVerify: true}, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Len(t, b.Server.Certificates, 1)
	assert.Equal(t, []string{ALPN}, b.Client.NextProtos)
}

func TestBuildTLS_MutualFromFiles(t *testing.T) {
	cert, err := tlsroots.GenerateSelfSigned([]string{"127.0.0.1"}, time.Hour)
	require.NoError(t, err)
	certPEM, keyPEM, err := tlsroots.EncodePEM(cert)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "node.crt")
	keyFile := filepath.Join(dir, "node.key")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))

	b, err := BuildTLS(TLSOptions{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: certFile}, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, tls.RequireAnyClientCert, b.Server.ClientAuth)
	assert.NotNil(t, b.Client.VerifyConnection)

	srv := startServer(t, TransportTCP, b.Server)
	client := NewClient(ClientConfig{Transport: TransportTCP, TLSConfig: b.Client}, nil)
	defer client.Close()

	roundTrip(t, client, srv.Addrs()[0].String())
}
