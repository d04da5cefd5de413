package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWatcher_Validation(t *testing.T) {
	if _, err := NewWatcher(Files{}); err == nil {
		t.Error("empty Files should fail")
	}
	if _, err := NewWatcher(Files{CertFile: "a.crt"}); err == nil {
		t.Error("cert without key should fail")
	}
	if _, err := NewWatcher(Files{CertFile: "/nonexistent/a.crt", KeyFile: "/nonexistent/a.key"}); err == nil {
		t.Error("missing files should fail")
	}

	dir := t.TempDir()
	certFile := filepath.Join(dir, "bad.crt")
	keyFile := filepath.Join(dir, "bad.key")
	_ = os.WriteFile(certFile, []byte("invalid"), 0o644)
	_ = os.WriteFile(keyFile, []byte("invalid"), 0o600)
	if _, err := NewWatcher(Files{CertFile: certFile, KeyFile: keyFile}); err == nil {
		t.Error("invalid key pair should fail")
	}
}

func TestWatcher_Certificates(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePEM(t, dir, "node")

	w, err := NewWatcher(Files{CertFile: certFile, KeyFile: keyFile, CAFile: certFile})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	c, err := w.GetCertificate(nil)
	if err != nil || c == nil {
		t.Fatalf("GetCertificate() = %v, %v", c, err)
	}
	cc, err := w.GetClientCertificate(nil)
	if err != nil || cc != c {
		t.Errorf("GetClientCertificate() should return the same certificate")
	}
	if w.Roots() == nil {
		t.Error("Roots() is nil with a CA file")
	}
}

func TestWatcher_CAOnly(t *testing.T) {
	dir := t.TempDir()
	certFile, _ := writePEM(t, dir, "ca")

	w, err := NewWatcher(Files{CAFile: dir})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if _, err := w.GetCertificate(nil); err == nil {
		t.Error("GetCertificate() without a key pair should fail")
	}
	cc, err := w.GetClientCertificate(nil)
	if err != nil || len(cc.Certificate) != 0 {
		t.Errorf("GetClientCertificate() = %v, %v, want an empty certificate", cc, err)
	}
	if !w.relevant(certFile) {
		t.Error("files of a CA directory should be relevant")
	}
	if w.relevant(filepath.Join(t.TempDir(), "x.crt")) {
		t.Error("files elsewhere should not be relevant")
	}
}

func TestWatcher_VerifyPeer(t *testing.T) {
	dir := t.TempDir()
	trusted, _ := writePEM(t, dir, "trusted", "127.0.0.1")

	w, err := NewWatcher(Files{CAFile: trusted})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	leaf := parseFirst(t, trusted)
	if err := w.VerifyPeer(tls.ConnectionState{PeerCertificates: []*x509.Certificate{leaf}}, x509.ExtKeyUsageServerAuth, ""); err != nil {
		t.Errorf("VerifyPeer(trusted) error = %v", err)
	}

	stranger, err := GenerateSelfSigned(nil, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.VerifyPeer(tls.ConnectionState{PeerCertificates: []*x509.Certificate{stranger.Leaf}}, x509.ExtKeyUsageServerAuth, ""); err == nil {
		t.Error("VerifyPeer(untrusted) should fail")
	}
	if err := w.VerifyPeer(tls.ConnectionState{}, x509.ExtKeyUsageServerAuth, ""); err == nil {
		t.Error("VerifyPeer without certificates should fail")
	}
}

func parseFirst(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	pair, err := tls.LoadX509KeyPair(path, path[:len(path)-len(".crt")]+".key")
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePEM(t, dir, "node")

	w, err := NewWatcher(Files{CertFile: certFile, KeyFile: keyFile}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	var reloads atomic.Int32
	w.OnReload(func() { reloads.Add(1) })
	before, _ := w.GetCertificate(nil)
	w.StartAsync()

	// Rewrites both files with a fresh pair.
	writePEM(t, dir, "node")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if after, _ := w.GetCertificate(nil); after != before && reloads.Load() > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("certificate not reloaded after the files changed")
}

func TestWatcher_FailedReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePEM(t, dir, "node")

	w, err := NewWatcher(Files{CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()
	before, _ := w.GetCertificate(nil)

	if err := os.WriteFile(certFile, []byte("broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(); err == nil {
		t.Fatal("Reload() of a broken file should fail")
	}
	if after, _ := w.GetCertificate(nil); after != before {
		t.Error("a failed reload replaced the certificate")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePEM(t, dir, "node")
	w, err := NewWatcher(Files{CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatal(err)
	}
	w.StartAsync()
	w.Stop()
	w.Stop()
}
