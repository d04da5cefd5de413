package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Files names what a Watcher loads. CertFile and KeyFile go together; any
// of the two parts may be empty.
type Files struct {
	CertFile string
	KeyFile  string
	// CAFile is a PEM file or directory of trusted cluster roots.
	CAFile string
}

// Watcher holds the current node certificate and CA pool and reloads them
// when their files change. A failed reload keeps the previous values.
type Watcher struct {
	files    Files
	logger   *slog.Logger
	debounce time.Duration

	cert  atomic.Pointer[tls.Certificate]
	roots atomic.Pointer[x509.CertPool]

	fw       *fsnotify.Watcher
	names    map[string]struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	onReload []func()
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets the quiet period after the last event before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher loads files and subscribes to their directories. Call Start
// or StartAsync to begin reloading.
func NewWatcher(files Files, opts ...WatcherOption) (*Watcher, error) {
	if (files.CertFile == "") != (files.KeyFile == "") {
		return nil, errors.New("tlsroots: certificate and key files must be set together")
	}
	if files.CertFile == "" && files.CAFile == "" {
		return nil, errors.New("tlsroots: nothing to watch")
	}

	w := &Watcher{
		files:    files,
		logger:   slog.Default(),
		debounce: 200 * time.Millisecond,
		names:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.Reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	dirs := make(map[string]struct{})
	for _, f := range []string{files.CertFile, files.KeyFile, files.CAFile} {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.names[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := dirs[dir]; ok {
			continue
		}
		dirs[dir] = struct{}{}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}
	// A CA directory reports its own entries.
	if files.CAFile != "" {
		if abs, _ := filepath.Abs(files.CAFile); isDir(abs) {
			if err := fw.Add(abs); err != nil {
				fw.Close()
				return nil, fmt.Errorf("tlsroots: watch %s: %w", abs, err)
			}
		}
	}
	w.fw = fw
	return w, nil
}

// Reload reads the files now.
func (w *Watcher) Reload() error {
	var cert *tls.Certificate
	if w.files.CertFile != "" {
		c, err := tls.LoadX509KeyPair(w.files.CertFile, w.files.KeyFile)
		if err != nil {
			return fmt.Errorf("tlsroots: load key pair: %w", err)
		}
		cert = &c
	}
	var roots *x509.CertPool
	if w.files.CAFile != "" {
		p, err := LoadPool(w.files.CAFile)
		if err != nil {
			return err
		}
		roots = p.CertPool()
	}

	if cert != nil {
		w.cert.Store(cert)
	}
	if roots != nil {
		w.roots.Store(roots)
	}

	w.mu.Lock()
	hooks := append([]func(){}, w.onReload...)
	w.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// OnReload registers fn to run after every successful reload.
func (w *Watcher) OnReload(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// Start reloads on changes until Stop is called.
func (w *Watcher) Start() {
	w.logger.Info("certificate watcher started",
		"cert_file", w.files.CertFile, "ca_file", w.files.CAFile)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			w.logger.Debug("certificate file changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				w.logger.Error("certificate reload failed", "error", err)
				continue
			}
			w.logger.Info("certificates reloaded")
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("certificate watcher error", "error", err)
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// StartAsync runs Start on a new goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop ends reloading. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fw.Close()
	})
}

// GetCertificate serves tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	if c := w.cert.Load(); c != nil {
		return c, nil
	}
	return nil, errors.New("tlsroots: no certificate loaded")
}

// GetClientCertificate serves tls.Config.GetClientCertificate.
func (w *Watcher) GetClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	if c := w.cert.Load(); c != nil {
		return c, nil
	}
	return &tls.Certificate{}, nil
}

// Roots returns the current CA pool, or nil without a CA file.
func (w *Watcher) Roots() *x509.CertPool {
	return w.roots.Load()
}

// VerifyPeer checks the peer chain of cs against the current roots.
// dnsName may be empty to skip the host name check.
func (w *Watcher) VerifyPeer(cs tls.ConnectionState, usage x509.ExtKeyUsage, dnsName string) error {
	roots := w.Roots()
	if roots == nil {
		return errors.New("tlsroots: no CA loaded")
	}
	if len(cs.PeerCertificates) == 0 {
		return errors.New("tlsroots: peer sent no certificate")
	}
	inter := x509.NewCertPool()
	for _, c := range cs.PeerCertificates[1:] {
		inter.AddCert(c)
	}
	_, err := cs.PeerCertificates[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: inter,
		DNSName:       dnsName,
		KeyUsages:     []x509.ExtKeyUsage{usage},
	})
	return err
}

func (w *Watcher) relevant(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	if _, ok := w.names[abs]; ok {
		return true
	}
	// Entries of a watched CA directory.
	_, ok := w.names[filepath.Dir(abs)]
	return ok
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
