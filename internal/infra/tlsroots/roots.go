package tlsroots

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCertsFound is returned when PEM data holds no certificate.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found")

// Pool is a set of trusted root certificates.
type Pool struct {
	pool  *x509.CertPool
	count int
}

// NewSystemPool starts from the system roots, or from an empty pool where
// the platform has none.
func NewSystemPool() *Pool {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	return &Pool{pool: pool}
}

// NewEmptyPool creates a pool trusting nothing.
func NewEmptyPool() *Pool {
	return &Pool{pool: x509.NewCertPool()}
}

// LoadPool builds an empty pool from path, a PEM file or a directory of
// them.
func LoadPool(path string) (*Pool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: %w", err)
	}
	p := NewEmptyPool()
	if info.IsDir() {
		err = p.AddCertDir(path)
	} else {
		err = p.AddCertFile(path)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AddCertFile adds every certificate of a PEM file.
func (p *Pool) AddCertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read %s: %w", path, err)
	}
	if err := p.AddCertPEM(data); err != nil {
		return fmt.Errorf("%w in %s", err, path)
	}
	return nil
}

// AddCertPEM adds every CERTIFICATE block. Other block types are skipped.
func (p *Pool) AddCertPEM(data []byte) error {
	added := 0
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		p.pool.AddCert(cert)
		added++
	}
	if added == 0 {
		return ErrNoCertsFound
	}
	p.count += added
	return nil
}

// AddCertDir adds the .pem, .crt and .cer files of dir. Unreadable files
// are reported together once the rest have been added.
func (p *Pool) AddCertDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("tlsroots: read dir %s: %w", dir, err)
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".pem", ".crt", ".cer":
			if err := p.AddCertFile(filepath.Join(dir, e.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if p.count == 0 && len(errs) == 0 {
		return fmt.Errorf("%w in %s", ErrNoCertsFound, dir)
	}
	return errors.Join(errs...)
}

// AddCert adds a parsed certificate.
func (p *Pool) AddCert(cert *x509.Certificate) {
	p.pool.AddCert(cert)
	p.count++
}

// Len is the number of certificates added to the pool, system roots not
// included.
func (p *Pool) Len() int { return p.count }

// CertPool returns the pool for use in a tls.Config.
func (p *Pool) CertPool() *x509.CertPool { return p.pool }
