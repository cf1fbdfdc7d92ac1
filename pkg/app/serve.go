package app

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agrichain/pkg/config"
	"agrichain/pkg/httpapi"
	"agrichain/pkg/logging"
)

const shutdownTimeout = 5 * time.Second

// serveOptions carries what the serve command resolved from flags and files.
type serveOptions struct {
	cfg        *config.Config
	configPath string
	// level is nil when the caller supplied its own logger.
	level    *zap.AtomicLevel
	listener net.Listener
}

// serve runs the API until ctx is cancelled or a server fails.
func serve(ctx context.Context, opts serveOptions, logger *zap.Logger) error {
	cfg := opts.cfg
	node, err := OpenNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer node.Close()

	handler := httpapi.New(node.Services, node.Registry, node.Clock, node.Gov, node.Metrics, logger).Handler()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.TLSDomain != "" {
		logger.Info("starting HTTPS servers", zap.String("domain", cfg.Server.TLSDomain))
		g.Go(func() error { return runDomainServers(gctx, cfg, handler, logger) })
	} else {
		ln := opts.listener
		if ln == nil {
			ln, err = net.Listen("tcp", ":"+strconv.Itoa(cfg.Server.Port))
			if err != nil {
				return fmt.Errorf("unable to listen: %w", err)
			}
		}
		server := newHTTPServer(cfg, handler)
		g.Go(func() error {
			logger.Info("agrichain is running", zap.String("addr", ln.Addr().String()))
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stopped unexpectedly: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return shutdown(server)
		})
	}

	if opts.level != nil && opts.configPath != "" {
		if _, err := os.Stat(opts.configPath); err == nil {
			level := *opts.level
			g.Go(func() error {
				return config.Watch(gctx, opts.configPath, 0, logger, func(c *config.Config) {
					if err := logging.SetLevel(level, c.Logging.Level); err != nil {
						logger.Warn("log level not applied", zap.Error(err))
						return
					}
					logger.Info("log level changed", zap.String("level", c.Logging.Level))
				})
			})
		}
	}

	return g.Wait()
}

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  cfg.GetIdleTimeout(),
	}
}

func shutdown(servers ...*http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runDomainServers serves HTTPS on :443 and redirects plain HTTP from :80.
func runDomainServers(ctx context.Context, cfg *config.Config, handler http.Handler, logger *zap.Logger) error {
	domain := cfg.Server.TLSDomain
	tlsCert, keyFile, certFile, err := generateCertificate(domain)
	if err != nil {
		return fmt.Errorf("unable to generate certificate: %w", err)
	}
	defer os.Remove(keyFile)
	defer os.Remove(certFile)

	httpsServer := newHTTPServer(cfg, handler)
	httpsServer.Addr = ":443"
	httpsServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{tlsCert}, MinVersion: tls.VersionTLS12}

	httpRedirect := &http.Server{
		Addr: ":80",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "https://"+domain+r.URL.RequestURI(), http.StatusPermanentRedirect)
		}),
		ReadTimeout: cfg.GetReadTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP redirect server listening", zap.String("addr", httpRedirect.Addr))
		if err := httpRedirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("redirect server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("HTTPS server starting with an ephemeral certificate", zap.String("domain", domain))
		if err := httpsServer.ListenAndServeTLS(certFile, keyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("TLS server stopped unexpectedly: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(httpRedirect, httpsServer)
	})
	return g.Wait()
}

// generateCertificate produces a temporary self-signed certificate for domain.
func generateCertificate(domain string) (tls.Certificate, string, string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{CommonName: domain, Organization: []string{"agrichain"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		DNSNames:     []string{domain},
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}

	certFile, err := writeTempFile("cert", certPEM)
	if err != nil {
		return tls.Certificate{}, "", "", err
	}
	keyFile, err := writeTempFile("key", keyPEM)
	if err != nil {
		os.Remove(certFile)
		return tls.Certificate{}, "", "", err
	}
	return tlsCert, keyFile, certFile, nil
}

// writeTempFile persists PEM data because ListenAndServeTLS expects file paths.
func writeTempFile(prefix string, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "agrichain-"+prefix)
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
