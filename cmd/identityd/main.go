// Command identityd serves the identity engine over HTTP with redis-backed
// session state and in-memory account storage. It exists for local development
// and smoke testing; production deployments embed the engine with their own
// stores.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkova/identity"
	"github.com/arkova/identity/cookie"
	"github.com/arkova/identity/httpapi"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

type envConfig struct {
	ListenAddr          string        `env:"IDENTITY_LISTEN_ADDR" envDefault:":8080"`
	RedisAddr           string        `env:"IDENTITY_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	SigningSecret       string        `env:"IDENTITY_SIGNING_SECRET,required,notEmpty"`
	Issuer              string        `env:"IDENTITY_ISSUER" envDefault:"identity"`
	AccessTTL           time.Duration `env:"IDENTITY_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL          time.Duration `env:"IDENTITY_REFRESH_TTL" envDefault:"168h"`
	LockoutThreshold    int           `env:"IDENTITY_LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutWindow       time.Duration `env:"IDENTITY_LOCKOUT_WINDOW" envDefault:"0"`
	CookiePath          string        `env:"IDENTITY_COOKIE_PATH" envDefault:"/api/v1"`
	TOTPIssuer          string        `env:"IDENTITY_TOTP_ISSUER" envDefault:"identity"`
	// The daemon is expected to sit behind a TLS-terminating proxy, so the
	// forwarded-protocol header is trusted unless explicitly disabled.
	TrustForwardedProto bool `env:"IDENTITY_TRUST_FORWARDED_PROTO" envDefault:"true"`
}

func main() {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		log.Fatalf("identityd: environment: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: ec.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("identityd: redis ping: %v", err)
	}
	cancel()

	cfg := identity.DefaultConfig()
	cfg.Token.SigningSecret = []byte(ec.SigningSecret)
	cfg.Token.Issuer = ec.Issuer
	cfg.Token.AccessTTL = ec.AccessTTL
	cfg.Token.RefreshTTL = ec.RefreshTTL
	cfg.Lockout.Threshold = ec.LockoutThreshold
	cfg.Lockout.Window = ec.LockoutWindow
	cfg.MFA.Issuer = ec.TOTPIssuer

	users := newMemoryUserStore()
	credentials := newMemoryCredentialStore()

	engine, err := identity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithCredentialStore(credentials).
		WithNotifier(logNotifier{}).
		WithAuditSink(identity.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		log.Fatalf("identityd: build engine: %v", err)
	}
	defer engine.Close()

	cookies := cookie.NewTransport(cookie.Config{
		Path:                ec.CookiePath,
		TrustForwardedProto: ec.TrustForwardedProto,
		AccessTTL:           ec.AccessTTL,
		RefreshTTL:          ec.RefreshTTL,
	})

	server := &http.Server{
		Addr:              ec.ListenAddr,
		Handler:           httpapi.NewServer(engine, cookies).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("identityd: listening on %s", ec.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("identityd: serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("identityd: shutdown: %v", err)
	}
}
