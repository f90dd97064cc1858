package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jessevdk/go-flags"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"hawx.me/code/countdown-auth/internal/config"
	"hawx.me/code/countdown-auth/internal/data"
	"hawx.me/code/countdown-auth/internal/logger"
	"hawx.me/code/countdown-auth/internal/random"
	"hawx.me/code/countdown-auth/internal/server"
	"hawx.me/code/countdown-auth/internal/token"
	"hawx.me/code/serve"
)

type options struct {
	Port       string `long:"port" env:"PORT" default:"8080" description:"Port to run on"`
	Socket     string `long:"socket" env:"SOCKET" description:"Socket to run on"`
	Config     string `long:"config" env:"COUNTDOWN_CONFIG" default:"./config.toml" description:"Path to config file"`
	PrivateKey string `long:"private-key" env:"COUNTDOWN_PRIVATE_KEY" default:"./priv.pem" description:"Path to private key in pem format, used to sign session tokens"`
}

func main() {
	var opts options

	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	conf, err := config.Read(opts.Config)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	if err := logger.Init(conf.Logging); err != nil {
		return err
	}
	defer logger.Sync()

	privateKey, err := config.ReadPrivateKey(opts.PrivateKey)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}

	database, err := data.Open(conf.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pending, err := openPendingStore(ctx, conf.Pending)
	if err != nil {
		return err
	}

	cookieSecret := conf.Session.CookieSecret
	if cookieSecret == "" {
		logger.Warn("no cookie secret configured, logins in progress will not survive a restart")
		if cookieSecret, err = random.String(64); err != nil {
			return err
		}
	}
	cookies := sessions.NewCookieStore([]byte(cookieSecret))
	cookies.Options = &sessions.Options{
		Path:     "/auth",
		MaxAge:   int(conf.Pending.TTL.Seconds()),
		HttpOnly: true,
		Secure:   strings.HasPrefix(conf.BaseURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	tokens := token.NewIssuer(privateKey, conf.Session.Issuer, conf.Session.TokenTTL.Duration)

	logger.Info("starting",
		zap.String("baseURL", conf.BaseURL),
		zap.Bool("twitter", conf.Twitter.Enabled()),
		zap.Bool("google", conf.Google.Enabled()),
		zap.String("pending", conf.Pending.Backend))

	serve.Serve(opts.Port, opts.Socket, server.New(conf, database, pending, tokens, cookies, httpClient))
	return nil
}

func openPendingStore(ctx context.Context, conf config.Pending) (server.PendingStore, error) {
	if conf.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}

		return data.NewRedisPendingStore(client, conf.TTL.Duration), nil
	}

	store := data.NewPendingStore(conf.TTL.Duration)
	go store.Run(ctx, conf.SweepInterval.Duration)

	return store, nil
}
