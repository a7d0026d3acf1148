package main

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ironauth/ironauth"
	"github.com/ironauth/ironauth/token"
)

type clientState struct {
	id     string
	secret string
	token  string
}

func main() {
	var (
		clients     = flag.Int("clients", 1000, "number of client apps to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (issue + authorize)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		cryptoAddr  = flag.String("crypto-addr", "", "crypto offload address; if empty, an in-process cipher is used")
		prefix      = flag.String("prefix", "ia", "identity key prefix")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := defaultLoadConfig(*prefix, *cryptoAddr)
	builder := ironauth.New().WithConfig(cfg).WithRedis(client)
	if *cryptoAddr == "" {
		c, err := newLocalCipher()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build local cipher: %v\n", err)
			os.Exit(1)
		}
		builder = builder.WithCipher(c)
		fmt.Println("using in-process cipher")
	} else {
		fmt.Printf("using crypto offload at %s\n", *cryptoAddr)
	}

	engine, err := builder.Build(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	admin := token.New("loadtest", []token.Scope{token.Admin()}, token.Bearer, time.Hour)

	states := make([]clientState, *clients)
	fmt.Printf("seeding %d clients...\n", *clients)
	startSeed := time.Now()
	for i := 0; i < *clients; i++ {
		info, err := engine.CreateClient(ctx, admin, fmt.Sprintf("load-client-%d", i), []token.Scope{token.Public()}, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "client create failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = clientState{id: info.ID, secret: info.Secret}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	issueStats := runIssuePhase(ctx, engine, states, *ops, *concurrency)
	authorizeStats := runAuthorizePhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("authorize", authorizeStats)
}

func defaultLoadConfig(prefix, cryptoAddr string) ironauth.Config {
	cfg := ironauth.Config{}
	cfg.Store.RedisPrefix = prefix
	cfg.Token.Validity = 8 * time.Hour
	cfg.Token.LoginValidity = time.Hour
	cfg.Token.RememberValidity = 14 * 24 * time.Hour
	cfg.Password = ironauth.PasswordConfig{
		Memory:      16 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   10,
	}
	cfg.Verification.EmailTTL = 24 * time.Hour
	cfg.Verification.EmailResendTTL = 7 * 24 * time.Hour
	cfg.Verification.ResetTTL = 24 * time.Hour
	cfg.Audit = ironauth.AuditConfig{Enabled: false}
	cfg.Mail = ironauth.MailConfig{Enabled: false}
	if cryptoAddr != "" {
		cfg.Crypto.Endpoints = []string{cryptoAddr}
		cfg.Crypto.ConnsPerEndpoint = 20
		cfg.Crypto.AcquireTimeout = 2 * time.Second
		cfg.Crypto.RequestTimeout = 5 * time.Second
	}
	return cfg
}

func runIssuePhase(ctx context.Context, engine *ironauth.Engine, states []clientState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				state := &states[idx]

				t0 := time.Now()
				grant, err := engine.IssueClientToken(ctx, state.id, state.secret)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					state.token = grant.AccessToken
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runAuthorizePhase(ctx context.Context, engine *ironauth.Engine, states []clientState, ops, concurrency int) phaseStats {
	// Make sure every client has at least one token to validate.
	for i := range states {
		if states[i].token == "" {
			grant, err := engine.IssueClientToken(ctx, states[i].id, states[i].secret)
			if err != nil {
				fmt.Fprintf(os.Stderr, "token backfill failed: %v\n", err)
				os.Exit(1)
			}
			states[i].token = grant.AccessToken
		}
	}

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))

				t0 := time.Now()
				_, err := engine.Authorize(ctx, states[idx].token)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50,
		s.p95,
		s.p99,
	)
}

// localCipher stands in for the offload service when no address is given.
type localCipher struct {
	aead cipher.AEAD
}

func newLocalCipher() (*localCipher, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &localCipher{aead: aead}, nil
}

func (c *localCipher) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *localCipher) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, sealed, nil)
}
