package ratelim

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"deepfakeapi/config"
	"deepfakeapi/utils"
)

// Policy names used by the route table.
const (
	PolicyPredict = "predict"
	PolicyVideo   = "video"
	PolicyURL     = "url"
	PolicyDefault = "default"
)

// minVisitorTTL is the shortest time an idle client is remembered.
const minVisitorTTL = 10 * time.Minute

// RateLimiter keeps per-client limiters for a set of named policies.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	policies map[string]Policy
	enabled  bool
	ttl      time.Duration

	now       func() time.Time
	onLimited func(policy string)
	logger    *zap.Logger
}

type visitor struct {
	limiters []*rate.Limiter
	lastSeen time.Time
}

type Option func(*RateLimiter)

// WithOnLimited registers a hook called whenever a request is rejected.
func WithOnLimited(fn func(policy string)) Option {
	return func(rl *RateLimiter) { rl.onLimited = fn }
}

// NewRateLimiter builds the limiter from the configured policy strings.
func NewRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger, opts ...Option) (*RateLimiter, error) {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		policies: make(map[string]Policy),
		enabled:  cfg.Enabled,
		ttl:      minVisitorTTL,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "rate_limiter")),
	}
	for _, o := range opts {
		o(rl)
	}
	for name, spec := range map[string]string{
		PolicyPredict: cfg.Predict,
		PolicyVideo:   cfg.Video,
		PolicyURL:     cfg.URL,
		PolicyDefault: cfg.Default,
	} {
		if err := rl.AddPolicy(name, spec); err != nil {
			return nil, err
		}
	}
	return rl, nil
}

// AddPolicy parses spec and registers it under name.
func (rl *RateLimiter) AddPolicy(name, spec string) error {
	p, err := ParsePolicy(spec)
	if err != nil {
		return fmt.Errorf("rate limit %q: %w", name, err)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.policies[name] = p
	for _, l := range p {
		if l.Per > rl.ttl {
			rl.ttl = l.Per
		}
	}
	return nil
}

// Get or create the limiters of a client for one policy on one route
func (rl *RateLimiter) getVisitor(policy, route, ip string, now time.Time) *visitor {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := policy + "|" + route + "|" + ip
	if v, exists := rl.visitors[key]; exists {
		v.lastSeen = now
		return v
	}
	v := &visitor{lastSeen: now}
	for _, l := range rl.policies[policy] {
		v.limiters = append(v.limiters, l.limiter())
	}
	rl.visitors[key] = v
	return v
}

// Allow consumes one request for ip on route under policy. Each route keeps
// its own counters, so a shared policy does not pool routes together. When
// the request is rejected it returns how long the client should wait. Every
// limit of the policy must admit the request; a rejected request consumes
// nothing.
func (rl *RateLimiter) Allow(policy, route, ip string) (bool, time.Duration) {
	now := rl.now()
	v := rl.getVisitor(policy, route, ip, now)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	taken := make([]*rate.Reservation, 0, len(v.limiters))
	for _, lim := range v.limiters {
		r := lim.ReserveN(now, 1)
		if !r.OK() || r.DelayFrom(now) > 0 {
			wait := time.Duration(math.MaxInt64)
			if r.OK() {
				wait = r.DelayFrom(now)
				r.CancelAt(now)
			}
			for _, prev := range taken {
				prev.CancelAt(now)
			}
			return false, wait
		}
		taken = append(taken, r)
	}
	return true, 0
}

// Limit wraps the handler of route with the named policy. Requests are
// counted per method, route and socket address. A disabled limiter or an
// unknown policy leaves next unwrapped.
func (rl *RateLimiter) Limit(policy, route string, next httprouter.Handle) httprouter.Handle {
	rl.mu.Lock()
	p, known := rl.policies[policy]
	rl.mu.Unlock()
	if !rl.enabled || !known || len(p) == 0 {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ip := utils.ClientIP(r)
		if ok, wait := rl.Allow(policy, r.Method+" "+route, ip); !ok {
			rl.logger.Info("rate limit exceeded",
				zap.String("policy", policy),
				zap.String("ip", ip),
				zap.String("path", r.URL.Path),
			)
			if rl.onLimited != nil {
				rl.onLimited(policy)
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			utils.RecordError(w, "Rate limit exceeded")
			utils.RespondWithJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":   "Rate limit exceeded",
				"message": p.String(),
			})
			return
		}
		next(w, r, ps)
	}
}

// Policy returns Limit bound to one policy and route, for use with
// middleware.Chain.
func (rl *RateLimiter) Policy(name, route string) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return rl.Limit(name, route, next)
	}
}

func retryAfterSeconds(wait time.Duration) int {
	if wait <= 0 {
		return 1
	}
	if wait > 24*time.Hour {
		return int((24 * time.Hour).Seconds())
	}
	return int(math.Ceil(wait.Round(time.Millisecond).Seconds()))
}

// Run forgets idle clients until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(minVisitorTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.sweep(rl.now()); n > 0 {
				rl.logger.Debug("forgot idle clients", zap.Int("count", n))
			}
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.ttl {
			delete(rl.visitors, key)
			n++
		}
	}
	return n
}

// Limit is one "N per period" rule.
type Limit struct {
	Count int
	Per   time.Duration
	text  string
}

func (l Limit) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(l.Per/time.Duration(l.Count)), l.Count)
}

func (l Limit) String() string { return l.text }

// Policy is a set of limits that must all hold.
type Policy []Limit

func (p Policy) String() string {
	parts := make([]string, len(p))
	for i, l := range p {
		parts[i] = l.String()
	}
	return strings.Join(parts, ", ")
}

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   365 * 24 * time.Hour,
}

// ParsePolicy parses limit strings such as "10 per minute", "5/second" or
// "100 per day;20 per 2 hours". Limits are separated by ";" or ",". An empty
// string is an empty policy.
func ParsePolicy(spec string) (Policy, error) {
	var p Policy
	for _, part := range strings.FieldsFunc(spec, func(r rune) bool { return r == ';' || r == ',' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		l, err := parseLimit(part)
		if err != nil {
			return nil, err
		}
		p = append(p, l)
	}
	return p, nil
}

func parseLimit(s string) (Limit, error) {
	var count, rest string
	if before, after, ok := strings.Cut(s, "/"); ok {
		count, rest = before, after
	} else {
		fields := strings.Fields(s)
		if len(fields) < 3 || strings.ToLower(fields[1]) != "per" {
			return Limit{}, fmt.Errorf("invalid limit %q", s)
		}
		count, rest = fields[0], strings.Join(fields[2:], " ")
	}

	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Limit{}, fmt.Errorf("invalid count in limit %q", s)
	}

	mult := 1
	fields := strings.Fields(strings.ToLower(rest))
	switch len(fields) {
	case 1:
	case 2:
		mult, err = strconv.Atoi(fields[0])
		if err != nil || mult <= 0 {
			return Limit{}, fmt.Errorf("invalid period in limit %q", s)
		}
		fields = fields[1:]
	default:
		return Limit{}, fmt.Errorf("invalid period in limit %q", s)
	}
	unit, ok := units[strings.TrimSuffix(fields[0], "s")]
	if !ok {
		return Limit{}, fmt.Errorf("unknown unit in limit %q", s)
	}

	return Limit{
		Count: n,
		Per:   time.Duration(mult) * unit,
		text:  fmt.Sprintf("%d per %d %s", n, mult, strings.TrimSuffix(fields[0], "s")),
	}, nil
}
