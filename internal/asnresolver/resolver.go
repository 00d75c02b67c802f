// Package asnresolver implements the ASN Resolver (spec.md §4.2): given an
// IP, consult the prefix cache and fall back to a Cymru DNS-TXT lookup on
// miss, inserting the learned (or negative) entry back into the cache.
package asnresolver

import (
	"context"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"gixflow/internal/ipcodec"
	"gixflow/internal/logging"
	"gixflow/internal/model"
	"gixflow/internal/prefixcache"
	"gixflow/internal/workers"
)

// Config configures a Resolver.
type Config struct {
	// Server is the recursive resolver address, e.g. "8.8.8.8:53".
	Server string
	// Timeout bounds a single DNS exchange.
	Timeout time.Duration
	// CymruQPS caps outbound Cymru queries per second, so a burst of cache
	// misses from many concurrent flows doesn't hammer a public resolver
	// (spec.md §4.2). 0 uses the default.
	CymruQPS float64
}

// lookupTXTFunc resolves a DNS TXT query name to its answer strings. The
// real implementation goes over the wire via miekg/dns; tests substitute a
// stub, following the same seam trident's Cymru client tests use.
type lookupTXTFunc func(ctx context.Context, name string) ([]string, error)

// Resolver resolves IPs to ASNs, consulting and populating cache.
type Resolver struct {
	cache     *prefixcache.Cache
	cfg       Config
	client    *dns.Client
	lookupTXT lookupTXTFunc
	sf        singleflight.Group
	retry     workers.RetryConfig
	limiter   *rate.Limiter
	log       *logging.Logger
}

// defaultCymruQPS bounds origin queries when Config.CymruQPS is unset; a
// burst of 5 absorbs a cold-start wave of distinct /24s without exceeding a
// sustained rate a public resolver would consider abusive.
const defaultCymruQPS = 20

// New builds a Resolver backed by cache.
func New(cache *prefixcache.Cache, cfg Config, log *logging.Logger) *Resolver {
	if cfg.Server == "" {
		cfg.Server = "8.8.8.8:53"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.CymruQPS == 0 {
		cfg.CymruQPS = defaultCymruQPS
	}
	r := &Resolver{
		cache:   cache,
		cfg:     cfg,
		client:  &dns.Client{Timeout: cfg.Timeout},
		retry:   workers.RetryConfig{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2},
		limiter: rate.NewLimiter(rate.Limit(cfg.CymruQPS), 5),
		log:     log,
	}
	r.lookupTXT = r.exchangeTXT
	return r
}

// Resolve returns the ASN for ip. It never fails: every error path returns
// UNKNOWN and caches a short-lived negative entry (spec.md §4.2).
// Only the origin query is issued; the second-stage AS-name lookup is not.
func (r *Resolver) Resolve(ctx context.Context, ip netip.Addr) uint32 {
	return r.resolve(ctx, ip, false).ASN
}

// ResolveEntry is Resolve plus the optional name/description enrichment
// recovered from the original reference's second-stage AS-name lookup
// (SPEC_FULL.md §4.2); Name is left empty when that lookup is skipped or
// fails, which never affects the ASN result.
func (r *Resolver) ResolveEntry(ctx context.Context, ip netip.Addr) model.ResolvedEntry {
	return r.resolve(ctx, ip, true)
}

func (r *Resolver) resolve(ctx context.Context, ip netip.Addr, withName bool) model.ResolvedEntry {
	now := time.Now().Unix()

	if matched, entry, ok := r.cache.LookupPrefix(ip); ok {
		if !entry.Expired(now) {
			return model.ResolvedEntry{ASN: entry.ASN}
		}
		// Expired: delete and fall through to a fresh lookup.
		r.cache.Delete(matched)
	}

	answers, err := r.queryOriginDeduped(ctx, ip)
	if err != nil || len(answers) == 0 {
		negPrefix := ipcodec.Reduce24(ip)
		if ip.Is6() {
			negPrefix = netip.PrefixFrom(ip, 64).Masked()
		}
		r.cache.Insert(negPrefix, model.PrefixEntry{ASN: model.ASNUnknown, Expiry: now + model.TTLShort})
		r.log.Debugf("asnresolver: no answer for %s, cached negative entry for %s", ip, negPrefix)
		return model.ResolvedEntry{ASN: model.ASNUnknown}
	}

	var resolved model.ResolvedEntry
	for _, a := range answers {
		prefix, perr := netip.ParsePrefix(a.Prefix)
		if perr != nil {
			continue
		}
		r.cache.Insert(prefix, model.PrefixEntry{ASN: a.ASN, Expiry: now + model.TTLDefault})
	}

	if entry, ok := r.cache.Lookup(ip); ok {
		resolved.ASN = entry.ASN
	} else {
		resolved.ASN = answers[0].ASN
	}
	if !withName {
		return resolved
	}
	if name, country, ok := r.lookupASNName(ctx, resolved.ASN); ok {
		resolved.Name = name
		resolved.Country = country
	}
	return resolved
}

// queryOriginDeduped issues the Cymru origin query, single-flighted per
// query name so concurrent resolves for the same /24 (for IPv6, the same
// address) share one DNS round trip (spec.md §4.2's SHOULD-recommendation), and rate-limited so
// a burst of distinct misses can't flood the configured resolver.
func (r *Resolver) queryOriginDeduped(ctx context.Context, ip netip.Addr) ([]cymruAnswer, error) {
	name := originQueryName(ip)
	v, err, _ := r.sf.Do(name, func() (interface{}, error) {
		var answers []cymruAnswer
		retryErr := workers.RateLimitedRetry(ctx, r.limiter, r.retry, func() error {
			got, qerr := r.queryTXT(ctx, name)
			if qerr != nil {
				return qerr
			}
			if len(got) == 0 {
				return errEmptyAnswer
			}
			answers = got
			return nil
		})
		if retryErr != nil {
			return nil, retryErr
		}
		return answers, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]cymruAnswer), nil
}

var errEmptyAnswer = model.Error("cymru: empty TXT answer")

// queryTXT issues one TXT query and parses every answer as an origin row.
func (r *Resolver) queryTXT(ctx context.Context, name string) ([]cymruAnswer, error) {
	lines, err := r.lookupTXT(ctx, name)
	if err != nil {
		return nil, err
	}
	var answers []cymruAnswer
	for _, line := range lines {
		if a, ok := parseOriginTXT(line); ok {
			answers = append(answers, a)
		}
	}
	return answers, nil
}

// lookupASNName issues the second-stage AS<n>.asn.cymru.com query.
func (r *Resolver) lookupASNName(ctx context.Context, asn uint32) (name, country string, ok bool) {
	if asn == model.ASNUnknown || asn == model.ASNInternal {
		return "", "", false
	}
	lines, err := r.lookupTXT(ctx, asnQueryName(asn))
	if err != nil {
		return "", "", false
	}
	for _, line := range lines {
		if a, parsed := parseASNNameTXT(line); parsed {
			return a.Name, a.Country, true
		}
	}
	return "", "", false
}

// exchangeTXT is the real lookupTXTFunc, issuing a TXT query over the wire
// with github.com/miekg/dns.
func (r *Resolver) exchangeTXT(ctx context.Context, name string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	m.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, m, r.cfg.Server)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, nil
	}

	var lines []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			lines = append(lines, txt.Txt...)
		}
	}
	return lines, nil
}
