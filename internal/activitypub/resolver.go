// Package activitypub resolves remote ActivityPub actors.
package activitypub

import (
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/result"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const activityJSON = "application/activity+json"

// actorDocument is the subset of an ActivityPub actor we read.
type actorDocument struct {
	Endpoints struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	Icon      mediaRef `json:"icon"`
	Image     mediaRef `json:"image"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	PreferredUsername string          `json:"preferredUsername"`
	Name              string          `json:"name"`
	Summary           string          `json:"summary"`
	URL               json.RawMessage `json:"url"`
	Inbox             string          `json:"inbox"`
	Outbox            string          `json:"outbox"`
	Following         string          `json:"following"`
	Followers         string          `json:"followers"`
	Liked             string          `json:"liked"`
	Attachment        []struct {
		Type  string `json:"type"`
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"attachment"`
}

// mediaRef accepts a bare URL string, an Image object or a Link object.
// Anything else decodes to an empty URL.
type mediaRef struct {
	URL string
}

func (m *mediaRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.URL = s
		return nil
	}
	var obj struct {
		URL  string `json:"url"`
		Href string `json:"href"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	m.URL = obj.URL
	if m.URL == "" {
		m.URL = obj.Href
	}
	return nil
}

var actorTypes = map[string]bool{
	"Person":       true,
	"Service":      true,
	"Application":  true,
	"Group":        true,
	"Organization": true,
}

// cachedActor is a resolved profile with its expiry.
type cachedActor struct {
	expiresAt time.Time
	profile   *accounts.ActorProfile
}

// Config configures a Resolver.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	// RequestsPerSecond bounds outbound actor fetches; zero disables the limit.
	RequestsPerSecond float64
}

// Resolver fetches actor documents over HTTP and caches the results.
type Resolver struct {
	client  *resty.Client
	cache   *lru.Cache[string, cachedActor]
	flights singleflight.Group
	limiter *rate.Limiter
	logger  *slog.Logger
	ttl     time.Duration
}

// NewResolver creates an actor resolver.
func NewResolver(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	cache, err := lru.New[string, cachedActor](cfg.CacheSize)
	if err != nil {
		logger.Warn("failed to create actor cache, falling back to size 1", "error", err)
		cache, _ = lru.New[string, cachedActor](1)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", activityJSON+`, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Resolver{
		client:  c,
		cache:   cache,
		limiter: rate.NewLimiter(limit, 10),
		logger:  logger,
		ttl:     cfg.CacheTTL,
	}
}

// ResolveActor fetches the actor document at apID. Expected failures are
// reported as error kinds, never as Go errors. Concurrent calls for the same
// apID share one fetch.
func (r *Resolver) ResolveActor(ctx context.Context, apID string) result.Result[*accounts.ActorProfile, accounts.ResolveError] {
	if cached, ok := r.cache.Get(apID); ok {
		if time.Now().Before(cached.expiresAt) {
			return result.Ok[*accounts.ActorProfile, accounts.ResolveError](cached.profile)
		}
		r.cache.Remove(apID)
	}

	v, _, _ := r.flights.Do(apID, func() (any, error) {
		return r.fetch(ctx, apID), nil
	})
	return v.(result.Result[*accounts.ActorProfile, accounts.ResolveError])
}

func (r *Resolver) fetch(ctx context.Context, apID string) result.Result[*accounts.ActorProfile, accounts.ResolveError] {
	u, err := url.Parse(apID)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return result.Error[*accounts.ActorProfile](accounts.ResolveInvalid)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return result.Error[*accounts.ActorProfile](accounts.ResolveUnavailable)
	}

	resp, err := r.client.R().SetContext(ctx).Get(apID)
	if err != nil {
		r.logger.Warn("actor fetch failed", "ap_id", apID, "error", err)
		return result.Error[*accounts.ActorProfile](accounts.ResolveUnavailable)
	}
	switch status := resp.StatusCode(); {
	case status == http.StatusOK:
	case status == http.StatusNotFound || status == http.StatusGone:
		return result.Error[*accounts.ActorProfile](accounts.ResolveNotFound)
	default:
		r.logger.Warn("actor fetch returned unexpected status", "ap_id", apID, "status", status)
		return result.Error[*accounts.ActorProfile](accounts.ResolveUnavailable)
	}

	var doc actorDocument
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		r.logger.Warn("actor document is not valid JSON", "ap_id", apID, "error", err)
		return result.Error[*accounts.ActorProfile](accounts.ResolveInvalid)
	}
	profile, ok := toProfile(apID, &doc)
	if !ok {
		return result.Error[*accounts.ActorProfile](accounts.ResolveInvalid)
	}

	r.cache.Add(apID, cachedActor{profile: profile, expiresAt: time.Now().Add(r.ttl)})
	return result.Ok[*accounts.ActorProfile, accounts.ResolveError](profile)
}

func toProfile(apID string, doc *actorDocument) (*accounts.ActorProfile, bool) {
	if !actorTypes[doc.Type] || doc.ID == "" || doc.Inbox == "" || doc.PreferredUsername == "" {
		return nil, false
	}
	// The document must describe the actor we asked for, on the same host.
	requested, _ := url.Parse(apID)
	served, err := url.Parse(doc.ID)
	if err != nil || !strings.EqualFold(requested.Host, served.Host) {
		return nil, false
	}

	profile := &accounts.ActorProfile{
		ApID:              doc.ID,
		PreferredUsername: doc.PreferredUsername,
		Name:              doc.Name,
		Summary:           doc.Summary,
		IconURL:           doc.Icon.URL,
		ImageURL:          doc.Image.URL,
		URL:               firstURL(doc.URL),
		PublicKeyPEM:      doc.PublicKey.PublicKeyPem,
		Endpoints: accounts.Endpoints{
			Inbox:       doc.Inbox,
			SharedInbox: doc.Endpoints.SharedInbox,
			Outbox:      doc.Outbox,
			Following:   doc.Following,
			Followers:   doc.Followers,
			Liked:       doc.Liked,
		},
	}
	for _, a := range doc.Attachment {
		if a.Type == "PropertyValue" && a.Name != "" {
			profile.CustomFields = append(profile.CustomFields, accounts.CustomField{Name: a.Name, Value: a.Value})
		}
	}
	return profile, true
}

// firstURL reads "url" given as a string, a Link object or an array of either.
func firstURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var ref mediaRef
	if err := json.Unmarshal(raw, &ref); err == nil && ref.URL != "" {
		return ref.URL
	}
	var list []mediaRef
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if item.URL != "" {
				return item.URL
			}
		}
	}
	return ""
}
