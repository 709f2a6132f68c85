package accounts

import (
	"Fedipub/internal/core/relations"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CustomField is one entry of the ordered profile key/value list.
type CustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Endpoints are the ActivityPub collection URLs of an actor.
type Endpoints struct {
	Inbox       string
	SharedInbox string
	Outbox      string
	Following   string
	Followers   string
	Liked       string
}

// Account is the aggregate root for local (internal) and remote (external)
// actors. An account without an id is a draft; the repository assigns the id
// exactly once on first persistence.
type Account struct {
	createdAt      time.Time
	keys           *KeyPair
	apID           string
	username       string
	name           string
	bio            string
	avatarURL      string
	bannerImageURL string
	url            string
	domain         string
	endpoints      Endpoints
	customFields   []CustomField
	follows        relations.Diff[int64]
	blocks         relations.Diff[int64]
	domainBlocks   relations.Diff[string]
	id             int64
	uuid           uuid.UUID
	internal       bool
	profileDirty   bool
}

// Profile is the descriptive part of an account shared by both factories.
type Profile struct {
	Username       string
	Name           string
	Bio            string
	AvatarURL      string
	BannerImageURL string
	URL            string
	CustomFields   []CustomField
}

// InternalAccountData describes a new account owned by a local site.
type InternalAccountData struct {
	Keys      *KeyPair
	ApID      string
	Endpoints Endpoints
	Profile
}

// ExternalAccountData describes a remote actor. Keys may be nil or public-only.
type ExternalAccountData struct {
	Keys      *KeyPair
	ApID      string
	Endpoints Endpoints
	Profile
}

// NewInternal creates a draft internal account. It fails without a key pair
// holding both halves.
func NewInternal(data InternalAccountData) (*Account, error) {
	if data.Keys == nil || !data.Keys.HasPrivateKey() {
		return nil, ErrMissingKeyPair
	}
	if err := data.Keys.Validate(); err != nil {
		return nil, err
	}
	acc, err := newAccount(data.ApID, data.Profile, data.Endpoints, data.Keys)
	if err != nil {
		return nil, err
	}
	acc.internal = true
	return acc, nil
}

// NewInternalForSite creates a draft internal account with the actor and
// collection URLs a site serves under /.ghost/activitypub.
func NewInternalForSite(host string, profile Profile, keys *KeyPair) (*Account, error) {
	if host == "" {
		return nil, &InvalidAccountError{Field: "host", Reason: "must not be empty"}
	}
	base := fmt.Sprintf("https://%s/.ghost/activitypub", host)
	if profile.URL == "" {
		profile.URL = fmt.Sprintf("https://%s", host)
	}
	return NewInternal(InternalAccountData{
		ApID: base + "/users/index",
		Endpoints: Endpoints{
			Inbox:     base + "/inbox/index",
			Outbox:    base + "/outbox/index",
			Following: base + "/following/index",
			Followers: base + "/followers/index",
			Liked:     base + "/liked/index",
		},
		Keys:    keys,
		Profile: profile,
	})
}

// NewExternal creates a draft account for a remote actor.
func NewExternal(data ExternalAccountData) (*Account, error) {
	if data.Keys != nil && data.Keys.PublicKey != "" {
		if err := data.Keys.Validate(); err != nil {
			return nil, err
		}
	}
	return newAccount(data.ApID, data.Profile, data.Endpoints, data.Keys)
}

func newAccount(apID string, profile Profile, endpoints Endpoints, keys *KeyPair) (*Account, error) {
	domain, err := domainOf(apID)
	if err != nil {
		return nil, err
	}
	if profile.Username == "" {
		return nil, &InvalidAccountError{Field: "username", Reason: "must not be empty"}
	}
	return &Account{
		uuid:           uuid.New(),
		apID:           apID,
		username:       profile.Username,
		name:           profile.Name,
		bio:            profile.Bio,
		avatarURL:      profile.AvatarURL,
		bannerImageURL: profile.BannerImageURL,
		url:            profile.URL,
		domain:         domain,
		endpoints:      endpoints,
		customFields:   slices.Clone(profile.CustomFields),
		keys:           keys,
		createdAt:      time.Now().UTC(),
	}, nil
}

// Data is the stored form of an account, used by repositories to rehydrate it.
type Data struct {
	CreatedAt time.Time
	Keys      *KeyPair
	ApID      string
	Endpoints Endpoints
	Profile
	ID         int64
	UUID       uuid.UUID
	IsInternal bool
}

// Rehydrate rebuilds a persisted account. A nil UUID is allowed here; the
// repository backfills it.
func Rehydrate(data Data) (*Account, error) {
	if data.ID == 0 {
		return nil, ErrNotPersisted
	}
	if data.IsInternal && !data.Keys.HasPrivateKey() {
		return nil, fmt.Errorf("account %d: %w", data.ID, ErrMissingKeyPair)
	}
	domain, err := domainOf(data.ApID)
	if err != nil {
		return nil, err
	}
	return &Account{
		id:             data.ID,
		uuid:           data.UUID,
		apID:           data.ApID,
		username:       data.Username,
		name:           data.Name,
		bio:            data.Bio,
		avatarURL:      data.AvatarURL,
		bannerImageURL: data.BannerImageURL,
		url:            data.URL,
		domain:         domain,
		endpoints:      data.Endpoints,
		customFields:   slices.Clone(data.CustomFields),
		keys:           data.Keys,
		internal:       data.IsInternal,
		createdAt:      data.CreatedAt,
	}, nil
}

func domainOf(apID string) (string, error) {
	u, err := url.Parse(apID)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return "", &InvalidAccountError{Field: "apId", Reason: fmt.Sprintf("%q is not an absolute http(s) URL", apID)}
	}
	return strings.ToLower(u.Hostname()), nil
}

func (a *Account) ID() int64                   { return a.id }
func (a *Account) HasID() bool                 { return a.id != 0 }
func (a *Account) UUID() uuid.UUID             { return a.uuid }
func (a *Account) ApID() string                { return a.apID }
func (a *Account) Username() string            { return a.username }
func (a *Account) Name() string                { return a.name }
func (a *Account) Bio() string                 { return a.bio }
func (a *Account) AvatarURL() string           { return a.avatarURL }
func (a *Account) BannerImageURL() string      { return a.bannerImageURL }
func (a *Account) URL() string                 { return a.url }
func (a *Account) Domain() string              { return a.domain }
func (a *Account) Endpoints() Endpoints        { return a.endpoints }
func (a *Account) Keys() *KeyPair              { return a.keys }
func (a *Account) IsInternal() bool            { return a.internal }
func (a *Account) CreatedAt() time.Time        { return a.createdAt }
func (a *Account) CustomFields() []CustomField { return slices.Clone(a.customFields) }

// Handle returns the fediverse handle, e.g. @index@example.com.
func (a *Account) Handle() string {
	return fmt.Sprintf("@%s@%s", a.username, a.domain)
}

// SameAs compares federation identity, which is stable before and after
// persistence.
func (a *Account) SameAs(other *Account) bool {
	return other != nil && a.apID == other.apID
}

// AssignID sets the database id. It may be called again only with the same id.
func (a *Account) AssignID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid account id %d", id)
	}
	if a.id != 0 && a.id != id {
		return fmt.Errorf("%w: %d (attempted %d)", ErrIDAlreadyAssigned, a.id, id)
	}
	a.id = id
	return nil
}

// Adopt replaces the draft's state with stored, the persisted account holding
// the same ap id. A repository uses it when its insert lost a race.
func (a *Account) Adopt(stored *Account) error {
	if stored == nil || stored.apID != a.apID {
		return ErrDifferentApID
	}
	*a = *stored
	return nil
}

// AssignUUID fills a missing UUID. Accounts that already have one keep it.
func (a *Account) AssignUUID(id uuid.UUID) {
	if a.uuid == uuid.Nil {
		a.uuid = id
	}
}

// ProfileUpdate holds the fields to change; nil fields are left as they are.
type ProfileUpdate struct {
	Name           *string
	Bio            *string
	Username       *string
	AvatarURL      *string
	BannerImageURL *string
	CustomFields   []CustomField
	// ReplaceCustomFields must be set for CustomFields to be applied, so an
	// empty list can clear them.
	ReplaceCustomFields bool
}

// UpdateProfile applies the update. The account is only marked dirty when a
// value actually changes.
func (a *Account) UpdateProfile(update ProfileUpdate) error {
	if update.Username != nil && *update.Username == "" {
		return &InvalidAccountError{Field: "username", Reason: "must not be empty"}
	}
	changed := false
	set := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	set(&a.name, update.Name)
	set(&a.bio, update.Bio)
	set(&a.username, update.Username)
	set(&a.avatarURL, update.AvatarURL)
	set(&a.bannerImageURL, update.BannerImageURL)
	if update.ReplaceCustomFields && !slices.Equal(a.customFields, update.CustomFields) {
		a.customFields = slices.Clone(update.CustomFields)
		changed = true
	}
	if changed {
		a.profileDirty = true
	}
	return nil
}

// IsProfileDirty reports unsaved profile changes.
func (a *Account) IsProfileDirty() bool {
	return a.profileDirty
}

func (a *Account) relationTarget(target *Account) (int64, error) {
	if target == nil || !target.HasID() {
		return 0, ErrNotPersisted
	}
	if a.SameAs(target) {
		return 0, ErrSelfRelation
	}
	return target.id, nil
}

// Follow records that this account follows target.
func (a *Account) Follow(target *Account) error {
	id, err := a.relationTarget(target)
	if err != nil {
		return err
	}
	a.follows.Add(id)
	return nil
}

// Unfollow records that this account no longer follows target.
func (a *Account) Unfollow(target *Account) error {
	id, err := a.relationTarget(target)
	if err != nil {
		return err
	}
	a.follows.Remove(id)
	return nil
}

// Block records a block of target. Follows in both directions are removed
// by the repository when the block is saved.
func (a *Account) Block(target *Account) error {
	id, err := a.relationTarget(target)
	if err != nil {
		return err
	}
	a.blocks.Add(id)
	a.follows.Remove(id)
	return nil
}

// Unblock lifts a block of target.
func (a *Account) Unblock(target *Account) error {
	id, err := a.relationTarget(target)
	if err != nil {
		return err
	}
	a.blocks.Remove(id)
	return nil
}

// BlockDomain records a block of every account on domain.
func (a *Account) BlockDomain(domain string) error {
	d, err := normalizeDomain(domain)
	if err != nil {
		return err
	}
	if d == a.domain {
		return ErrSelfRelation
	}
	a.domainBlocks.Add(d)
	return nil
}

// UnblockDomain lifts a domain block.
func (a *Account) UnblockDomain(domain string) error {
	d, err := normalizeDomain(domain)
	if err != nil {
		return err
	}
	a.domainBlocks.Remove(d)
	return nil
}

func normalizeDomain(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" || strings.ContainsAny(d, "/@ ") {
		return "", &InvalidAccountError{Field: "domain", Reason: fmt.Sprintf("%q is not a host name", domain)}
	}
	return d, nil
}

// FollowChanges returns pending follow changes keyed by target account id.
func (a *Account) FollowChanges() relations.Changes[int64] { return a.follows.Changes() }

// BlockChanges returns pending block changes keyed by target account id.
func (a *Account) BlockChanges() relations.Changes[int64] { return a.blocks.Changes() }

// DomainBlockChanges returns pending domain block changes.
func (a *Account) DomainBlockChanges() relations.Changes[string] { return a.domainBlocks.Changes() }

// IsDirty reports whether Save has anything to write.
func (a *Account) IsDirty() bool {
	return a.profileDirty || !a.follows.IsEmpty() || !a.blocks.IsEmpty() || !a.domainBlocks.IsEmpty()
}

// ClearDirtyFlags is called by the repository after a successful commit.
func (a *Account) ClearDirtyFlags() {
	a.profileDirty = false
	a.follows.Reset()
	a.blocks.Reset()
	a.domainBlocks.Reset()
}
