// Package events defines the domain events emitted by the repositories after a
// successful commit, and the bus that fans them out to projections.
//
// Payloads carry identifiers only. Projections that need the aggregate load it
// through the owning repository.
package events

// Kind identifies an event type. The set is closed: every Kind has exactly one
// payload type below.
type Kind int

const (
	KindPostCreated Kind = iota + 1
	KindPostUpdated
	KindPostDeleted
	KindPostLiked
	KindPostReposted
	KindPostDereposted
	KindAccountCreated
	KindAccountUpdated
	KindAccountFollowed
	KindAccountUnfollowed
	KindAccountBlocked
	KindAccountUnblocked
	KindDomainBlocked
	KindDomainUnblocked
	KindNotificationsRead
)

var kindNames = map[Kind]string{
	KindPostCreated:       "post.created",
	KindPostUpdated:       "post.updated",
	KindPostDeleted:       "post.deleted",
	KindPostLiked:         "post.liked",
	KindPostReposted:      "post.reposted",
	KindPostDereposted:    "post.dereposted",
	KindAccountCreated:    "account.created",
	KindAccountUpdated:    "account.updated",
	KindAccountFollowed:   "account.followed",
	KindAccountUnfollowed: "account.unfollowed",
	KindAccountBlocked:    "account.blocked",
	KindAccountUnblocked:  "account.unblocked",
	KindDomainBlocked:     "domain.blocked",
	KindDomainUnblocked:   "domain.unblocked",
	KindNotificationsRead: "notifications.read",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is implemented by every payload type. Kind must not depend on the
// receiver's fields so the zero value reports the right kind.
type Event interface {
	Kind() Kind
}

// PostCreated fires once, when a post row is first inserted.
type PostCreated struct {
	PostID int64
}

// PostUpdated fires when a post's content fields were rewritten.
type PostUpdated struct {
	PostID int64
}

// PostDeleted fires when a post transitions to a tombstone.
type PostDeleted struct {
	PostID    int64
	AccountID int64 // the account that deleted it
}

// PostLiked fires once per account that newly likes a post.
type PostLiked struct {
	PostID    int64
	AccountID int64
}

// PostReposted fires once per account that newly reposts a post.
type PostReposted struct {
	PostID    int64
	AccountID int64
}

// PostDereposted fires once per account whose repost was removed.
type PostDereposted struct {
	PostID    int64
	AccountID int64
}

type AccountCreated struct {
	AccountID int64
}

type AccountUpdated struct {
	AccountID int64
}

// AccountFollowed: FollowerID started following AccountID.
type AccountFollowed struct {
	AccountID  int64
	FollowerID int64
}

type AccountUnfollowed struct {
	AccountID  int64
	FollowerID int64
}

// AccountBlocked: BlockerID blocked AccountID.
type AccountBlocked struct {
	AccountID int64
	BlockerID int64
}

type AccountUnblocked struct {
	AccountID int64
	BlockerID int64
}

type DomainBlocked struct {
	Domain    string
	BlockerID int64
}

type DomainUnblocked struct {
	Domain    string
	BlockerID int64
}

// NotificationsRead fires when an internal account has read its notifications.
type NotificationsRead struct {
	AccountID int64
}

func (PostCreated) Kind() Kind       { return KindPostCreated }
func (PostUpdated) Kind() Kind       { return KindPostUpdated }
func (PostDeleted) Kind() Kind       { return KindPostDeleted }
func (PostLiked) Kind() Kind         { return KindPostLiked }
func (PostReposted) Kind() Kind      { return KindPostReposted }
func (PostDereposted) Kind() Kind    { return KindPostDereposted }
func (AccountCreated) Kind() Kind    { return KindAccountCreated }
func (AccountUpdated) Kind() Kind    { return KindAccountUpdated }
func (AccountFollowed) Kind() Kind   { return KindAccountFollowed }
func (AccountUnfollowed) Kind() Kind { return KindAccountUnfollowed }
func (AccountBlocked) Kind() Kind    { return KindAccountBlocked }
func (AccountUnblocked) Kind() Kind  { return KindAccountUnblocked }
func (DomainBlocked) Kind() Kind     { return KindDomainBlocked }
func (DomainUnblocked) Kind() Kind   { return KindDomainUnblocked }
func (NotificationsRead) Kind() Kind { return KindNotificationsRead }
