package posts

import (
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/relations"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Type is the ActivityStreams object type of a post.
type Type string

const (
	TypeArticle   Type = "article"
	TypeNote      Type = "note"
	TypeTombstone Type = "tombstone"
)

// Audience controls who a post is addressed to.
type Audience string

const (
	AudiencePublic        Audience = "public"
	AudienceFollowersOnly Audience = "followers-only"
	AudienceDirect        Audience = "direct"
)

// Attachment is a media object attached to a post.
type Attachment struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	Name      string `json:"name,omitempty"`
	URL       string `json:"url"`
}

// Author is an author credit copied from the source CMS.
type Author struct {
	ProfileImage *string `json:"profileImage,omitempty"`
	Name         string  `json:"name"`
}

// Metadata is the attribution blob copied from the source CMS.
type Metadata struct {
	Authors []Author `json:"ghostAuthors"`
}

// Post is the aggregate root for articles, notes and their tombstones.
//
// Like and repost counts are authoritative on external posts only. For
// internal posts they follow membership of the likes and reposts relations,
// which change through AddLike, RemoveLike, AddRepost and RemoveRepost and
// are refreshed by the repository on save.
type Post struct {
	publishedAt time.Time
	author      *accounts.Account
	title       *string
	excerpt     *string
	summary     *string
	content     *string
	imageURL    *string
	metadata    *Metadata
	inReplyTo   *int64
	threadRoot  *int64
	apID        string
	url         string
	typ         Type
	audience    Audience
	attachments []Attachment
	mentioned   []*accounts.Account
	likes       relations.Diff[int64]
	reposts     relations.Diff[int64]
	mentions    relations.Diff[int64]
	id          int64
	uuid        uuid.UUID
	likeCount   int
	repostCount int
	replyCount  int
	readingTime int

	deleted            bool
	newlyDeleted       bool
	isUpdateDirty      bool
	isLikeCountDirty   bool
	isRepostCountDirty bool
}

func (p *Post) ID() int64                     { return p.id }
func (p *Post) HasID() bool                   { return p.id != 0 }
func (p *Post) UUID() uuid.UUID               { return p.uuid }
func (p *Post) ApID() string                  { return p.apID }
func (p *Post) Author() *accounts.Account     { return p.author }
func (p *Post) Type() Type                    { return p.typ }
func (p *Post) Audience() Audience            { return p.audience }
func (p *Post) Title() *string                { return p.title }
func (p *Post) Excerpt() *string              { return p.excerpt }
func (p *Post) Summary() *string              { return p.summary }
func (p *Post) Content() *string              { return p.content }
func (p *Post) ImageURL() *string             { return p.imageURL }
func (p *Post) URL() string                   { return p.url }
func (p *Post) PublishedAt() time.Time        { return p.publishedAt }
func (p *Post) Metadata() *Metadata           { return p.metadata }
func (p *Post) Attachments() []Attachment     { return slices.Clone(p.attachments) }
func (p *Post) InReplyTo() *int64             { return p.inReplyTo }
func (p *Post) ThreadRoot() *int64            { return p.threadRoot }
func (p *Post) LikeCount() int                { return p.likeCount }
func (p *Post) RepostCount() int              { return p.repostCount }
func (p *Post) ReplyCount() int               { return p.replyCount }
func (p *Post) ReadingTimeMinutes() int       { return p.readingTime }
func (p *Post) Mentions() []*accounts.Account { return slices.Clone(p.mentioned) }
func (p *Post) IsDeleted() bool               { return p.deleted }
func (p *Post) IsReply() bool                 { return p.inReplyTo != nil }
func (p *Post) IsInternal() bool              { return p.author.IsInternal() }
func (p *Post) IsUpdateDirty() bool           { return p.isUpdateDirty }
func (p *Post) IsLikeCountDirty() bool        { return p.isLikeCountDirty }
func (p *Post) IsRepostCountDirty() bool      { return p.isRepostCountDirty }
func (p *Post) IsNewlyDeleted() bool          { return p.newlyDeleted }

// LikeChanges returns pending like changes keyed by account id.
func (p *Post) LikeChanges() relations.Changes[int64] {
	return p.likes.Changes()
}

// RepostChanges returns pending repost changes keyed by account id.
func (p *Post) RepostChanges() relations.Changes[int64] {
	return p.reposts.Changes()
}

// MentionChanges returns pending mention changes keyed by account id.
func (p *Post) MentionChanges() relations.Changes[int64] {
	return p.mentions.Changes()
}

// AssignID sets the database id. It may be called again only with the same id.
func (p *Post) AssignID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid post id %d", id)
	}
	if p.id != 0 && p.id != id {
		return fmt.Errorf("%w: %d (attempted %d)", ErrIDAlreadyAssigned, p.id, id)
	}
	p.id = id
	return nil
}

// Adopt replaces the draft's state with stored, the persisted post holding
// the same ap id. A repository uses it when its insert lost a race, so the
// draft ends up with the stored id, UUID, content and counters.
func (p *Post) Adopt(stored *Post) error {
	if stored == nil || stored.apID != p.apID {
		return ErrDifferentApID
	}
	*p = *stored
	return nil
}

// RefreshCounts replaces the in-memory counters with the stored ones. It does
// not mark anything dirty.
func (p *Post) RefreshCounts(likeCount, repostCount int) {
	p.likeCount = likeCount
	p.repostCount = repostCount
}

// Delete turns the post into a tombstone. Content fields are erased; id,
// uuid, author and counters are kept. Deleting a deleted post does nothing.
func (p *Post) Delete(account *accounts.Account) error {
	if !p.author.SameAs(account) {
		return ErrNotAuthor
	}
	if p.deleted {
		return nil
	}
	p.deleted = true
	p.newlyDeleted = true
	p.tombstone()
	p.likes.Reset()
	p.reposts.Reset()
	p.mentions.Reset()
	p.isUpdateDirty = false
	p.isLikeCountDirty = false
	p.isRepostCountDirty = false
	return nil
}

func (p *Post) tombstone() {
	p.typ = TypeTombstone
	p.title = nil
	p.content = nil
	p.excerpt = nil
	p.summary = nil
	p.imageURL = nil
	p.metadata = nil
	p.attachments = []Attachment{}
	p.readingTime = 0
}

// PostUpdate holds the content to change; nil fields are left as they are.
type PostUpdate struct {
	Title       *string
	Excerpt     *string
	Summary     *string
	Content     *string
	ImageURL    *string
	Metadata    *Metadata
	Attachments []Attachment
	// ReplaceAttachments must be set for Attachments to be applied.
	ReplaceAttachments bool
}

// Update changes the post's content. Only the author may update a post.
func (p *Post) Update(account *accounts.Account, update PostUpdate) error {
	if !p.author.SameAs(account) {
		return ErrNotAuthor
	}
	if p.deleted {
		return ErrPostDeleted
	}

	changed := false
	set := func(dst **string, src *string) {
		if src != nil && (*dst == nil || **dst != *src) {
			v := *src
			*dst = &v
			changed = true
		}
	}
	set(&p.title, update.Title)
	set(&p.excerpt, update.Excerpt)
	set(&p.summary, update.Summary)
	set(&p.content, update.Content)
	set(&p.imageURL, update.ImageURL)
	if update.Metadata != nil {
		p.metadata = update.Metadata
		changed = true
	}
	if update.ReplaceAttachments && !slices.Equal(p.attachments, update.Attachments) {
		p.attachments = slices.Clone(update.Attachments)
		changed = true
	}

	if changed {
		if p.typ == TypeArticle {
			p.readingTime = ReadingTimeMinutes(deref(p.content))
		}
		p.isUpdateDirty = true
	}
	return nil
}

func accountID(account *accounts.Account) (int64, error) {
	if account == nil || !account.HasID() {
		return 0, ErrAccountNotPersisted
	}
	return account.ID(), nil
}

// AddLike records a like by account.
func (p *Post) AddLike(account *accounts.Account) error {
	id, err := accountID(account)
	if err != nil {
		return err
	}
	p.likes.Add(id)
	return nil
}

// RemoveLike records that account no longer likes the post.
func (p *Post) RemoveLike(account *accounts.Account) error {
	id, err := accountID(account)
	if err != nil {
		return err
	}
	p.likes.Remove(id)
	return nil
}

// AddRepost records a repost by account.
func (p *Post) AddRepost(account *accounts.Account) error {
	id, err := accountID(account)
	if err != nil {
		return err
	}
	p.reposts.Add(id)
	return nil
}

// RemoveRepost records that account undid its repost.
func (p *Post) RemoveRepost(account *accounts.Account) error {
	id, err := accountID(account)
	if err != nil {
		return err
	}
	p.reposts.Remove(id)
	return nil
}

// AddMention records that the post mentions account.
func (p *Post) AddMention(account *accounts.Account) error {
	id, err := accountID(account)
	if err != nil {
		return err
	}
	p.mentions.Add(id)
	if !slices.ContainsFunc(p.mentioned, account.SameAs) {
		p.mentioned = append(p.mentioned, account)
	}
	return nil
}

// SetLikeCount sets the like count reported by a remote server.
func (p *Post) SetLikeCount(n int) error {
	if p.IsInternal() {
		return ErrExternalCountOnInternalPost
	}
	if n < 0 {
		return NewValidationError("likeCount", "must not be negative")
	}
	if n != p.likeCount {
		p.likeCount = n
		p.isLikeCountDirty = true
	}
	return nil
}

// SetRepostCount sets the repost count reported by a remote server.
func (p *Post) SetRepostCount(n int) error {
	if p.IsInternal() {
		return ErrExternalCountOnInternalPost
	}
	if n < 0 {
		return NewValidationError("repostCount", "must not be negative")
	}
	if n != p.repostCount {
		p.repostCount = n
		p.isRepostCountDirty = true
	}
	return nil
}

// ClearDirtyFlags is called by the repository after a successful commit.
func (p *Post) ClearDirtyFlags() {
	p.isUpdateDirty = false
	p.isLikeCountDirty = false
	p.isRepostCountDirty = false
	p.newlyDeleted = false
	p.likes.Reset()
	p.reposts.Reset()
	p.mentions.Reset()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
