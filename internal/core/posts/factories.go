package posts

import (
	"Fedipub/internal/core/accounts"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ArticleSource is a published post as delivered by the CMS webhook.
type ArticleSource struct {
	PublishedAt   time.Time
	CustomExcerpt *string
	FeatureImage  *string
	UUID          string
	Title         string
	HTML          string
	Excerpt       string
	URL           string
	Visibility    string
	Authors       []Author
}

// NoteContent is the body of a note or reply.
type NoteContent struct {
	ImageURL    *string
	Content     string
	Attachments []Attachment
	Mentions    []*accounts.Account
}

func objectApID(author *accounts.Account, kind string, id uuid.UUID) string {
	return fmt.Sprintf("https://%s/.ghost/activitypub/%s/%s", author.Domain(), kind, id)
}

func requireInternal(author *accounts.Account) error {
	if author == nil {
		return NewValidationError("author", "is required")
	}
	if !author.IsInternal() {
		return NewValidationError("author", "must be an internal account")
	}
	return nil
}

// NewArticleFromSource creates a draft article for an internal account from a
// CMS post. Posts that are not public are rejected with ErrPrivateContent.
func NewArticleFromSource(author *accounts.Account, src ArticleSource) (*Post, error) {
	if err := requireInternal(author); err != nil {
		return nil, err
	}
	if src.Visibility != "" && src.Visibility != "public" {
		return nil, ErrPrivateContent
	}
	if strings.TrimSpace(src.Title) == "" {
		return nil, NewValidationError("title", "must not be empty")
	}

	id := uuid.New()
	if src.UUID != "" {
		parsed, err := uuid.Parse(src.UUID)
		if err != nil {
			return nil, NewValidationError("uuid", err.Error())
		}
		id = parsed
	}

	excerpt := src.Excerpt
	if src.CustomExcerpt != nil && *src.CustomExcerpt != "" {
		excerpt = *src.CustomExcerpt
	}
	published := src.PublishedAt
	if published.IsZero() {
		published = time.Now().UTC()
	}

	p := &Post{
		uuid:        id,
		apID:        objectApID(author, "article", id),
		author:      author,
		typ:         TypeArticle,
		audience:    AudiencePublic,
		title:       ptr(src.Title),
		content:     ptr(src.HTML),
		excerpt:     ptr(excerpt),
		summary:     src.CustomExcerpt,
		imageURL:    src.FeatureImage,
		url:         src.URL,
		publishedAt: published,
		attachments: []Attachment{},
		readingTime: ReadingTimeMinutes(src.HTML),
	}
	if len(src.Authors) > 0 {
		p.metadata = &Metadata{Authors: slices.Clone(src.Authors)}
	}
	return p, nil
}

// NewNote creates a draft public note for an internal account.
func NewNote(author *accounts.Account, body NoteContent) (*Post, error) {
	if err := requireInternal(author); err != nil {
		return nil, err
	}
	return newNote(author, body)
}

func newNote(author *accounts.Account, body NoteContent) (*Post, error) {
	if strings.TrimSpace(body.Content) == "" && body.ImageURL == nil && len(body.Attachments) == 0 {
		return nil, NewValidationError("content", "note must have content or media")
	}
	id := uuid.New()
	p := &Post{
		uuid:        id,
		apID:        objectApID(author, "note", id),
		author:      author,
		typ:         TypeNote,
		audience:    AudiencePublic,
		content:     ptr(body.Content),
		imageURL:    body.ImageURL,
		publishedAt: time.Now().UTC(),
		attachments: slices.Clone(body.Attachments),
	}
	if p.attachments == nil {
		p.attachments = []Attachment{}
	}
	p.url = p.apID
	for _, m := range body.Mentions {
		if err := p.AddMention(m); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewReply creates a draft note replying to parent. The thread root is
// inherited from the parent.
func NewReply(author *accounts.Account, parent *Post, body NoteContent) (*Post, error) {
	if err := requireInternal(author); err != nil {
		return nil, err
	}
	if parent == nil || !parent.HasID() {
		return nil, ErrParentNotPersisted
	}
	if parent.IsDeleted() {
		return nil, ErrPostDeleted
	}
	p, err := newNote(author, body)
	if err != nil {
		return nil, err
	}
	parentID := parent.ID()
	root := parentID
	if parent.threadRoot != nil {
		root = *parent.threadRoot
	}
	p.inReplyTo = &parentID
	p.threadRoot = &root
	return p, nil
}

// RemotePostData describes a post fetched from another server.
type RemotePostData struct {
	PublishedAt time.Time
	Author      *accounts.Account
	InReplyTo   *Post
	Title       *string
	Excerpt     *string
	Summary     *string
	Content     *string
	ImageURL    *string
	ApID        string
	URL         string
	Type        Type
	Audience    Audience
	Attachments []Attachment
	LikeCount   int
	RepostCount int
}

// NewRemote creates a draft external post. Its counters are the ones the
// remote server reported.
func NewRemote(data RemotePostData) (*Post, error) {
	if data.Author == nil {
		return nil, NewValidationError("author", "is required")
	}
	if data.Author.IsInternal() {
		return nil, NewValidationError("author", "must be an external account")
	}
	if data.ApID == "" {
		return nil, NewValidationError("apId", "is required")
	}
	switch data.Type {
	case TypeArticle, TypeNote:
	default:
		return nil, NewValidationError("type", fmt.Sprintf("unsupported type %q", data.Type))
	}
	if data.LikeCount < 0 || data.RepostCount < 0 {
		return nil, NewValidationError("counts", "must not be negative")
	}
	audience := data.Audience
	if audience == "" {
		audience = AudiencePublic
	}
	published := data.PublishedAt
	if published.IsZero() {
		published = time.Now().UTC()
	}

	p := &Post{
		uuid:        uuid.New(),
		apID:        data.ApID,
		url:         data.URL,
		author:      data.Author,
		typ:         data.Type,
		audience:    audience,
		title:       data.Title,
		excerpt:     data.Excerpt,
		summary:     data.Summary,
		content:     data.Content,
		imageURL:    data.ImageURL,
		publishedAt: published,
		attachments: slices.Clone(data.Attachments),
		likeCount:   data.LikeCount,
		repostCount: data.RepostCount,
	}
	if p.attachments == nil {
		p.attachments = []Attachment{}
	}
	if p.url == "" {
		p.url = p.apID
	}
	if p.typ == TypeArticle {
		p.readingTime = ReadingTimeMinutes(deref(p.content))
	}
	if data.InReplyTo != nil {
		if !data.InReplyTo.HasID() {
			return nil, ErrParentNotPersisted
		}
		parentID := data.InReplyTo.ID()
		root := parentID
		if data.InReplyTo.threadRoot != nil {
			root = *data.InReplyTo.threadRoot
		}
		p.inReplyTo = &parentID
		p.threadRoot = &root
	}
	return p, nil
}

// Data is the stored form of a post, used by repositories to rehydrate it.
type Data struct {
	PublishedAt        time.Time
	Author             *accounts.Account
	Title              *string
	Excerpt            *string
	Summary            *string
	Content            *string
	ImageURL           *string
	Metadata           *Metadata
	InReplyTo          *int64
	ThreadRoot         *int64
	DeletedAt          *time.Time
	ApID               string
	URL                string
	Type               Type
	Audience           Audience
	Attachments        []Attachment
	Mentions           []*accounts.Account
	ID                 int64
	UUID               uuid.UUID
	LikeCount          int
	RepostCount        int
	ReplyCount         int
	ReadingTimeMinutes int
}

// Rehydrate rebuilds a persisted post. Deleted rows come back as tombstones.
func Rehydrate(data Data) (*Post, error) {
	if data.ID == 0 {
		return nil, fmt.Errorf("rehydrate post: missing id")
	}
	if data.Author == nil {
		return nil, NewValidationError("author", "is required")
	}
	p := &Post{
		id:          data.ID,
		uuid:        data.UUID,
		apID:        data.ApID,
		url:         data.URL,
		author:      data.Author,
		typ:         data.Type,
		audience:    data.Audience,
		title:       data.Title,
		excerpt:     data.Excerpt,
		summary:     data.Summary,
		content:     data.Content,
		imageURL:    data.ImageURL,
		metadata:    data.Metadata,
		publishedAt: data.PublishedAt,
		attachments: slices.Clone(data.Attachments),
		mentioned:   slices.Clone(data.Mentions),
		inReplyTo:   data.InReplyTo,
		threadRoot:  data.ThreadRoot,
		likeCount:   data.LikeCount,
		repostCount: data.RepostCount,
		replyCount:  data.ReplyCount,
		readingTime: data.ReadingTimeMinutes,
	}
	if p.attachments == nil {
		p.attachments = []Attachment{}
	}
	if data.DeletedAt != nil {
		p.deleted = true
		p.tombstone()
	}
	return p, nil
}
