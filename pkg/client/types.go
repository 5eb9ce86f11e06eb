package client

// User is the authenticated user's profile as returned by /me.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// AuthSession is the result of a successful login: the token bundle plus the
// user profile.
type AuthSession struct {
	TokenBundle
	User User `json:"user"`
}

// Channel is a chat channel.
type Channel struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	IsPrivate   bool   `json:"is_private"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   int64  `json:"created_at"`
}

// Message is a channel or thread message.
type Message struct {
	ID           string  `json:"id"`
	WorkspaceID  string  `json:"workspace_id"`
	ChannelID    string  `json:"channel_id"`
	SenderID     string  `json:"sender_id"`
	BodyMD       string  `json:"body_md"`
	ThreadRootID *string `json:"thread_root_id"`
	CreatedAt    int64   `json:"created_at"`
	EditedAt     *int64  `json:"edited_at"`
	DeletedAt    *int64  `json:"deleted_at"`
}

// MessageList is one page of messages plus the cursor for the next page.
type MessageList struct {
	Items      []Message `json:"items"`
	NextCursor *string   `json:"next_cursor"`
}

// ThreadSummary describes a thread rooted at a message.
type ThreadSummary struct {
	RootMessage  Message  `json:"root_message"`
	ReplyCount   int64    `json:"reply_count"`
	LastReplyAt  *int64   `json:"last_reply_at"`
	Participants []string `json:"participants"`
}

// Attachment is a committed upload attached to a message.
type Attachment struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	SizeBytes   int64   `json:"size_bytes"`
	ContentType *string `json:"content_type"`
	StorageKey  *string `json:"storage_key"`
	DownloadURL *string `json:"download_url"`
}
