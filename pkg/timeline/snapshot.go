package timeline

// Snapshot is the record handed to the archive after every batch. It
// carries everything needed to rebuild the account's view and, via
// Cursor, to resume a fetch even when the session checkpoint is gone.
type Snapshot struct {
	AccountKey  string  `json:"account_key"`
	DisplayName string  `json:"display_name"`
	NiceName    string  `json:"nice_name"`
	AvatarURL   string  `json:"avatar_url"`
	TotalCount  int     `json:"total_count"`
	Entries     []Entry `json:"entries"`
	MediaType   string  `json:"media_type"`
	Cursor      string  `json:"cursor"`
	Completed   bool    `json:"completed"`
}
