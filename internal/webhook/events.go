package webhook

// Typed views of the event payloads, decoded only after the signature and
// schema gates pass.

type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

type Installation struct {
	ID int64 `json:"id"`
}

type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type PullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	DiffURL string `json:"diff_url"`
	Head    Ref    `json:"head"`
	Base    Ref    `json:"base"`
}

type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type User struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

type Comment struct {
	Body string `json:"body"`
	User User   `json:"user"`
}

type PushCommit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// RenameChanges carries the previous repository name on repository renamed
// events.
type RenameChanges struct {
	Repository struct {
		Name struct {
			From string `json:"from"`
		} `json:"name"`
	} `json:"repository"`
}

// Event is the union payload shape across the event types the bot handles.
type Event struct {
	Action       string         `json:"action"`
	Zen          string         `json:"zen"`
	Ref          string         `json:"ref"`
	PullRequest  *PullRequest   `json:"pull_request"`
	Issue        *Issue         `json:"issue"`
	Comment      *Comment       `json:"comment"`
	Repository   *Repository    `json:"repository"`
	Installation *Installation  `json:"installation"`
	Commits      []PushCommit   `json:"commits"`
	Changes      *RenameChanges `json:"changes"`
}
