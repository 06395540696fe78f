// Package sync defines the wire protocol of the synchronization API: the
// JSON response envelope, request bodies, and protocol constants shared by
// server and clients.
package sync

const (
	// VersionHeader carries the protocol version on every API exchange.
	VersionHeader = "TerminusDB-Version"
	// ProtocolVersion is the version this implementation speaks.
	ProtocolVersion = "1"

	// BundleRemoteURL is the URL of the synthetic remote installed while a
	// bundle is produced or consumed.
	BundleRemoteURL = "terminusdb:///bundle"

	// ContentTypeOctets is the media type of pack and bundle payloads.
	ContentTypeOctets = "application/octets"
)

const (
	// StatusSuccess marks a successful envelope.
	StatusSuccess = "api:success"
	// StatusFailure marks a failed envelope.
	StatusFailure = "api:failure"
)

// Envelope is the common frame of every JSON API response.
type Envelope struct {
	Status    string `json:"api:status"`
	Message   string `json:"api:message"`
	ErrorTerm string `json:"api:error_term,omitempty"`
}

// OK builds a success envelope.
func OK(message string) Envelope {
	return Envelope{Status: StatusSuccess, Message: message}
}

// Failure builds a failure envelope carrying the error term clients branch
// on.
func Failure(term, message string) Envelope {
	return Envelope{Status: StatusFailure, Message: message, ErrorTerm: term}
}

// PullStatus enumerates the outcomes of a pull.
type PullStatus string

const (
	// PullUnchanged reports no updates fetched and nothing applied.
	PullUnchanged PullStatus = "api:pull_unchanged"
	// PullFastForwarded reports the local branch advanced.
	PullFastForwarded PullStatus = "api:pull_fast_forwarded"
	// PullAhead reports the local branch already contains every remote
	// commit.
	PullAhead PullStatus = "api:pull_ahead"
	// PullDivergent reports both branches hold unique commits; a rebase is
	// required.
	PullDivergent PullStatus = "api:pull_divergent_history"
	// PullNoCommonHistory reports the branches share no ancestor.
	PullNoCommonHistory PullStatus = "api:pull_no_common_history"
)

// PackRequest asks for a pack of layers above a baseline. A nil
// RepositoryHead asks for full history.
type PackRequest struct {
	RepositoryHead *string `json:"repository_head,omitempty"`
}

// UnpackRequest points the unpack endpoint at an uploaded resource instead
// of an inline payload.
type UnpackRequest struct {
	ResourceURI string `json:"resource_uri"`
}

// FetchRequest names the remote to fetch from, either by registered name
// or by URL.
type FetchRequest struct {
	RemoteName string `json:"remote_name,omitempty"`
	RemoteURL  string `json:"remote_url,omitempty"`
}

// FetchResponse reports whether the tracking head advanced.
type FetchResponse struct {
	Envelope
	HeadHasUpdated bool   `json:"head_has_updated"`
	Head           string `json:"head,omitempty"`
}

// PushRequest names the branch and remote to push.
type PushRequest struct {
	RemoteName string `json:"remote_name"`
	Branch     string `json:"branch"`
}

// PushResponse reports the remote head after a push. Exactly one of New or
// Same is set.
type PushResponse struct {
	Envelope
	New  string `json:"new,omitempty"`
	Same string `json:"same,omitempty"`
}

// PullRequest names the remote branch to pull into the addressed local
// branch.
type PullRequest struct {
	RemoteName   string `json:"remote_name"`
	RemoteBranch string `json:"remote_branch"`
}

// PullResponse reports the pull outcome.
type PullResponse struct {
	Envelope
	PullStatus     PullStatus `json:"pull_status"`
	CommonAncestor string     `json:"common_ancestor,omitempty"`
	AppliedCommits []string   `json:"applied_commits"`
}

// CloneRequest describes the database to create from a remote.
type CloneRequest struct {
	Label     string `json:"label,omitempty"`
	Comment   string `json:"comment,omitempty"`
	Public    bool   `json:"public,omitempty"`
	RemoteURL string `json:"remote_url"`
}

// CloneResponse reports the commits applied to the fresh database.
type CloneResponse struct {
	Envelope
	AppliedCommits []string `json:"applied_commits"`
}

// BundleRequest optionally restricts a bundle to one branch.
type BundleRequest struct {
	Branch string `json:"branch,omitempty"`
}

// UnbundleResponse reports the commits a bundle applied.
type UnbundleResponse struct {
	Envelope
	AppliedCommits []string `json:"applied_commits"`
}

// UnpackResponse acknowledges an admitted payload.
type UnpackResponse struct {
	Envelope
	Head string `json:"head,omitempty"`
}

// ErrorResponse is a failure envelope with the diverged path attached when
// applicable.
type ErrorResponse struct {
	Envelope
	Path []string `json:"api:diverged_path,omitempty"`
}
