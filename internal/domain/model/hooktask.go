package model

// HookAction selects whether a hook task creates or removes the webhook.
type HookAction string

const (
	HookActionRegister   HookAction = "register"
	HookActionDeregister HookAction = "deregister"
)

// HookTask is a unit of webhook work emitted by the repository directory.
// The access token is resolved from UserID when the task runs and is never
// carried in the task itself.
type HookTask struct {
	Action  HookAction `json:"action"`
	UserID  string     `json:"user_id"`
	RepoID  int64      `json:"repo_id"`
	HTMLURL string     `json:"html_url"`
}
