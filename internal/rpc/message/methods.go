package message

import (
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
)

// Tree methods. Paths are slash separated and relative to the tree root.
const (
	MethodTreeGet         = "tree/get"
	MethodTreeSet         = "tree/set"
	MethodTreePush        = "tree/push"
	MethodTreeRemove      = "tree/remove"
	MethodTreeUpdate      = "tree/update"
	MethodTreeQuery       = "tree/query"
	MethodTreeSubscribe   = "tree/subscribe"
	MethodTreeUnsubscribe = "tree/unsubscribe"
)

// Auth methods.
const (
	MethodAuthSignUp        = "auth/sign_up"
	MethodAuthSignIn        = "auth/sign_in"
	MethodAuthResume        = "auth/resume"
	MethodAuthResetPassword = "auth/reset_password"
	MethodAuthSignOut       = "auth/sign_out"
)

// Server notifications.
const (
	// NotifyTreeChild carries one ChildParams.
	NotifyTreeChild = "tree/child"
	// NotifyTreeClosed tells the client the server dropped a subscription.
	NotifyTreeClosed = "tree/closed"
)

type PathParams struct {
	Path string `json:"path"`
}

type WriteParams struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type UpdateParams struct {
	Path   string         `json:"path"`
	Values map[string]any `json:"values"`
}

type QueryParams struct {
	Path  string `json:"path"`
	Child string `json:"child"`
	Value any    `json:"value"`
}

type ValueResult struct {
	Value any `json:"value"`
}

type KeyResult struct {
	Key string `json:"key"`
}

type ChildrenResult struct {
	Children map[string]any `json:"children"`
}

type SubscriptionParams struct {
	Subscription string `json:"subscription"`
}

// ChildParams is one child notification for a subscription. Kind is
// "added", "changed" or "removed".
type ChildParams struct {
	Subscription string `json:"subscription"`
	Kind         string `json:"kind"`
	Key          string `json:"key"`
	Value        any    `json:"value,omitempty"`
}

type CredentialsParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type EmailParams struct {
	Email string `json:"email"`
}

type TokenParams struct {
	Token string `json:"token"`
}

// SessionResult is returned by sign-in, sign-up and resume.
type SessionResult struct {
	Token     string      `json:"token,omitempty"`
	User      domain.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at,omitzero"`
}
