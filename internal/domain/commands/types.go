// Package commands defines all command types accepted by the sync core.
package commands

import (
	"fmt"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/paths"
)

// CommandType represents the type of command.
type CommandType string

const (
	// Remote writes
	CommandCreate CommandType = "create_requested"
	CommandUpdate CommandType = "update_requested"
	CommandRemove CommandType = "remove_requested"

	// Listeners
	CommandListen             CommandType = "listen_requested"
	CommandRemoveListener     CommandType = "remove_listener_requested"
	CommandRemoveAllListeners CommandType = "remove_all_listeners_requested"

	// Auth
	CommandSignIn        CommandType = "sign_in_requested"
	CommandSignUp        CommandType = "sign_up_requested"
	CommandResetPassword CommandType = "reset_password_requested"
	CommandSignOut       CommandType = "sign_out_requested"

	// Flock lifecycle
	CommandJoinFlock     CommandType = "join_flock_requested"
	CommandAddFlock      CommandType = "add_flock_requested"
	CommandUnlinkFlock   CommandType = "unlink_flock_requested"
	CommandDeleteFlock   CommandType = "delete_flock_requested"
	CommandDeleteChicken CommandType = "delete_chicken_requested"
	CommandGetFlock      CommandType = "get_flock_requested"

	// Local bookkeeping
	CommandClearError     CommandType = "clear_error"
	CommandClearAuthError CommandType = "clear_auth_error"
)

// Command is implemented by every command. The set is closed; routing is a
// type switch over the concrete types below.
type Command interface {
	Type() CommandType
	isCommand()
}

type command struct{}

func (command) isCommand() {}

// Scoped is implemented by commands that target one entity collection.
type Scoped interface {
	GetEntity() domain.EntityType
}

// --- Remote writes ---

// CreateRequested pushes Data as a new child of the entity's collection.
type CreateRequested struct {
	command
	Entity domain.EntityType
	IDs    paths.IDs
	Data   any
}

func (CreateRequested) Type() CommandType              { return CommandCreate }
func (c CreateRequested) GetEntity() domain.EntityType { return c.Entity }

// UpdateRequested overwrites the entity's item path with Data.
type UpdateRequested struct {
	command
	Entity domain.EntityType
	IDs    paths.IDs
	Data   any
}

func (UpdateRequested) Type() CommandType              { return CommandUpdate }
func (c UpdateRequested) GetEntity() domain.EntityType { return c.Entity }

// RemoveRequested deletes the entity's item path.
type RemoveRequested struct {
	command
	Entity domain.EntityType
	IDs    paths.IDs
}

func (RemoveRequested) Type() CommandType              { return CommandRemove }
func (c RemoveRequested) GetEntity() domain.EntityType { return c.Entity }

// --- Listeners ---

// ListenRequested replaces the entity's listener with one watching Ref.
type ListenRequested struct {
	command
	Entity domain.EntityType
	Ref    string
}

func (ListenRequested) Type() CommandType              { return CommandListen }
func (c ListenRequested) GetEntity() domain.EntityType { return c.Entity }

// RemoveListenerRequested tears down the entity's listener.
type RemoveListenerRequested struct {
	command
	Entity    domain.EntityType
	ClearData bool
}

func (RemoveListenerRequested) Type() CommandType              { return CommandRemoveListener }
func (c RemoveListenerRequested) GetEntity() domain.EntityType { return c.Entity }

// RemoveAllListenersRequested tears down every listener.
type RemoveAllListenersRequested struct {
	command
	ClearData bool
}

func (RemoveAllListenersRequested) Type() CommandType { return CommandRemoveAllListeners }

// --- Auth ---

// SignInRequested signs in with email and password.
type SignInRequested struct {
	command
	Email    string
	Password string
}

func (SignInRequested) Type() CommandType { return CommandSignIn }

// SignUpRequested registers a new account.
type SignUpRequested struct {
	command
	Email    string
	Password string
}

func (SignUpRequested) Type() CommandType { return CommandSignUp }

// ResetPasswordRequested asks the provider to send a reset link.
type ResetPasswordRequested struct {
	command
	Email string
}

func (ResetPasswordRequested) Type() CommandType { return CommandResetPassword }

// SignOutRequested clears local state and signs out.
type SignOutRequested struct {
	command
}

func (SignOutRequested) Type() CommandType { return CommandSignOut }

// --- Flock lifecycle ---

// Settings, when nil on a lifecycle command, is read from
// userSettings/{UserID} before the transaction starts.

// JoinFlockRequested adds the acting user to an existing flock.
type JoinFlockRequested struct {
	command
	UserID   string
	FlockID  string
	Settings *domain.UserSettings
}

func (JoinFlockRequested) Type() CommandType { return CommandJoinFlock }

// AddFlockRequested creates a flock owned by the acting user.
type AddFlockRequested struct {
	command
	UserID   string
	Name     string
	Settings *domain.UserSettings
}

func (AddFlockRequested) Type() CommandType { return CommandAddFlock }

// UnlinkFlockRequested removes the acting user's membership of a flock.
type UnlinkFlockRequested struct {
	command
	UserID   string
	FlockID  string
	Settings *domain.UserSettings
}

func (UnlinkFlockRequested) Type() CommandType { return CommandUnlinkFlock }

// DeleteFlockRequested deletes a flock for every member.
type DeleteFlockRequested struct {
	command
	UserID   string
	FlockID  string
	Settings *domain.UserSettings
}

func (DeleteFlockRequested) Type() CommandType { return CommandDeleteFlock }

// DeleteChickenRequested deletes a chicken and the eggs logged for it.
type DeleteChickenRequested struct {
	command
	FlockID   string
	ChickenID string
}

func (DeleteChickenRequested) Type() CommandType { return CommandDeleteChicken }

// GetFlockRequested reads a single flock record.
type GetFlockRequested struct {
	command
	FlockID string
}

func (GetFlockRequested) Type() CommandType { return CommandGetFlock }

// --- Local bookkeeping ---

// ClearError resets the stored error of one collection.
type ClearError struct {
	command
	Entity domain.EntityType
}

func (ClearError) Type() CommandType              { return CommandClearError }
func (c ClearError) GetEntity() domain.EntityType { return c.Entity }

// ClearAuthError resets the stored auth action errors.
type ClearAuthError struct {
	command
}

func (ClearAuthError) Type() CommandType { return CommandClearAuthError }

// --- Constructors ---

// Listen builds a ListenRequested for entity scoped by ids.
func Listen(entity domain.EntityType, ids paths.IDs) (ListenRequested, error) {
	ref, err := paths.ListenRef(entity, ids)
	if err != nil {
		return ListenRequested{}, err
	}
	return ListenRequested{Entity: entity, Ref: ref}, nil
}

// ListenToUserSettings builds the listener the session watcher starts on login.
func ListenToUserSettings(userID string) ListenRequested {
	return ListenRequested{Entity: domain.EntityUserSettings, Ref: paths.UserSettings(userID)}
}

// UpdateUserSettings builds the update a flock transaction submits.
func UpdateUserSettings(userID string, settings domain.UserSettings) UpdateRequested {
	return UpdateRequested{
		Entity: domain.EntityUserSettings,
		IDs:    paths.IDs{UserID: userID},
		Data:   settings,
	}
}

// String is used in logs.
func String(c Command) string {
	if s, ok := c.(Scoped); ok {
		return fmt.Sprintf("%s(%s)", c.Type(), s.GetEntity())
	}
	return string(c.Type())
}
