package commands

import (
	"encoding/json"
	"fmt"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/paths"
)

// Envelope is the wire form of a command.
type Envelope struct {
	Command   CommandType     `json:"command"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WritePayload is the payload for create/update/remove commands.
type WritePayload struct {
	Entity string `json:"entity"`
	paths.IDs
	Data json.RawMessage `json:"data,omitempty"`
}

// ListenPayload is the payload for listen_requested. Ref, when set, is used
// verbatim; otherwise it is derived from the identifiers.
type ListenPayload struct {
	Entity string `json:"entity"`
	Ref    string `json:"ref,omitempty"`
	paths.IDs
}

// RemoveListenerPayload is the payload for the remove listener commands.
type RemoveListenerPayload struct {
	Entity    string `json:"entity,omitempty"`
	ClearData bool   `json:"clear_data,omitempty"`
}

// CredentialsPayload is the payload for the auth commands.
type CredentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

// FlockPayload is the payload for the flock lifecycle commands.
type FlockPayload struct {
	UserID    string               `json:"user_id,omitempty"`
	FlockID   string               `json:"flock_id,omitempty"`
	ChickenID string               `json:"chicken_id,omitempty"`
	Name      string               `json:"name,omitempty"`
	Settings  *domain.UserSettings `json:"settings,omitempty"`
}

// ParseEnvelope parses a JSON message into an Envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCommand, err)
	}
	return &env, nil
}

// Parse decodes a wire message into a typed Command. Unknown command names
// and unknown entity tokens are reported with ErrInvalidCommand and
// ErrUnknownEntity so the caller can ignore them.
func Parse(data []byte) (Command, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	return env.Decode()
}

// Decode converts the envelope payload into a typed Command.
func (e *Envelope) Decode() (Command, error) {
	switch e.Command {
	case CommandCreate, CommandUpdate, CommandRemove:
		var p WritePayload
		if err := e.unmarshal(&p); err != nil {
			return nil, err
		}
		entity, err := domain.ParseEntityType(p.Entity)
		if err != nil {
			return nil, err
		}
		var data any
		if len(p.Data) > 0 {
			if err := json.Unmarshal(p.Data, &data); err != nil {
				return nil, fmt.Errorf("%w: data: %v", domain.ErrInvalidPayload, err)
			}
		}
		switch e.Command {
		case CommandCreate:
			return CreateRequested{Entity: entity, IDs: p.IDs, Data: data}, nil
		case CommandUpdate:
			return UpdateRequested{Entity: entity, IDs: p.IDs, Data: data}, nil
		default:
			return RemoveRequested{Entity: entity, IDs: p.IDs}, nil
		}

	case CommandListen:
		var p ListenPayload
		if err := e.unmarshal(&p); err != nil {
			return nil, err
		}
		entity, err := domain.ParseEntityType(p.Entity)
		if err != nil {
			return nil, err
		}
		if p.Ref != "" {
			return ListenRequested{Entity: entity, Ref: paths.Join(p.Ref)}, nil
		}
		return Listen(entity, p.IDs)

	case CommandRemoveListener:
		var p RemoveListenerPayload
		if err := e.unmarshal(&p); err != nil {
			return nil, err
		}
		entity, err := domain.ParseEntityType(p.Entity)
		if err != nil {
			return nil, err
		}
		return RemoveListenerRequested{Entity: entity, ClearData: p.ClearData}, nil

	case CommandRemoveAllListeners:
		var p RemoveListenerPayload
		if err := e.unmarshal(&p); err != nil {
			return nil, err
		}
		return RemoveAllListenersRequested{ClearData: p.ClearData}, nil

	case CommandSignIn, CommandSignUp, CommandResetPassword:
		var p CredentialsPayload
		if err := e.unmarshal(&p); err != nil {
			return nil, err
		}
		switch e.Command {
		case CommandSignIn:
			return SignInRequested{Email: p.Email, Password: p.Password}, nil
		case CommandSignUp:
			return SignUpRequested{Email: p.Email, Password: p.Password}, nil
		default:
			return ResetPasswordRequested{Email: p.Email}, nil
		}

	case CommandSignOut:
		return SignOutRequested{}, nil

	case CommandJoinFlock, CommandAddFlock, CommandUnlinkFlock, CommandDeleteFlock,
		CommandDeleteChicken, CommandGetFlock:
		var p FlockPayload
		if err := e.unmarshal(&p); err != nil {
			return nil, err
		}
		return p.command(e.Command), nil

	case CommandClearError:
		var p RemoveListenerPayload
		if err := e.unmarshal(&p); err != nil {
			return nil, err
		}
		entity, err := domain.ParseEntityType(p.Entity)
		if err != nil {
			return nil, err
		}
		return ClearError{Entity: entity}, nil

	case CommandClearAuthError:
		return ClearAuthError{}, nil

	default:
		return nil, fmt.Errorf("%w: unknown command %q", domain.ErrInvalidCommand, e.Command)
	}
}

func (p FlockPayload) command(t CommandType) Command {
	switch t {
	case CommandJoinFlock:
		return JoinFlockRequested{UserID: p.UserID, FlockID: p.FlockID, Settings: p.Settings}
	case CommandAddFlock:
		return AddFlockRequested{UserID: p.UserID, Name: p.Name, Settings: p.Settings}
	case CommandUnlinkFlock:
		return UnlinkFlockRequested{UserID: p.UserID, FlockID: p.FlockID, Settings: p.Settings}
	case CommandDeleteFlock:
		return DeleteFlockRequested{UserID: p.UserID, FlockID: p.FlockID, Settings: p.Settings}
	case CommandDeleteChicken:
		return DeleteChickenRequested{FlockID: p.FlockID, ChickenID: p.ChickenID}
	default:
		return GetFlockRequested{FlockID: p.FlockID}
	}
}

func (e *Envelope) unmarshal(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidPayload, e.Command, err)
	}
	return nil
}
