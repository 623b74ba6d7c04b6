// Package protocol defines the JSON wire envelope shared by the user
// endpoint, the worker endpoint, and the external worker binaries.
// Field names are part of the wire contract and must not change.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"musink/domain"
	"musink/errors"
)

// Inbound message types.
const (
	TypeNewClient            = "NewClient"
	TypeGetPlaylists         = "get_playlists"
	TypeGetAdvertisingGroups = "get_advertising_groups"
	TypeJoinGroup            = "join_group"
	TypeMakeMutualPlaylist   = "make_mutual_playlist"
	TypeNewService           = "new"
	TypeResult               = "result"
)

// Outbound message types.
const (
	TypeAdvertisingGroups    = "advertising_groups"
	TypeResponsePlaylists    = "response_playlists"
	TypeMutualPlaylistResult = "mutual_playlist_result"
	TypeError                = "error"
)

// ServiceMutualPlaylist is the worker name the broker routes
// make_mutual_playlist requests to.
const ServiceMutualPlaylist = "MutualPlaylist"

var validate = validator.New()

// Message is the envelope for every frame on both endpoints. Only Type is
// always present; the other fields are type-specific.
type Message struct {
	Type             string          `json:"message_type" validate:"required"`
	Strings          []string        `json:"strings,omitempty"`
	Code             string          `json:"code,omitempty"`
	ID               *int            `json:"id,omitempty"`
	MicroserviceType string          `json:"microservice_type,omitempty"`
	Token            string          `json:"token,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
}

// Parse decodes a raw frame into a Message. An unparseable frame or a
// missing message_type is reported as ErrMalformedMessage.
func Parse(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	if err := validate.Struct(msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	return msg, nil
}

// AuthCode extracts the authorization code carried by a NewClient frame.
func (m Message) AuthCode() (string, error) {
	if len(m.Strings) == 0 || m.Strings[0] == "" {
		return "", fmt.Errorf("%w: NewClient carries no auth code", errors.ErrMalformedMessage)
	}
	return m.Strings[0], nil
}

// JoinTarget extracts the target group id and the joining session code
// from a join_group frame.
func (m Message) JoinTarget() (domain.GroupID, string, error) {
	if m.ID == nil {
		return 0, "", fmt.Errorf("%w: join_group carries no group id", errors.ErrMalformedMessage)
	}
	if m.Code == "" {
		return 0, "", fmt.Errorf("%w: join_group carries no session code", errors.ErrMalformedMessage)
	}
	return domain.GroupID(*m.ID), m.Code, nil
}

// ServiceName extracts the service name a worker registers under.
func (m Message) ServiceName() (string, error) {
	if m.MicroserviceType == "" {
		return "", fmt.Errorf("%w: new carries no microservice_type", errors.ErrMalformedMessage)
	}
	return m.MicroserviceType, nil
}

// GroupView is the broadcast representation of one group.
type GroupView struct {
	ID      int      `json:"id"`
	Advert  bool     `json:"advert"`
	Clients []string `json:"clients"`
}

// Groups builds the full-snapshot frame pushed on every membership change
// and returned by get_advertising_groups.
func Groups(views []GroupView) ([]byte, error) {
	data, err := json.Marshal(views)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: TypeAdvertisingGroups, Data: data})
}

// Playlists builds the response_playlists reply carrying the provider
// document untouched.
func Playlists(document json.RawMessage) ([]byte, error) {
	return json.Marshal(Message{Type: TypeResponsePlaylists, Data: document})
}

// MutualPlaylistRequest builds the frame routed to the MutualPlaylist
// worker: the group members' access tokens plus the correlation token the
// worker must echo in its result.
func MutualPlaylistRequest(accessTokens []string, correlation string) ([]byte, error) {
	return json.Marshal(Message{
		Type:    TypeMakeMutualPlaylist,
		Strings: accessTokens,
		Token:   correlation,
	})
}

// Result builds the worker's result frame.
func Result(correlation string, document json.RawMessage) ([]byte, error) {
	return json.Marshal(Message{Type: TypeResult, Token: correlation, Data: document})
}

// MutualPlaylistResult builds the frame delivered to the session that
// originally requested the computation.
func MutualPlaylistResult(document json.RawMessage) ([]byte, error) {
	return json.Marshal(Message{Type: TypeMutualPlaylistResult, Data: document})
}

// Register builds the frame a worker sends to enrol under a service name.
func Register(serviceName string) ([]byte, error) {
	return json.Marshal(Message{Type: TypeNewService, MicroserviceType: serviceName})
}

// Error builds the explicit error reply sent to the originating
// connection only, never broadcast.
func Error(reason error) ([]byte, error) {
	return json.Marshal(Message{Type: TypeError, Strings: []string{reason.Error()}})
}
