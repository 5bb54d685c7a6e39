// Package protocol implements the wire codec between a connected client and
// its room: a JSON envelope carrying a "type" discriminator, decoded into a
// sealed tagged union on the way in and encoded the same way on the way out.
//
// Grounded on the teacher's server/websocket message handling (a
// discriminated envelope dispatched by a type switch) generalized into an
// explicit ClientMessage/ServerMessage sealed interface pair, closed to
// types outside this package. Go does not check a type switch over the
// union for exhaustiveness: a type a dispatch switch has no case for is
// simply not handled there.
package protocol

import (
	"encoding/json"
	"fmt"

	"ctf-arena-server/internal/entity"
	"ctf-arena-server/internal/weapons"
)

// ProtocolError reports a malformed envelope or unknown discriminator. The
// WebSocket read loop drops the message without logging it; it never
// propagates past the connection's read loop.
type ProtocolError struct {
	Type string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s: %v", e.Type, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// envelope is the wire shape every message round-trips through.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is the sealed union of every message a client may send.
// The unexported marker method keeps the union closed to this package.
type ClientMessage interface {
	isClientMessage()
}

// ServerMessage is the sealed union of every message a room may send.
type ServerMessage interface {
	isServerMessage()
}

// --- Client -> server payloads -------------------------------------------------

type ListRoomsMsg struct{}

func (ListRoomsMsg) isClientMessage() {}

type RoomConfigRequest struct {
	TickRate      int    `json:"tickRate,omitempty"`
	BroadcastRate int    `json:"broadcastRate,omitempty"`
	Competitive   bool   `json:"competitive"`
	MaxPlayers    int    `json:"maxPlayers,omitempty"`
	Password      string `json:"password,omitempty"`
	MapName       string `json:"mapName,omitempty"`
	FriendlyFire  bool   `json:"friendlyFire,omitempty"`
}

type CreateRoomMsg struct {
	Config RoomConfigRequest `json:"config"`
}

func (CreateRoomMsg) isClientMessage() {}

type JoinRoomMsg struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
	Password   string `json:"password,omitempty"`
}

func (JoinRoomMsg) isClientMessage() {}

type LeaveRoomMsg struct{}

func (LeaveRoomMsg) isClientMessage() {}

type InputMsg struct {
	Input    entity.Input `json:"input"`
	Sequence uint32       `json:"sequence"`
}

func (InputMsg) isClientMessage() {}

type FireMsg struct{}

func (FireMsg) isClientMessage() {}

type ReloadMsg struct{}

func (ReloadMsg) isClientMessage() {}

type DropWeaponMsg struct{}

func (DropWeaponMsg) isClientMessage() {}

type BuyWeaponMsg struct {
	WeaponName weapons.Type `json:"weaponName"`
}

func (BuyWeaponMsg) isClientMessage() {}

type PickupWeaponMsg struct {
	WeaponID string `json:"weaponId"`
}

func (PickupWeaponMsg) isClientMessage() {}

type SelectWeaponMsg struct {
	Slot weapons.Slot `json:"slot"`
}

func (SelectWeaponMsg) isClientMessage() {}

type ChatMsg struct {
	Message  string `json:"message"`
	TeamOnly bool   `json:"teamOnly"`
}

func (ChatMsg) isClientMessage() {}

type ReadyMsg struct{}

func (ReadyMsg) isClientMessage() {}

type StartGameMsg struct{}

func (StartGameMsg) isClientMessage() {}

type ChangeTeamMsg struct {
	Team entity.Team `json:"team"`
}

func (ChangeTeamMsg) isClientMessage() {}

// DecodeClient parses a raw client frame into its ClientMessage, returning a
// *ProtocolError for anything malformed or unrecognized.
func DecodeClient(raw []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ProtocolError{Type: "<malformed>", Err: err}
	}

	unmarshalInto := func(v ClientMessage) (ClientMessage, error) {
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, v); err != nil {
				return nil, &ProtocolError{Type: env.Type, Err: err}
			}
		}
		return v, nil
	}

	switch env.Type {
	case "list_rooms":
		return ListRoomsMsg{}, nil
	case "create_room":
		return unmarshalInto(&CreateRoomMsg{})
	case "join_room":
		return unmarshalInto(&JoinRoomMsg{})
	case "leave_room":
		return LeaveRoomMsg{}, nil
	case "input":
		return unmarshalInto(&InputMsg{})
	case "fire":
		return FireMsg{}, nil
	case "reload":
		return ReloadMsg{}, nil
	case "drop_weapon":
		return DropWeaponMsg{}, nil
	case "buy_weapon":
		return unmarshalInto(&BuyWeaponMsg{})
	case "pickup_weapon":
		return unmarshalInto(&PickupWeaponMsg{})
	case "select_weapon":
		return unmarshalInto(&SelectWeaponMsg{})
	case "chat":
		return unmarshalInto(&ChatMsg{})
	case "ready":
		return ReadyMsg{}, nil
	case "start_game":
		return StartGameMsg{}, nil
	case "change_team":
		return unmarshalInto(&ChangeTeamMsg{})
	default:
		return nil, &ProtocolError{Type: env.Type, Err: fmt.Errorf("unknown message type")}
	}
}

// --- Server -> client payloads -------------------------------------------------

type RoomSummary struct {
	ID          string `json:"id"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	Phase       string `json:"phase"`
}

type RoomListMsg struct {
	Rooms []RoomSummary `json:"rooms"`
}

func (RoomListMsg) isServerMessage() {}

type RoomJoinedMsg struct {
	RoomID   string      `json:"roomId"`
	PlayerID string      `json:"playerId"`
	Team     entity.Team `json:"team"`
}

func (RoomJoinedMsg) isServerMessage() {}

type RoomErrorMsg struct {
	Reason string `json:"reason"`
}

func (RoomErrorMsg) isServerMessage() {}

type PlayerJoinedMsg struct {
	PlayerID string      `json:"playerId"`
	Name     string      `json:"name"`
	Team     entity.Team `json:"team"`
}

func (PlayerJoinedMsg) isServerMessage() {}

type PlayerLeftMsg struct {
	PlayerID string `json:"playerId"`
}

func (PlayerLeftMsg) isServerMessage() {}

type GameStateMsg struct {
	State Snapshot `json:"state"`
}

func (GameStateMsg) isServerMessage() {}

type PhaseChangeMsg struct {
	Phase        string  `json:"phase"`
	RoundNumber  int     `json:"roundNumber"`
	RemainingSec float64 `json:"remainingSec"`
}

func (PhaseChangeMsg) isServerMessage() {}

type FireEventMsg struct {
	ShooterID string        `json:"shooterId"`
	Origin    [3]float64    `json:"origin"`
	Direction [3]float64    `json:"direction"`
	Weapon    weapons.Type  `json:"weapon"`
}

func (FireEventMsg) isServerMessage() {}

type HitEventMsg struct {
	ShooterID string `json:"shooterId"`
	TargetID  string `json:"targetId"`
	Damage    float64 `json:"damage"`
	Headshot  bool   `json:"headshot"`
}

func (HitEventMsg) isServerMessage() {}

type KillEventMsg struct {
	KillerID string       `json:"killerId"`
	VictimID string       `json:"victimId"`
	Weapon   weapons.Type `json:"weapon"`
	Headshot bool         `json:"headshot"`
}

func (KillEventMsg) isServerMessage() {}

type SpawnEventMsg struct {
	EntityID string     `json:"entityId"`
	Position [3]float64 `json:"position"`
}

func (SpawnEventMsg) isServerMessage() {}

type WeaponDroppedMsg struct {
	WeaponID string     `json:"weaponId"`
	Type     weapons.Type `json:"type"`
	Position [3]float64 `json:"position"`
}

func (WeaponDroppedMsg) isServerMessage() {}

type WeaponPickedUpMsg struct {
	WeaponID string `json:"weaponId"`
	PlayerID string `json:"playerId"`
}

func (WeaponPickedUpMsg) isServerMessage() {}

type ChatReceivedMsg struct {
	PlayerID string `json:"playerId"`
	Message  string `json:"message"`
	TeamOnly bool   `json:"teamOnly"`
}

func (ChatReceivedMsg) isServerMessage() {}

type PlayerReadyMsg struct {
	PlayerID string `json:"playerId"`
}

func (PlayerReadyMsg) isServerMessage() {}

type GameStartingMsg struct{}

func (GameStartingMsg) isServerMessage() {}

type AssignedTeamMsg struct {
	Team entity.Team `json:"team"`
}

func (AssignedTeamMsg) isServerMessage() {}

type InputAckMsg struct {
	Sequence uint32     `json:"sequence"`
	Position [3]float64 `json:"position"`
}

func (InputAckMsg) isServerMessage() {}

// typeNameOf maps a ServerMessage to its wire discriminator.
func typeNameOf(msg ServerMessage) string {
	switch msg.(type) {
	case RoomListMsg:
		return "room_list"
	case RoomJoinedMsg:
		return "room_joined"
	case RoomErrorMsg:
		return "room_error"
	case PlayerJoinedMsg:
		return "player_joined"
	case PlayerLeftMsg:
		return "player_left"
	case GameStateMsg:
		return "game_state"
	case PhaseChangeMsg:
		return "phase_change"
	case FireEventMsg:
		return "fire_event"
	case HitEventMsg:
		return "hit_event"
	case KillEventMsg:
		return "kill_event"
	case SpawnEventMsg:
		return "spawn_event"
	case WeaponDroppedMsg:
		return "weapon_dropped"
	case WeaponPickedUpMsg:
		return "weapon_picked_up"
	case ChatReceivedMsg:
		return "chat_received"
	case PlayerReadyMsg:
		return "player_ready"
	case GameStartingMsg:
		return "game_starting"
	case AssignedTeamMsg:
		return "assigned_team"
	case InputAckMsg:
		return "input_ack"
	default:
		return ""
	}
}

// EncodeServer marshals msg into its wire envelope. A ServerMessage outside
// the sealed set (impossible outside this package) yields an error.
func EncodeServer(msg ServerMessage) ([]byte, error) {
	typeName := typeNameOf(msg)
	if typeName == "" {
		return nil, fmt.Errorf("protocol: unregistered server message type %T", msg)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: typeName, Data: data})
}
