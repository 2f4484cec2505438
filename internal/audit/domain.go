package audit

import (
	"time"

	"github.com/odyssey-erp/authcore/internal/shared"
)

// Action mengidentifikasi jenis kejadian audit.
type Action string

// Aksi yang dicatat oleh inti otorisasi.
const (
	ActionRoleCreated         Action = "ROLE_CREATED"
	ActionRoleAssigned        Action = "ROLE_ASSIGNED"
	ActionRoleRemoved         Action = "ROLE_REMOVED"
	ActionBootstrapSuperAdmin Action = "BOOTSTRAP_SUPER_ADMIN"
	ActionAuthorizationDenied Action = "AUTHORIZATION_DENIED"
)

// Actions lists every known action.
func Actions() []Action {
	return []Action{
		ActionRoleCreated,
		ActionRoleAssigned,
		ActionRoleRemoved,
		ActionBootstrapSuperAdmin,
		ActionAuthorizationDenied,
	}
}

// Valid melaporkan apakah aksi dikenal.
func (a Action) Valid() bool {
	switch a {
	case ActionRoleCreated, ActionRoleAssigned, ActionRoleRemoved, ActionBootstrapSuperAdmin, ActionAuthorizationDenied:
		return true
	}
	return false
}

// TargetType mengklasifikasikan objek yang terdampak.
type TargetType string

// Jenis target audit.
const (
	TargetUser       TargetType = "USER"
	TargetRole       TargetType = "ROLE"
	TargetPermission TargetType = "PERMISSION"
	TargetSystem     TargetType = "SYSTEM"
)

// Valid melaporkan apakah jenis target dikenal.
func (t TargetType) Valid() bool {
	switch t {
	case TargetUser, TargetRole, TargetPermission, TargetSystem:
		return true
	}
	return false
}

// Actor adalah pelaku sebuah mutasi.
type Actor struct {
	ID       string
	Username string
	IP       string
}

// SystemActor dipakai untuk aksi yang dipicu proses, bukan pengguna.
var SystemActor = Actor{ID: "system", Username: "system"}

// Entry adalah satu baris audit. Field string kosong disimpan sebagai NULL.
type Entry struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Action        Action         `json:"action"`
	ActorID       string         `json:"actor_id,omitempty"`
	ActorUsername string         `json:"actor_username,omitempty"`
	TargetType    TargetType     `json:"target_type"`
	TargetID      string         `json:"target_id,omitempty"`
	TargetName    string         `json:"target_name,omitempty"`
	Details       map[string]any `json:"details"`
	IPAddress     string         `json:"ip_address,omitempty"`
	Success       bool           `json:"success"`
}

// Filters menampung filter konjungtif untuk query audit. Nilai kosong berarti
// tidak difilter.
type Filters struct {
	Action        Action
	ActorID       string
	ActorUsername string
	TargetType    TargetType
	TargetID      string
	Start         time.Time
	End           time.Time
	Limit         int
	Offset        int
}

// Page adalah satu halaman hasil query, terbaru lebih dulu.
type Page struct {
	Entries []Entry `json:"entries"`
	shared.Pagination
}
