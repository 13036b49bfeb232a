package upstream

import (
	"encoding/json"
	"fmt"
	"time"
)

// Token is the credential pair issued by the platform server on login
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	UserID       int64  `json:"user_id"`
}

// Organization is a participating institution in the platform
type Organization struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Domain  string `json:"domain,omitempty"`
	Country string `json:"country,omitempty"`
}

// Collaboration is a group of organizations computing together
type Collaboration struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Encrypted       bool    `json:"encrypted"`
	OrganizationIDs []int64 `json:"organization_ids,omitempty"`
}

// Node is a compute node registered for an organization in a collaboration
type Node struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	OrganizationID  int64  `json:"organization_id"`
	CollaborationID int64  `json:"collaboration_id"`
	LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
}

// Task is a computation task submitted to a collaboration
type Task struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	Image           string    `json:"image,omitempty"`
	CollaborationID int64     `json:"collaboration_id"`
	InitiatorID     int64     `json:"initiator_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// RoleSpec is the payload for creating or updating a role. Rules are
// referenced by ID; the server resolves and validates them.
type RoleSpec struct {
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	OrganizationID *int64  `json:"organization_id,omitempty"`
	RuleIDs        []int64 `json:"rules"`
}

// APIError is a non-2xx response from the platform server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error (status %d): %s", e.StatusCode, e.Message)
}

// envelope is the platform's standard paginated response wrapper
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Links struct {
		Next string `json:"next,omitempty"`
	} `json:"links"`
}
