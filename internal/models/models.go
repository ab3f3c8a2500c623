package models

import (
	"strings"
	"time"
)

// RoleUser is assigned to every self-registered identity.
const RoleUser = "USER"

// Identity is a registered SayUp user. Email is globally unique and acts as the token subject.
type Identity struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// UsernameFromEmail derives the default username from the local part of an email address.
func UsernameFromEmail(email string) string {
	localPart, _, found := strings.Cut(email, "@")
	if !found || localPart == "" {
		return email
	}
	return localPart
}

// RelationshipStatus is the closed set of states a friend relationship edge can hold.
type RelationshipStatus string

const (
	StatusPending  RelationshipStatus = "PENDING"
	StatusAccepted RelationshipStatus = "ACCEPTED"
	StatusRejected RelationshipStatus = "REJECTED"
)

// Valid reports whether the status is one of the known states.
func (status RelationshipStatus) Valid() bool {
	switch status {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	default:
		return false
	}
}

// FriendRelationship is a directed edge from the requester to the addressee.
type FriendRelationship struct {
	ID          int64
	Requester   Identity
	Addressee   Identity
	Status      RelationshipStatus
	RequestedAt time.Time
	AcceptedAt  *time.Time
	RejectedAt  *time.Time
	Version     int64
}

// Counterpart returns the side of the edge that is not identityID.
func (relationship FriendRelationship) Counterpart(identityID int64) Identity {
	if relationship.Requester.ID == identityID {
		return relationship.Addressee
	}
	return relationship.Requester
}
