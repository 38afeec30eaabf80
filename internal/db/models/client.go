// Package models - client.go defines the Client model for travel agency
// customers, covering contact details, travel documents, and the optional
// portal login credential.
package models

import "time"

// Client represents a customer of the agency
type Client struct {
	ID                    string     `json:"id"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	Email                 string     `json:"email"`
	Phone                 *string    `json:"phone,omitempty"`
	DateOfBirth           *time.Time `json:"date_of_birth,omitempty"`
	Nationality           *string    `json:"nationality,omitempty"`
	PassportNumber        *string    `json:"passport_number,omitempty"`
	Address               *string    `json:"address,omitempty"`
	EmergencyContactName  *string    `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone,omitempty"`
	Notes                 *string    `json:"notes,omitempty"`
	// PasswordHash is set only for clients with a portal account
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName returns the client's display name
func (c *Client) FullName() string {
	return c.FirstName + " " + c.LastName
}

// HasPortalAccount returns true if the client can log in to the tracking portal
func (c *Client) HasPortalAccount() bool {
	return c.PasswordHash != nil && *c.PasswordHash != ""
}

// PublicClient is the minimal client view exposed on the public tracking endpoint
type PublicClient struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Public returns the tracking-endpoint view of the client
func (c *Client) Public() PublicClient {
	return PublicClient{
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
	}
}
