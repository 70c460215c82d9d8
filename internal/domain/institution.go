package domain

import "time"

// ============================================================
// Linked institutions
// ============================================================

// LinkedInstitution is one user's connection to a bank or brokerage.
// AccessCredential holds the sealed provider access token and is never
// serialized to clients.
type LinkedInstitution struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	ItemID           string    `json:"item_id"`
	Institution      string    `json:"institution"`
	AccessCredential string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Ref returns the back-reference stamped on every account of this institution.
func (l LinkedInstitution) Ref() InstitutionRef {
	return InstitutionRef{ID: l.ID, Name: l.Institution}
}

// LinkRequest is the payload of POST /v1/institutions.
type LinkRequest struct {
	PublicToken string `json:"public_token"`
	Institution string `json:"institution"`
}

// TokenExchange is the provider's answer to a public token exchange.
type TokenExchange struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

// LinkToken is a short-lived token the client uses to open the provider's link flow.
type LinkToken struct {
	LinkToken  string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Toast is a user-visible notification returned alongside write results.
type Toast struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// LinkResult is returned by POST /v1/institutions.
type LinkResult struct {
	Institution *LinkedInstitution `json:"institution"`
	Toast       Toast              `json:"toast"`
}
