// Package party implements the HTTP collaborator owning server-side party
// state: pending invitations, party lookup and creation, and member
// admission decisions.
package party

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"partyline/domain"
	"partyline/errors"
)

const defaultRequestTimeout = 10 * time.Second

// TokenProvider supplies the bearer token for each request, so a refreshed
// access token is picked up without rebuilding the client.
type TokenProvider func() string

// Client talks to the party service REST surface rooted at
// {base}/party/api/v1/{appId}.
type Client struct {
	log      *slog.Logger
	http     *http.Client
	baseURL  string
	appID    string
	token    TokenProvider
	validate *validator.Validate
}

func NewClient(log *slog.Logger, baseURL, appID string, token TokenProvider) *Client {
	return &Client{
		log:      log,
		http:     &http.Client{Timeout: defaultRequestTimeout},
		baseURL:  baseURL,
		appID:    appID,
		token:    token,
		validate: validator.New(),
	}
}

// userStateResponse is the service payload for a user's party state.
type userStateResponse struct {
	Current []partyRecord            `json:"current"`
	Invites []domain.PartyInvitation `json:"invites"`
}

// partyRecord is the wire shape of a party.
type partyRecord struct {
	ID       string                     `json:"id" validate:"required"`
	Revision int                        `json:"revision"`
	Meta     map[string]json.RawMessage `json:"meta"`
	Members  []memberRecord             `json:"members"`
}

type memberRecord struct {
	AccountID   string                     `json:"account_id" validate:"required"`
	DisplayName string                     `json:"account_dn"`
	Role        string                     `json:"role"`
	Revision    int                        `json:"revision"`
	JoinedAt    time.Time                  `json:"joined_at"`
	Meta        map[string]json.RawMessage `json:"meta"`
}

// PendingInvitations fetches the user's party state and returns its valid
// invitation records. Records failing validation are skipped, not fatal.
func (c *Client) PendingInvitations(ctx context.Context, accountID string) ([]domain.PartyInvitation, error) {
	url := fmt.Sprintf("%s/party/api/v1/%s/user/%s", c.baseURL, c.appID, accountID)

	var state userStateResponse
	if err := c.get(ctx, url, &state); err != nil {
		return nil, err
	}

	invitations := make([]domain.PartyInvitation, 0, len(state.Invites))
	for _, invitation := range state.Invites {
		if err := c.validate.Struct(&invitation); err != nil {
			c.log.Debug("Skipping invalid invitation record", "party", invitation.PartyID, "error", err)
			continue
		}
		invitations = append(invitations, invitation)
	}
	return invitations, nil
}

// LookupParty fetches full party state by id.
func (c *Client) LookupParty(ctx context.Context, partyID string) (*domain.Party, error) {
	url := fmt.Sprintf("%s/party/api/v1/%s/parties/%s", c.baseURL, c.appID, partyID)

	var record partyRecord
	if err := c.get(ctx, url, &record); err != nil {
		return nil, err
	}
	return c.toParty(record)
}

// CreateParty asks the service for a fresh party owned by the local user.
func (c *Client) CreateParty(ctx context.Context) (*domain.Party, error) {
	url := fmt.Sprintf("%s/party/api/v1/%s/parties", c.baseURL, c.appID)

	var record partyRecord
	if err := c.post(ctx, url, map[string]any{}, &record); err != nil {
		return nil, err
	}
	return c.toParty(record)
}

// ConfirmMember admits a joining member awaiting confirmation.
func (c *Client) ConfirmMember(ctx context.Context, partyID, accountID string) error {
	url := fmt.Sprintf("%s/party/api/v1/%s/parties/%s/members/%s/confirm", c.baseURL, c.appID, partyID, accountID)
	return c.post(ctx, url, nil, nil)
}

// RejectMember refuses a joining member awaiting confirmation.
func (c *Client) RejectMember(ctx context.Context, partyID, accountID string) error {
	url := fmt.Sprintf("%s/party/api/v1/%s/parties/%s/members/%s/reject", c.baseURL, c.appID, partyID, accountID)
	return c.post(ctx, url, nil, nil)
}

func (c *Client) toParty(record partyRecord) (*domain.Party, error) {
	if err := c.validate.Struct(&record); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPartyService, err)
	}

	party := domain.NewParty(record.ID)
	party.Revision = record.Revision
	for key, value := range record.Meta {
		party.Meta[key] = value
	}
	for _, member := range record.Members {
		err := party.AddMember(&domain.PartyMember{
			ID:          member.AccountID,
			DisplayName: member.DisplayName,
			Role:        domain.MemberRole(member.Role),
			Revision:    member.Revision,
			JoinedAt:    member.JoinedAt,
			Meta:        member.Meta,
		})
		if err != nil {
			c.log.Warn("Skipping duplicate party member", "party", record.ID, "account", member.AccountID)
		}
	}
	return party, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	return c.do(ctx, http.MethodPost, url, body, out)
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		req.Header.Set("Authorization", "Bearer "+c.token())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d", errors.ErrPartyService, method, url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
