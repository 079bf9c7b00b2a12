package auth

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/domain"
)

// Store is the read-only lookup of authorized credentials and stream
// bindings. Loaded once at startup, safe for concurrent reads.
type Store struct {
	creds        []domain.Credential
	bindings     map[domain.StreamKey]struct{}
	webhookToken string
}

type credentialsFile struct {
	AuthCredentials   []domain.Credential    `json:"auth_credentials"`
	StreamMeetingInfo []domain.StreamBinding `json:"stream_meeting_info"`
	WebhookTokens     []struct {
		Token string `json:"token"`
	} `json:"Zoom_Webhook_Secret_Token"`
}

// NewStore builds a store from already-parsed entries. Used by tests
// and by callers that source credentials elsewhere.
func NewStore(creds []domain.Credential, bindings []domain.StreamBinding, webhookToken string) *Store {
	s := &Store{
		creds:        creds,
		bindings:     make(map[domain.StreamKey]struct{}, len(bindings)),
		webhookToken: webhookToken,
	}
	for _, b := range bindings {
		s.bindings[b.Key()] = struct{}{}
	}
	return s
}

// Load reads the credentials file from disk.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	var f credentialsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	token := ""
	if len(f.WebhookTokens) > 0 {
		token = f.WebhookTokens[0].Token
	}
	log.Info().Str("module", "auth").Str("path", path).
		Int("credentials", len(f.AuthCredentials)).
		Int("bindings", len(f.StreamMeetingInfo)).
		Msg("loaded credential store")
	return NewStore(f.AuthCredentials, f.StreamMeetingInfo, token), nil
}

// HasBinding reports whether the key is an authorized stream binding.
func (s *Store) HasBinding(key domain.StreamKey) bool {
	_, ok := s.bindings[key]
	return ok
}

// MatchSignature reports whether any stored credential, combined with
// the key, produces the presented signature.
func (s *Store) MatchSignature(signature string, key domain.StreamKey) bool {
	for _, cred := range s.creds {
		if Verify(signature, cred.ClientID, key.MeetingUUID, key.StreamID, cred.ClientSecret) {
			return true
		}
	}
	return false
}

// WebhookToken returns the secret used to verify inbound webhook
// signatures on the control plane.
func (s *Store) WebhookToken() string {
	return s.webhookToken
}
