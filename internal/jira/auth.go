package jira

import (
	"encoding/base64"
	"net/http"
)

// BasicAuth implements Authenticator with email + API token (Jira Cloud).
type BasicAuth struct {
	Email    string
	APIToken string
}

func (b *BasicAuth) Apply(req *http.Request) error {
	cred := base64.StdEncoding.EncodeToString([]byte(b.Email + ":" + b.APIToken))
	req.Header.Set("Authorization", "Basic "+cred)
	return nil
}

// BearerAuth implements Authenticator with a personal access token (Jira Data Center).
type BearerAuth struct {
	Token string
}

func (b *BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// NewAuthenticator picks basic auth when an email is set, else a bearer token.
func NewAuthenticator(email, token string) Authenticator {
	if email != "" {
		return &BasicAuth{Email: email, APIToken: token}
	}
	return &BearerAuth{Token: token}
}
