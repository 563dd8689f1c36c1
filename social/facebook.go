package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const facebookGraphURL = "https://graph.facebook.com/v3.0"

// FacebookConfig identifies the Facebook app tokens must belong to.
type FacebookConfig struct {
	AppID     string
	AppSecret string
	// GraphURL overrides the Graph API base, mainly for tests.
	GraphURL string
	Client   *http.Client
}

// Facebook checks user access tokens with the Graph debug_token endpoint and
// then matches the token owner's email.
type Facebook struct {
	graphURL string
	client   *http.Client
	app      *clientcredentials.Config
}

func NewFacebook(cfg FacebookConfig) *Facebook {
	base := strings.TrimRight(cfg.GraphURL, "/")
	if base == "" {
		base = facebookGraphURL
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Facebook{
		graphURL: base,
		client:   client,
		app: &clientcredentials.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			TokenURL:     base + "/oauth/access_token",
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}
}

// Verify accepts token when debug_token reports it valid for this app and
// the token owner's email matches, ignoring case.
func (f *Facebook) Verify(ctx context.Context, email, token string) error {
	appToken, err := f.app.Token(context.WithValue(ctx, oauth2.HTTPClient, f.client))
	if err != nil {
		return fmt.Errorf("%w: app token: %v", ErrUnavailable, err)
	}

	var debug struct {
		Data struct {
			IsValid bool   `json:"is_valid"`
			AppID   string `json:"app_id"`
		} `json:"data"`
		Error json.RawMessage `json:"error"`
	}
	ok, err := f.get(ctx, "/debug_token", url.Values{
		"input_token":  {token},
		"access_token": {appToken.AccessToken},
	}, &debug)
	if err != nil {
		return err
	}
	if !ok || len(debug.Error) > 0 {
		return ErrRejected
	}
	if !debug.Data.IsValid || debug.Data.AppID != f.app.ClientID {
		return ErrRejected
	}

	var me struct {
		Email string `json:"email"`
	}
	ok, err = f.get(ctx, "/me", url.Values{
		"fields":       {"email"},
		"access_token": {token},
	}, &me)
	if err != nil {
		return err
	}
	if !ok || !sameEmail(email, me.Email) {
		return ErrRejected
	}
	return nil
}

// get reports false for non-2xx responses.
func (f *Facebook) get(ctx context.Context, path string, q url.Values, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.graphURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return true, nil
}
