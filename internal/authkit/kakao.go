package authkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	kakaoAuthURL     = "https://kauth.kakao.com/oauth/authorize"
	kakaoTokenURL    = "https://kauth.kakao.com/oauth/token"
	kakaoUserInfoURL = "https://kapi.kakao.com/v2/user/me"
)

// KakaoConfig configures the Kakao OAuth client. Empty URLs default to Kakao's production endpoints.
type KakaoConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
}

// Enabled reports whether enough configuration is present to call Kakao.
func (configuration KakaoConfig) Enabled() bool {
	return strings.TrimSpace(configuration.ClientID) != "" && strings.TrimSpace(configuration.RedirectURL) != ""
}

// KakaoClient exchanges Kakao authorization codes for user profiles.
type KakaoClient struct {
	oauthConfig *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

type kakaoProfile struct {
	ID           int64 `json:"id"`
	KakaoAccount struct {
		Email   string `json:"email"`
		Profile struct {
			Nickname string `json:"nickname"`
		} `json:"profile"`
	} `json:"kakao_account"`
	Properties struct {
		Nickname string `json:"nickname"`
	} `json:"properties"`
}

func (profile kakaoProfile) nickname() string {
	if nickname := strings.TrimSpace(profile.KakaoAccount.Profile.Nickname); nickname != "" {
		return nickname
	}
	return strings.TrimSpace(profile.Properties.Nickname)
}

// NewKakaoClient builds a client from configuration. httpClient may be nil.
func NewKakaoClient(configuration KakaoConfig, httpClient *http.Client) *KakaoClient {
	authURL := firstNonEmpty(configuration.AuthURL, kakaoAuthURL)
	tokenURL := firstNonEmpty(configuration.TokenURL, kakaoTokenURL)
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &KakaoClient{
		oauthConfig: &oauth2.Config{
			ClientID:     configuration.ClientID,
			ClientSecret: configuration.ClientSecret,
			RedirectURL:  configuration.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: firstNonEmpty(configuration.UserInfoURL, kakaoUserInfoURL),
		httpClient:  httpClient,
	}
}

// AuthCodeURL returns the Kakao consent URL carrying state.
func (client *KakaoClient) AuthCodeURL(state string) string {
	return client.oauthConfig.AuthCodeURL(state)
}

func (client *KakaoClient) fetchProfile(ctx context.Context, code string) (kakaoProfile, error) {
	exchangeContext := context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)
	token, err := client.oauthConfig.Exchange(exchangeContext, code)
	if err != nil {
		return kakaoProfile{}, fmt.Errorf("auth.kakao.exchange: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.userInfoURL, nil)
	if err != nil {
		return kakaoProfile{}, fmt.Errorf("auth.kakao.profile_request: %w", err)
	}
	response, err := client.oauthConfig.Client(exchangeContext, token).Do(request)
	if err != nil {
		return kakaoProfile{}, fmt.Errorf("auth.kakao.profile: %w", err)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, response.Body)
		return kakaoProfile{}, fmt.Errorf("auth.kakao.profile: unexpected status %d", response.StatusCode)
	}

	var profile kakaoProfile
	if err := json.NewDecoder(response.Body).Decode(&profile); err != nil {
		return kakaoProfile{}, fmt.Errorf("auth.kakao.profile_decode: %w", err)
	}
	return profile, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
