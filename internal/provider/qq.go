package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

const (
	qqAuthURL  = "https://graph.qq.com/oauth2.0/authorize"
	qqTokenURL = "https://graph.qq.com/oauth2.0/token"
	qqMeURL    = "https://graph.qq.com/oauth2.0/me"
	qqUserURL  = "https://graph.qq.com/user/get_user_info"

	qqExtraMeURL = "me_url"
)

// QQ needs a second call to /oauth2.0/me to learn the openid behind a token.
type QQ struct {
	client *http.Client
}

func NewQQ(client *http.Client) *QQ {
	return &QQ{client: client}
}

func (p *QQ) Name() string { return model.ProviderQQ }

func (p *QQ) oauth2Config(cfg Config, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.extra(ExtraAuthURL, qqAuthURL),
			TokenURL:  cfg.extra(ExtraTokenURL, qqTokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// BuildAuthorizationURL joins scopes with commas.
func (p *QQ) BuildAuthorizationURL(cfg Config, state string, scopes []string) string {
	scope := strings.Join(scopesOrDefault(scopes, "get_user_info"), ",")
	return p.oauth2Config(cfg, cfg.RedirectURI).AuthCodeURL(state, oauth2.SetAuthURLParam("scope", scope))
}

func (p *QQ) ExchangeCode(ctx context.Context, cfg Config, code, redirectURI string) (*model.TokenSet, error) {
	tok, err := p.oauth2Config(cfg, redirectURI).Exchange(withClient(ctx, p.client), code,
		oauth2.SetAuthURLParam("fmt", "json"))
	if err != nil {
		return nil, err
	}
	return tokenSetFromOAuth2(tok), nil
}

type qqMe struct {
	ClientID         string `json:"client_id"`
	OpenID           string `json:"openid"`
	UnionID          string `json:"unionid"`
	Error            int    `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type qqUser struct {
	Ret         int    `json:"ret"`
	Msg         string `json:"msg"`
	Nickname    string `json:"nickname"`
	FigureURL   string `json:"figureurl_qq_1"`
	FigureURLHD string `json:"figureurl_qq_2"`
}

func (p *QQ) FetchProfile(ctx context.Context, cfg Config, tokens *model.TokenSet) (*model.OAuthProfile, error) {
	useUnionID := cfg.flag(ExtraUseUnionID)

	meQuery := url.Values{"access_token": {tokens.AccessToken}, "fmt": {"json"}}
	if useUnionID {
		meQuery.Set("unionid", "1")
	}
	var me qqMe
	if err := getJSON(ctx, p.client, cfg.extra(qqExtraMeURL, qqMeURL)+"?"+meQuery.Encode(), nil, &me); err != nil {
		return nil, fmt.Errorf("get openid: %w", err)
	}
	if me.Error != 0 {
		return nil, &APIError{Code: strconv.Itoa(me.Error), Message: me.ErrorDescription}
	}

	externalID := me.OpenID
	if useUnionID {
		externalID = me.UnionID
	}
	if err := requireExternalID(externalID); err != nil {
		return nil, err
	}

	userQuery := url.Values{
		"access_token":       {tokens.AccessToken},
		"oauth_consumer_key": {cfg.ClientID},
		"openid":             {me.OpenID},
	}
	var u qqUser
	if err := getJSON(ctx, p.client, cfg.extra(ExtraUserInfoURL, qqUserURL)+"?"+userQuery.Encode(), nil, &u); err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	if u.Ret != 0 {
		return nil, &APIError{Code: strconv.Itoa(u.Ret), Message: u.Msg}
	}

	avatar := u.FigureURLHD
	if avatar == "" {
		avatar = u.FigureURL
	}
	return &model.OAuthProfile{
		ExternalID: externalID,
		Username:   u.Nickname,
		Avatar:     avatar,
		Raw: rawJSON(map[string]any{
			"openid":   me.OpenID,
			"unionid":  me.UnionID,
			"nickname": u.Nickname,
			"avatar":   avatar,
		}),
	}, nil
}

func (p *QQ) RefreshToken(ctx context.Context, cfg Config, refreshToken string) (*model.TokenSet, error) {
	ts := p.oauth2Config(cfg, cfg.RedirectURI).TokenSource(withClient(ctx, p.client), &oauth2.Token{
		RefreshToken: refreshToken,
	})
	tok, err := ts.Token()
	if err != nil {
		return nil, err
	}
	return tokenSetFromOAuth2(tok), nil
}
