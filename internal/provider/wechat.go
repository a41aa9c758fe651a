package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/openclaw/oauth-bridge-go/internal/model"
)

const (
	wechatAuthURL    = "https://open.weixin.qq.com/connect/qrconnect"
	wechatTokenURL   = "https://api.weixin.qq.com/sns/oauth2/access_token"
	wechatRefreshURL = "https://api.weixin.qq.com/sns/oauth2/refresh_token"
	wechatUserURL    = "https://api.weixin.qq.com/sns/userinfo"

	wechatExtraRefreshURL = "refresh_url"
)

// WeChat speaks its own dialect: appid/secret instead of client_id/client_secret,
// GET token calls, and errors reported as errcode in a 200 body.
type WeChat struct {
	client *http.Client
}

func NewWeChat(client *http.Client) *WeChat {
	return &WeChat{client: client}
}

func (p *WeChat) Name() string { return model.ProviderWeChat }

// BuildAuthorizationURL keeps WeChat's required parameter order and fragment.
func (p *WeChat) BuildAuthorizationURL(cfg Config, state string, scopes []string) string {
	scope := strings.Join(scopesOrDefault(scopes, "snsapi_login"), ",")
	return fmt.Sprintf("%s?appid=%s&redirect_uri=%s&response_type=code&scope=%s&state=%s#wechat_redirect",
		cfg.extra(ExtraAuthURL, wechatAuthURL),
		url.QueryEscape(cfg.ClientID),
		url.QueryEscape(cfg.RedirectURI),
		url.QueryEscape(scope),
		url.QueryEscape(state),
	)
}

type wechatError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (e wechatError) err() error {
	if e.ErrCode == 0 {
		return nil
	}
	return &APIError{Code: strconv.Itoa(e.ErrCode), Message: e.ErrMsg}
}

type wechatToken struct {
	wechatError
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	UnionID      string `json:"unionid"`
	Scope        string `json:"scope"`
}

func (t *wechatToken) tokenSet() (*model.TokenSet, error) {
	if err := t.err(); err != nil {
		return nil, err
	}
	if t.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	ts := &model.TokenSet{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
		Extra:        map[string]string{},
	}
	if t.OpenID != "" {
		ts.Extra["openid"] = t.OpenID
	}
	if t.UnionID != "" {
		ts.Extra["unionid"] = t.UnionID
	}
	return ts, nil
}

func (p *WeChat) ExchangeCode(ctx context.Context, cfg Config, code, redirectURI string) (*model.TokenSet, error) {
	query := url.Values{
		"appid":      {cfg.ClientID},
		"secret":     {cfg.ClientSecret},
		"code":       {code},
		"grant_type": {"authorization_code"},
	}
	var tok wechatToken
	if err := getJSON(ctx, p.client, cfg.extra(ExtraTokenURL, wechatTokenURL)+"?"+query.Encode(), nil, &tok); err != nil {
		return nil, err
	}
	return tok.tokenSet()
}

type wechatUser struct {
	wechatError
	OpenID     string `json:"openid"`
	UnionID    string `json:"unionid"`
	Nickname   string `json:"nickname"`
	HeadImgURL string `json:"headimgurl"`
}

func (p *WeChat) FetchProfile(ctx context.Context, cfg Config, tokens *model.TokenSet) (*model.OAuthProfile, error) {
	openID := tokens.Extra["openid"]
	if openID == "" {
		return nil, fmt.Errorf("token set has no openid")
	}

	query := url.Values{
		"access_token": {tokens.AccessToken},
		"openid":       {openID},
	}
	var u wechatUser
	if err := getJSON(ctx, p.client, cfg.extra(ExtraUserInfoURL, wechatUserURL)+"?"+query.Encode(), nil, &u); err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	if err := u.err(); err != nil {
		return nil, err
	}

	externalID := openID
	if cfg.flag(ExtraUseUnionID) {
		externalID = u.UnionID
		if externalID == "" {
			externalID = tokens.Extra["unionid"]
		}
	}
	if err := requireExternalID(externalID); err != nil {
		return nil, err
	}

	return &model.OAuthProfile{
		ExternalID: externalID,
		Username:   u.Nickname,
		Avatar:     u.HeadImgURL,
		Raw: rawJSON(map[string]any{
			"openid":     u.OpenID,
			"unionid":    u.UnionID,
			"nickname":   u.Nickname,
			"headimgurl": u.HeadImgURL,
		}),
	}, nil
}

func (p *WeChat) RefreshToken(ctx context.Context, cfg Config, refreshToken string) (*model.TokenSet, error) {
	query := url.Values{
		"appid":         {cfg.ClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	var tok wechatToken
	if err := getJSON(ctx, p.client, cfg.extra(wechatExtraRefreshURL, wechatRefreshURL)+"?"+query.Encode(), nil, &tok); err != nil {
		return nil, err
	}
	return tok.tokenSet()
}
